package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pfs-cli/internal/fill"
	"github.com/sells-group/pfs-cli/internal/mapping"
	"github.com/sells-group/pfs-cli/internal/model"
	"github.com/sells-group/pfs-cli/internal/monitoring"
	"github.com/sells-group/pfs-cli/internal/store"
	"github.com/sells-group/pfs-cli/internal/template"
)

var servePort int

const maxFillBody = 8 << 20

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the fill API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		cfg.Server.Port = port
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := newFillEnv(cfg, "")
		if err != nil {
			return err
		}
		defer env.Close()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		env.Store = st

		if cfg.Monitoring.WebhookURL != "" {
			checker := monitoring.NewChecker(monitoring.NewCollector(st), env.Alerter, cfg.Monitoring)
			go checker.Run(ctx)
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// fillBody is the request of both fill endpoints. Data wins over SnapshotID.
type fillBody struct {
	TemplateID string               `json:"template_id"`
	Edition    string               `json:"edition,omitempty"`
	SnapshotID string               `json:"snapshot_id,omitempty"`
	Data       *model.FinancialData `json:"data,omitempty"`
}

// fillResponse is the JSON result of POST /v1/fill. Document is base64.
type fillResponse struct {
	RunID    string `json:"run_id,omitempty"`
	Edition  string `json:"edition"`
	Document []byte `json:"document"`
	Report   any    `json:"report"`
}

func newRouter(env *fillEnv, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"X-Fill-Summary", "X-Fill-Run"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/editions", func(w http.ResponseWriter, _ *http.Request) {
			respondJSON(w, http.StatusOK, map[string]any{
				"version":  env.Rules.Version,
				"editions": env.Rules.Editions(),
			})
		})
		r.Get("/templates", func(w http.ResponseWriter, _ *http.Request) {
			respondJSON(w, http.StatusOK, map[string]any{"templates": env.Templates.IDs()})
		})
		r.Post("/fill", func(w http.ResponseWriter, req *http.Request) {
			out, body, ok := serveFill(w, req, env)
			if !ok {
				return
			}
			respondJSON(w, http.StatusOK, fillResponse{
				RunID:    out.Run.ID,
				Edition:  out.Edition,
				Document: out.Result.Document,
				Report:   out.Result.Report(body.TemplateID, out.Edition),
			})
		})
		r.Post("/fill/pdf", func(w http.ResponseWriter, req *http.Request) {
			out, _, ok := serveFill(w, req, env)
			if !ok {
				return
			}
			s := out.Result.Summary
			w.Header().Set("Content-Type", contentType(out.Result.Document))
			w.Header().Set("X-Fill-Summary", fmt.Sprintf("status=%s; filled=%d; blank=%d; missing=%d; failed=%d",
				out.Run.Status, s.Filled, s.Blank, s.Missing, s.Failed))
			if out.Run.ID != "" {
				w.Header().Set("X-Fill-Run", out.Run.ID)
			}
			w.Header().Set("Content-Length", strconv.Itoa(len(out.Result.Document)))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(out.Result.Document)
		})
		r.Get("/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
			if env.Store == nil {
				respondError(w, http.StatusNotFound, "run history is not enabled")
				return
			}
			run, err := env.Store.GetFillRun(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, run)
		})
	})

	return r
}

// serveFill decodes the request and runs the pass. On failure it writes the
// error response and returns ok=false.
func serveFill(w http.ResponseWriter, req *http.Request, env *fillEnv) (*fillOutput, fillBody, bool) {
	var body fillBody
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxFillBody)).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return nil, body, false
	}
	if body.TemplateID == "" {
		respondError(w, http.StatusBadRequest, "template_id is required")
		return nil, body, false
	}

	data := body.Data
	if data == nil {
		if body.SnapshotID == "" || env.Store == nil {
			respondError(w, http.StatusBadRequest, "data or snapshot_id is required")
			return nil, body, false
		}
		snap, err := env.Store.GetSnapshot(req.Context(), body.SnapshotID)
		if err != nil {
			respondStoreError(w, err)
			return nil, body, false
		}
		data = &snap.Data
	}

	out, err := env.runFill(req.Context(), fillRequest{
		TemplateID: body.TemplateID,
		Edition:    body.Edition,
		SnapshotID: body.SnapshotID,
		Data:       data,
		Confined:   true,
	})
	if err != nil {
		respondFillError(w, err)
		return nil, body, false
	}
	return out, body, true
}

func respondFillError(w http.ResponseWriter, err error) {
	var structural *fill.StructuralError
	switch {
	case errors.As(err, &structural):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": structural.Error(),
			"state": string(structural.State),
		})
	case errors.Is(err, template.ErrUnknownTemplate):
		respondError(w, http.StatusNotFound, "unknown template")
	case errors.Is(err, mapping.ErrUnknownEdition):
		respondError(w, http.StatusBadRequest, "unknown edition")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusServiceUnavailable, "fill cancelled")
	default:
		zap.L().Error("fill request failed", zap.Error(err))
		respondError(w, http.StatusBadGateway, "fill failed")
	}
}

func respondStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "not found")
		return
	}
	zap.L().Error("store request failed", zap.Error(err))
	respondError(w, http.StatusInternalServerError, "store unavailable")
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func contentType(doc []byte) string {
	if documentExt(doc) == ".pdf" {
		return "application/pdf"
	}
	return "application/json"
}
