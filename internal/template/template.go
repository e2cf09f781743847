// Package template resolves a template id to the bytes of a blank form.
package template

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pfs-cli/internal/config"
	"github.com/sells-group/pfs-cli/internal/fetcher"
	"github.com/sells-group/pfs-cli/internal/resilience"
)

// ErrUnknownTemplate is returned when an id is neither configured nor found
// on disk.
var ErrUnknownTemplate = eris.New("template: unknown template")

// Template is a blank form ready for a fill pass.
type Template struct {
	ID string
	// Edition is the mapping edition the source is configured for; empty when
	// the caller must choose.
	Edition string
	Bytes   []byte
	// Location is where the bytes came from.
	Location string
}

// Registry resolves template ids. Configured sources win; otherwise the id is
// treated as a path, then as a file name under the template dir.
type Registry struct {
	sources  map[string]config.TemplateSource
	dir      string
	cacheDir string

	http     fetcher.ConditionalFetcher
	ftp      fetcher.Fetcher
	breakers *resilience.Breakers
}

// Option configures a Registry.
type Option func(*Registry)

// WithHTTPFetcher replaces the HTTP(S) fetcher.
func WithHTTPFetcher(f fetcher.ConditionalFetcher) Option {
	return func(r *Registry) { r.http = f }
}

// WithFTPFetcher replaces the FTP fetcher.
func WithFTPFetcher(f fetcher.Fetcher) Option {
	return func(r *Registry) { r.ftp = f }
}

// WithBreakers sets the per-host circuit breakers.
func WithBreakers(b *resilience.Breakers) Option {
	return func(r *Registry) { r.breakers = b }
}

// NewRegistry builds a Registry from the templates config section.
func NewRegistry(cfg config.TemplatesConfig, retry resilience.RetryConfig, opts ...Option) *Registry {
	if cfg.MaxRetries > 0 {
		retry.MaxAttempts = cfg.MaxRetries
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	r := &Registry{
		sources:  cfg.Sources,
		dir:      cfg.Dir,
		cacheDir: cfg.CacheDir,
		http:     fetcher.NewHTTPFetcher(fetcher.HTTPOptions{Timeout: timeout, Retry: retry}),
		ftp:      fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: timeout, Retry: retry}),
		breakers: resilience.NewBreakers(resilience.DefaultBreakerConfig()),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// IDs returns the configured template ids, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.sources))
	for id := range r.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Source returns the configured source for id.
func (r *Registry) Source(id string) (config.TemplateSource, bool) {
	s, ok := r.sources[id]
	return s, ok
}

// Resolve returns the template for id.
func (r *Registry) Resolve(ctx context.Context, id string) (Template, error) {
	if src, ok := r.sources[id]; ok {
		b, loc, err := r.load(ctx, id, src.URL)
		if err != nil {
			return Template{}, eris.Wrapf(err, "template: resolve %q", id)
		}
		return Template{ID: id, Edition: src.Edition, Bytes: b, Location: loc}, nil
	}

	for _, p := range r.candidates(id) {
		b, err := os.ReadFile(p)
		if err == nil {
			return Template{ID: id, Bytes: b, Location: p}, nil
		}
		if !os.IsNotExist(err) {
			return Template{}, eris.Wrapf(err, "template: read %s", p)
		}
	}
	return Template{}, eris.Wrapf(ErrUnknownTemplate, "template: %q", id)
}

// ResolveConfined is Resolve for ids from untrusted callers. Only configured
// sources and local file names inside the template dir are accepted; paths
// that are absolute, climb out of the dir or leave it through a symlink
// resolve to ErrUnknownTemplate.
func (r *Registry) ResolveConfined(ctx context.Context, id string) (Template, error) {
	if _, ok := r.sources[id]; ok {
		return r.Resolve(ctx, id)
	}
	if r.dir == "" || !filepath.IsLocal(id) {
		return Template{}, eris.Wrapf(ErrUnknownTemplate, "template: %q", id)
	}

	root, err := os.OpenRoot(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Template{}, eris.Wrapf(ErrUnknownTemplate, "template: %q", id)
		}
		return Template{}, eris.Wrap(err, "template: open template dir")
	}
	defer root.Close() //nolint:errcheck

	for _, name := range []string{id, id + ".pdf", id + ".json"} {
		b, err := root.ReadFile(name)
		if err == nil {
			return Template{ID: id, Bytes: b, Location: filepath.Join(r.dir, name)}, nil
		}
		if !os.IsNotExist(err) && !isEscape(err) {
			return Template{}, eris.Wrapf(err, "template: read %s", name)
		}
	}
	return Template{}, eris.Wrapf(ErrUnknownTemplate, "template: %q", id)
}

// isEscape matches the error os.Root returns for names leaving the root.
func isEscape(err error) bool {
	return strings.Contains(err.Error(), "path escapes from parent")
}

func (r *Registry) candidates(id string) []string {
	out := []string{id}
	if r.dir != "" && !filepath.IsAbs(id) {
		out = append(out,
			filepath.Join(r.dir, id),
			filepath.Join(r.dir, id+".pdf"),
			filepath.Join(r.dir, id+".json"),
		)
	}
	return out
}

func (r *Registry) load(ctx context.Context, id, raw string) ([]byte, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, "", eris.Wrap(err, "template: parse source url")
	}

	switch strings.ToLower(u.Scheme) {
	case "", "file":
		p := raw
		if u.Scheme == "file" {
			p = u.Path
		}
		if r.dir != "" && !filepath.IsAbs(p) {
			p = filepath.Join(r.dir, p)
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, "", eris.Wrapf(err, "template: read %s", p)
		}
		return b, p, nil
	case "http", "https":
		b, err := r.remoteHTTP(ctx, id, u)
		return b, raw, err
	case "ftp":
		b, err := r.remoteFTP(ctx, id, u)
		return b, raw, err
	default:
		return nil, "", eris.Errorf("template: unsupported scheme %q", u.Scheme)
	}
}

func (r *Registry) remoteHTTP(ctx context.Context, id string, u *url.URL) ([]byte, error) {
	c := r.cache(id)
	cached, etag := c.read()

	type got struct {
		body    []byte
		etag    string
		changed bool
	}
	res, err := resilience.Guard(ctx, r.breakers.Get(u.Host), func(ctx context.Context) (got, error) {
		b, e, changed, err := r.http.FetchIfChanged(ctx, u.String(), etag)
		return got{b, e, changed}, err
	})
	if err != nil {
		return r.stale(cached, id, err)
	}
	if !res.changed && cached != nil {
		return cached, nil
	}
	if !res.changed {
		// The server matched an etag whose body is gone; fetch unconditionally.
		b, err := resilience.Guard(ctx, r.breakers.Get(u.Host), func(ctx context.Context) ([]byte, error) {
			return r.http.Fetch(ctx, u.String())
		})
		if err != nil {
			return nil, err
		}
		res.body = b
	}
	c.write(res.body, res.etag)
	return res.body, nil
}

func (r *Registry) remoteFTP(ctx context.Context, id string, u *url.URL) ([]byte, error) {
	c := r.cache(id)
	b, err := resilience.Guard(ctx, r.breakers.Get(u.Host), func(ctx context.Context) ([]byte, error) {
		return r.ftp.Fetch(ctx, u.String())
	})
	if err != nil {
		cached, _ := c.read()
		return r.stale(cached, id, err)
	}
	c.write(b, "")
	return b, nil
}

// stale serves a cached copy when the remote fetch failed.
func (r *Registry) stale(cached []byte, id string, err error) ([]byte, error) {
	if cached == nil {
		return nil, err
	}
	zap.L().Warn("template: remote fetch failed, using cached copy",
		zap.String("template", id),
		zap.Error(err),
	)
	return cached, nil
}
