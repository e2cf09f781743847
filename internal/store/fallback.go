package store

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/pfs-cli/internal/model"
	"github.com/sells-group/pfs-cli/internal/resilience"
)

// FallbackStore puts a remote store behind a circuit breaker and keeps a
// local store as mirror and fallback. Writes go to both at once and succeed
// when the local write does. Reads prefer the remote and fall back to the
// local copy when the remote fails or does not have the record.
type FallbackStore struct {
	remote  Store
	local   Store
	breaker *resilience.Breaker
}

// NewFallback returns a FallbackStore. The breaker ignores ErrNotFound.
func NewFallback(remote, local Store, cfg resilience.BreakerConfig) *FallbackStore {
	if cfg.Name == "" {
		cfg.Name = "remote-store"
	}
	cfg.Counts = func(err error) bool { return !errors.Is(err, ErrNotFound) }
	return &FallbackStore{remote: remote, local: local, breaker: resilience.NewBreaker(cfg)}
}

// Breaker exposes the remote breaker for health reporting.
func (f *FallbackStore) Breaker() *resilience.Breaker { return f.breaker }

// mirror runs the same write on both stores concurrently.
func (f *FallbackStore) mirror(ctx context.Context, op string, write func(ctx context.Context, s Store) error) error {
	var remoteErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return write(gctx, f.local)
	})
	g.Go(func() error {
		// Remote failures never fail the write; they are logged.
		remoteErr = f.breaker.Execute(ctx, func(ctx context.Context) error {
			return write(ctx, f.remote)
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		return eris.Wrapf(err, "fallback: %s", op)
	}
	if remoteErr != nil {
		zap.L().Warn("fallback: remote write failed, kept local copy",
			zap.String("op", op),
			zap.Error(remoteErr),
		)
	}
	return nil
}

// read tries the remote first.
func read[T any](ctx context.Context, f *FallbackStore, op string, get func(ctx context.Context, s Store) (T, error)) (T, error) {
	v, err := resilience.Guard(ctx, f.breaker, func(ctx context.Context) (T, error) {
		return get(ctx, f.remote)
	})
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, ErrNotFound) {
		zap.L().Warn("fallback: remote read failed, using local",
			zap.String("op", op),
			zap.Error(err),
		)
	}
	return get(ctx, f.local)
}

func (f *FallbackStore) SaveSnapshot(ctx context.Context, s *model.Snapshot) error {
	stamp(&s.ID, &s.CreatedAt)
	return f.mirror(ctx, "save snapshot", func(ctx context.Context, st Store) error {
		cp := *s
		return st.SaveSnapshot(ctx, &cp)
	})
}

func (f *FallbackStore) GetSnapshot(ctx context.Context, id string) (*model.Snapshot, error) {
	return read(ctx, f, "get snapshot", func(ctx context.Context, st Store) (*model.Snapshot, error) {
		return st.GetSnapshot(ctx, id)
	})
}

func (f *FallbackStore) ListSnapshots(ctx context.Context, filter SnapshotFilter) ([]model.Snapshot, error) {
	return read(ctx, f, "list snapshots", func(ctx context.Context, st Store) ([]model.Snapshot, error) {
		return st.ListSnapshots(ctx, filter)
	})
}

func (f *FallbackStore) SaveFillRun(ctx context.Context, r *model.FillRun) error {
	stamp(&r.ID, &r.CreatedAt)
	return f.mirror(ctx, "save fill run", func(ctx context.Context, st Store) error {
		cp := *r
		return st.SaveFillRun(ctx, &cp)
	})
}

func (f *FallbackStore) GetFillRun(ctx context.Context, id string) (*model.FillRun, error) {
	return read(ctx, f, "get fill run", func(ctx context.Context, st Store) (*model.FillRun, error) {
		return st.GetFillRun(ctx, id)
	})
}

func (f *FallbackStore) ListFillRuns(ctx context.Context, filter RunFilter) ([]model.FillRun, error) {
	return read(ctx, f, "list fill runs", func(ctx context.Context, st Store) ([]model.FillRun, error) {
		return st.ListFillRuns(ctx, filter)
	})
}

// Migrate migrates both stores. Only a local failure is fatal.
func (f *FallbackStore) Migrate(ctx context.Context) error {
	return f.mirror(ctx, "migrate", func(ctx context.Context, st Store) error {
		return st.Migrate(ctx)
	})
}

// Close closes both stores.
func (f *FallbackStore) Close() error {
	return errors.Join(f.remote.Close(), f.local.Close())
}
