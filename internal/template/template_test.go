package template

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pfs-cli/internal/config"
	"github.com/sells-group/pfs-cli/internal/resilience"
)

var fastRetry = resilience.RetryConfig{MaxAttempts: 1, InitialBackoff: time.Millisecond}

type fakeFTP struct {
	body  []byte
	err   error
	calls int
}

func (f *fakeFTP) Fetch(context.Context, string) ([]byte, error) {
	f.calls++
	return f.body, f.err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestResolve_LocalSources(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "sba-413.pdf"), "%PDF-sba")
	writeFile(t, filepath.Join(dir, "bank.json"), `{"forms":[]}`)
	writeFile(t, filepath.Join(dir, "lender", "pfs.pdf"), "%PDF-lender")

	reg := NewRegistry(config.TemplatesConfig{
		Dir: dir,
		Sources: map[string]config.TemplateSource{
			"lender":  {URL: "lender/pfs.pdf", Edition: "pfs-2024"},
			"lender2": {URL: "file://" + filepath.Join(dir, "lender", "pfs.pdf")},
		},
	}, fastRetry)

	tests := []struct {
		id          string
		wantBody    string
		wantEdition string
	}{
		{id: "lender", wantBody: "%PDF-lender", wantEdition: "pfs-2024"},
		{id: "lender2", wantBody: "%PDF-lender"},
		{id: "sba-413", wantBody: "%PDF-sba"},
		{id: "bank", wantBody: `{"forms":[]}`},
		{id: filepath.Join(dir, "sba-413.pdf"), wantBody: "%PDF-sba"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			tpl, err := reg.Resolve(context.Background(), tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.id, tpl.ID)
			assert.Equal(t, tt.wantBody, string(tpl.Bytes))
			assert.Equal(t, tt.wantEdition, tpl.Edition)
			assert.NotEmpty(t, tpl.Location)
		})
	}

	assert.Equal(t, []string{"lender", "lender2"}, reg.IDs())
	src, ok := reg.Source("lender")
	assert.True(t, ok)
	assert.Equal(t, "pfs-2024", src.Edition)
}

func TestResolve_Unknown(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(config.TemplatesConfig{Dir: t.TempDir()}, fastRetry)
	_, err := reg.Resolve(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownTemplate)
}

func TestResolveConfined(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	outside := filepath.Join(t.TempDir(), "outside.pdf")
	writeFile(t, outside, "%PDF-outside")
	writeFile(t, filepath.Join(dir, "sba-413.pdf"), "%PDF-sba")
	writeFile(t, filepath.Join(dir, "lender", "pfs.pdf"), "%PDF-lender")
	require.NoError(t, os.Symlink(outside, filepath.Join(dir, "linked.pdf")))

	reg := NewRegistry(config.TemplatesConfig{
		Dir:     dir,
		Sources: map[string]config.TemplateSource{"lender": {URL: "lender/pfs.pdf", Edition: "pfs-2024"}},
	}, fastRetry)

	for id, want := range map[string]string{
		"lender":     "%PDF-lender",
		"sba-413":    "%PDF-sba",
		"lender/pfs": "%PDF-lender",
	} {
		tpl, err := reg.ResolveConfined(context.Background(), id)
		require.NoError(t, err, id)
		assert.Equal(t, want, string(tpl.Bytes), id)
	}

	rel, err := filepath.Rel(dir, outside)
	require.NoError(t, err)
	for _, id := range []string{outside, rel, "linked", "../sba-413", ""} {
		_, err := reg.ResolveConfined(context.Background(), id)
		assert.ErrorIs(t, err, ErrUnknownTemplate, id)
	}

	tpl, err := reg.Resolve(context.Background(), outside)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-outside", string(tpl.Bytes))
}

func TestResolveConfined_NoDir(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(config.TemplatesConfig{}, fastRetry)
	_, err := reg.ResolveConfined(context.Background(), "sba-413")
	assert.ErrorIs(t, err, ErrUnknownTemplate)
}

func TestResolve_UnsupportedScheme(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(config.TemplatesConfig{
		Sources: map[string]config.TemplateSource{"s3": {URL: "s3://bucket/pfs.pdf"}},
	}, fastRetry)
	_, err := reg.Resolve(context.Background(), "s3")
	assert.ErrorContains(t, err, "unsupported scheme")
}

func TestResolve_HTTPWithCache(t *testing.T) {
	t.Parallel()

	var hits, notModified atomic.Int32
	var down atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if down.Load() {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("If-None-Match") == `"abc"` {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"abc"`)
		_, _ = w.Write([]byte("%PDF-remote"))
	}))
	defer srv.Close()

	cacheDir := t.TempDir()
	reg := NewRegistry(config.TemplatesConfig{
		CacheDir: cacheDir,
		Sources:  map[string]config.TemplateSource{"bank": {URL: srv.URL + "/pfs.pdf", Edition: "pfs-2023"}},
	}, fastRetry)

	tpl, err := reg.Resolve(context.Background(), "bank")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-remote", string(tpl.Bytes))
	assert.Equal(t, "pfs-2023", tpl.Edition)
	assert.FileExists(t, filepath.Join(cacheDir, "bank.bin"))

	// Revalidated with the stored etag.
	tpl, err = reg.Resolve(context.Background(), "bank")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-remote", string(tpl.Bytes))
	assert.Equal(t, int32(1), notModified.Load())

	// Remote failure serves the cached copy.
	down.Store(true)
	tpl, err = reg.Resolve(context.Background(), "bank")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-remote", string(tpl.Bytes))
	assert.Equal(t, int32(3), hits.Load())
}

func TestResolve_HTTPNoCacheFails(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	reg := NewRegistry(config.TemplatesConfig{
		Sources: map[string]config.TemplateSource{"bank": {URL: srv.URL}},
	}, fastRetry)
	_, err := reg.Resolve(context.Background(), "bank")
	assert.ErrorContains(t, err, "404")
}

func TestResolve_FTP(t *testing.T) {
	t.Parallel()

	ftp := &fakeFTP{body: []byte("%PDF-ftp")}
	cacheDir := t.TempDir()
	reg := NewRegistry(config.TemplatesConfig{
		CacheDir: cacheDir,
		Sources:  map[string]config.TemplateSource{"cu": {URL: "ftp://ftp.example.com/forms/pfs.pdf"}},
	}, fastRetry, WithFTPFetcher(ftp))

	tpl, err := reg.Resolve(context.Background(), "cu")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-ftp", string(tpl.Bytes))

	ftp.body, ftp.err = nil, errors.New("421 service not available")
	tpl, err = reg.Resolve(context.Background(), "cu")
	require.NoError(t, err, "cached copy is served")
	assert.Equal(t, "%PDF-ftp", string(tpl.Bytes))
	assert.Equal(t, 2, ftp.calls)
}

func TestResolve_BreakerOpens(t *testing.T) {
	t.Parallel()

	ftp := &fakeFTP{err: errors.New("dial refused")}
	reg := NewRegistry(config.TemplatesConfig{
		Sources: map[string]config.TemplateSource{"cu": {URL: "ftp://ftp.example.com/pfs.pdf"}},
	}, fastRetry,
		WithFTPFetcher(ftp),
		WithBreakers(resilience.NewBreakers(resilience.BreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour})),
	)

	for i := 0; i < 2; i++ {
		_, err := reg.Resolve(context.Background(), "cu")
		require.Error(t, err)
	}
	_, err := reg.Resolve(context.Background(), "cu")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 2, ftp.calls)
}
