package template

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// diskCache keeps the last downloaded copy of one template and its ETag.
// A zero diskCache (no cache dir) reads nothing and writes nothing.
type diskCache struct {
	body string
	etag string
}

func (r *Registry) cache(id string) diskCache {
	if r.cacheDir == "" {
		return diskCache{}
	}
	name := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(id)
	base := filepath.Join(r.cacheDir, name)
	return diskCache{body: base + ".bin", etag: base + ".etag"}
}

func (c diskCache) read() ([]byte, string) {
	if c.body == "" {
		return nil, ""
	}
	b, err := os.ReadFile(c.body)
	if err != nil {
		return nil, ""
	}
	etag, _ := os.ReadFile(c.etag)
	return b, strings.TrimSpace(string(etag))
}

func (c diskCache) write(b []byte, etag string) {
	if c.body == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(c.body), 0o755); err != nil {
		zap.L().Warn("template: create cache dir", zap.Error(err))
		return
	}
	if err := os.WriteFile(c.body, b, 0o644); err != nil {
		zap.L().Warn("template: write cache", zap.String("path", c.body), zap.Error(err))
		return
	}
	if etag == "" {
		_ = os.Remove(c.etag)
		return
	}
	if err := os.WriteFile(c.etag, []byte(etag), 0o644); err != nil {
		zap.L().Warn("template: write cache etag", zap.String("path", c.etag), zap.Error(err))
	}
}
