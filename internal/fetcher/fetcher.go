// Package fetcher downloads blank form templates over HTTP(S) and FTP.
package fetcher

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
)

// DefaultMaxBytes caps a single download.
const DefaultMaxBytes = 64 << 20

// Fetcher downloads a whole resource into memory.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// ConditionalFetcher can skip a download when the remote copy is unchanged.
// changed is false and body is nil when etag still matches.
type ConditionalFetcher interface {
	Fetcher
	FetchIfChanged(ctx context.Context, rawURL, etag string) (body []byte, newETag string, changed bool, err error)
}

// readAll reads r up to max bytes and fails if there is more.
func readAll(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		max = DefaultMaxBytes
	}
	b, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: read body")
	}
	if int64(len(b)) > max {
		return nil, eris.Errorf("fetcher: body exceeds %d bytes", max)
	}
	return b, nil
}
