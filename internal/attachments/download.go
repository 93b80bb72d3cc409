package attachments

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// Downloader fetches attachment bytes from the chat platform's CDN and
// persists them into a Store. Downloads retry with backoff; a 404 means the
// upload was deleted and is not retried.
type Downloader struct {
	store  Store
	client *http.Client
}

// NewDownloader creates a Downloader over the given store.
func NewDownloader(store Store) *Downloader {
	return &Downloader{
		store:  store,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Fetch downloads srcURL and saves it under key. The size is advisory; the
// actual bytes read from the response body are stored.
func (d *Downloader) Fetch(ctx context.Context, key, srcURL string, size int64) error {
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("attachments: build request: %w", err))
			}
			resp, err := d.client.Do(req)
			if err != nil {
				return fmt.Errorf("attachments: fetch %s: %w", srcURL, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusNotFound {
				return retry.Unrecoverable(fmt.Errorf("attachments: fetch %s: gone", srcURL))
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("attachments: fetch %s: status %d", srcURL, resp.StatusCode)
			}

			contentType := resp.Header.Get("Content-Type")
			return d.store.Save(ctx, key, resp.Body, size, contentType)
		},
		retry.Attempts(4),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.Context(ctx),
	)
	if err != nil {
		return err
	}
	return nil
}
