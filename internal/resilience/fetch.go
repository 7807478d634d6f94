package resilience

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// FetchWithTimeout performs a GET for url bounded by d.
//
// Unlike WithTimeout, the deadline is attached to the request itself, so the
// transport aborts the connection when it expires. The deadline also covers
// reading the body; closing the body releases the deadline's resources.
// A nil client means http.DefaultClient.
func FetchWithTimeout(ctx context.Context, client *http.Client, url string, d time.Duration) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}

	var (
		reqCtx = ctx
		cancel context.CancelFunc = func() {}
	)
	if d > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, d)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		cancel()
		if reqCtx.Err() == context.DeadlineExceeded {
			return nil, &TimeoutError{Label: "fetch " + url, After: d}
		}
		return nil, err
	}

	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
