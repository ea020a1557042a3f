// Package download fetches mod archives named by deep links.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"bmod-manager/config"

	"go.uber.org/zap"
)

const defaultTimeout = 10 * time.Minute

// Client downloads files over HTTP.
type Client struct {
	UserAgent  string
	HTTPClient *http.Client
	log        *zap.SugaredLogger
}

// NewClient creates a download client using the provided configuration.
func NewClient(cfg config.Config, log *zap.SugaredLogger) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("USERAGENT is not configured")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Client{
		UserAgent: cfg.UserAgent,
		HTTPClient: &http.Client{
			Timeout: defaultTimeout,
		},
		log: log,
	}, nil
}

// Response is an open download. Size is -1 when the server did not say.
type Response struct {
	Body io.ReadCloser
	Size int64
}

// Open starts downloading url. The caller must close the returned body.
func (c *Client) Open(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", "application/octet-stream")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return nil, fmt.Errorf("download failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	c.log.Infow("Download started", zap.String("url", url), zap.Int64("size", resp.ContentLength))
	return &Response{Body: resp.Body, Size: resp.ContentLength}, nil
}

// ProgressFunc is told how many bytes have been read so far out of total
// (-1 when unknown).
type ProgressFunc func(read, total int64)

type progressReader struct {
	r     io.Reader
	read  int64
	total int64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		p.fn(p.read, p.total)
	}
	return n, err
}

// WithProgress reports every read from r to fn.
func WithProgress(r io.Reader, total int64, fn ProgressFunc) io.Reader {
	if fn == nil {
		return r
	}
	return &progressReader{r: r, total: total, fn: fn}
}
