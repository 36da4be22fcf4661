package module

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/oneshot2001/axion/errors"
	"github.com/oneshot2001/axion/inference"
	"github.com/oneshot2001/axion/metric"
)

// Dependencies carries the shared services a module may use. Fields a
// module does not need are left nil; modules must check what they use
// in Init and report StatusNotReady from Process when a dependency is
// missing.
type Dependencies struct {
	// Logger is pre-scoped with the module name by the pipeline.
	Logger *slog.Logger

	// Engine runs model inference. The pipeline holds the accelerator
	// slot while modules run, so modules call it directly.
	Engine inference.Engine

	// Poster performs outbound HTTP calls to auxiliary vision services.
	Poster HTTPPoster

	// Bus publishes raw payloads on the message bus.
	Bus BusPublisher

	// Metrics is the process-wide metric set.
	Metrics *metric.Metrics
}

// BusPublisher is the publish-only surface of the NATS client.
type BusPublisher interface {
	Publish(subject string, data []byte) error
}

// HTTPPoster posts a payload and returns the response body. Non-2xx
// responses are returned as errors.
type HTTPPoster interface {
	Post(ctx context.Context, url, contentType string, body []byte) ([]byte, error)
}

// NewHTTPPoster returns an HTTPPoster backed by an http.Client with the
// given timeout.
func NewHTTPPoster(timeout time.Duration) HTTPPoster {
	return &httpPoster{client: &http.Client{Timeout: timeout}}
}

type httpPoster struct {
	client *http.Client
}

func (p *httpPoster) Post(ctx context.Context, url, contentType string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.WrapInvalid(err, "HTTPPoster", "Post", "request construction")
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.WrapTransient(err, "HTTPPoster", "Post", "http request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, errors.WrapTransient(err, "HTTPPoster", "Post", "response read")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.WrapTransient(
			fmt.Errorf("unexpected status %d", resp.StatusCode),
			"HTTPPoster", "Post", "http request")
	}

	return data, nil
}
