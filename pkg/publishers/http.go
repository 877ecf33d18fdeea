package publishers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// httpPublisher posts events as JSON to a webhook.
type httpPublisher struct {
	id     string
	typ    string
	url    string
	method string
	client *resty.Client
	log    Logger
}

func newHTTPPublisher(_ context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.HTTP == nil {
		return nil, fmt.Errorf("publisher %q missing http configuration", cfg.ID)
	}

	client := resty.New().
		SetTimeout(time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeaders(cfg.HTTP.Headers)

	return &httpPublisher{
		id:     cfg.ID,
		typ:    cfg.Type,
		url:    cfg.HTTP.URL,
		method: cfg.HTTP.Method,
		client: client,
		log:    ensureLogger(log),
	}, nil
}

func (p *httpPublisher) ID() string   { return p.id }
func (p *httpPublisher) Type() string { return p.typ }

// Publish sends the event and treats any non-2xx response as a failure.
func (p *httpPublisher) Publish(ctx context.Context, evt Event) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(evt).
		Execute(p.method, p.url)
	if err != nil {
		return fmt.Errorf("http publisher %s: %w", p.id, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("http publisher %s: status %d", p.id, resp.StatusCode())
	}

	p.log.DebugObj("http publisher delivered event", "publisher_http_delivery", map[string]any{
		"publisher_id": p.id,
		"event_id":     evt.ID,
		"status":       resp.StatusCode(),
	})
	return nil
}
