package publishers

import (
	"context"
	"errors"
	"time"

	"github.com/Adda-Baaj/isd-harvester/internal/domain"
	"github.com/Adda-Baaj/isd-harvester/internal/logger"
	"github.com/Adda-Baaj/isd-harvester/pkg/providers"
)

// Logger is the structured logger publishers write to.
type Logger = logger.Logger

func ensureLogger(log Logger) Logger { return logger.Ensure(log) }

// Event is the message published for every emitted article.
type Event struct {
	ID               string    `json:"id"`
	RunID            string    `json:"run_id"`
	Title            string    `json:"title"`
	Link             string    `json:"link"`
	Domain           string    `json:"source_domain"`
	PublishedAt      time.Time `json:"published_at"`
	Body             string    `json:"body"`
	ExtractionMethod string    `json:"extraction_method"`
	Backstop         bool      `json:"backstop,omitempty"`
}

// EventFromArticle builds the event for one article. The ID is stable for a link.
func EventFromArticle(runID string, a domain.ResolvedArticle) Event {
	return Event{
		ID:               providers.HashURL(a.ResolvedLink),
		RunID:            runID,
		Title:            a.Title,
		Link:             a.ResolvedLink,
		Domain:           a.Domain,
		PublishedAt:      a.PublishedAt,
		Body:             a.Body,
		ExtractionMethod: string(a.ExtractionMethod),
		Backstop:         a.Backstop,
	}
}

// attributes are the message attributes queue providers attach to an event.
func (e Event) attributes() map[string]string {
	return map[string]string{
		"source_domain":     e.Domain,
		"extraction_method": e.ExtractionMethod,
		"run_id":            e.RunID,
	}
}

// Publisher delivers events to one sink.
type Publisher interface {
	ID() string
	Type() string
	Publish(ctx context.Context, evt Event) error
}

// closer is implemented by publishers holding client connections.
type closer interface {
	Close() error
}

// PublishAll sends every event to every publisher. Failures are logged and
// counted, never returned.
func PublishAll(ctx context.Context, pubs []Publisher, events []Event, log Logger) (sent, failed int) {
	log = ensureLogger(log)
	for _, pub := range pubs {
		for _, evt := range events {
			if err := pub.Publish(ctx, evt); err != nil {
				failed++
				log.WarnObj("publish failed", "publish_error", map[string]any{
					"publisher_id": pub.ID(),
					"type":         pub.Type(),
					"event_id":     evt.ID,
					"error":        err.Error(),
				})
				continue
			}
			sent++
		}
	}
	return sent, failed
}

// CloseAll releases publisher resources.
func CloseAll(pubs []Publisher) error {
	var errs []error
	for _, pub := range pubs {
		if c, ok := pub.(closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
