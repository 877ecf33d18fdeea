package publishers

import (
	"context"
	"fmt"
	"strings"
)

// Builder creates a Publisher from a config entry.
type Builder func(ctx context.Context, cfg PublisherConfig, log Logger) (Publisher, error)

// Registry maps publisher types to builders.
type Registry map[string]Builder

// DefaultRegistry knows the http and queue publisher types.
func DefaultRegistry() Registry {
	return Registry{
		TypeHTTP:  newHTTPPublisher,
		TypeQueue: newQueuePublisher,
	}
}

// PublisherFor builds the publisher for cfg.
func (r Registry) PublisherFor(ctx context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	typ := strings.ToLower(strings.TrimSpace(cfg.Type))
	if typ == "" {
		return nil, fmt.Errorf("publisher %q has no type configured", cfg.ID)
	}
	build, ok := r[typ]
	if !ok {
		return nil, fmt.Errorf("no publisher registered for type %q", cfg.Type)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return build(ctx, cfg, log)
}

// BuildAll builds every enabled publisher. One that cannot be built is logged
// and skipped.
func BuildAll(ctx context.Context, reg Registry, cfgs []PublisherConfig, log Logger) []Publisher {
	log = ensureLogger(log)

	var pubs []Publisher
	for _, cfg := range cfgs {
		if !cfg.EnabledValue() {
			continue
		}
		pub, err := reg.PublisherFor(ctx, cfg, log)
		if err != nil {
			log.ErrorObj("publisher build failed", "publisher_build_error", map[string]any{
				"publisher_id": cfg.ID,
				"type":         cfg.Type,
				"error":        err.Error(),
			})
			continue
		}
		log.DebugObj("publisher ready", "publisher_built", map[string]any{
			"publisher_id": pub.ID(),
			"type":         pub.Type(),
		})
		pubs = append(pubs, pub)
	}
	return pubs
}
