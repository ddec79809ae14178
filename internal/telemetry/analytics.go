package telemetry

import (
	"github.com/posthog/posthog-go"
	"github.com/rs/zerolog"
)

// Analytics records product events keyed by user.
type Analytics interface {
	Track(distinctID, event string, props map[string]any)
	Close() error
}

type nopAnalytics struct{}

func (nopAnalytics) Track(string, string, map[string]any) {}
func (nopAnalytics) Close() error                         { return nil }

// NopAnalytics discards every event.
func NopAnalytics() Analytics { return nopAnalytics{} }

type posthogAnalytics struct {
	client posthog.Client
	logger zerolog.Logger
}

// NewAnalytics returns a PostHog-backed tracker, or a no-op one when key is empty.
func NewAnalytics(logger zerolog.Logger, key, host string) (Analytics, error) {
	if key == "" {
		return nopAnalytics{}, nil
	}

	client, err := posthog.NewWithConfig(key, posthog.Config{Endpoint: host})
	if err != nil {
		return nil, err
	}
	return &posthogAnalytics{client: client, logger: logger}, nil
}

func (a *posthogAnalytics) Track(distinctID, event string, props map[string]any) {
	properties := posthog.NewProperties()
	for k, v := range props {
		properties.Set(k, v)
	}

	err := a.client.Enqueue(posthog.Capture{
		DistinctId: distinctID,
		Event:      event,
		Properties: properties,
	})
	if err != nil {
		a.logger.Warn().Err(err).Str("event", event).Msg("analytics enqueue failed")
	}
}

func (a *posthogAnalytics) Close() error {
	return a.client.Close()
}
