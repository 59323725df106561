package services

import (
	"context"

	"agendazap/config"
	"agendazap/pubsub"
	"agendazap/tools"

	"github.com/rs/zerolog"
)

// IntentDispatcher hands normalized inbound messages to the booking intent
// classifier. Dispatch is always best-effort for callers: message
// durability never depends on the classifier being up.
type IntentDispatcher interface {
	Dispatch(ctx context.Context, req tools.IntentRequest) error
}

type httpDispatcher struct {
	client *tools.IntentClient
}

func (d *httpDispatcher) Dispatch(ctx context.Context, req tools.IntentRequest) error {
	return d.client.Classify(ctx, req)
}

type amqpDispatcher struct {
	pub        pubsub.Publisher
	routingKey string
}

func (d *amqpDispatcher) Dispatch(ctx context.Context, req tools.IntentRequest) error {
	return d.pub.Publish(ctx, d.routingKey, req)
}

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(ctx context.Context, req tools.IntentRequest) error { return nil }

// NewIntentDispatcher picks the dispatcher backend from configuration:
// "http" posts straight to the classifier, "amqp" publishes to the intent
// exchange, anything else disables dispatch.
func NewIntentDispatcher(cfg config.Configuration, log zerolog.Logger) (IntentDispatcher, error) {
	switch cfg.Intent.Dispatcher {
	case "http":
		log.Info().Str("backend", "http").Msg("intent dispatcher initialised")
		return &httpDispatcher{client: &tools.IntentClient{
			BaseURL: cfg.Intent.BaseURL,
			APIKey:  cfg.Intent.ApiKey,
		}}, nil
	case "amqp":
		pub, err := pubsub.New(cfg.Intent.AmqpURL, cfg.Intent.Exchange, log)
		if err != nil {
			return nil, err
		}
		log.Info().Str("backend", "amqp").Str("exchange", cfg.Intent.Exchange).Msg("intent dispatcher initialised")
		return &amqpDispatcher{pub: pub, routingKey: cfg.Intent.RoutingKey}, nil
	default:
		log.Info().Str("backend", "none").Msg("intent dispatch disabled")
		return noopDispatcher{}, nil
	}
}
