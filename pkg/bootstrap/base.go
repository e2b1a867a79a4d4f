package bootstrap

import (
	"context"
	"fmt"

	"offermart/internal/broker"
	"offermart/internal/config"
	"offermart/internal/logger"
)

// Base carries the pieces every binary needs: config, logger and the
// broker pair. The offer engine and the reconciliation service both
// embed it and add their own stores and services on top.
type Base struct {
	Config   *config.Config
	Logger   logger.Logger
	Producer broker.Producer
	Consumer broker.Consumer
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

func (b *Base) InitBroker(serviceName string) error {
	producer, err := broker.NewProducer(b.Config.Broker, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create producer: %w", err)
	}

	consumer, err := broker.NewConsumer(b.Config.Broker, b.Logger)
	if err != nil {
		producer.Close()
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	if serviceName != "" {
		consumer.SetServiceName(serviceName)
	}

	b.Producer = producer
	b.Consumer = consumer
	return nil
}

func (b *Base) ShutdownBroker() []error {
	var errs []error

	if b.Producer != nil {
		if err := b.Producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer close error: %w", err))
		}
	}

	if b.Consumer != nil {
		if err := b.Consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("consumer close error: %w", err))
		}
	}

	return errs
}

// Shutdown closes the broker first so no new messages arrive while
// the app-specific teardown (HTTP server, stores, tracer) runs.
func (b *Base) Shutdown(ctx context.Context, additional func(ctx context.Context) []error) error {
	var errs []error

	errs = append(errs, b.ShutdownBroker()...)

	if additional != nil {
		errs = append(errs, additional(ctx)...)
	}

	if b.Logger != nil {
		_ = b.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown completed with %d errors, first: %v", len(errs), errs[0])
	}
	return nil
}
