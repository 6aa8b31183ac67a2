package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/messaging"
	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/payments"
	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/platform/config"
	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/platform/requestctx"
	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/repositories"
	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/services"
)

// Services bundles the service-layer entry points that handlers rely upon.
type Services struct {
	Reconciler *services.Reconciler
	Finalizer  services.Finalizer
	Invoicer   services.Invoicer
	Links      *services.PaymentLinkService
	Checkout   *services.CheckoutService
	OrderQuery *services.OrderQueryService
	Gateway    payments.Gateway
	Dispatcher messaging.Dispatcher
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services

	pubsubClient *pubsub.Client
	pubsubTopic  *pubsub.Topic
}

// NewContainer constructs the runtime dependencies. Production wiring provides the
// Firestore-backed registry; tests can supply in-memory registries instead.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, logger *zap.Logger) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Container{
		Config:       cfg,
		Repositories: reg,
	}

	if err := c.buildServices(ctx, logger); err != nil {
		closeErr := c.Close(context.WithoutCancel(ctx))
		if closeErr != nil {
			logger.Warn("container teardown after failed build", zap.Error(closeErr))
		}
		return nil, err
	}

	return c, nil
}

// Close releases repository clients and messaging resources.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}

	var errs []error
	if c.pubsubTopic != nil {
		c.pubsubTopic.Stop()
	}
	if c.pubsubClient != nil {
		if err := c.pubsubClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pubsub client: %w", err))
		}
	}
	if c.Repositories != nil {
		if err := c.Repositories.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close repositories: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (c *Container) buildServices(ctx context.Context, logger *zap.Logger) error {
	cfg := c.Config
	reg := c.Repositories
	events := eventLogger(logger)

	reconciler, err := services.NewReconciler(services.ReconcilerDeps{
		Carts:        reg.Carts(),
		Appointments: reg.Appointments(),
		Clock:        time.Now,
		Logger:       events,
	})
	if err != nil {
		return fmt.Errorf("build reconciler: %w", err)
	}

	var invoicer services.Invoicer
	if cfg.Invoicing.Enabled {
		invoicer, err = services.NewInvoiceService(services.InvoiceServiceDeps{
			Invoices:  reg.Invoices(),
			Counters:  reg.Counters(),
			Clock:     time.Now,
			Logger:    events,
			Enabled:   true,
			CounterID: cfg.Invoicing.CounterID,
			Prefix:    cfg.Invoicing.Prefix,
		})
		if err != nil {
			return fmt.Errorf("build invoice service: %w", err)
		}
	}

	finalizer, err := services.NewFinalizerService(services.FinalizerServiceDeps{
		Carts:    reg.Carts(),
		Orders:   reg.Orders(),
		Payments: reg.Payments(),
		Invoicer: invoicer,
		Clock:    time.Now,
		Logger:   events,
	})
	if err != nil {
		return fmt.Errorf("build finalizer service: %w", err)
	}

	dispatcher, err := c.buildDispatcher(ctx)
	if err != nil {
		return err
	}

	links, err := services.NewPaymentLinkService(services.PaymentLinkServiceDeps{
		Orders:     reg.Orders(),
		Payments:   reg.Payments(),
		Customers:  reg.Customers(),
		Dispatcher: dispatcher,
		BaseURL:    cfg.PaymentLink.BaseURL,
		Interval:   cfg.Polling.Interval,
		Ceiling:    cfg.Polling.Ceiling,
		Clock:      time.Now,
		Logger:     events,
	})
	if err != nil {
		return fmt.Errorf("build payment link service: %w", err)
	}

	var gateway payments.Gateway
	if cfg.Gateway.StripeAPIKey != "" {
		stripeGateway, err := payments.NewStripeGateway(payments.StripeGatewayConfig{
			APIKey: cfg.Gateway.StripeAPIKey,
			Logger: payments.StripeLogger(events),
			Clock:  time.Now,
		})
		if err != nil {
			return fmt.Errorf("build stripe gateway: %w", err)
		}
		gateway = stripeGateway
	}

	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Reconciler:       reconciler,
		Orders:           reg.Orders(),
		Customers:        reg.Customers(),
		Finalizer:        finalizer,
		Gateway:          gateway,
		Links:            links,
		Dispatcher:       dispatcher,
		Clock:            time.Now,
		Logger:           events,
		HostedSuccessURL: cfg.Gateway.HostedSuccessURL,
		HostedCancelURL:  cfg.Gateway.HostedCancelURL,
	})
	if err != nil {
		return fmt.Errorf("build checkout service: %w", err)
	}

	orderQuery, err := services.NewOrderQueryService(services.OrderQueryServiceDeps{
		Orders:   reg.Orders(),
		Payments: reg.Payments(),
		Invoices: reg.Invoices(),
	})
	if err != nil {
		return fmt.Errorf("build order query service: %w", err)
	}

	c.Services = Services{
		Reconciler: reconciler,
		Finalizer:  finalizer,
		Invoicer:   invoicer,
		Links:      links,
		Checkout:   checkout,
		OrderQuery: orderQuery,
		Gateway:    gateway,
		Dispatcher: dispatcher,
	}
	return nil
}

func (c *Container) buildDispatcher(ctx context.Context) (messaging.Dispatcher, error) {
	cfg := c.Config.Messaging
	if cfg.ProjectID == "" || cfg.Topic == "" {
		return nil, fmt.Errorf("build dispatcher: messaging project and topic are required")
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("build dispatcher: %w", err)
	}
	c.pubsubClient = client

	topic := client.Topic(cfg.Topic)
	c.pubsubTopic = topic

	dispatcher, err := messaging.NewPubSubDispatcher(topic)
	if err != nil {
		return nil, fmt.Errorf("build dispatcher: %w", err)
	}
	return dispatcher, nil
}

// eventLogger emits service events through the request-scoped logger when one
// is on the context, so events inherit the request and trace fields.
func eventLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	return func(ctx context.Context, event string, fields map[string]any) {
		target := requestctx.Logger(ctx)
		if target == requestctx.NoopLogger() {
			target = logger
		}
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		target.Info(event, zapFields...)
	}
}
