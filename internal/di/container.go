package di

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fabriqly/api/internal/platform/config"
	"github.com/fabriqly/api/internal/repositories"
	"github.com/fabriqly/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Customizations services.CustomizationService
	Disputes       services.DisputeService
	Dispatcher     services.OutboxDispatcher
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// Option customises container construction.
type Option func(*containerConfig)

type containerConfig struct {
	publisher services.WorkflowEventPublisher
	locales   services.LocaleResolver
	logger    *zap.Logger
}

// WithEventPublisher wires the broker the outbox dispatcher publishes to.
func WithEventPublisher(publisher services.WorkflowEventPublisher) Option {
	return func(cfg *containerConfig) {
		cfg.publisher = publisher
	}
}

// WithLocaleResolver wires recipient locale lookup for notification copy.
func WithLocaleResolver(resolver services.LocaleResolver) Option {
	return func(cfg *containerConfig) {
		cfg.locales = resolver
	}
}

// WithLogger injects the shared application logger.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *containerConfig) {
		cfg.logger = logger
	}
}

// NewContainer constructs the runtime dependencies. Production wiring provides the
// Firestore-backed registry; tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	var ccfg containerConfig
	for _, opt := range opts {
		opt(&ccfg)
	}
	if ccfg.logger == nil {
		ccfg.logger = zap.NewNop()
	}

	svc, err := buildServices(reg, cfg, ccfg)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(reg repositories.Registry, cfg config.Config, ccfg containerConfig) (Services, error) {
	var svc Services

	if ccfg.publisher == nil {
		return Services{}, errors.New("workflow event publisher is required")
	}

	dispatcher, err := services.NewOutboxDispatcher(services.OutboxDispatcherDeps{
		Outbox:        reg.Outbox(),
		Activities:    reg.Activities(),
		Notifications: reg.Notifications(),
		Publisher:     ccfg.publisher,
		Locales:       ccfg.locales,
		Logger:        ccfg.logger.Named("outbox"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build outbox dispatcher: %w", err)
	}
	svc.Dispatcher = dispatcher

	customizations, err := services.NewCustomizationService(services.CustomizationServiceDeps{
		Requests:   reg.CustomizationRequests(),
		Shops:      reg.Shops(),
		Outbox:     reg.Outbox(),
		Tx:         reg,
		Dispatcher: dispatcher,
		Logger:     ccfg.logger.Named("customizations"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build customization service: %w", err)
	}
	svc.Customizations = customizations

	disputes, err := services.NewDisputeService(services.DisputeServiceDeps{
		Disputes:          reg.Disputes(),
		Requests:          reg.CustomizationRequests(),
		Orders:            reg.Orders(),
		Shops:             reg.Shops(),
		Outbox:            reg.Outbox(),
		Tx:                reg,
		Dispatcher:        dispatcher,
		NegotiationWindow: cfg.Workflow.NegotiationWindow,
		FilingWindow:      cfg.Workflow.DisputeFilingWindow,
		Logger:            ccfg.logger.Named("disputes"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build dispute service: %w", err)
	}
	svc.Disputes = disputes

	return svc, nil
}
