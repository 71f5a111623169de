package presence

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"presenced/internal/cache"
	"presenced/internal/component"
	"presenced/internal/config"
	"presenced/internal/delivery"
	"presenced/internal/privacy"
	"presenced/internal/roster"
	"presenced/internal/session"
	"presenced/internal/store"
)

// Service bundles the presence manager with the collaborators the
// composition root wired into it.
type Service struct {
	Manager    *Manager
	Store      store.OfflineStore
	Cache      *cache.Layer
	Sessions   *session.Registry
	Roster     *roster.Memory
	Privacy    *privacy.Manager
	Components *component.Registry

	deliverer *delivery.Deliverer
}

// Ready checks whether dependencies are available (e.g., the durable store)
func (s *Service) Ready(ctx context.Context) error {
	return s.Store.Ping(ctx)
}

// Close releases the service and its dependencies
func (s *Service) Close() error {
	s.Cache.Close()
	if s.deliverer != nil {
		s.deliverer.Close()
	}
	if err := s.Store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	return nil
}

// ServiceBuilder wires a complete presence service from configuration.
type ServiceBuilder struct {
	config   *config.Config
	logger   *zap.Logger
	accounts AccountDirectory
}

// NewServiceBuilder creates a new service builder
func NewServiceBuilder(cfg *config.Config, logger *zap.Logger) *ServiceBuilder {
	return &ServiceBuilder{config: cfg, logger: logger}
}

// WithAccounts overrides the account directory. Without it every username is
// treated as a registered account.
func (b *ServiceBuilder) WithAccounts(accounts AccountDirectory) *ServiceBuilder {
	b.accounts = accounts
	return b
}

// Build builds and configures all service components
func (b *ServiceBuilder) Build() (*Service, error) {
	st, err := b.buildStore()
	if err != nil {
		return nil, err
	}

	layer, err := cache.NewLayer(st, b.logger, cache.Config{
		MaxCost:     b.config.Cache.MaxCost,
		NumCounters: b.config.Cache.NumCounters,
		BufferItems: b.config.Cache.BufferItems,
		Metrics:     b.config.Cache.Metrics,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create cache layer: %w", err)
	}

	deliverer, err := b.buildDeliverer(st)
	if err != nil {
		layer.Close()
		st.Close()
		return nil, err
	}

	sessions := session.NewRegistry()
	rosters := roster.NewMemory()
	privacyLists := privacy.NewManager()
	components := component.NewRegistry()

	accounts := b.accounts
	if accounts == nil {
		accounts = AccountDirectoryFunc(func(string) bool { return true })
	}

	manager := NewManager(b.config.Service.Domain, layer, Collaborators{
		Sessions:   sessions,
		Accounts:   accounts,
		Roster:     rosters,
		Privacy:    privacyLists,
		Deliverer:  deliverer,
		Components: components,
		Direct:     sessions,
	}, b.logger)

	return &Service{
		Manager:    manager,
		Store:      st,
		Cache:      layer,
		Sessions:   sessions,
		Roster:     rosters,
		Privacy:    privacyLists,
		Components: components,
		deliverer:  deliverer,
	}, nil
}

func (b *ServiceBuilder) buildStore() (store.OfflineStore, error) {
	switch b.config.Store.Backend {
	case "redis":
		retention, err := b.config.Redis.GetRetention()
		if err != nil {
			return nil, fmt.Errorf("invalid redis retention: %w", err)
		}
		st, err := store.NewRedisStore(store.RedisConfig{
			Addr:      b.config.Redis.Addr,
			Password:  b.config.Redis.Password,
			DB:        b.config.Redis.DB,
			Retention: retention,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		return st, nil
	default:
		st, err := store.NewKVStore(store.KVConfig{
			ServerURL:    b.config.NATS.ServerURL,
			BucketName:   b.config.NATS.KVBucket,
			Embedded:     b.config.NATS.Embedded,
			DataDir:      b.config.NATS.DataDir,
			StartTimeout: b.config.NATS.StartTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create NATS KV store: %w", err)
		}
		return st, nil
	}
}

// buildDeliverer reuses the store's NATS connection when there is one,
// otherwise dials the configured server.
func (b *ServiceBuilder) buildDeliverer(st store.OfflineStore) (*delivery.Deliverer, error) {
	if shared, ok := st.(interface{ Conn() *nats.Conn }); ok {
		return delivery.NewDeliverer(shared.Conn(), b.config.NATS.DeliverPrefix), nil
	}

	deliverer, err := delivery.Dial(b.config.NATS.ServerURL, b.config.NATS.DeliverPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to create deliverer: %w", err)
	}
	return deliverer, nil
}
