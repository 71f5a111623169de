package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"presenced/internal/models"
)

// KVConfig holds configuration for the NATS-backed store
type KVConfig struct {
	ServerURL    string
	BucketName   string
	Embedded     bool
	DataDir      string
	StartTimeout string // Startup wait duration, e.g., "30s"
}

// kvStore implements OfflineStore using NATS JetStream KV
type kvStore struct {
	config KVConfig
	server *server.Server
	conn   *nats.Conn
	kv     jetstream.KeyValue
}

// NewKVStore creates a new NATS KV offline-presence store. With Embedded set
// it also starts an in-process NATS server, which is how the tests and the
// single-binary deployment run.
func NewKVStore(config KVConfig) (OfflineStore, error) {
	store := &kvStore{
		config: config,
	}

	if config.Embedded {
		if err := store.startEmbeddedServer(); err != nil {
			return nil, fmt.Errorf("failed to start embedded server: %w", err)
		}
	}

	serverURL := store.config.ServerURL
	if serverURL == "" {
		serverURL = nats.DefaultURL
	}

	conn, err := nats.Connect(serverURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		store.cleanup()
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	store.conn = conn

	js, err := jetstream.New(conn)
	if err != nil {
		store.cleanup()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	bucketName := config.BucketName
	if bucketName == "" {
		bucketName = "offline-presence"
	}

	kv, err := js.CreateKeyValue(context.Background(), jetstream.KeyValueConfig{
		Bucket: bucketName,
	})
	if err != nil {
		// Try to get existing bucket
		kv, err = js.KeyValue(context.Background(), bucketName)
		if err != nil {
			store.cleanup()
			return nil, fmt.Errorf("failed to create/get KV bucket: %w", err)
		}
	}
	store.kv = kv

	return store, nil
}

// Conn exposes the underlying NATS connection so other components (the
// packet deliverer) can share it instead of dialing their own.
func (s *kvStore) Conn() *nats.Conn {
	return s.conn
}

// Load retrieves a user's offline presence row
func (s *kvStore) Load(ctx context.Context, username string) (models.OfflinePresenceRecord, error) {
	key := s.recordKey(username)

	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) ||
			strings.Contains(err.Error(), "not found") ||
			strings.Contains(err.Error(), "no message found") {
			return models.OfflinePresenceRecord{}, ErrNotFound
		}
		return models.OfflinePresenceRecord{}, fmt.Errorf("failed to load offline presence: %w", err)
	}

	if entry == nil || len(entry.Value()) == 0 {
		return models.OfflinePresenceRecord{}, ErrNotFound
	}

	var record models.OfflinePresenceRecord
	if err := json.Unmarshal(entry.Value(), &record); err != nil {
		return models.OfflinePresenceRecord{}, fmt.Errorf("failed to unmarshal offline presence: %w", err)
	}
	if record.At.IsZero() {
		// A row without a timestamp was never a valid capture
		return models.OfflinePresenceRecord{}, ErrNotFound
	}

	return record, nil
}

// Insert overwrites a user's offline presence row
func (s *kvStore) Insert(ctx context.Context, username string, payload []byte, at time.Time) error {
	key := s.recordKey(username)

	data, err := json.Marshal(models.OfflinePresenceRecord{Payload: payload, At: at})
	if err != nil {
		return fmt.Errorf("failed to marshal offline presence: %w", err)
	}

	if _, err := s.kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to put offline presence: %w", err)
	}

	return nil
}

// Delete removes a user's offline presence row
func (s *kvStore) Delete(ctx context.Context, username string) error {
	key := s.recordKey(username)

	err := s.kv.Delete(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete offline presence: %w", err)
	}

	return nil
}

// Ping validates store connectivity
func (s *kvStore) Ping(ctx context.Context) error {
	if _, err := s.kv.Status(ctx); err != nil {
		return fmt.Errorf("kv status: %w", err)
	}
	return nil
}

// Close closes the store and cleans up resources
func (s *kvStore) Close() error {
	return s.cleanup()
}

// recordKey generates a KV key for a user's offline presence row
func (s *kvStore) recordKey(username string) string {
	return fmt.Sprintf("user.%s", username)
}

// startEmbeddedServer starts an embedded NATS server
func (s *kvStore) startEmbeddedServer() error {
	opts := &server.Options{
		Host:       "0.0.0.0",
		Port:       -1, // Random port for client connections
		JetStream:  true,
		ServerName: fmt.Sprintf("presenced-%d", time.Now().UnixNano()),
	}

	if s.config.DataDir != "" {
		opts.StoreDir = s.config.DataDir
		opts.JetStreamMaxMemory = 32 * 1024 * 1024
		opts.JetStreamMaxStore = 256 * 1024 * 1024
		if err := ensureDirectory(s.config.DataDir); err != nil {
			return fmt.Errorf("failed to ensure data directory: %w", err)
		}
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	go ns.Start()

	timeout := 30 * time.Second
	if s.config.StartTimeout != "" {
		if d, err := time.ParseDuration(s.config.StartTimeout); err == nil {
			timeout = d
		}
	}

	startTime := time.Now()
	for {
		if ns.ReadyForConnections(100 * time.Millisecond) {
			break
		}
		if time.Since(startTime) >= timeout {
			ns.Shutdown()
			return fmt.Errorf("server failed to start within %v", timeout)
		}
		time.Sleep(100 * time.Millisecond)
	}

	s.server = ns
	s.config.ServerURL = ns.ClientURL()

	return nil
}

// cleanup closes connections and shuts down embedded server
func (s *kvStore) cleanup() error {
	if s.conn != nil {
		s.conn.Close()
	}

	if s.server != nil {
		s.server.Shutdown()
		s.server.WaitForShutdown()
	}

	return nil
}

// ensureDirectory creates the directory if it doesn't exist and verifies it's writable
func ensureDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	testFile := dir + "/.write-test"
	f, err := os.Create(testFile)
	if err != nil {
		return fmt.Errorf("directory not writable: %w", err)
	}
	f.Close()
	os.Remove(testFile)

	return nil
}
