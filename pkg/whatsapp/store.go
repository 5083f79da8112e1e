package whatsapp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"

	"github.com/zhaopengme/hiperboot/pkg/logger"
)

const storeFileName = "whatsmeow.db"

// Store owns the credential directory. It builds whatsmeow clients from the
// first device found there and is the CredentialStore for them.
type Store struct {
	dir         string
	displayName string

	mu        sync.Mutex
	container *sqlstore.Container
	device    *store.Device
}

var (
	_ Factory         = (*Store)(nil)
	_ CredentialStore = (*Store)(nil)
)

func NewStore(dir, pairDisplayName string) *Store {
	if pairDisplayName == "" {
		pairDisplayName = "Chrome (Linux)"
	}
	return &Store{dir: dir, displayName: pairDisplayName}
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) open(ctx context.Context) (*sqlstore.Container, error) {
	if s.container != nil {
		return s.container, nil
	}
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create credential dir: %w", err)
	}
	address := fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(s.dir, storeFileName))
	container, err := sqlstore.New(ctx, "sqlite3", address, NewLogAdapter("whatsmeow/db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	s.container = container
	return container, nil
}

// NewClient loads the current device and wraps a fresh whatsmeow client
// around it. Automatic reconnects are disabled: the lifecycle controller
// owns that policy.
func (s *Store) NewClient(ctx context.Context) (Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	container, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load device: %w", err)
	}
	s.device = device

	cli := whatsmeow.NewClient(device, NewLogAdapter("whatsmeow"))
	cli.EnableAutoReconnect = false
	return &meowClient{cli: cli, displayName: s.displayName}, nil
}

// Flush persists the device credentials of the most recently built client.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil || s.device.ID == nil {
		return nil
	}
	if err := s.device.Save(ctx); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// Clear closes the database and removes the credential directory. It cannot
// be undone; callers confirm with the operator first.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.closeLocked(); err != nil {
		logger.WarnCF("whatsapp", "Error closing credential store before wipe", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to remove credential dir: %w", err)
	}
	logger.InfoCF("whatsapp", "Credential store cleared", map[string]interface{}{
		"dir": s.dir,
	})
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Store) closeLocked() error {
	s.device = nil
	if s.container == nil {
		return nil
	}
	err := s.container.Close()
	s.container = nil
	return err
}
