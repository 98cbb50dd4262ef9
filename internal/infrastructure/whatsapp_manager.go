package infrastructure

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"leadwidget/internal/logger"
)

// WhatsAppManager owns the lifecycle of the notifier device: lazy creation,
// pairing, and shutdown. It satisfies interfaces.Messenger.
type WhatsAppManager struct {
	dbPath string
	log    *logger.Logger

	mu     sync.Mutex
	client *WhatsAppClient
}

func NewWhatsAppManager(dbPath string, log *logger.Logger) *WhatsAppManager {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Warn("could not create whatsapp device directory", "dir", dir, "error", err)
		}
	}
	return &WhatsAppManager{dbPath: dbPath, log: log}
}

// Client returns the device client, creating and connecting it on first use.
func (m *WhatsAppManager) Client(ctx context.Context) (*WhatsAppClient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil {
		return m.client, nil
	}
	client, err := NewWhatsAppClient(ctx, m.dbPath, m.log)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(context.Background()); err != nil {
		return nil, fmt.Errorf("connect whatsapp notifier: %w", err)
	}
	m.client = client
	return client, nil
}

func (m *WhatsAppManager) SendMessage(ctx context.Context, to, content string) error {
	client, err := m.Client(ctx)
	if err != nil {
		return err
	}
	return client.SendMessage(ctx, to, content)
}

// WhatsAppStatus is what the admin API reports about the notifier device.
type WhatsAppStatus struct {
	Initialized bool   `json:"initialized"`
	Connected   bool   `json:"connected"`
	Phone       string `json:"phone"`
	HasQR       bool   `json:"has_qr"`
}

func (m *WhatsAppManager) Status() WhatsAppStatus {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()

	if client == nil {
		return WhatsAppStatus{}
	}
	return WhatsAppStatus{
		Initialized: true,
		Connected:   client.IsConnected(),
		Phone:       client.GetPhoneNumber(),
		HasQR:       client.GetQR() != "",
	}
}

// QR returns the current pairing code, starting the device if needed.
func (m *WhatsAppManager) QR(ctx context.Context) (code string, loggedIn bool, err error) {
	client, err := m.Client(ctx)
	if err != nil {
		return "", false, err
	}
	return client.GetQR(), client.IsLoggedIn(), nil
}

// Close disconnects the device (for graceful shutdown).
func (m *WhatsAppManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		m.client.Disconnect()
		m.client = nil
	}
}
