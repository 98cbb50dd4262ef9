package infrastructure

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"leadwidget/internal/logger"
)

// WhatsAppClient is the platform device that sends lead notifications to
// tenant owners. Its session lives in a local SQLite file.
type WhatsAppClient struct {
	Client *whatsmeow.Client
	log    *logger.Logger

	qrCode string
	qrLock sync.RWMutex
}

func NewWhatsAppClient(ctx context.Context, dbPath string, log *logger.Logger) (*WhatsAppClient, error) {
	container, err := sqlstore.New(ctx, "sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)", waLog.Stdout("Database", "WARN", true))
	if err != nil {
		return nil, fmt.Errorf("failed to open device store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", "WARN", true))
	return &WhatsAppClient{Client: client, log: log}, nil
}

// Connect opens the connection. Without a stored session it starts the
// pairing flow and keeps the latest QR code available through GetQR.
func (w *WhatsAppClient) Connect(ctx context.Context) error {
	if w.Client.Store.ID != nil {
		if err := w.Client.Connect(); err != nil {
			return err
		}
		w.log.Info("whatsapp notifier connected", "phone", w.Client.Store.ID.User)
		return nil
	}

	qrChan, err := w.Client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("get qr channel: %w", err)
	}
	if err := w.Client.Connect(); err != nil {
		return err
	}
	go w.watchQR(qrChan)
	return nil
}

func (w *WhatsAppClient) watchQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for evt := range qrChan {
		if evt.Event == "code" {
			w.qrLock.Lock()
			w.qrCode = evt.Code
			w.qrLock.Unlock()
			continue
		}
		w.log.Info("whatsapp pairing event", "event", evt.Event)
		if evt.Event == "success" {
			w.qrLock.Lock()
			w.qrCode = ""
			w.qrLock.Unlock()
		}
	}
}

func (w *WhatsAppClient) GetQR() string {
	w.qrLock.RLock()
	defer w.qrLock.RUnlock()
	return w.qrCode
}

func (w *WhatsAppClient) IsLoggedIn() bool {
	return w.Client.Store.ID != nil
}

// IsConnected returns true if client is connected and logged in
func (w *WhatsAppClient) IsConnected() bool {
	return w.Client.IsConnected() && w.Client.Store.ID != nil
}

// GetPhoneNumber returns the connected phone number
func (w *WhatsAppClient) GetPhoneNumber() string {
	if w.Client.Store.ID == nil {
		return ""
	}
	return w.Client.Store.ID.User
}

func (w *WhatsAppClient) Disconnect() {
	w.Client.Disconnect()
}

// SendMessage sends a plain text to a phone number in international format.
func (w *WhatsAppClient) SendMessage(ctx context.Context, to, content string) error {
	if !w.IsConnected() {
		return fmt.Errorf("whatsapp notifier not connected")
	}
	number := strings.TrimPrefix(DigitsOnly(to), "00")
	jid, err := types.ParseJID(number + "@" + types.DefaultUserServer)
	if err != nil {
		return fmt.Errorf("invalid number format: %w", err)
	}
	_, err = w.Client.SendMessage(ctx, jid, &waProto.Message{
		Conversation: &content,
	})
	return err
}

// DigitsOnly strips everything but digits from a phone number.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
