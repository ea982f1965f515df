package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// NotifyChannel is the PostgreSQL channel carrying topic names.
const NotifyChannel = "squad_changes"

const (
	minReconnectInterval = 10 * time.Second
	maxReconnectInterval = time.Minute
	listenerPingInterval = 90 * time.Second
)

// PGBridge fans notifications out across service instances with
// LISTEN/NOTIFY. Publishing goes through the database; every instance
// (including the publisher) receives the topic and broadcasts it to its
// local Hub.
type PGBridge struct {
	hub      *Hub
	db       *gorm.DB
	listener *pq.Listener
	logger   *slog.Logger
}

func NewPGBridge(dsn string, db *gorm.DB, hub *Hub, logger *slog.Logger) (*PGBridge, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &PGBridge{hub: hub, db: db, logger: logger}
	b.listener = pq.NewListener(dsn, minReconnectInterval, maxReconnectInterval, b.onListenerEvent)
	if err := b.listener.Listen(NotifyChannel); err != nil {
		_ = b.listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", NotifyChannel, err)
	}
	return b, nil
}

func (b *PGBridge) Subscribe(topic string, handler func()) func() {
	return b.hub.Subscribe(topic, handler)
}

func (b *PGBridge) Publish(ctx context.Context, topic string) error {
	if err := b.db.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", NotifyChannel, topic).Error; err != nil {
		return fmt.Errorf("pg_notify %s: %w", topic, err)
	}
	return nil
}

// Run pumps notifications into the hub until ctx is done.
func (b *PGBridge) Run(ctx context.Context) {
	ticker := time.NewTicker(listenerPingInterval)
	defer ticker.Stop()
	defer func() {
		if err := b.listener.Close(); err != nil {
			b.logger.Error("failed to close notification listener", slog.Any("error", err))
		}
	}()

	for {
		select {
		case n := <-b.listener.Notify:
			if n == nil {
				// Reconnected: anything published meanwhile is lost.
				b.hub.BroadcastAll()
				continue
			}
			b.hub.Broadcast(n.Extra)
		case <-ticker.C:
			go func() {
				if err := b.listener.Ping(); err != nil {
					b.logger.Warn("notification listener ping failed", slog.Any("error", err))
				}
			}()
		case <-ctx.Done():
			return
		}
	}
}

func (b *PGBridge) onListenerEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnected:
		b.logger.Info("notification listener connected", slog.String("channel", NotifyChannel))
	case pq.ListenerEventDisconnected:
		b.logger.Warn("notification listener disconnected", slog.Any("error", err))
	case pq.ListenerEventReconnected:
		b.logger.Info("notification listener reconnected")
	case pq.ListenerEventConnectionAttemptFailed:
		b.logger.Warn("notification listener reconnect failed", slog.Any("error", err))
	}
}
