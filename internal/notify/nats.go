package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"carelink-ws-server/internal/config"
)

const subjectPrefix = "carelink.notify."

// NATSNotifier publishes notifications to per-user NATS subjects where the
// outbound delivery workers (email/SMS) pick them up.
type NATSNotifier struct {
	conn   *nats.Conn
	logger *zap.Logger
}

type notification struct {
	UserID    string `json:"userId"`
	Kind      string `json:"kind"`
	Payload   any    `json:"payload,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func NewNATSNotifier(cfg config.NATSConfig, logger *zap.Logger) (*NATSNotifier, error) {
	n := &NATSNotifier{logger: logger}

	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", conn.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.Error("nats error", zap.Error(err))
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	n.conn = conn

	logger.Info("connected to nats", zap.String("url", conn.ConnectedUrl()))
	return n, nil
}

// Dispatch publishes the notification. Errors are logged and swallowed:
// live delivery through rooms and the persisted record are the source of
// truth, the notification channel is best-effort.
func (n *NATSNotifier) Dispatch(userID, kind string, payload any) {
	data, err := json.Marshal(notification{
		UserID:    userID,
		Kind:      kind,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		n.logger.Error("notification marshal failed", zap.String("kind", kind), zap.Error(err))
		return
	}

	if err := n.conn.Publish(subjectPrefix+userID, data); err != nil {
		n.logger.Warn("notification publish failed",
			zap.String("user_id", userID),
			zap.String("kind", kind),
			zap.Error(err),
		)
	}
}

// IsConnected reports broker connectivity for the health endpoint.
func (n *NATSNotifier) IsConnected() bool {
	return n.conn != nil && n.conn.IsConnected()
}

func (n *NATSNotifier) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}
