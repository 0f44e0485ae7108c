package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSConfig configures the WebSocket block notifier.
type WSConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       90 * time.Second,
	}
}

// BlockNotification is a new-block announcement from the node.
type BlockNotification struct {
	Hash   string `json:"hash"`
	Height int64  `json:"height"`
}

// wsMessage is the raw notification envelope.
type wsMessage struct {
	Event string `json:"event"`
	Hash  string `json:"hash"`
	Height int64 `json:"height"`
}

// BlockNotifier subscribes to new-block announcements so the scanner
// can wake immediately instead of waiting for its poll interval.
// Notifications are a hint, never a data source: the scanner still
// fetches every block over RPC in height order.
type BlockNotifier struct {
	endpoint string
	config   WSConfig
	logger   *log.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewBlockNotifier creates a notifier for the endpoint.
func NewBlockNotifier(endpoint string, config *WSConfig, logger *log.Logger) *BlockNotifier {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.Default()
	}
	return &BlockNotifier{endpoint: endpoint, config: cfg, logger: logger}
}

// Subscribe connects and returns a channel of block notifications.
// The channel closes when ctx is cancelled. Connection drops are
// handled internally with capped backoff; missed notifications cost
// nothing because the scanner also polls.
func (n *BlockNotifier) Subscribe(ctx context.Context) (<-chan BlockNotification, error) {
	if err := n.connect(ctx); err != nil {
		return nil, err
	}

	ch := make(chan BlockNotification, 16)
	go n.readLoop(ctx, ch)
	go n.pingLoop(ctx)
	return ch, nil
}

func (n *BlockNotifier) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, n.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	n.mu.Lock()
	n.conn = conn
	n.mu.Unlock()
	return nil
}

func (n *BlockNotifier) readLoop(ctx context.Context, ch chan<- BlockNotification) {
	defer close(ch)
	defer n.closeConn()

	delay := n.config.ReconnectDelay
	for {
		n.mu.Lock()
		conn := n.conn
		n.mu.Unlock()

		conn.SetReadDeadline(time.Now().Add(n.config.ReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			n.logger.Printf("Block notifier read error: %v, reconnecting in %v", err, delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > n.config.MaxReconnectDelay {
				delay = n.config.MaxReconnectDelay
			}
			if err := n.connect(ctx); err != nil {
				n.logger.Printf("Block notifier reconnect failed: %v", err)
			}
			continue
		}
		delay = n.config.ReconnectDelay

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Event != "block" {
			continue
		}

		select {
		case ch <- BlockNotification{Hash: msg.Hash, Height: msg.Height}:
		case <-ctx.Done():
			return
		default:
			// Scanner is behind; it will catch up from RPC anyway.
		}
	}
}

func (n *BlockNotifier) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(n.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.mu.Lock()
			conn := n.conn
			n.mu.Unlock()
			if conn != nil {
				conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			}
		}
	}
}

func (n *BlockNotifier) closeConn() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn != nil {
		n.conn.Close()
	}
}
