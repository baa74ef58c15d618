package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"videoscribe/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type TokenParser interface {
	ParseToken(tokenStr string) (string, error)
}

// Subscriber delivers raw pub/sub payloads for channel until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) <-chan string
}

// RedisSubscriber adapts a redis client to Subscriber.
type RedisSubscriber struct {
	Client *redis.Client
}

func (s RedisSubscriber) Subscribe(ctx context.Context, channel string) <-chan string {
	out := make(chan string)
	pubsub := s.Client.Subscribe(ctx, channel)

	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Hub streams job events to every websocket opened by the job's subject.
type Hub struct {
	mu          sync.RWMutex
	connections map[string][]*websocket.Conn
	subscriber  Subscriber
	auth        TokenParser
	cancelFuncs map[string]context.CancelFunc
}

func NewHub(subscriber Subscriber, auth TokenParser) *Hub {
	return &Hub{
		connections: make(map[string][]*websocket.Conn),
		subscriber:  subscriber,
		auth:        auth,
		cancelFuncs: make(map[string]context.CancelFunc),
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Authenticate via token query param
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	subject, err := h.auth.ParseToken(tokenStr)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	h.registerConnection(subject, conn)

	// Keep connection alive and handle disconnect
	go func() {
		defer h.unregisterConnection(subject, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (h *Hub) registerConnection(subject string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[subject] = append(h.connections[subject], conn)

	// First connection for this subject starts the subscription.
	if len(h.connections[subject]) == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[subject] = cancel
		go h.relay(ctx, subject)
	}

	slog.Debug("websocket connected", slog.String("subject", subject), slog.Int("connections", len(h.connections[subject])))
}

func (h *Hub) unregisterConnection(subject string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn.Close()

	conns := h.connections[subject]
	for i, c := range conns {
		if c == conn {
			h.connections[subject] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	if len(h.connections[subject]) == 0 {
		delete(h.connections, subject)
		if cancel, ok := h.cancelFuncs[subject]; ok {
			cancel()
			delete(h.cancelFuncs, subject)
		}
	}

	slog.Debug("websocket disconnected", slog.String("subject", subject))
}

func (h *Hub) relay(ctx context.Context, subject string) {
	for payload := range h.subscriber.Subscribe(ctx, models.UpdatesChannel(subject)) {
		h.broadcast(subject, []byte(payload))
	}
}

// broadcast is only called from the subject's relay goroutine, which keeps
// writes to each connection serialized.
func (h *Hub) broadcast(subject string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conn := range h.connections[subject] {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			slog.Debug("websocket write failed", slog.String("subject", subject), slog.Any("error", err))
		}
	}
}

// Connections reports how many sockets subject currently holds.
func (h *Hub) Connections(subject string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[subject])
}
