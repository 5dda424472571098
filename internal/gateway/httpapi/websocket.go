package httpapi

import (
	"context"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Xausdorf/votechain/internal/domain"
	"github.com/Xausdorf/votechain/internal/usecase"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	sendBuffer   = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// ClientMessage - request of a socket client.
type ClientMessage struct {
	Action string `json:"action"` // "watch", "select", "vote" or "unwatch"
	Voting string `json:"voting,omitempty"`
	Index  *int   `json:"index,omitempty"`
}

// ServerMessage - push to a socket client.
type ServerMessage struct {
	Type    string `json:"type"` // "view", "catalog" or "error"
	Payload any    `json:"payload"`
}

func errorPush(msg string) ServerMessage {
	return ServerMessage{Type: "error", Payload: map[string]string{"message": msg}}
}

// socketClient buffers what is pushed to one connection. Views are coalesced to the latest one,
// so a slow reader never holds up its session.
type socketClient struct {
	mu     sync.Mutex
	latest *usecase.View
	notify chan struct{}
	send   chan ServerMessage
	logger *zap.Logger
}

func (c *socketClient) pushView(v usecase.View) {
	c.mu.Lock()
	c.latest = &v
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *socketClient) takeView() *usecase.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.latest
	c.latest = nil
	return v
}

func (c *socketClient) push(msg ServerMessage) {
	select {
	case c.send <- msg:
	default:
		c.logger.Warn("socket send buffer full, dropping message", zap.String("type", msg.Type))
	}
}

// HandleWebSocket gives the connection its own session. The client picks the subject with "watch",
// and every view of that subject is pushed as it resolves.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	viewer := s.auth.Identity(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade websocket connection", zap.Error(err))
		return
	}
	defer conn.Close()

	key := uuid.NewString()
	logger := s.logger.With(zap.String("session", key), zap.String("remote_addr", r.RemoteAddr))
	logger.Info("websocket client connected", zap.Bool("authenticated", !viewer.IsZero()))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	client := &socketClient{
		notify: make(chan struct{}, 1),
		send:   make(chan ServerMessage, sendBuffer),
		logger: logger,
	}
	s.orch.Subscribe(key, func(change usecase.Change) {
		if change.Kind == usecase.ChangeCreated || change.Kind == usecase.ChangeFinalized {
			client.push(ServerMessage{Type: "catalog", Payload: change})
		}
	})
	defer s.orch.Unsubscribe(key)

	session := s.orch.Open(key, client.pushView)
	defer s.orch.Release(key)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer s.recoverSocket(logger, cancel)
		s.sendPings(ctx, conn, logger)
	}()
	go func() {
		defer wg.Done()
		defer s.recoverSocket(logger, cancel)
		s.writeMessages(ctx, conn, client, logger)
	}()

	s.readClientMessages(ctx, conn, cancel, session, viewer, client, logger)

	cancel()
	wg.Wait()
	logger.Info("websocket client disconnected")
}

func (s *Server) recoverSocket(logger *zap.Logger, cancel context.CancelFunc) {
	if rec := recover(); rec != nil {
		logger.Error("panic in websocket goroutine",
			zap.Any("panic", rec),
			zap.String("stack", string(debug.Stack())))
		cancel()
	}
}

func (s *Server) sendPings(ctx context.Context, conn *websocket.Conn, logger *zap.Logger) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				logger.Debug("failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

// writeMessages is the only writer of data frames on conn.
func (s *Server) writeMessages(ctx context.Context, conn *websocket.Conn, client *socketClient, logger *zap.Logger) {
	write := func(msg ServerMessage) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			logger.Debug("failed to write websocket message", zap.Error(err))
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-client.send:
			if !write(msg) {
				return
			}
		case <-client.notify:
			if v := client.takeView(); v != nil {
				if !write(ServerMessage{Type: "view", Payload: v}) {
					return
				}
			}
		}
	}
}

func (s *Server) readClientMessages(
	ctx context.Context,
	conn *websocket.Conn,
	cancel context.CancelFunc,
	session *usecase.Session,
	viewer domain.Identity,
	client *socketClient,
	logger *zap.Logger,
) {
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for ctx.Err() == nil {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read error", zap.Error(err))
			}
			cancel()
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		switch msg.Action {
		case "watch":
			if msg.Voting == "" {
				client.push(errorPush("voting is required"))
				continue
			}
			session.Watch(msg.Voting, viewer)
		case "unwatch":
			session.Watch("", viewer)
		case "select":
			if msg.Index == nil {
				client.push(errorPush("index is required"))
				continue
			}
			if err := session.Select(*msg.Index); err != nil {
				client.push(errorPush(err.Error()))
			}
		case "vote":
			go func() {
				if err := session.Submit(ctx); err != nil {
					client.push(errorPush(usecase.SubmissionMessage(err)))
				}
			}()
		default:
			client.push(errorPush("unknown action: " + msg.Action))
		}
	}
}
