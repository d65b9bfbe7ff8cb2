package rest

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/scenebox/internal/app/notification"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	readLimit  = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Clients are local tools and browsers on the same host
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsStream adapts a websocket connection to notification.Stream.
type wsStream struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsStream) Send(n *notification.Notification) error {
	return s.write(func() error {
		return s.conn.WriteJSON(NotificationResponse{
			SequenceNo: n.SequenceNo,
			Kind:       n.Kind,
			Time:       n.Time,
			Payload:    toPayload(n.Payload),
		})
	})
}

func (s *wsStream) ping() error {
	return s.write(func() error {
		return s.conn.WriteMessage(websocket.PingMessage, nil)
	})
}

func (s *wsStream) write(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return fn()
}

// handleNotifications streams notifications to a websocket client. The
// first message carries the current status.
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zlog.Warn().Msgf("rest: websocket upgrade failed: err=%v", err)
		return
	}
	defer conn.Close()

	stream := &wsStream{conn: conn}
	initial := &notification.Notification{
		Kind:    notification.KindStatus,
		Time:    time.Now(),
		Payload: s.session.Status(),
	}
	if err := stream.Send(initial); err != nil {
		return
	}

	notifications := s.session.Notifications()
	subscriptionID := notifications.Subscribe(stream)
	defer notifications.Unsubscribe(subscriptionID)
	zlog.Info().Msgf("rest: websocket client connected: subscription=%s remote=%s", subscriptionID, r.RemoteAddr)

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := stream.ping(); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	// Inbound messages are ignored; reading detects disconnects
	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zlog.Warn().Msgf("rest: websocket read error: subscription=%s err=%v", subscriptionID, err)
			}
			break
		}
	}
	zlog.Info().Msgf("rest: websocket client disconnected: subscription=%s", subscriptionID)
}
