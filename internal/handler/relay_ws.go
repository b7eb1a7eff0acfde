package handler

import (
	"context"
	"log"
	"runtime/debug"
	"time"

	"github.com/gofiber/contrib/websocket"

	"classroom-backend/internal/config"
	"classroom-backend/internal/relay"
)

// RelayWSHandler 교실 릴레이 WebSocket 핸들러
type RelayWSHandler struct {
	relay *relay.Relay
	cfg   config.WebSocketConfig
}

// NewRelayWSHandler RelayWSHandler 생성
func NewRelayWSHandler(rl *relay.Relay, cfg config.WebSocketConfig) *RelayWSHandler {
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &RelayWSHandler{relay: rl, cfg: cfg}
}

// HandleWebSocket 연결 하나를 릴레이 클라이언트로 등록하고 수신 루프 실행
func (h *RelayWSHandler) HandleWebSocket(c *websocket.Conn) {
	client := relay.NewClient(h.cfg.SendBufferSize)
	h.relay.Connect(client)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go h.writePump(c, client, done)

	// 연결 해제 시 정리 (모든 방에서 퇴장 처리)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Relay] Panic in connection %s: %v\n%s", client.ID(), r, debug.Stack())
		}
		cancel()
		h.relay.Disconnect(client)
		<-done
		c.Close()
	}()

	if h.cfg.MaxMessageSize > 0 {
		c.SetReadLimit(h.cfg.MaxMessageSize)
	}
	_ = c.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	// 메시지 수신 루프
	for {
		msgType, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[Relay] Read error on %s: %v", client.ID(), err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = c.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
		h.relay.HandleFrame(ctx, client, data)
	}
}

// writePump 큐에 쌓인 프레임 전송 + 주기적 ping
func (h *RelayWSHandler) writePump(c *websocket.Conn, client *relay.Client, done chan<- struct{}) {
	ticker := time.NewTicker(h.cfg.PingPeriod())
	defer func() {
		ticker.Stop()
		close(done)
	}()

	for {
		select {
		case frame, ok := <-client.Outbound():
			_ = c.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				_ = c.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.WriteMessage(websocket.TextMessage, frame); err != nil {
				// 읽기 루프를 깨워 Disconnect가 실행되도록 연결 종료
				_ = c.Close()
				drain(client)
				return
			}
		case <-ticker.C:
			_ = c.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				drain(client)
				return
			}
		}
	}
}

// drain 연결이 끊긴 뒤 큐를 비움 (Disconnect가 채널을 닫을 때까지)
func drain(client *relay.Client) {
	for range client.Outbound() {
	}
}
