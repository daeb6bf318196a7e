package portal

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"lmsportal/internal/auth"
	"lmsportal/internal/chat"
	"lmsportal/internal/model"
)

// chat bridges the browser's websocket to the push channel. The browser only
// sends the text; the display name comes from the session's credential.
func (s *Server) chat(c *gin.Context) {
	ctx := c.Request.Context()
	upstream, err := chat.Dial(ctx, s.opts.SocketURL, nil)
	if err != nil {
		s.log.Errorf("portal: chat upstream: %w", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "chat unavailable"})
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		_ = upstream.Close()
		s.log.Printf("portal: chat upgrade: %v", err)
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	room := chat.NewRoom(upstream, auth.Credential(c), func(msg model.ChatMessage) {
		env, err := chat.Encode(msg)
		if err != nil {
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(env); err != nil {
			s.log.Printf("portal: chat write: %v", err)
		}
	})
	defer room.Close()

	go func() {
		<-room.Done()
		writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "channel closed"), time.Now().Add(time.Second))
		writeMu.Unlock()
		_ = conn.Close()
	}()

	for {
		var env chat.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		if env.Event != chat.EventChatMessage {
			continue
		}
		var msg model.ChatMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			continue
		}
		if err := room.Send(ctx, msg.Message); err != nil {
			s.log.Printf("portal: chat send: %v", err)
			return
		}
	}
}
