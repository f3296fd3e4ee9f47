package ws

import (
	"net/http"
	"time"

	"github.com/englefamily/Django-CRF-Chat/internal/auth"
	"github.com/englefamily/Django-CRF-Chat/internal/bus"
	"github.com/englefamily/Django-CRF-Chat/internal/config"
	"github.com/englefamily/Django-CRF-Chat/internal/metrics"
	"github.com/englefamily/Django-CRF-Chat/internal/presence"
	"github.com/englefamily/Django-CRF-Chat/internal/registry"
	"github.com/englefamily/Django-CRF-Chat/internal/service"
	"github.com/englefamily/Django-CRF-Chat/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Deps 是 WebSocket 端点需要的全部协作方。
type Deps struct {
	DB       *gorm.DB
	Cfg      config.Config
	Bus      bus.Bus
	Tracker  *presence.Tracker
	Registry *registry.Registry
	Rooms    *service.RoomService
	Messages *service.MessageService
}

// Serve 升级连接并启动会话。匿名连接也接受：
// 订阅消息不要求认证，需要身份的动作由会话自己拒绝。
func Serve(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := auth.ResolveUser(d.DB, d.Cfg, auth.TokenFromRequest(c.Request))

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		sess := session.New(user, d.Bus, d.Tracker, d.Registry, d.Rooms, d.Messages)
		metrics.WsConnections.Inc()
		client := &client{conn: conn, sess: sess}
		go client.writePump()
		client.readPump()
	}
}

type client struct {
	conn *websocket.Conn
	sess *session.Session
}

// readPump 逐帧驱动会话。无论连接怎么退出，
// defer 里的 Disconnect 都会执行断开清理。
func (c *client) readPump() {
	defer func() {
		c.sess.Disconnect()
		metrics.WsConnections.Dec()
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(1 << 20) // 1MB
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			// 传输层错误不回给用户，只走清理路径。
			log.Debug().Err(err).Str("session_id", c.sess.ID).Msg("ws read")
			break
		}
		c.sess.HandleFrame(data)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.sess.Out():
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(frame)
			_ = w.Close()
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
