package control

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ghazaresan1/notif/session"
)

// 宿主消息类型。凭据注入与强制检查来自门户 UI，联网状态来自宿主。
const (
	MsgCredentials = "CREDENTIALS"
	MsgKeepAlive   = "keep-alive"
	MsgCheckNow    = "CHECK_NOW"
	MsgOnline      = "ONLINE"
	MsgOffline     = "OFFLINE"
)

// Engine 控制面依赖的编排入口。
type Engine interface {
	OnCredentialsProvided(ctx context.Context, creds session.Credentials) error
	ForceCheck()
	OnConnectivityLost()
	OnConnectivityRestored()
}

// Message 入站控制消息。
type Message struct {
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// Reply 每条消息的应答。凭据登录失败是唯一向用户报告的认证错误。
type Reply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Server 本地 WebSocket 控制面。
type Server struct {
	engine   Engine
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// NewServer 创建控制面。log 可为 nil。
func NewServer(engine Engine, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		engine: engine,
		log:    log,
		upgrader: websocket.Upgrader{
			// 只在本机回环上监听，放开同源检查
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler 返回可挂载的 HTTP handler。
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.serveWS)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("control upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("control read ended", zap.Error(err))
			}
			return
		}
		reply := s.dispatch(r.Context(), msg)
		if err := conn.WriteJSON(reply); err != nil {
			s.log.Debug("control write failed", zap.Error(err))
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, msg Message) Reply {
	switch msg.Type {
	case MsgCredentials:
		creds := session.Credentials{Username: msg.Username, Password: msg.Password}
		if err := s.engine.OnCredentialsProvided(ctx, creds); err != nil {
			return Reply{OK: false, Error: err.Error()}
		}
		return Reply{OK: true}
	case MsgKeepAlive:
		s.log.Debug("keep-alive ping received")
		return Reply{OK: true}
	case MsgCheckNow:
		s.engine.ForceCheck()
		return Reply{OK: true}
	case MsgOnline:
		s.engine.OnConnectivityRestored()
		return Reply{OK: true}
	case MsgOffline:
		s.engine.OnConnectivityLost()
		return Reply{OK: true}
	default:
		return Reply{OK: false, Error: "unknown message type: " + msg.Type}
	}
}
