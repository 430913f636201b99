package fanout

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mmdatafocus/kitchen_backend/models"
	"github.com/mmdatafocus/kitchen_backend/utils"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Subscriber-initiated join messages.
const (
	ActionJoinAdminRoom = "join_admin_room"
	ActionJoinStaffRoom = "join_staff_room"
	ActionJoinUserRoom  = "join_user_room"
	ActionJoinOrderRoom = "join_order_room"
	ActionLeaveRoom     = "leave_room"
)

// Acknowledgements sent back to the client.
const (
	EventJoined = "joined"
	EventLeft   = "left"
	EventError  = "error"
)

var ErrRoomForbidden = errors.New("not allowed to join room")

// Identity is what the auth middleware established for the connection.
// A nil UserId is a guest.
type Identity struct {
	UserId *int
	Role   models.UserRole
}

// JoinRequest is the JSON frame a client sends to join or leave a room.
type JoinRequest struct {
	Action  string `json:"action"`
	UserId  int    `json:"user_id"`
	OrderId int    `json:"order_id"`
	Room    string `json:"room"`
}

// ResolveRoom maps a join message to the group it names and checks the identity may join it.
// Order rooms are open to anyone holding the order id so guests can follow their order.
func ResolveRoom(identity Identity, msg JoinRequest) (string, error) {
	switch msg.Action {
	case ActionJoinAdminRoom:
		if identity.Role != models.UserRoleAdmin {
			return "", ErrRoomForbidden
		}
		return AdminRoom, nil
	case ActionJoinStaffRoom:
		if identity.Role != models.UserRoleStaff && identity.Role != models.UserRoleAdmin {
			return "", ErrRoomForbidden
		}
		return StaffRoom, nil
	case ActionJoinUserRoom:
		if identity.UserId == nil || *identity.UserId != msg.UserId {
			return "", ErrRoomForbidden
		}
		return UserRoom(msg.UserId), nil
	case ActionJoinOrderRoom:
		if msg.OrderId <= 0 {
			return "", errors.New("order_id is required")
		}
		return OrderRoom(msg.OrderId), nil
	}
	return "", fmt.Errorf("unknown action %q", msg.Action)
}

// Client is one websocket session.
type Client struct {
	id       string
	conn     *websocket.Conn
	send     chan Event
	done     chan struct{}
	once     sync.Once
	identity Identity
	router   *Router
	logger   *logrus.Logger
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) Send(ev Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		c.router.Remove(c)
		_ = c.conn.Close()
	})
}

func (c *Client) reply(name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	c.Send(Event{Name: name, Payload: data})
}

func (c *Client) readPump() {
	defer c.close()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg JoinRequest
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && c.logger != nil {
				c.logger.WithFields(logrus.Fields{"field": "fanout", "subscriber": c.id}).Warn("websocket read failed: " + err.Error())
			}
			return
		}
		msg.Action = strings.TrimSpace(msg.Action)

		if msg.Action == ActionLeaveRoom {
			c.router.Leave(c, msg.Room)
			c.reply(EventLeft, ack{"room": msg.Room})
			continue
		}
		room, err := ResolveRoom(c.identity, msg)
		if err != nil {
			c.reply(EventError, ack{"action": msg.Action, "message": err.Error()})
			continue
		}
		c.router.Join(c, room)
		c.reply(EventJoined, ack{"room": room})
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type ack map[string]any

// Handler upgrades HTTP requests to websocket subscriber sessions.
type Handler struct {
	Router   *Router
	Logger   *logrus.Logger
	Upgrader websocket.Upgrader
}

func NewHandler(router *Router, logger *logrus.Logger, checkOrigin func(r *http.Request) bool) *Handler {
	return &Handler{
		Router: router,
		Logger: logger,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}

	identity := Identity{}
	if userId, ok := utils.GetUserIdFromContext(r.Context()); ok {
		identity.UserId = &userId
	}
	if role, ok := utils.GetUserRoleFromContext(r.Context()); ok {
		identity.Role = models.UserRole(role)
	}

	client := &Client{
		id:       uuid.NewString(),
		conn:     conn,
		send:     make(chan Event, sendBuffer),
		done:     make(chan struct{}),
		identity: identity,
		router:   h.Router,
		logger:   h.Logger,
	}
	go client.writePump()
	client.readPump()
}
