// Package session 实现连接会话状态机：解析客户端动作、
// 驱动在线状态与订阅簿记，并把总线事件翻译成下行帧。
package session

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/englefamily/Django-CRF-Chat/internal/bus"
	"github.com/englefamily/Django-CRF-Chat/internal/models"
	"github.com/englefamily/Django-CRF-Chat/internal/presence"
	"github.com/englefamily/Django-CRF-Chat/internal/registry"
	"github.com/englefamily/Django-CRF-Chat/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// State 是会话状态机的三个状态。
type State int

const (
	StateConnected State = iota // 已连接，未加入房间
	StateInRoom                 // 已加入某个房间
	StateClosed                 // 终态
)

// RoomGetter / MessageCreator 是会话对房间目录的依赖面，
// 以接口注入便于测试替身。
type RoomGetter interface {
	Get(pk uint) (*models.Room, error)
}

type MessageCreator interface {
	Create(roomID uint, user *models.User, text string) (*service.MessageDTO, []string, error)
}

// Session 对应一条客户端连接。动作只在连接的读 goroutine 上执行，
// mu 仅用来和总线投递 goroutine 同步 state/room/reqIDs。
type Session struct {
	ID   string
	user *models.User

	// room 是当前加入的房间（0 表示没有），reqIDs 记录
	// 每个房间的消息订阅关联 id，投递时原样回显。
	mu     sync.Mutex
	state  State
	room   uint
	reqIDs map[uint]string

	send      chan []byte
	closeOnce sync.Once

	bus      bus.Bus
	tracker  *presence.Tracker
	reg      *registry.Registry
	rooms    RoomGetter
	messages MessageCreator
}

func New(user *models.User, b bus.Bus, tracker *presence.Tracker, reg *registry.Registry, rooms RoomGetter, messages MessageCreator) *Session {
	return &Session{
		ID:       uuid.NewString(),
		user:     user,
		state:    StateConnected,
		reqIDs:   make(map[uint]string),
		send:     make(chan []byte, 256),
		bus:      b,
		tracker:  tracker,
		reg:      reg,
		rooms:    rooms,
		messages: messages,
	}
}

// Out 是下行帧队列，由传输层的写循环消费，会话关闭时被 close。
func (s *Session) Out() <-chan []byte { return s.send }

// ActionRequest 是统一的上行动作帧。
type ActionRequest struct {
	Action    string `json:"action"`
	PK        uint   `json:"pk"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

type errorFrame struct {
	Error  string `json:"error"`
	Action string `json:"action,omitempty"`
}

type rosterFrame struct {
	Usuarios json.RawMessage `json:"usuarios"`
}

type activityFrame struct {
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
	Action    string          `json:"action"`
	PK        uint            `json:"pk"`
}

// actions 把动作名映射到 handler，取代框架式的反射分发。
var actions = map[string]func(*Session, ActionRequest) error{
	"join_room":                     (*Session).joinRoom,
	"leave_room":                    (*Session).leaveRoom,
	"create_message":                (*Session).createMessage,
	"subscribe_to_messages_in_room": (*Session).subscribeToMessages,
}

// HandleFrame 解析一个上行帧并执行对应动作。
// 动作级错误以错误帧回给客户端，连接保持打开。
func (s *Session) HandleFrame(data []byte) {
	var req ActionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.enqueue(errorFrame{Error: "invalid frame"})
		return
	}
	handler, ok := actions[req.Action]
	if !ok {
		s.enqueue(errorFrame{Error: "unknown action", Action: req.Action})
		return
	}
	if err := handler(s, req); err != nil {
		s.enqueue(errorFrame{Error: errText(err), Action: req.Action})
	}
}

func errText(err error) string {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, service.ErrNotFound):
		return "not found"
	case errors.Is(err, service.ErrInvalidState):
		return "invalid state"
	default:
		return "internal error"
	}
}

func (s *Session) joinRoom(req ActionRequest) error {
	if s.user == nil {
		return service.ErrUnauthorized
	}
	if _, err := s.rooms.Get(req.PK); err != nil {
		return err
	}
	// 一条连接同一时刻至多在一个房间里，换房前先干净地离开旧房。
	if prev := s.currentRoom(); prev != 0 && prev != req.PK {
		s.setRoom(0)
		if err := s.tracker.Leave(prev, s.user.ID); err == nil {
			s.notifyUsers(prev)
		}
		s.releaseRoomGroup(prev)
	}
	if err := s.tracker.Join(req.PK, s.user.Public()); err != nil {
		return err
	}
	group := bus.RoomGroup(req.PK)
	if s.reg.Subscribe(s.ID, group) {
		s.bus.Subscribe(group, s)
	}
	s.setRoom(req.PK)
	s.notifyUsers(req.PK)
	return nil
}

func (s *Session) leaveRoom(req ActionRequest) error {
	if s.user == nil {
		return service.ErrUnauthorized
	}
	if err := s.tracker.Leave(req.PK, s.user.ID); err != nil {
		return err
	}
	// 先退回 Connected 再广播，离开者自己不再收这间房的名单。
	left := s.currentRoom() == req.PK
	if left {
		s.setRoom(0)
	}
	s.notifyUsers(req.PK)
	if left {
		s.releaseRoomGroup(req.PK)
	}
	return nil
}

func (s *Session) createMessage(req ActionRequest) error {
	if s.user == nil {
		return service.ErrUnauthorized
	}
	room := s.currentRoom()
	if room == 0 {
		return service.ErrInvalidState
	}
	// 扇出发生在目录层的创建操作里，会话自己不发布消息事件。
	_, _, err := s.messages.Create(room, s.user, req.Message)
	return err
}

func (s *Session) subscribeToMessages(req ActionRequest) error {
	if _, err := s.rooms.Get(req.PK); err != nil {
		return err
	}
	s.mu.Lock()
	s.reqIDs[req.PK] = req.RequestID
	s.mu.Unlock()
	group := bus.RoomGroup(req.PK)
	if s.reg.Subscribe(s.ID, group) {
		s.bus.Subscribe(group, s)
	}
	return nil
}

// Disconnect 可以从任何状态进入，包括传输层异常断开，幂等。
// 只要加入过房间就清理在线状态并重播名单，与认证状态无关；
// 随后把该连接的全部订阅恰好退订一次。
func (s *Session) Disconnect() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		room := s.room
		s.state = StateClosed
		s.room = 0
		s.mu.Unlock()
		if room != 0 && s.user != nil {
			if err := s.tracker.Leave(room, s.user.ID); err == nil {
				s.notifyUsers(room)
			}
		}
		for _, g := range s.reg.Drop(s.ID) {
			s.bus.Unsubscribe(g, s)
		}
		// 所有退订已完成，不会再有投递，关闭下行队列是安全的。
		close(s.send)
	})
}

// Deliver 实现 bus.Subscriber：按会话自己的订阅视角过滤事件，
// 翻译成下行帧。名单事件只发给加入了该房间的连接，
// 消息事件只发给登记过关联 id 的连接，并回显该 id。
func (s *Session) Deliver(group string, e bus.Event) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	var frame interface{}
	switch e.Type {
	case bus.EventUpdateUsers:
		if s.room != e.RoomID {
			s.mu.Unlock()
			return
		}
		frame = rosterFrame{Usuarios: e.Users}
	case bus.EventMessage:
		rid, ok := s.reqIDs[e.RoomID]
		if !ok {
			s.mu.Unlock()
			return
		}
		frame = activityFrame{RequestID: rid, Data: e.Data, Action: e.Action, PK: e.PK}
	default:
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.enqueue(frame)
}

// notifyUsers 把房间当前名单广播到房间组。
func (s *Session) notifyUsers(roomID uint) {
	users, err := s.tracker.List(roomID)
	if err != nil {
		return
	}
	raw, err := json.Marshal(users)
	if err != nil {
		log.Error().Err(err).Uint("room_id", roomID).Msg("marshal roster")
		return
	}
	s.bus.Publish(bus.RoomGroup(roomID), bus.Event{Type: bus.EventUpdateUsers, RoomID: roomID, Users: raw})
}

// releaseRoomGroup 释放房间组订阅，
// 但该房间还挂着消息订阅时要继续收事件，不能退。
func (s *Session) releaseRoomGroup(roomID uint) {
	s.mu.Lock()
	_, keep := s.reqIDs[roomID]
	s.mu.Unlock()
	if keep {
		return
	}
	group := bus.RoomGroup(roomID)
	if s.reg.Unsubscribe(s.ID, group) {
		s.bus.Unsubscribe(group, s)
	}
}

func (s *Session) currentRoom() uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

func (s *Session) setRoom(roomID uint) {
	s.mu.Lock()
	s.room = roomID
	if roomID == 0 {
		if s.state == StateInRoom {
			s.state = StateConnected
		}
	} else {
		s.state = StateInRoom
	}
	s.mu.Unlock()
}

// enqueue 非阻塞入队：队列满说明客户端写不动了，
// 丢帧并记日志，由传输层的超时机制最终断开它。
func (s *Session) enqueue(frame interface{}) {
	b, err := json.Marshal(frame)
	if err != nil {
		log.Error().Err(err).Msg("marshal outbound frame")
		return
	}
	select {
	case s.send <- b:
	default:
		log.Warn().Str("session_id", s.ID).Msg("outbound queue full, frame dropped")
	}
}
