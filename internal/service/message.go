package service

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/englefamily/Django-CRF-Chat/internal/bus"
	"github.com/englefamily/Django-CRF-Chat/internal/metrics"
	"github.com/englefamily/Django-CRF-Chat/internal/models"
	"gorm.io/gorm"
)

// timestampLayout 是下发给客户端的人类可读时间格式（日-月-年）。
const timestampLayout = "02-01-2006 15:04:05"

// MessageService 封装消息目录的业务逻辑，消息创建即广播源头。
type MessageService struct {
	db  *gorm.DB
	bus bus.Bus
}

func NewMessageService(db *gorm.DB, b bus.Bus) *MessageService {
	return &MessageService{db: db, bus: b}
}

// MessageDTO 是对外输出的消息数据，内嵌作者公开字段，
// 凭据绝不出现在序列化结果里。
type MessageDTO struct {
	ID                 uint              `json:"id"`
	RoomID             uint              `json:"room_id"`
	User               models.UserPublic `json:"user"`
	Text               string            `json:"text"`
	CreatedAt          time.Time         `json:"created_at"`
	CreatedAtFormatted string            `json:"created_at_formatted"`
}

func toDTO(m models.Message, author models.UserPublic) MessageDTO {
	return MessageDTO{
		ID:                 m.ID,
		RoomID:             m.RoomID,
		User:               author,
		Text:               m.Text,
		CreatedAt:          m.CreatedAt,
		CreatedAtFormatted: m.CreatedAt.Format(timestampLayout),
	}
}

// Create 持久化新消息并把 create 事件广播到目标组。
// 先落库后发布：写入失败时不会有任何事件流出。
// 返回创建的消息和它的目标广播组。
func (s *MessageService) Create(roomID uint, user *models.User, text string) (*MessageDTO, []string, error) {
	var count int64
	if err := s.db.Model(&models.Room{}).Where("id = ?", roomID).Count(&count).Error; err != nil {
		return nil, nil, err
	}
	if count == 0 {
		return nil, nil, ErrNotFound
	}
	msg := models.Message{RoomID: roomID, UserID: user.ID, Text: text}
	if err := s.db.Create(&msg).Error; err != nil {
		return nil, nil, err
	}
	dto := toDTO(msg, user.Public())
	data, err := json.Marshal(dto)
	if err != nil {
		return nil, nil, err
	}
	groups := []string{bus.RoomGroup(msg.RoomID), bus.MessageGroup(msg.ID)}
	evt := bus.Event{Type: bus.EventMessage, RoomID: msg.RoomID, Data: data, Action: "create", PK: msg.ID}
	for _, g := range groups {
		s.bus.Publish(g, evt)
	}
	metrics.WsMessagesTotal.Inc()
	return &dto, groups, nil
}

// ListByRoom 返回房间最近的消息，按 id 升序。
func (s *MessageService) ListByRoom(roomID uint, limit int) ([]MessageDTO, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var msgs []models.Message
	if err := s.db.Where("room_id = ?", roomID).Order("id desc").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, err
	}
	// 反转为升序
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	authors, err := s.resolveAuthors(msgs)
	if err != nil {
		return nil, err
	}
	out := make([]MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toDTO(m, authors[m.UserID]))
	}
	return out, nil
}

// Last 返回房间里时间戳最大的消息，房间为空时返回 nil。
func (s *MessageService) Last(roomID uint) (*MessageDTO, error) {
	var msg models.Message
	err := s.db.Where("room_id = ?", roomID).Order("created_at desc, id desc").First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var author models.User
	if err := s.db.First(&author, msg.UserID).Error; err != nil {
		return nil, err
	}
	dto := toDTO(msg, author.Public())
	return &dto, nil
}

// resolveAuthors 批量获取消息涉及的作者公开信息。
func (s *MessageService) resolveAuthors(msgs []models.Message) (map[uint]models.UserPublic, error) {
	seen := make(map[uint]struct{}, len(msgs))
	userIDs := make([]uint, 0, len(msgs))
	for _, m := range msgs {
		if _, ok := seen[m.UserID]; ok {
			continue
		}
		seen[m.UserID] = struct{}{}
		userIDs = append(userIDs, m.UserID)
	}

	authors := make(map[uint]models.UserPublic, len(userIDs))
	if len(userIDs) > 0 {
		var users []models.User
		if err := s.db.Select("id", "username").Where("id IN ?", userIDs).Find(&users).Error; err != nil {
			return nil, err
		}
		for _, u := range users {
			authors[u.ID] = u.Public()
		}
	}
	return authors, nil
}
