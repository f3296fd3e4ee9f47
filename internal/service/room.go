package service

import (
	"errors"

	"github.com/englefamily/Django-CRF-Chat/internal/models"
	"gorm.io/gorm"
)

// PresenceSource 提供房间在线信息，由 presence.Tracker 实现。
// 以接口注入，避免目录层反向依赖在线层。
type PresenceSource interface {
	Online(roomID uint) int
	List(roomID uint) ([]models.UserPublic, error)
}

// RoomService 封装房间目录的业务逻辑。
type RoomService struct {
	db       *gorm.DB
	presence PresenceSource
}

func NewRoomService(db *gorm.DB, presence PresenceSource) *RoomService {
	return &RoomService{db: db, presence: presence}
}

// RoomDTO 是房间列表里的条目。
type RoomDTO struct {
	ID     uint   `json:"id"`
	Name   string `json:"name"`
	Online int    `json:"online"`
}

// RoomDetailDTO 是单个房间的完整视图：
// last_message 恒为房间内时间戳最大的消息，房间为空时为 null。
type RoomDetailDTO struct {
	ID           uint                `json:"pk"`
	Name         string              `json:"name"`
	Host         *models.UserPublic  `json:"host"`
	Messages     []MessageDTO        `json:"messages"`
	CurrentUsers []models.UserPublic `json:"current_users"`
	LastMessage  *MessageDTO         `json:"last_message"`
}

// Create 创建新房间，host 可以为空。
func (s *RoomService) Create(name string, hostID *uint) (*RoomDTO, error) {
	room := models.Room{Name: name, HostID: hostID}
	if err := s.db.Create(&room).Error; err != nil {
		return nil, err
	}
	return &RoomDTO{ID: room.ID, Name: room.Name, Online: 0}, nil
}

// Get 按主键取房间，不存在时返回 ErrNotFound。
func (s *RoomService) Get(pk uint) (*models.Room, error) {
	var room models.Room
	if err := s.db.First(&room, pk).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &room, nil
}

// Exists 供 presence.Tracker 注入的存在性检查。
func (s *RoomService) Exists(roomID uint) bool {
	var count int64
	if err := s.db.Model(&models.Room{}).Where("id = ?", roomID).Count(&count).Error; err != nil {
		return false
	}
	return count > 0
}

// List 返回房间列表，附带各房间的在线人数。
func (s *RoomService) List(limit int) ([]RoomDTO, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	var rooms []models.Room
	if err := s.db.Order("id desc").Limit(limit).Find(&rooms).Error; err != nil {
		return nil, err
	}
	out := make([]RoomDTO, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, RoomDTO{ID: r.ID, Name: r.Name, Online: s.presence.Online(r.ID)})
	}
	return out, nil
}

// Detail 返回房间完整视图，含最近消息、在线名单和 last_message。
func (s *RoomService) Detail(pk uint, msgSvc *MessageService) (*RoomDetailDTO, error) {
	room, err := s.Get(pk)
	if err != nil {
		return nil, err
	}
	msgs, err := msgSvc.ListByRoom(pk, 50)
	if err != nil {
		return nil, err
	}
	users, err := s.presence.List(pk)
	if err != nil {
		return nil, err
	}
	detail := &RoomDetailDTO{
		ID:           room.ID,
		Name:         room.Name,
		Messages:     msgs,
		CurrentUsers: users,
	}
	if room.HostID != nil {
		var host models.User
		if err := s.db.First(&host, *room.HostID).Error; err == nil {
			pub := host.Public()
			detail.Host = &pub
		}
	}
	if last, err := msgSvc.Last(pk); err == nil && last != nil {
		detail.LastMessage = last
	}
	return detail, nil
}
