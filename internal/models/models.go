package models

import "time"

type User struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;size:64;not null"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Room 的 HostID 可以为空：没有房主的房间也是合法的。
type Room struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex;size:128;not null"`
	HostID    *uint  `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message 一旦创建不可修改，CreatedAt 由服务端赋值。
type Message struct {
	ID        uint   `gorm:"primaryKey"`
	RoomID    uint   `gorm:"index:idx_msg_room_id;not null"`
	UserID    uint   `gorm:"index;not null"`
	Text      string `gorm:"type:text;not null"`
	CreatedAt time.Time
}

type RefreshToken struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"index;not null"`
	Token     string    `gorm:"uniqueIndex;size:128;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	RevokedAt *time.Time
	CreatedAt time.Time
}

// UserPublic 是对外输出的用户数据，绝不包含密码散列。
type UserPublic struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
}

func (u User) Public() UserPublic {
	return UserPublic{ID: u.ID, Username: u.Username}
}
