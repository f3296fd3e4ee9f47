package service

import "errors"

// 业务层通用错误。HTTP handler 据此映射状态码，
// WebSocket 会话据此映射动作级错误帧，连接本身保持打开。
var (
	ErrUsernameTaken      = errors.New("username taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not found")
	ErrInvalidState       = errors.New("invalid state")
)
