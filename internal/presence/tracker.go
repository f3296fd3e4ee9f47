package presence

import (
	"sort"
	"sync"

	"github.com/englefamily/Django-CRF-Chat/internal/models"
	"github.com/englefamily/Django-CRF-Chat/internal/service"
)

// Tracker 维护“房间里现在有谁”的内存状态，是在线名单的唯一来源。
// 锁按房间细分，互不相关的房间不会互相阻塞。
//
// exists 用来校验房间是否真实存在（通常查 Room Directory），
// Tracker 本身不接触存储层。
type Tracker struct {
	mu     sync.RWMutex
	rooms  map[uint]*roomPresence
	exists func(roomID uint) bool
}

type roomPresence struct {
	mu    sync.Mutex
	users map[uint]models.UserPublic
}

func NewTracker(exists func(roomID uint) bool) *Tracker {
	return &Tracker{rooms: make(map[uint]*roomPresence), exists: exists}
}

// room 懒加载房间条目，双重检查避免并发重复创建。
func (t *Tracker) room(roomID uint) *roomPresence {
	t.mu.RLock()
	rp := t.rooms[roomID]
	t.mu.RUnlock()
	if rp != nil {
		return rp
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	rp = t.rooms[roomID]
	if rp == nil {
		rp = &roomPresence{users: make(map[uint]models.UserPublic)}
		t.rooms[roomID] = rp
	}
	return rp
}

// Join 把用户加入房间在线集合，重复加入是无副作用的幂等操作。
func (t *Tracker) Join(roomID uint, user models.UserPublic) error {
	if !t.exists(roomID) {
		return service.ErrNotFound
	}
	rp := t.room(roomID)
	rp.mu.Lock()
	rp.users[user.ID] = user
	rp.mu.Unlock()
	return nil
}

// Leave 把用户移出房间在线集合，不在场时为幂等空操作。
func (t *Tracker) Leave(roomID uint, userID uint) error {
	if !t.exists(roomID) {
		return service.ErrNotFound
	}
	rp := t.room(roomID)
	rp.mu.Lock()
	delete(rp.users, userID)
	rp.mu.Unlock()
	return nil
}

// List 返回调用时刻的在线名单快照，按用户 ID 升序保证输出稳定。
func (t *Tracker) List(roomID uint) ([]models.UserPublic, error) {
	if !t.exists(roomID) {
		return nil, service.ErrNotFound
	}
	rp := t.room(roomID)
	rp.mu.Lock()
	out := make([]models.UserPublic, 0, len(rp.users))
	for _, u := range rp.users {
		out = append(out, u)
	}
	rp.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Online 返回房间在线人数，供 REST 接口复用。
func (t *Tracker) Online(roomID uint) int {
	t.mu.RLock()
	rp := t.rooms[roomID]
	t.mu.RUnlock()
	if rp == nil {
		return 0
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return len(rp.users)
}

// Rooms 返回用户当前所在的全部房间，是在线集合的反向关系。
func (t *Tracker) Rooms(userID uint) []uint {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []uint
	for id, rp := range t.rooms {
		rp.mu.Lock()
		_, ok := rp.users[userID]
		rp.mu.Unlock()
		if ok {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
