package bus

import (
	"encoding/json"
	"fmt"

	"github.com/englefamily/Django-CRF-Chat/internal/metrics"
)

// 事件类型，对应下发给客户端的两类推送。
const (
	EventUpdateUsers = "update_users"
	EventMessage     = "message"
)

// RoomGroup / MessageGroup 统一组名格式，发布方只按名字寻址。
func RoomGroup(roomID uint) string   { return fmt.Sprintf("room:%d", roomID) }
func MessageGroup(msgID uint) string { return fmt.Sprintf("message:%d", msgID) }

// Event 是总线上流转的事件，字段保持可 JSON 化，
// 以便 redis 驱动跨进程传输。
type Event struct {
	Type   string          `json:"type"`
	RoomID uint            `json:"room_id"`
	Users  json.RawMessage `json:"users,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Action string          `json:"action,omitempty"`
	PK     uint            `json:"pk,omitempty"`
}

// Subscriber 由连接会话实现，Deliver 在发布顺序上被依次调用，
// 实现方必须快速返回（入队即可），不能阻塞发布方。
type Subscriber interface {
	Deliver(group string, e Event)
}

// Bus 是广播总线抽象。单进程用 Memory，多进程共享用 Redis，
// 二者对会话层完全透明。
//
// 语义约定：Publish 把事件投递给当前订阅该组的每个订阅者，
// 各订阅者之间无顺序保证，单个订阅者内按发布顺序投递；
// Unsubscribe 返回之后不会再有投递发生。
type Bus interface {
	Subscribe(group string, sub Subscriber)
	Unsubscribe(group string, sub Subscriber)
	Publish(group string, e Event)
}

func countEvent(e Event) {
	metrics.BusEventsTotal.WithLabelValues(e.Type).Inc()
}
