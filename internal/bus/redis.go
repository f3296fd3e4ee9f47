package bus

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const channelPrefix = "chat.bus."

// Redis 是跨进程实现：事件经 Redis Pub/Sub 中转，
// 本地只维护组到订阅者的路由表。每个进程订阅自己关心的频道，
// 收到的事件再按本地路由表分发。
type Redis struct {
	Memory
	client *redis.Client
	ps     *redis.PubSub
	ctx    context.Context
	cancel context.CancelFunc
}

func NewRedis(addr string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithCancel(context.Background())
	if err := client.Ping(ctx).Err(); err != nil {
		cancel()
		_ = client.Close()
		return nil, err
	}
	r := &Redis{
		Memory: Memory{groups: make(map[string]map[Subscriber]struct{})},
		client: client,
		ps:     client.Subscribe(ctx),
		ctx:    ctx,
		cancel: cancel,
	}
	go r.receive()
	return r, nil
}

func (r *Redis) Subscribe(group string, sub Subscriber) {
	r.Memory.Subscribe(group, sub)
	if err := r.ps.Subscribe(r.ctx, channelPrefix+group); err != nil {
		log.Warn().Err(err).Str("group", group).Msg("redis subscribe")
	}
}

func (r *Redis) Unsubscribe(group string, sub Subscriber) {
	r.Memory.Unsubscribe(group, sub)
	r.mu.RLock()
	empty := len(r.groups[group]) == 0
	r.mu.RUnlock()
	if empty {
		if err := r.ps.Unsubscribe(r.ctx, channelPrefix+group); err != nil {
			log.Warn().Err(err).Str("group", group).Msg("redis unsubscribe")
		}
	}
}

// Publish 只负责送进 Redis，本地分发统一走 receive 回路，
// 保证本进程订阅者与其他进程看到同一份顺序。
func (r *Redis) Publish(group string, e Event) {
	countEvent(e)
	payload, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Str("group", group).Msg("redis publish marshal")
		return
	}
	if err := r.client.Publish(r.ctx, channelPrefix+group, payload).Err(); err != nil {
		log.Error().Err(err).Str("group", group).Msg("redis publish")
	}
}

func (r *Redis) receive() {
	for msg := range r.ps.Channel() {
		group := msg.Channel[len(channelPrefix):]
		var e Event
		if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
			log.Warn().Err(err).Str("group", group).Msg("redis event decode")
			continue
		}
		r.Memory.deliver(group, e)
	}
}

func (r *Redis) Close() error {
	r.cancel()
	_ = r.ps.Close()
	return r.client.Close()
}
