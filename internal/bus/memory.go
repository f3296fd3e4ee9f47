package bus

import "sync"

// Memory 是单进程内存实现：组名到订阅者集合的映射。
// 发布在读锁内同步完成，因此 Unsubscribe（写锁）返回后
// 不可能再有投递，正在进行的发布也会被等待完。
type Memory struct {
	mu     sync.RWMutex
	groups map[string]map[Subscriber]struct{}
}

func NewMemory() *Memory {
	return &Memory{groups: make(map[string]map[Subscriber]struct{})}
}

func (m *Memory) Subscribe(group string, sub Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.groups[group]
	if set == nil {
		set = make(map[Subscriber]struct{})
		m.groups[group] = set
	}
	set[sub] = struct{}{}
}

func (m *Memory) Unsubscribe(group string, sub Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.groups[group]
	if set == nil {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(m.groups, group)
	}
}

func (m *Memory) Publish(group string, e Event) {
	countEvent(e)
	m.deliver(group, e)
}

func (m *Memory) deliver(group string, e Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for sub := range m.groups[group] {
		sub.Deliver(group, e)
	}
}
