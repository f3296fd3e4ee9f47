package registry

import (
	"sort"
	"sync"
)

// Registry 记录每条连接订阅了哪些广播组，
// 断开连接时靠它保证所有组恰好退订一次。
type Registry struct {
	mu    sync.Mutex
	conns map[string]map[string]struct{}
}

func New() *Registry {
	return &Registry{conns: make(map[string]map[string]struct{})}
}

// Subscribe 记录订阅，返回是否是该连接对该组的首次订阅。
func (r *Registry) Subscribe(connID, group string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.conns[connID]
	if set == nil {
		set = make(map[string]struct{})
		r.conns[connID] = set
	}
	if _, ok := set[group]; ok {
		return false
	}
	set[group] = struct{}{}
	return true
}

// Unsubscribe 移除订阅记录，返回记录是否存在。
func (r *Registry) Unsubscribe(connID, group string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.conns[connID]
	if set == nil {
		return false
	}
	if _, ok := set[group]; !ok {
		return false
	}
	delete(set, group)
	if len(set) == 0 {
		delete(r.conns, connID)
	}
	return true
}

// GroupsOf 枚举连接当前的全部订阅组。
func (r *Registry) GroupsOf(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.conns[connID]
	out := make([]string, 0, len(set))
	for g := range set {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// Drop 原子地移除并返回连接的全部订阅组。
// 重复调用返回空，因此断开清理即使触发两次也只会退订一次。
func (r *Registry) Drop(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.conns[connID]
	if set == nil {
		return nil
	}
	delete(r.conns, connID)
	out := make([]string, 0, len(set))
	for g := range set {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}
