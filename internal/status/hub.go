// Package status tracks the connection status of capability providers.
package status

import (
	"sort"
	"sync"
	"time"
)

// State is a provider connection state.
type State string

const (
	// StateConnected means a probe reached the provider and listed its tools.
	StateConnected State = "connected"
	// StateAttached means the provider was handed to the agent session. The
	// agent starts it; nothing here has checked that it runs.
	StateAttached State = "attached"
	StateFailed   State = "failed"
	StatePending  State = "pending"
)

// ServerStatus is the last known status of one provider.
type ServerStatus struct {
	Name  string
	State State
	// Tools lists the tool names reported by a probe.
	Tools     []string
	Error     string
	UpdatedAt time.Time
}

// Hub holds provider statuses and notifies subscribers on change.
// It is safe for concurrent use.
type Hub struct {
	// optimistic makes IsAttached report true until something is reported.
	optimistic bool

	mu       sync.RWMutex
	statuses map[string]ServerStatus
	subs     map[int]func()
	nextID   int
}

// NewHub creates a hub. With optimistic set, every provider counts as
// attached until the first report.
func NewHub(optimistic bool) *Hub {
	return &Hub{
		optimistic: optimistic,
		statuses:   make(map[string]ServerStatus),
		subs:       make(map[int]func()),
	}
}

// Subscribe registers fn to be called after every change. The returned
// function unsubscribes.
func (h *Hub) Subscribe(fn func()) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Update replaces the statuses of the given providers.
func (h *Hub) Update(statuses []ServerStatus) {
	now := time.Now()
	h.mu.Lock()
	for _, s := range statuses {
		if s.UpdatedAt.IsZero() {
			s.UpdatedAt = now
		}
		s.Tools = append([]string(nil), s.Tools...)
		h.statuses[s.Name] = s
	}
	h.mu.Unlock()
	h.notify()
}

// Reset forgets every status.
func (h *Hub) Reset() {
	h.mu.Lock()
	h.statuses = make(map[string]ServerStatus)
	h.mu.Unlock()
	h.notify()
}

// IsAttached reports whether name is attached to the agent session or was
// reached by a probe.
func (h *Hub) IsAttached(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.optimistic && len(h.statuses) == 0 {
		return true
	}
	switch h.statuses[name].State {
	case StateAttached, StateConnected:
		return true
	default:
		return false
	}
}

// Get returns the status of name.
func (h *Hub) Get(name string) (ServerStatus, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.statuses[name]
	return s, ok
}

// Snapshot returns every known status sorted by name.
func (h *Hub) Snapshot() []ServerStatus {
	h.mu.RLock()
	out := make([]ServerStatus, 0, len(h.statuses))
	for _, s := range h.statuses {
		out = append(out, s)
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (h *Hub) notify() {
	h.mu.RLock()
	subs := make([]func(), 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.RUnlock()

	for _, fn := range subs {
		fn()
	}
}

// FromInitData decodes the "mcp_servers" entry of a backend init message.
// Entries are maps with "name" and "status" keys, or bare names, which
// count as attached.
func FromInitData(v any) []ServerStatus {
	var out []ServerStatus
	switch list := v.(type) {
	case []string:
		for _, name := range list {
			out = append(out, ServerStatus{Name: name, State: StateAttached})
		}
	case []any:
		for _, item := range list {
			switch e := item.(type) {
			case string:
				out = append(out, ServerStatus{Name: e, State: StateAttached})
			case map[string]any:
				name, _ := e["name"].(string)
				if name == "" {
					continue
				}
				st, _ := e["status"].(string)
				if st == "" {
					st = string(StateAttached)
				}
				out = append(out, ServerStatus{Name: name, State: State(st)})
			}
		}
	case []map[string]any:
		for _, e := range list {
			name, _ := e["name"].(string)
			if name == "" {
				continue
			}
			st, _ := e["status"].(string)
			if st == "" {
				st = string(StateAttached)
			}
			out = append(out, ServerStatus{Name: name, State: State(st)})
		}
	}
	return out
}
