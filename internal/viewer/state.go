// Package viewer keeps the spatial view of one item in sync with its model.
package viewer

import (
	"sync"

	"github.com/alfianlosari/arinventory/internal/assets"
	"github.com/alfianlosari/arinventory/pkg/enums"
)

// Display is the current displayed asset. Entity is the last rendered
// entity; it stays attached while a replacement loads.
type Display struct {
	State  enums.DisplayState `json:"state"`
	Key    string             `json:"key,omitempty"`
	Entity *assets.Renderable `json:"entity,omitempty"`
}

// StateMachine guards display transitions:
// Empty -> Loading -> Ready -> Empty, and Loading -> Failed.
type StateMachine struct {
	mu       sync.Mutex
	current  Display
	onChange func(Display)
}

func NewStateMachine(onChange func(Display)) *StateMachine {
	return &StateMachine{current: Display{State: enums.DisplayStateEmpty}, onChange: onChange}
}

func (m *StateMachine) Current() Display {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// BeginLoading marks key as loading.
func (m *StateMachine) BeginLoading(key string) bool {
	return m.transition(func(d Display) (Display, bool) {
		if d.State == enums.DisplayStateLoading && d.Key == key {
			return d, false
		}
		d.State = enums.DisplayStateLoading
		d.Key = key
		return d, true
	})
}

// Ready displays r. An entity with the same name as the one already attached
// is never swapped in: from Ready it is a no-op, and a load in flight falls
// back to Ready around the attached entity. A nil renderable fails the load.
func (m *StateMachine) Ready(r *assets.Renderable) bool {
	if r == nil {
		return m.Fail()
	}
	return m.transition(func(d Display) (Display, bool) {
		if d.Entity != nil && d.Entity.Name == r.Name {
			if d.State == enums.DisplayStateReady {
				return d, false
			}
			return Display{State: enums.DisplayStateReady, Key: d.Entity.Name, Entity: d.Entity}, true
		}
		return Display{State: enums.DisplayStateReady, Key: r.Name, Entity: r}, true
	})
}

// Showing reports whether key is the entity currently displayed.
func (m *StateMachine) Showing(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.current
	return d.State == enums.DisplayStateReady && d.Entity != nil && d.Entity.Name == key
}

func (m *StateMachine) Fail() bool {
	return m.transition(func(d Display) (Display, bool) {
		if d.State == enums.DisplayStateFailed {
			return d, false
		}
		return Display{State: enums.DisplayStateFailed, Key: d.Key}, true
	})
}

func (m *StateMachine) Clear() bool {
	return m.transition(func(d Display) (Display, bool) {
		if d.State == enums.DisplayStateEmpty {
			return d, false
		}
		return Display{State: enums.DisplayStateEmpty}, true
	})
}

func (m *StateMachine) transition(fn func(Display) (Display, bool)) bool {
	m.mu.Lock()
	next, changed := fn(m.current)
	if changed {
		m.current = next
	}
	m.mu.Unlock()
	if changed && m.onChange != nil {
		m.onChange(next)
	}
	return changed
}
