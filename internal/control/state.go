// Package control holds the process-wide realtime session configuration
// and the authentication checks for the control webhook. Defaults come
// from the environment at startup; an admin endpoint layers runtime
// overrides on top. Overrides live until the process restarts.
package control

import (
	"sync"

	"github.com/antoniostano/switchboard/internal/realtime"
)

// State is the two-layer session configuration. Writes are serialized by
// the mutex; readers get an independent snapshot per call.
type State struct {
	mu        sync.RWMutex
	defaults  *realtime.SessionConfig
	overrides map[string]any
}

func NewState(defaults *realtime.SessionConfig) *State {
	if defaults == nil {
		defaults = &realtime.SessionConfig{}
	}
	return &State{defaults: defaults}
}

// SetOverrides replaces the runtime override layer. Keys outside the
// session allow-list are dropped, same as carrier-provided overrides.
func (s *State) SetOverrides(raw map[string]any) map[string]any {
	filtered := realtime.FilterOverrides(raw)
	s.mu.Lock()
	s.overrides = filtered
	s.mu.Unlock()
	return filtered
}

// ClearOverrides reverts to environment defaults.
func (s *State) ClearOverrides() {
	s.mu.Lock()
	s.overrides = nil
	s.mu.Unlock()
}

// Overrides returns a copy of the current override layer, nil when unset.
func (s *State) Overrides() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.overrides == nil {
		return nil
	}
	out := make(map[string]any, len(s.overrides))
	for k, v := range s.overrides {
		out[k] = v
	}
	return out
}

// SessionPayload renders the merged configuration as a session object
// ready for a session.update event. Override keys win over defaults.
func (s *State) SessionPayload() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session := s.defaults.UpdatePayload()
	for k, v := range s.overrides {
		session[k] = v
	}
	return session
}

// UpdateEvent wraps the merged configuration in a session.update event,
// the shape the model pulls from the control webhook.
func (s *State) UpdateEvent() map[string]any {
	return map[string]any{
		"type":    "session.update",
		"session": s.SessionPayload(),
	}
}
