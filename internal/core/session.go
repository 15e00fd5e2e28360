package core

import (
	"sync"

	"github.com/google/uuid"

	"github.com/teracrafts/posthog-go/value"
)

// Identity is a consistent snapshot of the session used to build one event.
type Identity struct {
	DistinctID  string
	AnonymousID string
	SessionID   string
	Super       *value.Object
}

// Session holds the client identity, super properties, group memberships
// and the opt-out flag.
type Session struct {
	anonymousID string
	distinctID  string
	sessionID   string
	super       *value.Object
	optedOut    bool
	mu          sync.RWMutex
}

// NewSession creates a session with a fresh anonymous id and session id.
func NewSession(optedOut bool) *Session {
	s := &Session{optedOut: optedOut}
	s.resetLocked()
	return s
}

func (s *Session) resetLocked() {
	s.anonymousID = uuid.NewString()
	s.distinctID = s.anonymousID
	s.sessionID = NewEventID()
	s.super = value.NewObject()
}

// Identity returns a snapshot of the current identity and super properties.
func (s *Session) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Identity{
		DistinctID:  s.distinctID,
		AnonymousID: s.anonymousID,
		SessionID:   s.sessionID,
		Super:       s.super.Clone(),
	}
}

// DistinctID returns the current distinct id.
func (s *Session) DistinctID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.distinctID
}

// AnonymousID returns the anonymous id.
func (s *Session) AnonymousID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.anonymousID
}

// SessionID returns the session id.
func (s *Session) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// Identify sets the distinct id and returns the previous one.
func (s *Session) Identify(distinctID string) (previous string, changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous = s.distinctID
	s.distinctID = distinctID
	return previous, previous != distinctID
}

// Reset generates a new anonymous id and session id, makes the anonymous id
// the distinct id and clears super properties and groups. Opt-out is kept.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// Register sets a super property.
func (s *Session) Register(key string, v value.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.super.Set(key, v)
}

// RegisterAll sets every entry of props as a super property.
func (s *Session) RegisterAll(props *value.Object) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.super.Merge(props)
}

// Unregister removes a super property.
func (s *Session) Unregister(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.super.Delete(key)
}

// SetGroup records membership of groupType with groupKey in the $groups
// super property. It reports whether the membership changed.
func (s *Session) SetGroup(groupType, groupKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	groups, _ := s.groupsLocked()
	if groups == nil {
		groups = value.NewObject()
	}
	if current, ok := groups.Get(groupType); ok && value.Equal(current, value.String(groupKey)) {
		return false
	}
	groups.Set(groupType, value.String(groupKey))
	s.super.Set(PropGroups, groups)
	return true
}

// Groups returns the current group memberships.
func (s *Session) Groups() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string)
	groups, _ := s.groupsLocked()
	groups.Range(func(k string, v value.Value) bool {
		if str, ok := v.(value.String); ok {
			out[k] = string(str)
		}
		return true
	})
	return out
}

func (s *Session) groupsLocked() (*value.Object, bool) {
	v, ok := s.super.Get(PropGroups)
	if !ok {
		return nil, false
	}
	obj, ok := v.(*value.Object)
	return obj, ok
}

// SetOptedOut sets the opt-out flag.
func (s *Session) SetOptedOut(optedOut bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.optedOut = optedOut
}

// OptedOut reports whether capturing is disabled.
func (s *Session) OptedOut() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.optedOut
}
