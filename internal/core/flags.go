package core

import (
	"strings"
	"sync"

	"golang.org/x/text/cases"

	"github.com/teracrafts/posthog-go/types"
	"github.com/teracrafts/posthog-go/value"
)

// PayloadOverrideSuffix marks an override entry that replaces a flag's payload.
const PayloadOverrideSuffix = "_payload"

// SyncToken identifies one flag sync. Tokens increase monotonically.
type SyncToken uint64

// FlagSnapshot is the persisted form of the synced flags.
type FlagSnapshot struct {
	Flags    *value.Object `json:"flags"`
	Payloads *value.Object `json:"payloads"`
}

// FlagStore holds synced flag values, their payloads and local overrides.
// Reads never block on network I/O.
type FlagStore struct {
	synced    map[string]value.Value
	payloads  map[string]value.Value
	overrides map[string]value.Value
	ready     bool
	issued    SyncToken
	applied   SyncToken
	cleared   SyncToken
	mu        sync.RWMutex
}

// NewFlagStore creates an empty store.
func NewFlagStore() *FlagStore {
	return &FlagStore{
		synced:    make(map[string]value.Value),
		payloads:  make(map[string]value.Value),
		overrides: make(map[string]value.Value),
	}
}

// BeginSync issues the token for a sync that is about to start.
func (s *FlagStore) BeginSync() SyncToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	return s.issued
}

// ApplySync replaces the synced flags and payloads with the result of the
// sync identified by token. Results of a sync that started before a newer
// applied sync or before the last Clear are discarded; applied is false then.
func (s *FlagStore) ApplySync(token SyncToken, flags, payloads map[string]value.Value) (applied bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token <= s.applied || token <= s.cleared {
		return false
	}
	s.synced = copyValues(flags)
	s.payloads = copyValues(payloads)
	s.applied = token
	s.ready = true
	return true
}

// Seed fills the synced tables from a bootstrap or a stored snapshot. It does
// nothing once a sync has been applied.
func (s *FlagStore) Seed(flags, payloads map[string]value.Value) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.applied > 0 {
		return false
	}
	for k, v := range flags {
		s.synced[k] = v
	}
	for k, v := range payloads {
		s.payloads[k] = v
	}
	s.ready = s.ready || len(flags) > 0
	return true
}

// Ready reports whether the store holds synced, seeded or restored values.
func (s *FlagStore) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Override merges local overrides. Overrides take precedence over synced
// values and are never sent to the server.
func (s *FlagStore) Override(overrides map[string]value.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range overrides {
		s.overrides[k] = v
	}
}

// Clear drops synced flags, payloads and overrides. Syncs already in flight
// are discarded when they complete.
func (s *FlagStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synced = make(map[string]value.Value)
	s.payloads = make(map[string]value.Value)
	s.overrides = make(map[string]value.Value)
	s.cleared = s.issued
	s.ready = false
}

// IsEnabled resolves key to a boolean. Overrides are consulted first, then
// synced values, then def.
func (s *FlagStore) IsEnabled(key string, def bool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.overrides[key]; ok {
		switch t := v.(type) {
		case value.Bool:
			return bool(t)
		case value.String:
			return !isFalseString(string(t))
		}
	}

	v, ok := s.synced[key]
	if !ok || value.IsNull(v) {
		return def
	}
	switch t := v.(type) {
	case value.Bool:
		return bool(t)
	case value.String:
		return !isFalseString(string(t))
	default:
		return true
	}
}

// Get returns the value of key and where it came from.
func (s *FlagStore) Get(key string) (value.Value, types.EvaluationReason) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.overrides[key]; ok && !value.IsNull(v) {
		return v, types.ReasonOverride
	}
	if v, ok := s.synced[key]; ok && !value.IsNull(v) {
		return v, types.ReasonSynced
	}
	if !s.ready {
		return nil, types.ReasonNotReady
	}
	return nil, types.ReasonFlagNotFound
}

// GetPayload returns the payload of key. An override stored under
// key+"_payload" wins over the synced payload.
func (s *FlagStore) GetPayload(key string) value.Value {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.overrides[key+PayloadOverrideSuffix]; ok && !value.IsNull(v) {
		return v
	}
	if v, ok := s.payloads[key]; ok && !value.IsNull(v) {
		return v
	}
	return nil
}

// All returns synced values merged with overrides. Payload overrides are
// not flags and are left out.
func (s *FlagStore) All() map[string]value.Value {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]value.Value, len(s.synced)+len(s.overrides))
	for k, v := range s.synced {
		out[k] = v
	}
	for k, v := range s.overrides {
		if strings.HasSuffix(k, PayloadOverrideSuffix) {
			continue
		}
		out[k] = v
	}
	return out
}

// Snapshot returns the synced tables for persistence. Overrides are not
// included.
func (s *FlagStore) Snapshot() FlagSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return FlagSnapshot{
		Flags:    toObject(s.synced),
		Payloads: toObject(s.payloads),
	}
}

// Restore seeds the store from a snapshot.
func (s *FlagStore) Restore(snap FlagSnapshot) bool {
	return s.Seed(fromObject(snap.Flags), fromObject(snap.Payloads))
}

// isFalseString reports whether s spells "false" in any letter case.
func isFalseString(s string) bool {
	return cases.Fold().String(s) == "false"
}

func copyValues(m map[string]value.Value) map[string]value.Value {
	out := make(map[string]value.Value, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func toObject(m map[string]value.Value) *value.Object {
	anyMap := make(map[string]any, len(m))
	for k, v := range m {
		anyMap[k] = v
	}
	obj, err := value.ObjectFromMap(anyMap)
	if err != nil {
		return value.NewObject()
	}
	return obj
}

func fromObject(obj *value.Object) map[string]value.Value {
	out := make(map[string]value.Value, obj.Len())
	obj.Range(func(k string, v value.Value) bool {
		out[k] = v
		return true
	})
	return out
}
