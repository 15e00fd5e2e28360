package core

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teracrafts/posthog-go/types"
	"github.com/teracrafts/posthog-go/value"
)

func syncedStore(t *testing.T, flags map[string]value.Value) *FlagStore {
	t.Helper()
	s := NewFlagStore()
	assert.True(t, s.ApplySync(s.BeginSync(), flags, nil))
	return s
}

func TestIsEnabledSyncedValues(t *testing.T) {
	s := syncedStore(t, map[string]value.Value{
		"on":       value.Bool(true),
		"off":      value.Bool(false),
		"variant":  value.String("control"),
		"falsey":   value.String("FaLsE"),
		"number":   value.Number(0),
		"object":   value.NewObject(),
		"nullflag": value.Null{},
	})

	assert.True(t, s.IsEnabled("on", false))
	assert.False(t, s.IsEnabled("off", true))
	assert.True(t, s.IsEnabled("variant", false))
	assert.False(t, s.IsEnabled("falsey", true))
	assert.True(t, s.IsEnabled("number", false))
	assert.True(t, s.IsEnabled("object", false))
	assert.True(t, s.IsEnabled("nullflag", true), "null is treated as absent")
	assert.False(t, s.IsEnabled("nullflag", false))
	assert.True(t, s.IsEnabled("missing", true))
	assert.False(t, s.IsEnabled("missing", false))
}

func TestIsEnabledOverrides(t *testing.T) {
	s := syncedStore(t, map[string]value.Value{
		"a": value.Bool(true),
		"b": value.Bool(false),
		"c": value.Bool(false),
	})
	s.Override(map[string]value.Value{
		"a": value.Bool(false),
		"b": value.String("yes"),
		"c": value.Number(1),
		"d": value.String("false"),
	})

	assert.False(t, s.IsEnabled("a", true))
	assert.True(t, s.IsEnabled("b", false))
	assert.False(t, s.IsEnabled("c", true), "non bool/string overrides fall through to synced")
	assert.False(t, s.IsEnabled("d", true))
}

func TestGetAndPayload(t *testing.T) {
	s := NewFlagStore()
	v, reason := s.Get("x")
	assert.Nil(t, v)
	assert.Equal(t, types.ReasonNotReady, reason)

	s.ApplySync(s.BeginSync(),
		map[string]value.Value{"checkout": value.String("variant-b")},
		map[string]value.Value{"checkout": value.Number(42)},
	)

	v, reason = s.Get("checkout")
	assert.Equal(t, value.String("variant-b"), v)
	assert.Equal(t, types.ReasonSynced, reason)
	assert.Equal(t, value.Number(42), s.GetPayload("checkout"))

	_, reason = s.Get("missing")
	assert.Equal(t, types.ReasonFlagNotFound, reason)
	assert.Nil(t, s.GetPayload("missing"))

	s.Override(map[string]value.Value{
		"checkout":         value.String("variant-c"),
		"checkout_payload": value.String("override"),
	})
	v, reason = s.Get("checkout")
	assert.Equal(t, value.String("variant-c"), v)
	assert.Equal(t, types.ReasonOverride, reason)
	assert.Equal(t, value.String("override"), s.GetPayload("checkout"))
}

func TestAllMergesOverrides(t *testing.T) {
	s := syncedStore(t, map[string]value.Value{"a": value.Bool(true), "b": value.Bool(true)})
	s.Override(map[string]value.Value{"b": value.Bool(false), "c": value.String("x"), "a_payload": value.Number(1)})

	assert.Equal(t, map[string]value.Value{
		"a": value.Bool(true),
		"b": value.Bool(false),
		"c": value.String("x"),
	}, s.All())
}

func TestStaleSyncDiscarded(t *testing.T) {
	s := NewFlagStore()
	older := s.BeginSync()
	newer := s.BeginSync()

	assert.True(t, s.ApplySync(newer, map[string]value.Value{"f": value.String("new")}, nil))
	assert.False(t, s.ApplySync(older, map[string]value.Value{"f": value.String("old")}, nil))

	v, _ := s.Get("f")
	assert.Equal(t, value.String("new"), v)
}

func TestSyncStartedBeforeClearDiscarded(t *testing.T) {
	s := syncedStore(t, map[string]value.Value{"f": value.Bool(true)})
	s.Override(map[string]value.Value{"o": value.Bool(true)})

	pending := s.BeginSync()
	s.Clear()

	assert.False(t, s.ApplySync(pending, map[string]value.Value{"f": value.Bool(true)}, nil))
	assert.Empty(t, s.All())
	assert.False(t, s.Ready())

	assert.True(t, s.ApplySync(s.BeginSync(), map[string]value.Value{"g": value.Bool(true)}, nil))
	assert.True(t, s.IsEnabled("g", false))
}

func TestSeedOnlyBeforeFirstSync(t *testing.T) {
	s := NewFlagStore()
	assert.True(t, s.Seed(map[string]value.Value{"boot": value.Bool(true)}, nil))
	assert.True(t, s.Ready())
	assert.True(t, s.IsEnabled("boot", false))

	s.ApplySync(s.BeginSync(), map[string]value.Value{"synced": value.Bool(true)}, nil)
	assert.False(t, s.Seed(map[string]value.Value{"late": value.Bool(true)}, nil))
	assert.False(t, s.IsEnabled("boot", false), "sync replaces seeded values")
}

func TestSnapshotRestore(t *testing.T) {
	s := syncedStore(t, map[string]value.Value{"b": value.String("v"), "a": value.Bool(true)})
	s.Override(map[string]value.Value{"o": value.Bool(true)})

	snap := s.Snapshot()
	assert.Equal(t, []string{"a", "b"}, snap.Flags.Keys())
	assert.False(t, snap.Flags.Has("o"))

	restored := NewFlagStore()
	assert.True(t, restored.Restore(snap))
	assert.True(t, restored.IsEnabled("a", false))
	v, _ := restored.Get("b")
	assert.Equal(t, value.String("v"), v)
}
