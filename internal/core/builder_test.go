package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teracrafts/posthog-go/value"
)

func newTestBuilder() *Builder {
	b := NewBuilder("posthog-go", "1.2.3")
	b.now = func() time.Time { return time.Date(2024, 5, 1, 10, 30, 0, 123456789, time.FixedZone("X", 3600)) }
	b.newID = func() string { return "0190c6f0-0000-7000-8000-000000000001" }
	return b
}

func TestBuildLayering(t *testing.T) {
	super := value.NewObject()
	super.Set("plan", value.String("free"))
	super.Set("distinct_id", value.String("from-super"))
	super.Set("$lib", value.String("overridden-lib"))

	explicit := value.NewObject()
	explicit.Set("plan", value.String("pro"))
	explicit.Set("button", value.String("buy"))

	rec := newTestBuilder().Build(BuildInput{
		Name:       "clicked",
		Properties: explicit,
		Identity:   Identity{DistinctID: "user-1", SessionID: "sess-1", Super: super},
	})

	assert.Equal(t, "clicked", rec.Name)
	assert.Equal(t, "2024-05-01T09:30:00.123Z", rec.Timestamp)
	assert.Equal(t, "0190c6f0-0000-7000-8000-000000000001", rec.UUID)
	assert.Equal(t, []string{"$lib", "$lib_version", "plan", "distinct_id", "$session_id", "button"}, rec.Properties.Keys())

	get := func(k string) value.Value {
		v, _ := rec.Property(k)
		return v
	}
	assert.Equal(t, value.String("overridden-lib"), get("$lib"))
	assert.Equal(t, value.String("1.2.3"), get("$lib_version"))
	assert.Equal(t, value.String("pro"), get("plan"))
	assert.Equal(t, value.String("user-1"), get("distinct_id"))
	assert.Equal(t, value.String("sess-1"), get("$session_id"))
}

func TestBuildExplicitDistinctIDWins(t *testing.T) {
	explicit := value.NewObject()
	explicit.Set("distinct_id", value.String("explicit"))

	rec := newTestBuilder().Build(BuildInput{
		Name:       "e",
		Properties: explicit,
		Identity:   Identity{DistinctID: "user-1"},
	})

	v, _ := rec.Property("distinct_id")
	assert.Equal(t, value.String("explicit"), v)
	assert.False(t, rec.Properties.Has("$session_id"))
}

func TestBuildMergesPerEventGroups(t *testing.T) {
	groups := value.NewObject()
	groups.Set("company", value.String("acme"))
	super := value.NewObject()
	super.Set("$groups", groups)

	rec := newTestBuilder().Build(BuildInput{
		Name:     "e",
		Identity: Identity{DistinctID: "u", Super: super},
		Groups:   map[string]string{"project": "p1", "company": "globex"},
	})

	v, _ := rec.Property("$groups")
	got := v.(*value.Object)
	assert.Equal(t, []string{"company", "project"}, got.Keys())
	company, _ := got.Get("company")
	assert.Equal(t, value.String("globex"), company)

	orig, _ := groups.Get("company")
	assert.Equal(t, value.String("acme"), orig, "session groups must not change")
}

func TestBuildExplicitTimestamp(t *testing.T) {
	ts := time.Date(2023, 1, 2, 3, 4, 5, 6000000, time.UTC)
	rec := newTestBuilder().Build(BuildInput{Name: "e", Timestamp: ts})
	assert.Equal(t, "2023-01-02T03:04:05.006Z", rec.Timestamp)
}

func TestEventRecordJSON(t *testing.T) {
	props := value.NewObject()
	props.Set("b", value.Number(1))
	props.Set("a", value.Bool(true))
	rec := EventRecord{Name: "e", Properties: props, Timestamp: "2024-01-01T00:00:00.000Z", UUID: "id"}

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Equal(t, `{"event":"e","properties":{"b":1,"a":true},"timestamp":"2024-01-01T00:00:00.000Z","uuid":"id"}`, string(data))

	var back EventRecord
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "e", back.Name)
	assert.Equal(t, []string{"b", "a"}, back.Properties.Keys())
}

func TestNewEventIDIsV7(t *testing.T) {
	id := NewEventID()
	require.Len(t, id, 36)
	assert.Equal(t, byte('7'), id[14])
}
