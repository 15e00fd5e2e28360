package core

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/teracrafts/posthog-go/value"
)

// TimestampLayout is the wire format of event timestamps.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Reserved property keys.
const (
	PropLib        = "$lib"
	PropLibVersion = "$lib_version"
	PropDistinctID = "distinct_id"
	PropSessionID  = "$session_id"
	PropGroups     = "$groups"
)

// EventRecord is a captured event ready for delivery. It is not modified
// after Build returns.
type EventRecord struct {
	Name       string
	Properties *value.Object
	Timestamp  string
	UUID       string
}

type wireEvent struct {
	Event      string        `json:"event"`
	Properties *value.Object `json:"properties"`
	Timestamp  string        `json:"timestamp"`
	UUID       string        `json:"uuid,omitempty"`
}

// MarshalJSON encodes the record as {event, properties, timestamp, uuid}.
func (r EventRecord) MarshalJSON() ([]byte, error) {
	props := r.Properties
	if props == nil {
		props = value.NewObject()
	}
	return json.Marshal(wireEvent{
		Event:      r.Name,
		Properties: props,
		Timestamp:  r.Timestamp,
		UUID:       r.UUID,
	})
}

// UnmarshalJSON decodes the wire form.
func (r *EventRecord) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Properties == nil {
		w.Properties = value.NewObject()
	}
	*r = EventRecord{Name: w.Event, Properties: w.Properties, Timestamp: w.Timestamp, UUID: w.UUID}
	return nil
}

// Property returns a property of the record.
func (r EventRecord) Property(key string) (value.Value, bool) {
	return r.Properties.Get(key)
}

// BuildInput carries everything a record is assembled from.
type BuildInput struct {
	Name       string
	Properties *value.Object
	Identity   Identity
	Groups     map[string]string
	Timestamp  time.Time
}

// Builder assembles event records. Properties are layered in increasing
// precedence: library info, super properties (including $groups),
// distinct_id, $session_id, then the explicit properties of the call.
type Builder struct {
	libName    string
	libVersion string
	now        func() time.Time
	newID      func() string
}

// NewBuilder creates a builder that stamps records with the given library
// name and version.
func NewBuilder(libName, libVersion string) *Builder {
	return &Builder{
		libName:    libName,
		libVersion: libVersion,
		now:        time.Now,
		newID:      NewEventID,
	}
}

// Build assembles a record.
func (b *Builder) Build(in BuildInput) EventRecord {
	props := value.NewObject()
	props.Set(PropLib, value.String(b.libName))
	props.Set(PropLibVersion, value.String(b.libVersion))

	in.Identity.Super.Range(func(k string, v value.Value) bool {
		props.Set(k, value.Clone(v))
		return true
	})

	if len(in.Groups) > 0 {
		groups := value.NewObject()
		if existing, ok := props.Get(PropGroups); ok {
			if obj, ok := existing.(*value.Object); ok {
				groups = obj
			}
		}
		keys := make([]string, 0, len(in.Groups))
		for k := range in.Groups {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			groups.Set(k, value.String(in.Groups[k]))
		}
		props.Set(PropGroups, groups)
	}

	props.Set(PropDistinctID, value.String(in.Identity.DistinctID))
	if in.Identity.SessionID != "" {
		props.Set(PropSessionID, value.String(in.Identity.SessionID))
	}
	props.Merge(in.Properties)

	ts := in.Timestamp
	if ts.IsZero() {
		ts = b.now()
	}

	return EventRecord{
		Name:       in.Name,
		Properties: props,
		Timestamp:  ts.UTC().Format(TimestampLayout),
		UUID:       b.newID(),
	}
}

// NewEventID returns a time-ordered (v7) UUID string.
func NewEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
