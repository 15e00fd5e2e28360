package client

import (
	"fmt"
	"sort"
	"strings"

	"github.com/teracrafts/posthog-go/internal/core"
	"github.com/teracrafts/posthog-go/internal/security"
	"github.com/teracrafts/posthog-go/types"
	"github.com/teracrafts/posthog-go/value"
)

// Event names and properties with special meaning to the collector.
const (
	EventScreen            = "$screen"
	EventException         = "$exception"
	EventSet               = "$set"
	EventSetOnce           = "$set_once"
	EventIdentify          = "$identify"
	EventCreateAlias       = "$create_alias"
	EventGroupIdentify     = "$groupidentify"
	EventFeatureFlagCalled = "$feature_flag_called"

	propScreenName       = "$screen_name"
	propExceptionType    = "$exception_type"
	propExceptionMessage = "$exception_message"
	propExceptionLevel   = "$exception_level"
	propSet              = "$set"
	propSetOnce          = "$set_once"
	propAnonDistinctID   = "$anon_distinct_id"
	propAlias            = "alias"
	propGroupType        = "$group_type"
	propGroupKey         = "$group_key"
	propGroupSet         = "$group_set"
	propFeatureFlag      = "$feature_flag"
	propFlagResponse     = "$feature_flag_response"
)

// Capture records an event with the given properties. Explicit properties
// win over super properties and identity fields.
func (c *Client) Capture(event string, properties map[string]any) {
	defer c.recoverPanic("Capture")
	c.capture(event, c.toObject(properties), types.CaptureOptions{})
}

// CaptureWithOptions is Capture with per-event group memberships and an
// explicit timestamp.
func (c *Client) CaptureWithOptions(event string, properties map[string]any, opts types.CaptureOptions) {
	defer c.recoverPanic("CaptureWithOptions")
	c.capture(event, c.toObject(properties), opts)
}

// Screen records a screen view.
func (c *Client) Screen(screenName string, properties map[string]any) {
	defer c.recoverPanic("Screen")

	props := c.toObject(properties)
	props.Set(propScreenName, value.String(screenName))
	c.capture(EventScreen, props, types.CaptureOptions{})
}

// CaptureException records err as an $exception event. A nil err is ignored.
func (c *Client) CaptureException(err error, level types.ExceptionLevel, properties map[string]any) {
	defer c.recoverPanic("CaptureException")
	if err == nil {
		return
	}
	if level == "" {
		level = types.LevelError
	}

	props := c.toObject(properties)
	props.Set(propExceptionType, value.String(exceptionType(err)))
	props.Set(propExceptionMessage, value.String(err.Error()))
	props.Set(propExceptionLevel, value.String(string(level)))
	c.capture(EventException, props, types.CaptureOptions{})
}

// SetPersonProperties sets properties on the identified person.
func (c *Client) SetPersonProperties(properties map[string]any) {
	defer c.recoverPanic("SetPersonProperties")
	c.personEvent(EventSet, propSet, properties)
}

// SetPersonPropertiesOnce sets person properties that are not set yet.
func (c *Client) SetPersonPropertiesOnce(properties map[string]any) {
	defer c.recoverPanic("SetPersonPropertiesOnce")
	c.personEvent(EventSetOnce, propSetOnce, properties)
}

func (c *Client) personEvent(event, key string, properties map[string]any) {
	if len(properties) == 0 {
		return
	}
	props := value.NewObject()
	props.Set(key, c.toObject(properties))
	c.capture(event, props, types.CaptureOptions{})
}

// Identify links the current user to distinctID and emits $identify with
// the previous distinct id. Flags are reloaded when the id changes.
func (c *Client) Identify(distinctID string, set, setOnce map[string]any) {
	defer c.recoverPanic("Identify")
	if !c.active() {
		return
	}
	if strings.TrimSpace(distinctID) == "" {
		c.logger.Debug("Identify ignored: empty distinct id")
		return
	}

	previous, changed := c.session.Identify(distinctID)

	props := value.NewObject()
	props.Set(propAnonDistinctID, value.String(previous))
	if len(set) > 0 {
		props.Set(propSet, c.toObject(set))
	}
	if len(setOnce) > 0 {
		props.Set(propSetOnce, c.toObject(setOnce))
	}
	c.capture(EventIdentify, props, types.CaptureOptions{})

	if changed {
		c.reloadFlags(nil)
	}
}

// Alias links alias to the current distinct id.
func (c *Client) Alias(alias string) {
	defer c.recoverPanic("Alias")
	if !c.active() {
		return
	}
	if strings.TrimSpace(alias) == "" {
		return
	}

	props := value.NewObject()
	props.Set(propAlias, value.String(alias))
	c.capture(EventCreateAlias, props, types.CaptureOptions{})
}

// Reset forgets the current user: a new anonymous id and session id are
// generated and super properties, groups, feature flags and overrides are
// cleared.
func (c *Client) Reset() {
	defer c.recoverPanic("Reset")

	if !c.resetState() {
		return
	}
	if c.options.PreloadFeatureFlags {
		c.reloadFlags(nil)
	}
}

// resetState clears identity and flags while holding the state lock so that
// Close cannot release storage underneath it.
func (c *Client) resetState() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state != stateActive {
		return false
	}

	c.session.Reset()
	c.flags.Clear()

	c.flagCallsMu.Lock()
	c.flagCalls = make(map[string]struct{})
	c.flagCallsMu.Unlock()

	c.deleteFlagSnapshot()
	return true
}

// OptOut stops all capturing until OptIn.
func (c *Client) OptOut() {
	defer c.recoverPanic("OptOut")
	if !c.active() {
		return
	}
	c.session.SetOptedOut(true)
}

// OptIn resumes capturing.
func (c *Client) OptIn() {
	defer c.recoverPanic("OptIn")
	if !c.active() {
		return
	}
	c.session.SetOptedOut(false)
}

// IsOptedOut reports whether capturing is disabled.
func (c *Client) IsOptedOut() bool {
	if !c.active() {
		return false
	}
	return c.session.OptedOut()
}

// Group associates the current user with groupKey of groupType and emits
// $groupidentify. Flags are reloaded when the membership changes.
func (c *Client) Group(groupType, groupKey string, properties map[string]any) {
	defer c.recoverPanic("Group")
	if !c.active() {
		return
	}
	if groupType == "" || groupKey == "" {
		c.logger.Debug("Group ignored: empty group type or key")
		return
	}

	changed := c.session.SetGroup(groupType, groupKey)

	props := value.NewObject()
	props.Set(propGroupType, value.String(groupType))
	props.Set(propGroupKey, value.String(groupKey))
	if len(properties) > 0 {
		props.Set(propGroupSet, c.toObject(properties))
	}
	c.capture(EventGroupIdentify, props, types.CaptureOptions{})

	if changed {
		c.reloadFlags(nil)
	}
}

// Register sets a super property sent with every event.
func (c *Client) Register(key string, val any) {
	defer c.recoverPanic("Register")
	if !c.active() {
		return
	}

	v, err := value.FromAny(val)
	if err != nil {
		c.logger.Debug("Register ignored: unsupported value", "key", key, "error", err.Error())
		return
	}
	c.session.Register(key, v)
}

// RegisterAll sets several super properties.
func (c *Client) RegisterAll(properties map[string]any) {
	defer c.recoverPanic("RegisterAll")
	if !c.active() {
		return
	}
	c.session.RegisterAll(c.toObject(properties))
}

// Unregister removes a super property.
func (c *Client) Unregister(key string) {
	defer c.recoverPanic("Unregister")
	if !c.active() {
		return
	}
	c.session.Unregister(key)
}

// DistinctID returns the current distinct id.
func (c *Client) DistinctID() string {
	if !c.active() {
		return ""
	}
	return c.session.DistinctID()
}

// AnonymousID returns the anonymous id generated for this installation.
func (c *Client) AnonymousID() string {
	if !c.active() {
		return ""
	}
	return c.session.AnonymousID()
}

// SessionID returns the id attached to events as $session_id.
func (c *Client) SessionID() string {
	if !c.active() {
		return ""
	}
	return c.session.SessionID()
}

// capture builds and enqueues an event when the client is active, and
// starts a flush once the queue reaches FlushAt.
func (c *Client) capture(event string, props *value.Object, opts types.CaptureOptions) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state != stateActive {
		return
	}
	n, ok := c.enqueue(event, props, opts)
	if ok && n >= c.options.FlushAt {
		c.flusher.Trigger(c.ctx)
	}
}

// enqueue builds and enqueues an event regardless of lifecycle state.
func (c *Client) enqueue(event string, props *value.Object, opts types.CaptureOptions) (int, bool) {
	if c.session.OptedOut() {
		return 0, false
	}
	if event == "" {
		c.logger.Debug("Capture ignored: empty event name")
		return 0, false
	}

	rec := c.builder.Build(core.BuildInput{
		Name:       event,
		Properties: props,
		Identity:   c.session.Identity(),
		Groups:     opts.Groups,
		Timestamp:  opts.Timestamp,
	})
	return c.queue.Enqueue(rec)
}

// toObject converts caller properties, dropping values that cannot be
// represented as JSON.
func (c *Client) toObject(properties map[string]any) *value.Object {
	security.WarnIfSensitive(properties, c.logger)

	obj := value.NewObject()
	keys := make([]string, 0, len(properties))
	for k := range properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v, err := value.FromAny(properties[k])
		if err != nil {
			c.logger.Debug("Dropping unsupported property", "key", k, "error", err.Error())
			continue
		}
		obj.Set(k, v)
	}
	return obj
}

func exceptionType(err error) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}
