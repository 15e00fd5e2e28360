package client

import (
	"time"

	"github.com/teracrafts/posthog-go/internal/core"
	"github.com/teracrafts/posthog-go/types"
	"github.com/teracrafts/posthog-go/value"
)

// IsFeatureEnabled reports whether key is enabled for the current user.
// Overrides are consulted first, then synced flags; def is returned when
// neither has the flag.
func (c *Client) IsFeatureEnabled(key string, def bool) (enabled bool) {
	enabled = def
	defer c.recoverPanic("IsFeatureEnabled")
	if !c.active() {
		return def
	}

	enabled = c.flags.IsEnabled(key, def)
	v, _ := c.flags.Get(key)
	c.reportFlagCalled(key, v)
	return enabled
}

// GetFeatureFlag returns the value of key: true/false, a variant string or
// a JSON value. It returns nil when the flag is unknown.
func (c *Client) GetFeatureFlag(key string) (result any) {
	defer c.recoverPanic("GetFeatureFlag")
	if !c.active() {
		return nil
	}

	v, _ := c.flags.Get(key)
	c.reportFlagCalled(key, v)
	return value.ToAny(v)
}

// GetFeatureFlagPayload returns the payload attached to key, or nil.
func (c *Client) GetFeatureFlagPayload(key string) (payload any) {
	defer c.recoverPanic("GetFeatureFlagPayload")
	if !c.active() {
		return nil
	}
	return value.ToAny(c.flags.GetPayload(key))
}

// GetFeatureFlagResult returns the value, payload and origin of key.
func (c *Client) GetFeatureFlagResult(key string) (result *types.FlagResult) {
	result = &types.FlagResult{
		Key:       key,
		Kind:      types.FlagDisabled,
		Reason:    types.ReasonError,
		Timestamp: time.Now(),
	}
	defer c.recoverPanic("GetFeatureFlagResult")
	if !c.active() {
		return result
	}

	v, reason := c.flags.Get(key)
	c.reportFlagCalled(key, v)

	return &types.FlagResult{
		Key:       key,
		Value:     value.ToAny(v),
		Payload:   value.ToAny(c.flags.GetPayload(key)),
		Enabled:   c.flags.IsEnabled(key, false),
		Kind:      types.ClassifyFlag(v),
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// GetAllFeatureFlags returns every known flag, overrides included.
func (c *Client) GetAllFeatureFlags() (all map[string]any) {
	all = map[string]any{}
	defer c.recoverPanic("GetAllFeatureFlags")
	if !c.active() {
		return all
	}

	for k, v := range c.flags.All() {
		all[k] = value.ToAny(v)
	}
	return all
}

// ReloadFeatureFlags syncs flags for the current user in the background.
// callback, if not nil, runs after the store is updated, with the sync error
// if there was one. The callback must not call Close.
func (c *Client) ReloadFeatureFlags(callback func(error)) (task *Task) {
	task = core.CompletedTask(nil)
	defer c.recoverPanic("ReloadFeatureFlags")
	return c.reloadFlags(callback)
}

// OverrideFeatureFlags sets local flag values that win over synced ones.
// A payload is overridden with the key "<flag>_payload".
func (c *Client) OverrideFeatureFlags(overrides map[string]any) {
	defer c.recoverPanic("OverrideFeatureFlags")
	if !c.active() {
		return
	}

	converted := make(map[string]value.Value, len(overrides))
	for k, raw := range overrides {
		v, err := value.FromAny(raw)
		if err != nil {
			c.logger.Debug("Dropping unsupported override", "key", k, "error", err.Error())
			continue
		}
		converted[k] = v
	}
	c.flags.Override(converted)
}

func (c *Client) reloadFlags(callback func(error)) *Task {
	task, err := c.startSync(callback)
	if err != nil {
		c.runFlagsCallback(callback, err)
		return core.CompletedTask(err)
	}
	return task
}

func (c *Client) startSync(callback func(error)) (*Task, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state != stateActive {
		return nil, c.stateError()
	}

	token := c.flags.BeginSync()
	distinctID := c.session.DistinctID()
	groups := c.session.Groups()

	return core.Go(&c.wg, func() error {
		err := c.syncFlags(token, distinctID, groups)
		c.runFlagsCallback(callback, err)
		return err
	}), nil
}

func (c *Client) syncFlags(token core.SyncToken, distinctID string, groups map[string]string) error {
	resp, err := c.transport.SyncFlags(c.ctx, distinctID, groups)
	if err != nil {
		c.logger.Debug("Feature flag sync failed", "error", err.Error())
		return err
	}

	if !c.flags.ApplySync(token, resp.Flags, resp.Payloads) {
		c.logger.Debug("Discarding stale feature flag sync", "distinct_id", distinctID)
		return nil
	}
	c.saveFlagSnapshot()
	return nil
}

func (c *Client) runFlagsCallback(callback func(error), err error) {
	if callback == nil {
		return
	}
	defer c.recoverPanic("ReloadFeatureFlags callback")
	callback(err)
}

// reportFlagCalled emits $feature_flag_called once per flag, response and
// distinct id.
func (c *Client) reportFlagCalled(key string, v value.Value) {
	if !c.options.SendFeatureFlagEvent || !c.active() || c.session.OptedOut() {
		return
	}
	if v == nil {
		v = value.Null{}
	}

	response, err := value.Marshal(v)
	if err != nil {
		return
	}
	dedupeKey := c.session.DistinctID() + "\x00" + key + "\x00" + string(response)

	c.flagCallsMu.Lock()
	if _, seen := c.flagCalls[dedupeKey]; seen {
		c.flagCallsMu.Unlock()
		return
	}
	c.flagCalls[dedupeKey] = struct{}{}
	c.flagCallsMu.Unlock()

	props := value.NewObject()
	props.Set(propFeatureFlag, value.String(key))
	props.Set(propFlagResponse, v)
	c.capture(EventFeatureFlagCalled, props, types.CaptureOptions{})
}
