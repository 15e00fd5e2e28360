package client

import (
	stderrors "errors"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teracrafts/posthog-go/config"
	"github.com/teracrafts/posthog-go/errors"
	"github.com/teracrafts/posthog-go/internal/core"
	"github.com/teracrafts/posthog-go/posthogtest"
	"github.com/teracrafts/posthog-go/types"
	"github.com/teracrafts/posthog-go/value"
)

func newServer(t *testing.T) *posthogtest.Server {
	t.Helper()
	s := posthogtest.NewServer()
	t.Cleanup(s.Close)
	return s
}

func newTestClient(t *testing.T, s *posthogtest.Server, opts ...OptionFunc) *Client {
	t.Helper()
	base := []OptionFunc{
		config.WithHost(s.URL),
		config.WithFlushAt(100),
		config.WithFlushInterval(time.Hour),
		config.WithLifecycleEvents(false),
		config.WithPreloadFeatureFlags(false),
		config.WithFeatureFlagEvents(false),
		config.WithLogger(&types.NullLogger{}),
	}
	c, err := New("phc_test_key", append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func started(t *testing.T, s *posthogtest.Server, opts ...OptionFunc) *Client {
	t.Helper()
	c := newTestClient(t, s, opts...)
	c.Initialize()
	require.True(t, c.IsSetup())
	return c
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidConfig, errors.CodeOf(err))

	_, err = New("phc_test_key", config.WithFlushAt(0))
	assert.Error(t, err)
}

func TestLifecycle(t *testing.T) {
	s := newServer(t)
	c := newTestClient(t, s)

	assert.False(t, c.IsSetup())
	c.Capture("before", nil)
	assert.Equal(t, 0, c.QueueSize(), "capture before Initialize is ignored")

	err := c.Flush().Wait()
	assert.Equal(t, errors.ErrNotReady, errors.CodeOf(err))

	c.Initialize()
	c.Initialize()
	assert.True(t, c.IsSetup())

	c.Close()
	c.Close()
	assert.False(t, c.IsSetup())

	c.Capture("after", nil)
	assert.Equal(t, 0, c.QueueSize())
	assert.Equal(t, errors.ErrClosed, errors.CodeOf(c.Flush().Wait()))
}

// callEveryOperation runs each public operation on a client that is not
// active and checks that the safe default comes back.
func callEveryOperation(t *testing.T, c *Client) {
	t.Helper()

	c.Capture("e", map[string]any{"k": "v"})
	c.CaptureWithOptions("e", nil, types.CaptureOptions{Groups: map[string]string{"company": "acme"}})
	c.Screen("Home", nil)
	c.CaptureException(stderrors.New("boom"), types.LevelError, nil)
	c.SetPersonProperties(map[string]any{"name": "Ada"})
	c.SetPersonPropertiesOnce(map[string]any{"first": "yes"})
	c.Identify("user-1", map[string]any{"name": "Ada"}, nil)
	c.Alias("user@example.com")
	c.Group("company", "acme", nil)
	c.Register("plan", "pro")
	c.RegisterAll(map[string]any{"tier": 1})
	c.Unregister("plan")
	c.OverrideFeatureFlags(map[string]any{"beta": true})
	c.OptOut()
	c.OptIn()
	c.OptOut()
	c.SetDebug(true)
	c.Reset()

	assert.False(t, c.IsSetup())
	assert.Equal(t, 0, c.QueueSize())
	assert.False(t, c.IsOptedOut())
	assert.Empty(t, c.DistinctID())
	assert.Empty(t, c.AnonymousID())
	assert.Empty(t, c.SessionID())
	assert.False(t, c.options.Debug)

	assert.True(t, c.IsFeatureEnabled("beta", true))
	assert.False(t, c.IsFeatureEnabled("beta", false))
	assert.Nil(t, c.GetFeatureFlag("beta"))
	assert.Nil(t, c.GetFeatureFlagPayload("beta"))
	assert.Empty(t, c.GetAllFeatureFlags())

	result := c.GetFeatureFlagResult("beta")
	assert.Equal(t, "beta", result.Key)
	assert.Nil(t, result.Value)
	assert.Equal(t, types.ReasonError, result.Reason)

	assert.Error(t, c.Flush().Wait())
	assert.Error(t, c.ReloadFeatureFlags(nil).Wait())
}

func TestOperationsBeforeInitializeHaveNoEffect(t *testing.T) {
	s := newServer(t)
	s.SetFlags(map[string]any{"beta": false}, nil)
	c := newTestClient(t, s)

	callEveryOperation(t, c)

	c.Initialize()
	require.True(t, c.IsSetup())
	assert.False(t, c.IsOptedOut())
	assert.False(t, c.options.Debug)
	assert.Equal(t, c.AnonymousID(), c.DistinctID())
	assert.Empty(t, c.GetAllFeatureFlags())
	assert.Empty(t, s.DecideRequests())

	c.Capture("after", nil)
	require.NoError(t, c.Flush().Wait())
	assert.Equal(t, []string{"after"}, s.EventNames())
	props := s.Events()[0].Properties
	assert.NotContains(t, props, "plan")
	assert.NotContains(t, props, "tier")
	assert.NotContains(t, props, "$groups")
}

func TestOperationsAfterCloseHaveNoEffect(t *testing.T) {
	dir := t.TempDir()
	s := newServer(t)
	s.SetFlags(map[string]any{"beta": true}, nil)

	c := started(t, s, config.WithStoragePath(dir))
	require.NoError(t, c.ReloadFeatureFlags(nil).Wait())
	c.Close()
	delivered := len(s.Events())

	callEveryOperation(t, c)

	_, err := os.Stat(filepath.Join(dir, FlagSnapshotFile))
	assert.NoError(t, err, "reset after close keeps the stored flags")
	assert.Len(t, s.Events(), delivered)
	assert.Len(t, s.DecideRequests(), 1)
	assert.Equal(t, errors.ErrClosed, errors.CodeOf(c.Flush().Wait()))
}

func TestNonFiniteNumbersDoNotBlockDelivery(t *testing.T) {
	s := newServer(t)
	c := started(t, s)

	c.Capture("bad", map[string]any{"ratio": math.NaN(), "inf": value.Number(math.Inf(1)), "ok": 1})
	c.Capture("good", nil)
	require.NoError(t, c.Flush().Wait())
	require.NoError(t, c.Flush().Wait())

	assert.Equal(t, []string{"bad", "good"}, s.EventNames())
	props := s.Events()[0].Properties
	assert.NotContains(t, props, "ratio")
	assert.NotContains(t, props, "inf")
	assert.Equal(t, float64(1), props["ok"])
	assert.Equal(t, 0, c.QueueSize())
}

func TestUnencodableQueuedRecordIsDropped(t *testing.T) {
	s := newServer(t)
	c := started(t, s)

	poisoned := value.NewObject()
	poisoned.Set("distinct_id", value.String(c.DistinctID()))
	poisoned.Set("ratio", value.Number(math.NaN()))
	_, accepted := c.queue.Enqueue(core.EventRecord{Name: "poisoned", Properties: poisoned, Timestamp: "2024-05-01T09:30:00.000Z"})
	require.True(t, accepted)
	c.Capture("good", nil)

	require.NoError(t, c.Flush().Wait())
	assert.Equal(t, []string{"good"}, s.EventNames())
	assert.Equal(t, 0, c.QueueSize())

	c.Capture("later", nil)
	require.NoError(t, c.Flush().Wait())
	assert.Equal(t, []string{"good", "later"}, s.EventNames())
}

func TestCaptureAndFlush(t *testing.T) {
	s := newServer(t)
	c := started(t, s)

	c.Register("plan", "pro")
	c.Capture("clicked", map[string]any{"button": "buy", "plan": "enterprise"})
	assert.Equal(t, 1, c.QueueSize())

	require.NoError(t, c.Flush().Wait())
	assert.Equal(t, 0, c.QueueSize())

	events := s.Events()
	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, "clicked", e.Event)
	assert.NotEmpty(t, e.UUID)
	assert.Equal(t, config.SDKName, e.Properties["$lib"])
	assert.Equal(t, config.SDKVersion, e.Properties["$lib_version"])
	assert.Equal(t, c.DistinctID(), e.DistinctID())
	assert.Equal(t, c.SessionID(), e.Properties["$session_id"])
	assert.Equal(t, "enterprise", e.Properties["plan"], "explicit properties win")
	assert.Equal(t, "buy", e.Properties["button"])

	_, err := time.Parse(time.RFC3339, e.Timestamp)
	assert.NoError(t, err)
}

func TestFlushAtTriggersDelivery(t *testing.T) {
	s := newServer(t)
	c := started(t, s, config.WithFlushAt(3))

	c.Capture("a", nil)
	c.Capture("b", nil)
	assert.Empty(t, s.Events())

	c.Capture("c", nil)
	assert.Eventually(t, func() bool { return len(s.Events()) == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, s.EventNames())
}

func TestFlushIntervalTriggersDelivery(t *testing.T) {
	s := newServer(t)
	c := started(t, s, config.WithFlushInterval(10*time.Millisecond))

	c.Capture("tick", nil)
	assert.Eventually(t, func() bool { return len(s.Events()) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestFailedDeliveryRequeuesInOrder(t *testing.T) {
	s := newServer(t)
	c := started(t, s)
	s.FailBatches(1, http.StatusServiceUnavailable)

	c.Capture("a", nil)
	c.Capture("b", nil)
	err := c.Flush().Wait()
	require.Error(t, err)
	assert.True(t, errors.IsRecoverable(err))
	assert.Equal(t, 2, c.QueueSize())

	c.Capture("c", nil)
	require.NoError(t, c.Flush().Wait())
	assert.Equal(t, []string{"a", "b", "c"}, s.EventNames())
	assert.Equal(t, 1, s.RejectedBatches())
}

func TestMaxBatchSizeChunks(t *testing.T) {
	s := newServer(t)
	c := started(t, s, config.WithMaxBatchSize(2))

	for _, name := range []string{"a", "b", "c", "d", "e"} {
		c.Capture(name, nil)
	}
	require.NoError(t, c.Flush().Wait())

	batches := s.Batches()
	require.Len(t, batches, 3)
	assert.Len(t, batches[0].Events, 2)
	assert.Len(t, batches[2].Events, 1)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, s.EventNames())
}

func TestMaxQueueSizeDropsNewest(t *testing.T) {
	s := newServer(t)
	c := started(t, s, config.WithMaxQueueSize(2))

	c.Capture("a", nil)
	c.Capture("b", nil)
	c.Capture("c", nil)
	assert.Equal(t, 2, c.QueueSize())

	require.NoError(t, c.Flush().Wait())
	assert.Equal(t, []string{"a", "b"}, s.EventNames())
}

func TestCaptureVariants(t *testing.T) {
	s := newServer(t)
	c := started(t, s)

	ts := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	c.CaptureWithOptions("grouped", nil, types.CaptureOptions{
		Groups:    map[string]string{"company": "acme"},
		Timestamp: ts,
	})
	c.Screen("Home", map[string]any{"from": "push"})
	c.CaptureException(stderrors.New("disk full"), types.LevelFatal, nil)
	c.CaptureException(nil, types.LevelError, nil)
	c.SetPersonProperties(map[string]any{"email": "user@example.com"})
	c.SetPersonPropertiesOnce(map[string]any{"first_seen": "today"})
	c.Capture("", nil)
	require.NoError(t, c.Flush().Wait())

	events := s.Events()
	require.Len(t, events, 5)

	assert.Equal(t, "2024-02-03T04:05:06.000Z", events[0].Timestamp)
	assert.Equal(t, map[string]any{"company": "acme"}, events[0].Properties["$groups"])

	assert.Equal(t, "$screen", events[1].Event)
	assert.Equal(t, "Home", events[1].Properties["$screen_name"])
	assert.Equal(t, "push", events[1].Properties["from"])

	assert.Equal(t, "$exception", events[2].Event)
	assert.Equal(t, "errors.errorString", events[2].Properties["$exception_type"])
	assert.Equal(t, "disk full", events[2].Properties["$exception_message"])
	assert.Equal(t, "fatal", events[2].Properties["$exception_level"])

	assert.Equal(t, "$set", events[3].Event)
	assert.Equal(t, map[string]any{"email": "user@example.com"}, events[3].Properties["$set"])
	assert.Equal(t, "$set_once", events[4].Event)
	assert.Equal(t, map[string]any{"first_seen": "today"}, events[4].Properties["$set_once"])
}

func TestUnsupportedPropertiesAreDropped(t *testing.T) {
	s := newServer(t)
	c := started(t, s)

	c.Capture("e", map[string]any{"ok": 1, "bad": func() {}})
	require.NoError(t, c.Flush().Wait())

	props := s.Events()[0].Properties
	assert.Equal(t, float64(1), props["ok"])
	assert.NotContains(t, props, "bad")
}

func TestIdentify(t *testing.T) {
	s := newServer(t)
	c := started(t, s)
	anon := c.AnonymousID()
	assert.Equal(t, anon, c.DistinctID())

	c.Identify("user-1", map[string]any{"name": "Ada"}, map[string]any{"signup": "2024"})
	assert.Equal(t, "user-1", c.DistinctID())
	assert.Equal(t, anon, c.AnonymousID())

	assert.Eventually(t, func() bool { return len(s.DecideRequests()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "user-1", s.DecideRequests()[0].DistinctID)

	c.Identify("user-1", nil, nil)
	c.Identify("  ", nil, nil)
	require.NoError(t, c.Flush().Wait())

	events := s.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "$identify", events[0].Event)
	assert.Equal(t, "user-1", events[0].DistinctID())
	assert.Equal(t, anon, events[0].Properties["$anon_distinct_id"])
	assert.Equal(t, map[string]any{"name": "Ada"}, events[0].Properties["$set"])
	assert.Equal(t, map[string]any{"signup": "2024"}, events[0].Properties["$set_once"])
	assert.Equal(t, "user-1", events[1].Properties["$anon_distinct_id"])

	time.Sleep(20 * time.Millisecond)
	assert.Len(t, s.DecideRequests(), 1, "identify with the same id does not resync")
}

func TestAlias(t *testing.T) {
	s := newServer(t)
	c := started(t, s)
	c.Identify("user-1", nil, nil)
	c.Alias("user@example.com")
	c.Alias("")
	require.NoError(t, c.Flush().Wait())

	events := s.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "$create_alias", events[1].Event)
	assert.Equal(t, "user-1", events[1].DistinctID())
	assert.Equal(t, "user@example.com", events[1].Properties["alias"])
}

func TestReset(t *testing.T) {
	s := newServer(t)
	c := started(t, s)

	anon, session := c.AnonymousID(), c.SessionID()
	c.Identify("user-1", nil, nil)
	c.Register("plan", "pro")
	c.Group("company", "acme", nil)
	c.OverrideFeatureFlags(map[string]any{"beta": true})

	c.Reset()

	assert.NotEqual(t, anon, c.AnonymousID())
	assert.NotEqual(t, session, c.SessionID())
	assert.Equal(t, c.AnonymousID(), c.DistinctID())
	assert.False(t, c.IsFeatureEnabled("beta", false))
	assert.Empty(t, c.GetAllFeatureFlags())

	c.Capture("after", nil)
	require.NoError(t, c.Flush().Wait())
	events := s.Events()
	last := events[len(events)-1]
	assert.Equal(t, c.AnonymousID(), last.DistinctID())
	assert.NotContains(t, last.Properties, "plan")
	assert.NotContains(t, last.Properties, "$groups")
}

func TestOptOut(t *testing.T) {
	s := newServer(t)
	c := started(t, s)

	c.OptOut()
	assert.True(t, c.IsOptedOut())
	c.Capture("hidden", nil)
	c.Identify("user-1", nil, nil)
	assert.Equal(t, 0, c.QueueSize())

	c.OptIn()
	c.Capture("visible", nil)
	require.NoError(t, c.Flush().Wait())
	assert.Equal(t, []string{"visible"}, s.EventNames())

	c2 := started(t, s, config.WithOptOut())
	assert.True(t, c2.IsOptedOut())
}

func TestGroup(t *testing.T) {
	s := newServer(t)
	c := started(t, s)

	c.Group("company", "acme", map[string]any{"employees": 10})
	assert.Eventually(t, func() bool { return len(s.DecideRequests()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, map[string]string{"company": "acme"}, s.DecideRequests()[0].Groups)

	c.Group("company", "acme", nil)
	c.Capture("after", nil)
	require.NoError(t, c.Flush().Wait())

	events := s.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "$groupidentify", events[0].Event)
	assert.Equal(t, "company", events[0].Properties["$group_type"])
	assert.Equal(t, "acme", events[0].Properties["$group_key"])
	assert.Equal(t, map[string]any{"employees": float64(10)}, events[0].Properties["$group_set"])
	assert.NotContains(t, events[1].Properties, "$group_set")
	assert.Equal(t, map[string]any{"company": "acme"}, events[2].Properties["$groups"])

	time.Sleep(20 * time.Millisecond)
	assert.Len(t, s.DecideRequests(), 1, "unchanged membership does not resync")
}

func TestSuperProperties(t *testing.T) {
	s := newServer(t)
	c := started(t, s)

	c.RegisterAll(map[string]any{"a": 1, "b": 2})
	c.Register("c", []string{"x"})
	c.Unregister("b")
	c.Capture("e", nil)
	require.NoError(t, c.Flush().Wait())

	props := s.Events()[0].Properties
	assert.Equal(t, float64(1), props["a"])
	assert.NotContains(t, props, "b")
	assert.Equal(t, []any{"x"}, props["c"])
}

func TestSetDebug(t *testing.T) {
	s := newServer(t)
	logger := types.NewDefaultLogger(false)
	c := started(t, s, config.WithLogger(logger))

	c.SetDebug(true)
	assert.True(t, c.options.Debug)
	c.SetDebug(false)
	assert.False(t, c.options.Debug)
}
