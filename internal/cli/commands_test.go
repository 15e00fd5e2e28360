package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teracrafts/posthog-go/posthogtest"
	"github.com/teracrafts/posthog-go/types"
)

func TestCaptureCommand(t *testing.T) {
	s := posthogtest.NewServer()
	defer s.Close()

	stdout, _, err := execute(t, "capture", "signed_up",
		"--api-key", "phc_cli",
		"--host", s.URL,
		"--distinct-id", "user-1",
		"--prop", "plan=pro",
		"--prop", "seats=5",
		"--group", "company=acme",
	)
	require.NoError(t, err)
	assert.Contains(t, stdout, "captured signed_up")

	events := s.Events()
	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, "signed_up", e.Event)
	assert.Equal(t, "user-1", e.DistinctID())
	assert.Equal(t, "pro", e.Properties["plan"])
	assert.Equal(t, float64(5), e.Properties["seats"])
	assert.Equal(t, map[string]any{"company": "acme"}, e.Properties["$groups"])
	assert.Equal(t, "phc_cli", s.Batches()[0].APIKey)
}

func TestCaptureCommandDeliveryFailure(t *testing.T) {
	s := posthogtest.NewServer()
	defer s.Close()
	s.FailBatches(1, http.StatusServiceUnavailable)

	_, _, err := execute(t, "capture", "e", "--api-key", "phc_cli", "--host", s.URL)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestCaptureCommandBadArgs(t *testing.T) {
	_, _, err := execute(t, "capture", "e", "--api-key", "phc_cli", "--prop", "broken")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = execute(t, "capture")
	assert.Error(t, err)
}

func TestFlagsCommand(t *testing.T) {
	s := posthogtest.NewServer()
	defer s.Close()
	s.SetFlags(map[string]any{"beta": true, "theme": "dark"}, map[string]any{"theme": map[string]any{"contrast": "high"}})

	stdout, _, err := execute(t, "flags", "--api-key", "phc_cli", "--host", s.URL, "-d", "user-1", "-g", "company=acme")
	require.NoError(t, err)

	var out FlagsOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "user-1", out.DistinctID)
	assert.Equal(t, map[string]any{"beta": true, "theme": "dark"}, out.Flags)
	assert.Equal(t, map[string]any{"theme": map[string]any{"contrast": "high"}}, out.Payloads)

	reqs := s.DecideRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, map[string]string{"company": "acme"}, reqs[0].Groups)
	assert.Empty(t, s.Events())
}

func TestFlagsCommandRequiresDistinctID(t *testing.T) {
	_, _, err := execute(t, "flags", "--api-key", "phc_cli")
	assert.Error(t, err)
}

func TestFlagsCommandFailure(t *testing.T) {
	s := posthogtest.NewServer()
	defer s.Close()
	s.FailDecide(http.StatusInternalServerError)

	_, _, err := execute(t, "flags", "--api-key", "phc_cli", "--host", s.URL, "-d", "user-1")
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestServeCollector(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	c := posthogtest.NewCollector()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveCollector(ctx, ln, c, &types.NullLogger{}) }()

	body := `{"api_key":"phc_cli","batch":[{"event":"e","properties":{"distinct_id":"u"},"timestamp":"2024-01-01T00:00:00.000Z"}]}`
	resp, err := http.Post("http://"+ln.Addr().String()+"/batch", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"e"}, c.EventNames())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("collector did not shut down")
	}
}

func TestLab(t *testing.T) {
	var out bytes.Buffer
	failed := runLab(&out, &types.NullLogger{})
	assert.Equal(t, 0, failed, out.String())
	assert.Contains(t, out.String(), "Results: 11 passed, 0 failed")
	assert.NotContains(t, out.String(), "[FAIL]")
}

func TestLabCommand(t *testing.T) {
	stdout, _, err := execute(t, "lab")
	require.NoError(t, err)
	assert.Contains(t, stdout, "0 failed")
}
