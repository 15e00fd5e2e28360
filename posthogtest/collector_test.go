package posthogtest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func post(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServerRecordsBatches(t *testing.T) {
	s := NewServer()
	defer s.Close()

	resp := post(t, s.URL+"/batch", map[string]any{
		"api_key": "phc_test",
		"batch": []map[string]any{
			{"event": "a", "properties": map[string]any{"distinct_id": "u1"}, "timestamp": "2024-01-01T00:00:00.000Z"},
			{"event": "b", "properties": map[string]any{"distinct_id": "u2"}, "timestamp": "2024-01-01T00:00:00.000Z"},
		},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, s.Batches(), 1)
	assert.Equal(t, "phc_test", s.Batches()[0].APIKey)
	assert.Equal(t, []string{"a", "b"}, s.EventNames())
	assert.Equal(t, "u2", s.Events()[1].DistinctID())
}

func TestServerInjectsBatchFailures(t *testing.T) {
	s := NewServer()
	defer s.Close()
	s.FailBatches(1, http.StatusServiceUnavailable)

	body := map[string]any{"api_key": "phc_test", "batch": []map[string]any{{"event": "a"}}}
	assert.Equal(t, http.StatusServiceUnavailable, post(t, s.URL+"/batch", body).StatusCode)
	assert.Equal(t, http.StatusOK, post(t, s.URL+"/batch", body).StatusCode)
	assert.Equal(t, 1, s.RejectedBatches())
	assert.Len(t, s.Batches(), 1)
}

func TestServerDecide(t *testing.T) {
	s := NewServer()
	defer s.Close()
	s.SetFlags(
		map[string]any{"beta": true, "checkout": "variant-b"},
		map[string]any{"checkout": map[string]any{"discount": 10}},
	)

	resp := post(t, s.URL+"/decide?v=3", map[string]any{
		"api_key":     "phc_test",
		"distinct_id": "u1",
		"groups":      map[string]string{"company": "acme"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		FeatureFlags        map[string]any    `json:"featureFlags"`
		FeatureFlagPayloads map[string]string `json:"featureFlagPayloads"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body.FeatureFlags["beta"])
	assert.JSONEq(t, `{"discount":10}`, body.FeatureFlagPayloads["checkout"])

	reqs := s.DecideRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "u1", reqs[0].DistinctID)
	assert.Equal(t, map[string]string{"company": "acme"}, reqs[0].Groups)

	s.FailDecide(http.StatusInternalServerError)
	assert.Equal(t, http.StatusInternalServerError, post(t, s.URL+"/decide", map[string]any{}).StatusCode)
}

func TestServerAdminEvents(t *testing.T) {
	s := NewServer()
	defer s.Close()

	post(t, s.URL+"/batch", map[string]any{
		"api_key": "phc_test",
		"batch": []map[string]any{
			{"event": "a", "properties": map[string]any{"distinct_id": "u1"}},
			{"event": "b", "properties": map[string]any{"distinct_id": "u1"}},
		},
	})

	resp, err := http.Get(s.URL + "/admin/events?event=b")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Events []Event `json:"events"`
		Total  int     `json:"total"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Total)
	assert.Equal(t, "b", body.Events[0].Event)
}
