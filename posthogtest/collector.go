// Package posthogtest provides an in-memory collection endpoint for tests
// and local development. It accepts /batch and /decide requests, records
// them and serves configurable feature flags.
package posthogtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Event is a captured event as received by the collector.
type Event struct {
	Event      string         `json:"event"`
	Properties map[string]any `json:"properties"`
	Timestamp  string         `json:"timestamp"`
	UUID       string         `json:"uuid,omitempty"`
}

// DistinctID returns the event's distinct_id property.
func (e Event) DistinctID() string {
	s, _ := e.Properties["distinct_id"].(string)
	return s
}

// Batch is one accepted /batch request.
type Batch struct {
	APIKey string  `json:"api_key"`
	Events []Event `json:"batch"`
}

// DecideRequest is one received /decide request.
type DecideRequest struct {
	APIKey     string            `json:"api_key"`
	DistinctID string            `json:"distinct_id"`
	Groups     map[string]string `json:"groups,omitempty"`
}

// Collector records requests and answers them.
type Collector struct {
	mu             sync.Mutex
	batches        []Batch
	decides        []DecideRequest
	flags          map[string]any
	payloads       map[string]any
	batchFailures  []int
	decideStatus   int
	decideGate     chan struct{}
	rejectedBatchN int
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		flags:    make(map[string]any),
		payloads: make(map[string]any),
	}
}

// Handler returns the collector's HTTP routes.
func (c *Collector) Handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/batch", c.handleBatch)
	r.Post("/batch/", c.handleBatch)
	r.Post("/decide", c.handleDecide)
	r.Post("/decide/", c.handleDecide)

	r.Get("/admin/events", c.handleListEvents)
	r.Get("/admin/feature-flags", c.handleGetFlags)
	r.Post("/admin/feature-flags", c.handleSetFlags)
	return r
}

// SetFlags replaces the flags and payloads served by /decide.
func (c *Collector) SetFlags(flags, payloads map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flags = copyMap(flags)
	c.payloads = copyMap(payloads)
}

// FailBatches makes the next n /batch requests fail with status.
func (c *Collector) FailBatches(n, status int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < n; i++ {
		c.batchFailures = append(c.batchFailures, status)
	}
}

// FailDecide makes every /decide request fail with status. Zero restores
// normal answers.
func (c *Collector) FailDecide(status int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decideStatus = status
}

// HoldDecide makes /decide requests wait until the returned release
// function is called.
func (c *Collector) HoldDecide() (release func()) {
	gate := make(chan struct{})
	c.mu.Lock()
	c.decideGate = gate
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			if c.decideGate == gate {
				c.decideGate = nil
			}
			c.mu.Unlock()
			close(gate)
		})
	}
}

// Batches returns the accepted batches in arrival order.
func (c *Collector) Batches() []Batch {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Batch, len(c.batches))
	copy(out, c.batches)
	return out
}

// Events returns every accepted event in arrival order.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Event
	for _, b := range c.batches {
		out = append(out, b.Events...)
	}
	return out
}

// EventNames returns the names of every accepted event in arrival order.
func (c *Collector) EventNames() []string {
	events := c.Events()
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Event
	}
	return out
}

// DecideRequests returns the received /decide requests.
func (c *Collector) DecideRequests() []DecideRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]DecideRequest, len(c.decides))
	copy(out, c.decides)
	return out
}

// RejectedBatches returns how many /batch requests were failed on purpose.
func (c *Collector) RejectedBatches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rejectedBatchN
}

// Reset drops recorded requests and failure settings. Flags are kept.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = nil
	c.decides = nil
	c.batchFailures = nil
	c.decideStatus = 0
	c.rejectedBatchN = 0
}

func (c *Collector) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req Batch
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": 0, "error": "invalid request body: " + err.Error()})
		return
	}

	c.mu.Lock()
	if len(c.batchFailures) > 0 {
		status := c.batchFailures[0]
		c.batchFailures = c.batchFailures[1:]
		c.rejectedBatchN++
		c.mu.Unlock()
		writeJSON(w, status, map[string]any{"status": 0, "error": "injected failure"})
		return
	}
	if req.APIKey == "" {
		c.mu.Unlock()
		writeJSON(w, http.StatusUnauthorized, map[string]any{"type": "authentication_error", "code": "invalid_api_key"})
		return
	}
	c.batches = append(c.batches, req)
	c.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"status": 1})
}

func (c *Collector) handleDecide(w http.ResponseWriter, r *http.Request) {
	var req DecideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": 0, "error": "invalid request body: " + err.Error()})
		return
	}

	c.mu.Lock()
	c.decides = append(c.decides, req)
	gate := c.decideGate
	c.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	c.mu.Lock()
	status := c.decideStatus
	flags := copyMap(c.flags)
	payloads := make(map[string]any, len(c.payloads))
	for k, v := range c.payloads {
		encoded, err := json.Marshal(v)
		if err != nil {
			continue
		}
		payloads[k] = string(encoded)
	}
	c.mu.Unlock()

	if status != 0 {
		writeJSON(w, status, map[string]any{"error": "injected failure"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"featureFlags":              flags,
		"featureFlagPayloads":       payloads,
		"errorsWhileComputingFlags": false,
	})
}

func (c *Collector) handleListEvents(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("event")
	distinctID := r.URL.Query().Get("distinct_id")

	events := []Event{}
	for _, e := range c.Events() {
		if name != "" && e.Event != name {
			continue
		}
		if distinctID != "" && e.DistinctID() != distinctID {
			continue
		}
		events = append(events, e)
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": events, "total": len(events)})
}

func (c *Collector) handleGetFlags(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	body := map[string]any{"flags": copyMap(c.flags), "payloads": copyMap(c.payloads)}
	c.mu.Unlock()
	writeJSON(w, http.StatusOK, body)
}

func (c *Collector) handleSetFlags(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Flags    map[string]any `json:"flags"`
		Payloads map[string]any `json:"payloads"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body: " + err.Error()})
		return
	}
	c.SetFlags(req.Flags, req.Payloads)
	writeJSON(w, http.StatusOK, map[string]any{"status": "set"})
}

// Server is a Collector listening on a local httptest server.
type Server struct {
	*Collector
	*httptest.Server
}

// NewServer starts a collector on a random local port. Close it when done.
func NewServer() *Server {
	c := NewCollector()
	return &Server{Collector: c, Server: httptest.NewServer(c.Handler())}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
