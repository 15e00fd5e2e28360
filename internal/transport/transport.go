// Package transport encodes and sends the two collection endpoint calls:
// event batches to /batch and flag syncs to /decide.
package transport

import (
	"context"
	"encoding/json"
	"time"

	"github.com/teracrafts/posthog-go/errors"
	"github.com/teracrafts/posthog-go/internal/core"
	phttp "github.com/teracrafts/posthog-go/internal/http"
	"github.com/teracrafts/posthog-go/types"
	"github.com/teracrafts/posthog-go/value"
)

// Endpoint paths.
const (
	BatchPath  = "/batch"
	DecidePath = "/decide?v=3"
)

// Config contains transport configuration.
type Config struct {
	APIKey    string
	Host      string
	UserAgent string
	Timeout   time.Duration
	Logger    types.Logger
	Breaker   *phttp.BreakerConfig
}

// BatchRequest is the body of a /batch call. Batch holds the encoded
// records.
type BatchRequest struct {
	APIKey string            `json:"api_key"`
	Batch  []json.RawMessage `json:"batch"`
}

// DecideRequest is the body of a /decide call.
type DecideRequest struct {
	APIKey     string            `json:"api_key"`
	DistinctID string            `json:"distinct_id"`
	Groups     map[string]string `json:"groups,omitempty"`
}

// FlagsResponse is the decoded result of a flag sync.
type FlagsResponse struct {
	Flags    map[string]value.Value
	Payloads map[string]value.Value
}

// Transport talks to the collection endpoint.
type Transport struct {
	apiKey string
	client *phttp.Client
	logger types.Logger
}

// New creates a transport.
func New(cfg *Config) *Transport {
	logger := cfg.Logger
	if logger == nil {
		logger = &types.NullLogger{}
	}
	return &Transport{
		apiKey: cfg.APIKey,
		client: phttp.NewClient(&phttp.ClientConfig{
			Host:      cfg.Host,
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.Timeout,
			Breaker:   cfg.Breaker,
			Logger:    logger,
		}),
		logger: logger,
	}
}

// DeliverBatch posts records as one batch. Any 2xx response is success.
// Records that cannot be encoded are dropped, since retrying them would
// fail forever and hold back the rest of the queue.
func (t *Transport) DeliverBatch(ctx context.Context, batch []core.EventRecord) error {
	encoded := t.encodeBatch(batch)
	if len(encoded) == 0 {
		return nil
	}
	_, err := t.client.PostJSON(ctx, BatchPath, BatchRequest{APIKey: t.apiKey, Batch: encoded})
	if err != nil {
		return err
	}
	t.logger.Debug("Batch delivered", "count", len(encoded))
	return nil
}

func (t *Transport) encodeBatch(batch []core.EventRecord) []json.RawMessage {
	encoded := make([]json.RawMessage, 0, len(batch))
	for _, r := range batch {
		data, err := json.Marshal(r)
		if err != nil {
			t.logger.Warn("Dropping event that cannot be encoded",
				"event", r.Name,
				"uuid", r.UUID,
				"error", err.Error(),
			)
			continue
		}
		encoded = append(encoded, data)
	}
	return encoded
}

// SyncFlags fetches the flags assigned to distinctID.
func (t *Transport) SyncFlags(ctx context.Context, distinctID string, groups map[string]string) (*FlagsResponse, error) {
	req := DecideRequest{APIKey: t.apiKey, DistinctID: distinctID}
	if len(groups) > 0 {
		req.Groups = groups
	}

	resp, err := t.client.PostJSON(ctx, DecidePath, req)
	if err != nil {
		return nil, err
	}
	flags, err := DecodeFlagsResponse(resp.Body)
	if err != nil {
		return nil, err
	}
	t.logger.Debug("Flags synced", "count", len(flags.Flags))
	return flags, nil
}

// Close releases network resources.
func (t *Transport) Close() error {
	return t.client.Close()
}

// DecodeFlagsResponse parses a /decide response body. Payloads sent as
// strings holding JSON are decoded; other strings are kept as strings.
func DecodeFlagsResponse(data []byte) (*FlagsResponse, error) {
	v, err := value.Parse(data)
	if err != nil {
		return nil, errors.NewErrorWithCause(errors.ErrDecode, "invalid flags response", err)
	}
	root, ok := v.(*value.Object)
	if !ok {
		return nil, errors.NewError(errors.ErrDecode, "flags response is not an object")
	}

	flags, err := objectField(root, "featureFlags")
	if err != nil {
		return nil, err
	}
	payloads, err := objectField(root, "featureFlagPayloads")
	if err != nil {
		return nil, err
	}

	out := &FlagsResponse{
		Flags:    make(map[string]value.Value, flags.Len()),
		Payloads: make(map[string]value.Value, payloads.Len()),
	}
	flags.Range(func(k string, v value.Value) bool {
		out.Flags[k] = v
		return true
	})
	payloads.Range(func(k string, v value.Value) bool {
		if value.IsNull(v) {
			return true
		}
		out.Payloads[k] = decodePayload(v)
		return true
	})
	return out, nil
}

func objectField(root *value.Object, key string) (*value.Object, error) {
	v, ok := root.Get(key)
	if !ok || value.IsNull(v) {
		return value.NewObject(), nil
	}
	obj, ok := v.(*value.Object)
	if !ok {
		return nil, errors.NewError(errors.ErrDecode, key+" is not an object")
	}
	return obj, nil
}

func decodePayload(v value.Value) value.Value {
	s, ok := v.(value.String)
	if !ok {
		return v
	}
	decoded, err := value.Parse([]byte(s))
	if err != nil {
		return v
	}
	return decoded
}
