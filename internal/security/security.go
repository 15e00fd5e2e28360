// Package security holds checks that protect callers from shipping
// credentials or sensitive person data by mistake.
package security

import (
	"sort"
	"strings"

	"github.com/teracrafts/posthog-go/types"
)

// KeyKind classifies an API key by its prefix.
type KeyKind string

const (
	// KeyProject is a project API key (phc_), safe to embed in clients.
	KeyProject KeyKind = "project"

	// KeyPersonal is a personal API key (phx_) with account-wide access.
	KeyPersonal KeyKind = "personal"

	// KeyUnknown is any other key.
	KeyUnknown KeyKind = "unknown"
)

// ClassifyKey returns the kind of apiKey.
func ClassifyKey(apiKey string) KeyKind {
	switch {
	case strings.HasPrefix(apiKey, "phc_"):
		return KeyProject
	case strings.HasPrefix(apiKey, "phx_"):
		return KeyPersonal
	default:
		return KeyUnknown
	}
}

// WarnIfPersonalKey logs a warning when apiKey is a personal API key.
func WarnIfPersonalKey(apiKey string, logger types.Logger) {
	if logger == nil {
		return
	}
	switch ClassifyKey(apiKey) {
	case KeyPersonal:
		logger.Warn("Personal API key (phx_) used as project key; use the project key (phc_) in clients",
			"key_id", KeyID(apiKey))
	case KeyUnknown:
		logger.Debug("API key does not look like a project key", "key_id", KeyID(apiKey))
	}
}

// KeyID returns a loggable prefix of apiKey.
func KeyID(apiKey string) string {
	if len(apiKey) <= 8 {
		return apiKey
	}
	return apiKey[:8] + "..."
}

// sensitivePatterns are matched against property names with separators
// removed. Names PostHog uses for person profiles (email, name, phone) are
// expected and not listed.
var sensitivePatterns = []string{
	"password",
	"passwd",
	"secret",
	"ssn",
	"socialsecurity",
	"creditcard",
	"cardnumber",
	"cvv",
	"iban",
	"routingnumber",
	"accountnumber",
	"taxid",
	"passport",
}

// IsSensitiveField reports whether a property name looks like it holds
// credentials or financial identifiers.
func IsSensitiveField(name string) bool {
	normalized := strings.ToLower(name)
	normalized = strings.NewReplacer("-", "", "_", "", " ", "", ".", "").Replace(normalized)

	for _, pattern := range sensitivePatterns {
		if strings.Contains(normalized, pattern) {
			return true
		}
	}
	return false
}

// DetectSensitiveFields returns the sorted paths of sensitive-looking keys in
// props, descending into nested maps.
func DetectSensitiveFields(props map[string]any, prefix string) []string {
	var found []string
	for key, v := range props {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if IsSensitiveField(key) {
			found = append(found, path)
		}
		if nested, ok := v.(map[string]any); ok {
			found = append(found, DetectSensitiveFields(nested, path)...)
		}
	}
	sort.Strings(found)
	return found
}

// WarnIfSensitive logs the sensitive-looking fields of props, if any.
func WarnIfSensitive(props map[string]any, logger types.Logger) {
	if len(props) == 0 || logger == nil {
		return
	}
	if fields := DetectSensitiveFields(props, ""); len(fields) > 0 {
		logger.Warn("Properties look sensitive and will be sent as-is",
			"fields", strings.Join(fields, ", "))
	}
}
