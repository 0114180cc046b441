// Package scout discovers skill candidates from external sources.
//
// A Scout queries one remote catalog and returns raw candidates. Scouts are
// independent of each other: the orchestrator runs them side by side, tolerates
// individual failures and merges their output with Dedup.
package scout

import (
	"math"
	"net/url"
	"strconv"
	"strings"
)

// Metadata holds source-dependent facts about a candidate. Values are
// strings or numbers (float64 or int).
type Metadata map[string]any

// String returns the value for key as a string.
func (m Metadata) String(key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}

// Number returns the value for key as a float64. The boolean is false when
// the key is absent, not numeric, or not finite.
func (m Metadata) Number(key string) (float64, bool) {
	var f float64
	switch v := m[key].(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Bool reads "true"/"false" style flags.
func (m Metadata) Bool(key string) bool {
	switch strings.ToLower(m.String(key)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

// Clone returns an independent copy. NaN and infinite floats are left out;
// they are not usable numbers and cannot be encoded as JSON.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
			continue
		}
		out[k] = v
	}
	return out
}

// Well-known metadata keys produced by the built-in scouts.
const (
	MetaDescription   = "description"
	MetaStars         = "stars"
	MetaForks         = "forks"
	MetaLanguage      = "language"
	MetaUpdatedAt     = "updated_at"
	MetaLicense       = "license"
	MetaOwner         = "owner"
	MetaTopics        = "topics"
	MetaArchived      = "archived"
	MetaDefaultBranch = "default_branch"
	MetaFullName      = "full_name"
)

// Candidate is one discovered, not yet vetted skill.
type Candidate struct {
	Name      string   `json:"name"`
	SourceURL string   `json:"source_url"`
	Source    string   `json:"source"`
	Metadata  Metadata `json:"metadata,omitempty"`
}

// Clone returns a copy that shares no mutable state with c.
func (c Candidate) Clone() Candidate {
	c.Metadata = c.Metadata.Clone()
	return c
}

// Key is the dedup key: the normalized source URL.
func (c Candidate) Key() string {
	return NormalizeURL(c.SourceURL)
}

// NormalizeURL canonicalizes a source URL for comparison. Scheme and host are
// lower-cased, default ports, fragments and trailing slashes are removed.
// Unparseable input falls back to a trimmed, lower-cased string.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimRight(strings.ToLower(raw), "/")
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "https" && port == "443") || (u.Scheme == "http" && port == "80") {
		port = ""
	}
	if port != "" {
		host = host + ":" + port
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""

	return u.String()
}
