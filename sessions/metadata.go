package sessions

import (
	"encoding/json"
	"maps"
	"net/url"
	"slices"
)

// Metadata is the immutable set of connection-time parameters captured when
// a session's stream was opened. Keys carry no meaning to the transport;
// interpreting them (an "auth" key, a tenant hint, …) is left to the code
// handling messages. The zero value is an empty Metadata.
type Metadata struct {
	m map[string]string
}

// NewMetadata returns Metadata holding a copy of m.
func NewMetadata(m map[string]string) Metadata {
	if len(m) == 0 {
		return Metadata{}
	}
	return Metadata{m: maps.Clone(m)}
}

// ExtractMetadata captures connection-time parameters from a parsed query
// string. A key that appears more than once keeps its FIRST value; later
// occurrences are ignored. Keys with an empty value are kept.
func ExtractMetadata(q url.Values) Metadata {
	if len(q) == 0 {
		return Metadata{}
	}
	m := make(map[string]string, len(q))
	for k, vs := range q {
		if len(vs) == 0 {
			continue
		}
		m[k] = vs[0]
	}
	return Metadata{m: m}
}

// Get returns the value for key or the empty string.
func (md Metadata) Get(key string) string {
	return md.m[key]
}

// Lookup returns the value for key and whether it was present.
func (md Metadata) Lookup(key string) (string, bool) {
	v, ok := md.m[key]
	return v, ok
}

// Len returns the number of captured parameters.
func (md Metadata) Len() int { return len(md.m) }

// Keys returns the captured keys in sorted order.
func (md Metadata) Keys() []string {
	return slices.Sorted(maps.Keys(md.m))
}

// Map returns a copy of the captured parameters. Mutating the result does
// not affect md.
func (md Metadata) Map() map[string]string {
	out := make(map[string]string, len(md.m))
	maps.Copy(out, md.m)
	return out
}

// Equal reports whether md and other hold exactly the same pairs.
func (md Metadata) Equal(other Metadata) bool {
	return maps.Equal(md.m, other.m)
}

// MarshalJSON encodes the parameters as a JSON object.
func (md Metadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(md.Map())
}
