package sessions

import (
	"encoding/json"
	"net/url"
	"slices"
	"testing"
)

func TestExtractMetadataFirstWins(t *testing.T) {
	q, err := url.ParseQuery("auth=ABC123&tenant=t1&auth=OTHER&empty=")
	if err != nil {
		t.Fatal(err)
	}
	md := ExtractMetadata(q)

	if got := md.Get("auth"); got != "ABC123" {
		t.Fatalf("auth: want first value ABC123, got %q", got)
	}
	if got := md.Get("tenant"); got != "t1" {
		t.Fatalf("tenant: want t1, got %q", got)
	}
	v, ok := md.Lookup("empty")
	if !ok || v != "" {
		t.Fatalf("empty: want present empty value, got %q ok=%v", v, ok)
	}
	if _, ok := md.Lookup("missing"); ok {
		t.Fatalf("missing: want absent")
	}
	if want := []string{"auth", "empty", "tenant"}; !slices.Equal(md.Keys(), want) {
		t.Fatalf("Keys: want %v, got %v", want, md.Keys())
	}
}

func TestExtractMetadataEmpty(t *testing.T) {
	for _, q := range []url.Values{nil, {}} {
		md := ExtractMetadata(q)
		if md.Len() != 0 {
			t.Fatalf("want empty metadata, got %v", md.Map())
		}
		b, err := json.Marshal(md)
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != "{}" {
			t.Fatalf("want {}, got %s", b)
		}
	}
}

func TestMetadataImmutable(t *testing.T) {
	src := map[string]string{"auth": "ABC123"}
	md := NewMetadata(src)
	src["auth"] = "changed"
	if got := md.Get("auth"); got != "ABC123" {
		t.Fatalf("mutating source map leaked into metadata: %q", got)
	}

	m := md.Map()
	m["auth"] = "changed"
	m["extra"] = "x"
	if got := md.Get("auth"); got != "ABC123" {
		t.Fatalf("mutating Map() result leaked into metadata: %q", got)
	}
	if md.Len() != 1 {
		t.Fatalf("want 1 key, got %d", md.Len())
	}
}

func TestMetadataEqual(t *testing.T) {
	a := NewMetadata(map[string]string{"a": "1", "b": "2"})
	b := ExtractMetadata(url.Values{"b": {"2"}, "a": {"1", "9"}})
	if !a.Equal(b) {
		t.Fatalf("want equal: %v vs %v", a.Map(), b.Map())
	}
	if a.Equal(NewMetadata(map[string]string{"a": "1"})) {
		t.Fatalf("want unequal")
	}
	if !(Metadata{}).Equal(NewMetadata(nil)) {
		t.Fatalf("zero values should be equal")
	}
}
