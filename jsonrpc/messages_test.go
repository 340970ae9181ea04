package jsonrpc

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseMessage(t *testing.T) {
	t.Run("request", func(t *testing.T) {
		msg, err := ParseMessage([]byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
		if err != nil {
			t.Fatalf("ParseMessage: %v", err)
		}
		if want, got := "request", msg.Type(); want != got {
			t.Fatalf("unexpected type: want %q got %q", want, got)
		}
		if want, got := "1", msg.ID.String(); want != got {
			t.Fatalf("unexpected id: want %q got %q", want, got)
		}
	})

	t.Run("notification", func(t *testing.T) {
		msg, err := ParseMessage([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
		if err != nil {
			t.Fatalf("ParseMessage: %v", err)
		}
		if want, got := "notification", msg.Type(); want != got {
			t.Fatalf("unexpected type: want %q got %q", want, got)
		}
	})

	t.Run("response", func(t *testing.T) {
		msg, err := ParseMessage([]byte(`{"jsonrpc":"2.0","id":"abc","result":{}}`))
		if err != nil {
			t.Fatalf("ParseMessage: %v", err)
		}
		if msg.AsResponse() == nil || msg.AsRequest() != nil {
			t.Fatalf("expected response classification")
		}
	})

	t.Run("batch rejected", func(t *testing.T) {
		_, err := ParseMessage([]byte(` [{"jsonrpc":"2.0","id":1,"method":"ping"}]`))
		if !errors.Is(err, ErrBatchUnsupported) {
			t.Fatalf("expected ErrBatchUnsupported, got %v", err)
		}
	})

	t.Run("empty rejected", func(t *testing.T) {
		_, err := ParseMessage([]byte("  \n"))
		if !errors.Is(err, ErrEmptyMessage) {
			t.Fatalf("expected ErrEmptyMessage, got %v", err)
		}
	})

	t.Run("wrong version rejected", func(t *testing.T) {
		if _, err := ParseMessage([]byte(`{"jsonrpc":"1.0","id":1,"method":"ping"}`)); err == nil {
			t.Fatalf("expected error for wrong version")
		}
	})

	t.Run("result and error rejected", func(t *testing.T) {
		if _, err := ParseMessage([]byte(`{"jsonrpc":"2.0","id":1,"result":{},"error":{"code":1,"message":"x"}}`)); err == nil {
			t.Fatalf("expected error for ambiguous response")
		}
	})

	t.Run("trailing data rejected", func(t *testing.T) {
		if _, err := ParseMessage([]byte(`{"jsonrpc":"2.0","method":"a"}{"jsonrpc":"2.0","method":"b"}`)); err == nil {
			t.Fatalf("expected error for trailing data")
		}
	})
}

func TestRequestIDNilMarshalsAsNull(t *testing.T) {
	b, err := json.Marshal(struct {
		ID *RequestID `json:"id"`
	}{ID: NewRequestID(struct{}{})})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if want, got := `{"id":null}`, string(b); want != got {
		t.Fatalf("unexpected encoding: want %s got %s", want, got)
	}
}

func TestMessageEmbedsVerbatim(t *testing.T) {
	b, err := json.Marshal(map[string]Message{"m": Message(`{"jsonrpc":"2.0","method":"ping"}`)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if want, got := `{"m":{"jsonrpc":"2.0","method":"ping"}}`, string(b); want != got {
		t.Fatalf("unexpected encoding: want %s got %s", want, got)
	}
}

func TestRequestIDEchoesVerbatim(t *testing.T) {
	for _, raw := range []string{`"abc"`, `7`, `1.5`, `9007199254740993`} {
		var id RequestID
		if err := json.Unmarshal([]byte(raw), &id); err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		b, err := json.Marshal(&id)
		if err != nil {
			t.Fatalf("marshal %s: %v", raw, err)
		}
		if string(b) != raw {
			t.Fatalf("want %s, got %s", raw, b)
		}
	}

	var id RequestID
	if err := json.Unmarshal([]byte(`{"x":1}`), &id); err == nil {
		t.Fatalf("object id accepted")
	}
}
