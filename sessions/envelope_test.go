package sessions

import (
	"context"
	"testing"
)

func TestParamFromContext(t *testing.T) {
	env := Envelope{
		SessionID: NewID(),
		Metadata:  NewMetadata(map[string]string{"auth": "ABC123"}),
	}
	ctx := WithEnvelope(context.Background(), env)

	got, ok := EnvelopeFromContext(ctx)
	if !ok {
		t.Fatalf("EnvelopeFromContext: want ok")
	}
	if got.SessionID != env.SessionID {
		t.Fatalf("session id: want %s, got %s", env.SessionID, got.SessionID)
	}
	if v := Param(ctx, "auth", "none"); v != "ABC123" {
		t.Fatalf("Param(auth): want ABC123, got %q", v)
	}
	if v := Param(ctx, "tenant", "default"); v != "default" {
		t.Fatalf("Param(tenant): want default, got %q", v)
	}
}

func TestParamWithoutEnvelope(t *testing.T) {
	ctx := context.Background()
	if _, ok := EnvelopeFromContext(ctx); ok {
		t.Fatalf("want no envelope")
	}
	if v := Param(ctx, "auth", "fallback"); v != "fallback" {
		t.Fatalf("want fallback, got %q", v)
	}
	if MetadataFromContext(ctx).Len() != 0 {
		t.Fatalf("want empty metadata")
	}
}
