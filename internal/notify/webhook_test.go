package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWebhookEmitterSignsBody(t *testing.T) {
	secret := []byte("hook-secret")
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		if err := VerifySignature(secret, body, r.Header.Get(SignatureHeader)); err != nil {
			t.Errorf("signature: %v", err)
		}
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	e, err := NewWebhookEmitter(srv.URL, string(secret), srv.Client())
	if err != nil {
		t.Fatalf("new emitter: %v", err)
	}
	if err := e.Emit(context.Background(), KindProjectCompleted, []string{"ind-1", "ind-2"}, map[string]any{"team_id": "team-1"}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if received["kind"] != string(KindProjectCompleted) {
		t.Fatalf("unexpected kind %v", received["kind"])
	}
}

func TestWebhookEmitterMapsStatus(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrWebhookUnauthorized},
		{http.StatusUnprocessableEntity, ErrWebhookRejected},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tc.status)
		}))
		e, err := NewWebhookEmitter(srv.URL, "secret", nil)
		if err != nil {
			t.Fatalf("new emitter: %v", err)
		}
		err = e.Emit(context.Background(), KindMemberFired, []string{"ind-1"}, nil)
		srv.Close()
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
	}
}

func TestNewWebhookEmitterValidates(t *testing.T) {
	if _, err := NewWebhookEmitter(" ", "secret", nil); err == nil {
		t.Fatal("expected url error")
	}
	if _, err := NewWebhookEmitter("http://example.com", "", nil); err == nil {
		t.Fatal("expected secret error")
	}
}

func TestVerifySignatureRejectsTampering(t *testing.T) {
	secret := []byte("s")
	sig := Sign(secret, []byte(`{"a":1}`))
	if err := VerifySignature(secret, []byte(`{"a":2}`), sig); err == nil {
		t.Fatal("expected mismatch")
	}
	if err := VerifySignature(secret, []byte(`{"a":1}`), ""); err == nil {
		t.Fatal("expected missing signature error")
	}
}
