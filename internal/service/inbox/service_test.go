package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/splax/teamup/internal/domain"
	"github.com/splax/teamup/internal/notify"
	"github.com/splax/teamup/internal/repository/memory"
	"github.com/splax/teamup/internal/ws"
)

type channelSubscriber struct {
	messages chan []byte
}

func (c channelSubscriber) Send(payload []byte) error {
	c.messages <- payload
	return nil
}

func (c channelSubscriber) Close() {}

func seededStore(t *testing.T, ids ...string) *memory.Store {
	t.Helper()
	store := memory.New()
	for _, id := range ids {
		if err := store.CreateIndividual(context.Background(), &domain.Individual{ID: id, Name: id, Email: id + "@example.com"}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	return store
}

func TestEmitStoresAndStreamsPerRecipient(t *testing.T) {
	store := seededStore(t, "lead", "dev")
	hub := ws.NewHub()
	defer hub.Close()
	sub := channelSubscriber{messages: make(chan []byte, 4)}
	hub.Register("dev", sub)

	svc := New(store, hub, nil)
	svc.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	if err := svc.Emit(ctx, notify.KindMemberJoined, []string{"lead", "dev"}, map[string]any{"team_id": "t-1"}); err != nil {
		t.Fatalf("emit: %v", err)
	}

	for _, id := range []string{"lead", "dev"} {
		items, err := svc.List(ctx, id, 10)
		if err != nil {
			t.Fatalf("list %s: %v", id, err)
		}
		if len(items) != 1 || items[0].Kind != string(notify.KindMemberJoined) {
			t.Fatalf("expected one MEMBER_JOINED for %s, got %+v", id, items)
		}
	}

	select {
	case raw := <-sub.messages:
		var frame struct {
			ID      int64          `json:"id"`
			Kind    string         `json:"kind"`
			Payload map[string]any `json:"payload"`
		}
		if err := json.Unmarshal(raw, &frame); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if frame.Kind != "MEMBER_JOINED" || frame.Payload["team_id"] != "t-1" || frame.ID == 0 {
			t.Fatalf("unexpected frame %+v", frame)
		}
	case <-time.After(time.Second):
		t.Fatal("expected streamed notification for dev")
	}
}

func TestEmitUnknownRecipientStoresNothing(t *testing.T) {
	store := seededStore(t, "lead")
	svc := New(store, nil, nil)
	ctx := context.Background()

	if err := svc.Emit(ctx, notify.KindOfferReceived, []string{"lead", "ghost"}, nil); err == nil {
		t.Fatal("expected error for unknown recipient")
	}
	items, err := svc.List(ctx, "lead", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no partial inbox writes, got %d", len(items))
	}
}

func TestMarkRead(t *testing.T) {
	store := seededStore(t, "lead", "dev")
	svc := New(store, nil, nil)
	ctx := context.Background()
	if err := svc.Emit(ctx, notify.KindOfferReceived, []string{"lead"}, map[string]any{"offer_id": "o-1"}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	items, err := svc.List(ctx, "lead", 0)
	if err != nil || len(items) != 1 {
		t.Fatalf("list: %v %v", items, err)
	}

	if err := svc.MarkRead(ctx, "dev", items[0].ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("other recipient must not mark read, got %v", err)
	}
	if err := svc.MarkRead(ctx, "lead", items[0].ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	items, _ = svc.List(ctx, "lead", 0)
	if items[0].ReadAt == nil {
		t.Fatal("expected read_at set")
	}
}

func TestMarshalEntryOmitsEmptyPayload(t *testing.T) {
	raw, err := MarshalEntry(domain.Notification{ID: 7, Kind: "MEMBER_QUIT", CreatedAt: time.Unix(0, 0).UTC()})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["payload"] != nil || decoded["kind"] != "MEMBER_QUIT" {
		t.Fatalf("unexpected entry %v", decoded)
	}
}

type stuckSubscriber struct {
	release chan struct{}
}

func (s stuckSubscriber) Send([]byte) error {
	<-s.release
	return nil
}

func (s stuckSubscriber) Close() {}

func TestEmitReturnsWhenStreamStalls(t *testing.T) {
	store := seededStore(t, "lead")
	hub := ws.NewHub()
	stuck := stuckSubscriber{release: make(chan struct{})}
	defer func() {
		close(stuck.release)
		hub.Close()
	}()
	hub.Register("lead", stuck)
	svc := New(store, hub, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			if err := svc.Emit(ctx, notify.KindOfferReceived, []string{"lead"}, map[string]any{"n": i}); err != nil {
				t.Errorf("emit %d: %v", i, err)
			}
			cancel()
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("emit blocked on a stalled stream")
	}

	items, err := svc.List(context.Background(), "lead", 500)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 100 {
		t.Fatalf("expected every entry stored, got %d", len(items))
	}
}
