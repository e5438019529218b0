package router

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/textilepro/businessbot/internal/database"
	"github.com/textilepro/businessbot/internal/loopdetect"
)

// fakeStore is an in-memory Store. When failing is set, every read degrades
// to "owner unknown" the way the real store does on storage errors.
type fakeStore struct {
	owners  map[string]int64
	failing bool
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) UpsertConnection(_ context.Context, conn *database.BusinessConnection) error {
	f.owners[conn.ConnectionID] = conn.OwnerUserID
	return nil
}

func (f *fakeStore) OwnerOf(_ context.Context, connectionID string) (int64, bool) {
	if f.failing {
		return 0, false
	}
	owner, ok := f.owners[connectionID]
	return owner, ok
}

func (f *fakeStore) IsOwner(ctx context.Context, connectionID string, userID int64) bool {
	owner, ok := f.OwnerOf(ctx, connectionID)
	return ok && owner == userID
}

func (f *fakeStore) DeactivateConnection(_ context.Context, connectionID string) error {
	delete(f.owners, connectionID)
	return nil
}

func (f *fakeStore) ListActiveConnections(context.Context) ([]database.BusinessConnection, error) {
	return nil, nil
}

func (f *fakeStore) ConnectionStats(context.Context) (*database.ConnectionStats, error) {
	return &database.ConnectionStats{}, nil
}

func (f *fakeStore) RunMaintenance(context.Context) error { return nil }

// newTestRouter builds a router over a fake registry and a real detector.
// The rapid-fire interval is set to one nanosecond so consecutive Route calls
// in a test never trip it; the checks under test are ownership, signatures,
// and duplicates.
func newTestRouter(owners map[string]int64) (*Router, *fakeStore) {
	store := &fakeStore{owners: owners}
	detector := loopdetect.New(loopdetect.Config{
		MinMessageInterval: time.Nanosecond,
		Signatures:         []string{"Textile Pro", "Передала информацию менеджеру"},
		Greetings:          []string{"Добрый день!"},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return New(store, detector, slog.New(slog.NewTextHandler(io.Discard, nil))), store
}

func TestRouteOwnerSpeaking(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(map[string]int64{"conn_1": 555})

	res := r.Route(context.Background(), Inbound{
		ConnectionID: "conn_1",
		SenderID:     555,
		ChatID:       1001,
		Text:         "сам отвечу этому клиенту",
		FromBusiness: true,
	})

	if res.Decision != DecisionOwnerSpeaking {
		t.Fatalf("Route() = %v, want owner_speaking", res.Decision)
	}
}

func TestRouteCustomerMessage(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(map[string]int64{"conn_1": 555})

	res := r.Route(context.Background(), Inbound{
		ConnectionID: "conn_1",
		SenderID:     777,
		ChatID:       1001,
		Text:         "Hello, I need 500m of cotton fabric",
		FromBusiness: true,
	})

	if res.Decision != DecisionCustomerMessage {
		t.Fatalf("Route() = %v, want customer_message", res.Decision)
	}
}

func TestRouteDuplicateResend(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(map[string]int64{"conn_1": 555})

	in := Inbound{
		ConnectionID: "conn_1",
		SenderID:     777,
		ChatID:       1001,
		Text:         "Hello, I need 500m of cotton fabric",
		FromBusiness: true,
	}

	if res := r.Route(context.Background(), in); res.Decision != DecisionCustomerMessage {
		t.Fatalf("first delivery: got %v, want customer_message", res.Decision)
	}

	res := r.Route(context.Background(), in)
	if res.Decision != DecisionIgnore || res.Reason != loopdetect.ReasonDuplicateMessage {
		t.Fatalf("resend: got %+v, want ignore/duplicate_message", res)
	}
}

func TestRouteBotSignature(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(map[string]int64{"conn_1": 555})

	res := r.Route(context.Background(), Inbound{
		ConnectionID: "conn_1",
		SenderID:     777,
		ChatID:       1001,
		Text:         "Textile Pro — передала информацию менеджеру",
		FromBusiness: true,
	})

	if res.Decision != DecisionIgnore || res.Reason != loopdetect.ReasonBotSignature {
		t.Fatalf("Route() = %+v, want ignore/bot_signature", res)
	}
}

func TestRouteOwnershipCheckedBeforeSignature(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(map[string]int64{"conn_1": 555})

	// The owner typing text that resembles the bot's phrasing is still the
	// owner, never a loop ignore.
	res := r.Route(context.Background(), Inbound{
		ConnectionID: "conn_1",
		SenderID:     555,
		ChatID:       1001,
		Text:         "Передала информацию менеджеру",
		FromBusiness: true,
	})

	if res.Decision != DecisionOwnerSpeaking {
		t.Fatalf("Route() = %+v, want owner_speaking", res)
	}
}

func TestRouteUnknownConnectionIsCustomer(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(map[string]int64{})

	res := r.Route(context.Background(), Inbound{
		ConnectionID: "never_seen",
		SenderID:     555,
		ChatID:       1001,
		Text:         "привет",
		FromBusiness: true,
	})

	if res.Decision != DecisionCustomerMessage {
		t.Fatalf("Route() = %v, want customer_message for unknown connection", res.Decision)
	}
}

func TestRouteStorageFailureDegradesToCustomer(t *testing.T) {
	t.Parallel()

	r, store := newTestRouter(map[string]int64{"conn_1": 555})
	store.failing = true

	res := r.Route(context.Background(), Inbound{
		ConnectionID: "conn_1",
		SenderID:     555,
		ChatID:       1001,
		Text:         "вопрос по заказу",
		FromBusiness: true,
	})

	if res.Decision != DecisionCustomerMessage {
		t.Fatalf("Route() = %v, want customer_message when ownership lookup fails", res.Decision)
	}
}

func TestRouteEmptyConnectionIDSkipsBusinessChecks(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(map[string]int64{"": 555})

	// FromBusiness with an empty connection id falls back to direct-message
	// semantics: no ownership lookup, no loop checks.
	res := r.Route(context.Background(), Inbound{
		ConnectionID: "",
		SenderID:     555,
		ChatID:       1001,
		Text:         "Textile Pro",
		FromBusiness: true,
	})

	if res.Decision != DecisionCustomerMessage {
		t.Fatalf("Route() = %+v, want customer_message", res)
	}
}

func TestRouteDirectMessageBypassesLoopChecks(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(map[string]int64{})

	in := Inbound{
		SenderID: 555,
		ChatID:   555,
		Text:     "Добрый день! Это тест",
	}

	for i := 0; i < 2; i++ {
		if res := r.Route(context.Background(), in); res.Decision != DecisionCustomerMessage {
			t.Fatalf("delivery %d: got %+v, want customer_message", i, res)
		}
	}
}

func TestRecordOutgoingFeedsDetector(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(map[string]int64{"conn_1": 555})

	r.RecordOutgoing("Спасибо за обращение, уточню у менеджера", 1001)

	res := r.Route(context.Background(), Inbound{
		ConnectionID: "conn_1",
		SenderID:     777,
		ChatID:       1001,
		Text:         "Спасибо за обращение, уточню у менеджера",
		FromBusiness: true,
	})

	if res.Decision != DecisionIgnore || res.Reason != loopdetect.ReasonDuplicateMessage {
		t.Fatalf("echoed reply: got %+v, want ignore/duplicate_message", res)
	}
}
