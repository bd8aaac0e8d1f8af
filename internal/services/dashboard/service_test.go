package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/LeonardoBeccarini/binova/internal/model/messages"
	"github.com/LeonardoBeccarini/binova/internal/observability"
	"github.com/LeonardoBeccarini/binova/internal/store"
)

type recordingNotifier struct {
	events []messages.BinChangedEvent
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, evt messages.BinChangedEvent) error {
	n.events = append(n.events, evt)
	return n.err
}

func seed() map[string]map[string]any {
	return map[string]map[string]any{
		"bin1": {"latitude": 12.9, "longitude": 77.6, "fill_level": 85, "status": "full", "alert": true},
		"bin2": {"latitude": 13.0, "longitude": 77.5, "fill_level": 20, "status": "ok"},
		"bad":  {"latitude": 13.0, "status": "ok"},
	}
}

func newTestService(t *testing.T, notifiers ...Notifier) (*Service, *store.Memory, *observability.Collector) {
	t.Helper()
	mem := store.NewMemory(seed())
	col, err := observability.NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	svc := NewService(mem, col, nil, notifiers...)
	svc.now = func() time.Time { return time.Unix(1700000000, 0) }
	svc.newID = func() string { return "evt-1" }
	return svc, mem, col
}

func TestViewDecodesAndSkipsInvalid(t *testing.T) {
	svc, _, col := newTestService(t)

	vm, err := svc.View(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(vm.Cards) != 2 || vm.Cards[0].Key != "bin1" || vm.Cards[1].Key != "bin2" {
		t.Fatalf("cards = %+v", vm.Cards)
	}
	if len(vm.Invalid) != 1 || vm.Invalid[0].Key != "bad" {
		t.Fatalf("invalid = %+v", vm.Invalid)
	}
	if vm.Center.Lat != 12.9 {
		t.Fatalf("center = %+v", vm.Center)
	}
	if got := testutil.ToFloat64(col.DecodeErrors); got != 1 {
		t.Fatalf("decode errors metric = %v", got)
	}
}

func TestMarkCleanedThenView(t *testing.T) {
	n := &recordingNotifier{}
	svc, _, col := newTestService(t, n)
	ctx := context.Background()

	if err := svc.MarkCleaned(ctx, "bin1"); err != nil {
		t.Fatal(err)
	}
	vm, err := svc.View(ctx)
	if err != nil {
		t.Fatal(err)
	}
	c := vm.Cards[0]
	if c.FillLevel != 0 || c.Status != "cleaned" || c.Alert {
		t.Fatalf("card after clean = %+v", c)
	}
	if c.Advisory != "normal" {
		t.Fatalf("advisory = %q", c.Advisory)
	}

	if len(n.events) != 1 {
		t.Fatalf("events = %d, want 1", len(n.events))
	}
	evt := n.events[0]
	if evt.EventID != "evt-1" || evt.BinID != "bin1" || evt.Reason != messages.ReasonCleaned || evt.Status != "cleaned" {
		t.Fatalf("event = %+v", evt)
	}
	if got := testutil.ToFloat64(col.MarkCleaned.WithLabelValues(observability.ResultOK)); got != 1 {
		t.Fatalf("mark cleaned ok = %v", got)
	}
}

func TestMarkCleanedUnknownBin(t *testing.T) {
	n := &recordingNotifier{}
	svc, mem, col := newTestService(t, n)

	err := svc.MarkCleaned(context.Background(), "ghost")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if len(n.events) != 0 {
		t.Fatal("no event expected for a failed write")
	}
	entries, _ := mem.Snapshot(context.Background())
	for _, e := range entries {
		if e.Key == "ghost" {
			t.Fatal("record created by a failed clean")
		}
	}
	if got := testutil.ToFloat64(col.MarkCleaned.WithLabelValues(observability.ResultNotFound)); got != 1 {
		t.Fatalf("not_found = %v", got)
	}
}

func TestNotifierFailureDoesNotFailAction(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("broker down")}
	ok := &recordingNotifier{}
	svc, _, _ := newTestService(t, failing, ok)

	if err := svc.MarkCleaned(context.Background(), "bin2"); err != nil {
		t.Fatalf("err = %v", err)
	}
	if len(ok.events) != 1 {
		t.Fatal("second notifier skipped")
	}
}
