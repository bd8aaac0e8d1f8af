package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/LeonardoBeccarini/binova/internal/model/messages"
	"github.com/LeonardoBeccarini/binova/internal/observability"
	"github.com/LeonardoBeccarini/binova/internal/store"
	"github.com/LeonardoBeccarini/binova/pkg/rabbitmq"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type publishCall struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	calls []publishCall
	err   error
}

func (p *fakePublisher) PublishTo(topic string, _ byte, payload []byte) error {
	p.calls = append(p.calls, publishCall{topic, payload})
	return p.err
}
func (p *fakePublisher) Close() {}

func newTestService(t *testing.T, seed map[string]map[string]any, pub *fakePublisher) (*Service, *store.Memory, *observability.Collector) {
	t.Helper()
	mem := store.NewMemory(seed)
	col, err := observability.NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	var p rabbitmq.IPublisher
	if pub != nil {
		p = pub
	}
	svc := NewService(nil, mem, p, col, nil, Config{
		TopicPrefix:    "bin/data/",
		EventTopicTmpl: "event/binChanged/{bin}",
	})
	svc.now = func() time.Time { return time.Unix(1700000000, 0) }
	svc.newID = func() string { return "evt-1" }
	return svc, mem, col
}

func fieldsOf(t *testing.T, mem *store.Memory, key string) map[string]any {
	t.Helper()
	entries, err := mem.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Key == key {
			return e.Fields
		}
	}
	return nil
}

func TestHandleMergesTelemetry(t *testing.T) {
	seed := map[string]map[string]any{
		"bin1": {"latitude": 12.9, "longitude": 77.6, "fill_level": 10, "status": "ok", "alert": false},
	}
	pub := &fakePublisher{}
	svc, mem, col := newTestService(t, seed, pub)

	msg := fakeMessage{topic: "bin/data/bin1", payload: []byte(`{"fill_level": 83, "alert": true}`)}
	if err := svc.Handle(context.Background(), msg); err != nil {
		t.Fatal(err)
	}

	f := fieldsOf(t, mem, "bin1")
	if f["fill_level"] != 83 || f["alert"] != true || f["latitude"] != 12.9 || f["status"] != "ok" {
		t.Fatalf("fields = %+v", f)
	}
	if len(pub.calls) != 1 || pub.calls[0].topic != "event/binChanged/bin1" {
		t.Fatalf("publishes = %+v", pub.calls)
	}
	var evt messages.BinChangedEvent
	if err := json.Unmarshal(pub.calls[0].payload, &evt); err != nil {
		t.Fatal(err)
	}
	if evt.Reason != messages.ReasonTelemetry || evt.FillLevel != 83 || !evt.Alert || evt.EventID != "evt-1" {
		t.Fatalf("event = %+v", evt)
	}
	if got := testutil.ToFloat64(col.Telemetry.WithLabelValues(observability.ResultOK)); got != 1 {
		t.Fatalf("ok = %v", got)
	}
}

func TestHandleCreatesBinFromPayloadID(t *testing.T) {
	svc, mem, _ := newTestService(t, nil, nil)

	payload := `{"bin_id":"bin9","latitude":13.01,"longitude":77.55,"fill_level":40,"status":"ok"}`
	if err := svc.Handle(context.Background(), fakeMessage{topic: "bin/data/other", payload: []byte(payload)}); err != nil {
		t.Fatal(err)
	}
	if f := fieldsOf(t, mem, "bin9"); f == nil || f["fill_level"] != 40 {
		t.Fatalf("bin9 = %+v", f)
	}
	if fieldsOf(t, mem, "other") != nil {
		t.Fatal("topic bin used despite payload bin_id")
	}
}

func TestHandleSkipsRedelivery(t *testing.T) {
	pub := &fakePublisher{}
	svc, _, col := newTestService(t, nil, pub)
	msg := fakeMessage{topic: "bin/data/bin1", payload: []byte(`{"fill_level": 50}`)}

	for i := 0; i < 3; i++ {
		if err := svc.Handle(context.Background(), msg); err != nil {
			t.Fatal(err)
		}
	}
	if len(pub.calls) != 1 {
		t.Fatalf("publishes = %d, want 1", len(pub.calls))
	}
	if got := testutil.ToFloat64(col.Telemetry.WithLabelValues(observability.ResultDuplicate)); got != 2 {
		t.Fatalf("duplicates = %v", got)
	}
}

type flakyPutStore struct {
	*store.Memory
	failures int
}

func (f *flakyPutStore) Put(ctx context.Context, key string, fields map[string]any) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("connection refused")
	}
	return f.Memory.Put(ctx, key, fields)
}

func TestHandleRetriesReadingAfterFailedWrite(t *testing.T) {
	mem := store.NewMemory(nil)
	svc := NewService(nil, &flakyPutStore{Memory: mem, failures: 1}, nil, nil, nil, Config{TopicPrefix: "bin/data/"})
	msg := fakeMessage{topic: "bin/data/bin9", payload: []byte(`{"fill_level": 90}`)}

	if err := svc.Handle(context.Background(), msg); err == nil {
		t.Fatal("expected store error on first delivery")
	}
	if err := svc.Handle(context.Background(), msg); err != nil {
		t.Fatalf("resend: %v", err)
	}
	if f := fieldsOf(t, mem, "bin9"); f["fill_level"] != 90 {
		t.Fatalf("bin9 = %+v, resend was dropped", f)
	}
	// once stored, the same payload is a redelivery again
	if err := svc.Handle(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
}

func TestHandleRejectsBadPayloads(t *testing.T) {
	cases := []struct {
		name, topic, payload string
	}{
		{"not json", "bin/data/bin1", `{`},
		{"no fill level", "bin/data/bin1", `{"status":"ok"}`},
		{"fill over 100", "bin/data/bin1", `{"fill_level":140}`},
		{"negative fill", "bin/data/bin1", `{"fill_level":-1}`},
		{"bad latitude", "bin/data/bin1", `{"fill_level":1,"latitude":91}`},
		{"no bin", "elsewhere/bin1", `{"fill_level":1}`},
		{"markup bin id", "bin/data/x", `{"bin_id":"<img src=x onerror=alert(1)>","fill_level":1}`},
		{"dotted bin id", "bin/data/x", `{"bin_id":"x.y","fill_level":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, mem, _ := newTestService(t, nil, nil)
			err := svc.Handle(context.Background(), fakeMessage{topic: tc.topic, payload: []byte(tc.payload)})
			if !errors.Is(err, ErrInvalidTelemetry) {
				t.Fatalf("err = %v, want ErrInvalidTelemetry", err)
			}
			if entries, _ := mem.Snapshot(context.Background()); len(entries) != 0 {
				t.Fatalf("store written: %+v", entries)
			}
		})
	}
}

func TestPublishFailureKeepsWrite(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker gone")}
	svc, mem, _ := newTestService(t, nil, pub)

	if err := svc.Handle(context.Background(), fakeMessage{topic: "bin/data/bin2", payload: []byte(`{"fill_level":70}`)}); err != nil {
		t.Fatalf("err = %v", err)
	}
	if f := fieldsOf(t, mem, "bin2"); f["fill_level"] != 70 {
		t.Fatalf("bin2 = %+v", f)
	}
}
