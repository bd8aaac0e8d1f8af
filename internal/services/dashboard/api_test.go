package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/LeonardoBeccarini/binova/internal/observability"
	"github.com/LeonardoBeccarini/binova/internal/store"
)

type downStore struct{ *store.Memory }

func (downStore) Snapshot(context.Context) ([]store.Entry, error) {
	return nil, errors.New("connection refused")
}

func (downStore) Update(context.Context, string, map[string]any) error {
	return errors.New("connection refused")
}

func newTestServer(t *testing.T, s store.Store) (*httptest.Server, *store.Guarded) {
	t.Helper()
	g := store.NewGuarded(s, store.BreakerSettings{Fails: 2, OpenFor: time.Minute})
	col, err := observability.NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	svc := NewService(g, col, nil)
	srv := NewServer(svc, nil, NewHealth(g, nil, nil), col, nil, ServerConfig{Timeout: time.Second})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, g
}

func noRedirect(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

func TestGetBins(t *testing.T) {
	ts, _ := newTestServer(t, store.NewMemory(seed()))

	res, err := http.Get(ts.URL + "/api/bins")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	var vm ViewModel
	if err := json.NewDecoder(res.Body).Decode(&vm); err != nil {
		t.Fatal(err)
	}
	if len(vm.Points) != 2 || vm.Points[0].Key != "bin1" || len(vm.Invalid) != 1 {
		t.Fatalf("view = %+v", vm)
	}
	if res.Header.Get("X-Request-ID") == "" {
		t.Error("request id header missing")
	}
}

func TestCleanAPI(t *testing.T) {
	ts, _ := newTestServer(t, store.NewMemory(seed()))

	cases := []struct {
		bin  string
		want int
	}{
		{"bin1", http.StatusOK},
		{"ghost", http.StatusNotFound},
	}
	for _, tc := range cases {
		res, err := http.Post(ts.URL+"/api/bins/"+tc.bin+"/clean", "application/json", nil)
		if err != nil {
			t.Fatal(err)
		}
		res.Body.Close()
		if res.StatusCode != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.bin, res.StatusCode, tc.want)
		}
	}

	res, err := http.Get(ts.URL + "/api/bins")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	var vm ViewModel
	_ = json.NewDecoder(res.Body).Decode(&vm)
	if vm.Cards[0].FillLevel != 0 || vm.Cards[0].Status != "cleaned" {
		t.Fatalf("bin1 after clean = %+v", vm.Cards[0])
	}
}

func TestCleanAPIInvalidKeyLeavesStoreReadable(t *testing.T) {
	ts, g := newTestServer(t, store.NewMemory(seed()))

	for i := 0; i < 3; i++ {
		res, err := http.Post(ts.URL+"/api/bins/a.b/clean", "application/json", nil)
		if err != nil {
			t.Fatal(err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("call %d: status = %d, want 400", i, res.StatusCode)
		}
	}
	if g.State().String() != "closed" {
		t.Fatalf("breaker = %s", g.State())
	}

	res, err := http.Get(ts.URL + "/api/bins")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/bins = %d after bad keys", res.StatusCode)
	}
}

func TestCleanAPIStoreDown(t *testing.T) {
	ts, g := newTestServer(t, downStore{store.NewMemory(nil)})

	want := []int{http.StatusBadGateway, http.StatusBadGateway, http.StatusServiceUnavailable}
	for i, code := range want {
		res, err := http.Post(ts.URL+"/api/bins/bin1/clean", "application/json", nil)
		if err != nil {
			t.Fatal(err)
		}
		res.Body.Close()
		if res.StatusCode != code {
			t.Fatalf("call %d: status = %d, want %d", i, res.StatusCode, code)
		}
	}
	if g.State().String() != "open" {
		t.Fatalf("breaker = %s", g.State())
	}

	res, _ := http.Get(ts.URL + "/readyz")
	res.Body.Close()
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readyz = %d", res.StatusCode)
	}
}

func TestCleanFormRedirectsWithFlash(t *testing.T) {
	ts, _ := newTestServer(t, store.NewMemory(seed()))
	client := &http.Client{CheckRedirect: noRedirect}

	res, err := client.Post(ts.URL+"/bins/bin2/clean", "application/x-www-form-urlencoded", nil)
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d", res.StatusCode)
	}
	loc, _ := url.Parse(res.Header.Get("Location"))
	if loc.Path != "/" || loc.Query().Get("flash") != "bin2 marked cleaned!" || loc.Query().Get("level") != "success" {
		t.Fatalf("location = %s", loc)
	}

	res, _ = client.Post(ts.URL+"/bins/ghost/clean", "application/x-www-form-urlencoded", nil)
	res.Body.Close()
	loc, _ = url.Parse(res.Header.Get("Location"))
	if loc.Query().Get("level") != "error" {
		t.Fatalf("location = %s", loc)
	}
}

func TestPageRenders(t *testing.T) {
	ts, _ := newTestServer(t, store.NewMemory(seed()))

	res, err := http.Get(ts.URL + "/?flash=bin1+marked+cleaned%21")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	var b strings.Builder
	if _, err := io.Copy(&b, res.Body); err != nil {
		t.Fatal(err)
	}
	body := b.String()
	for _, want := range []string{
		"BINOVA – Smart Dustbin Worker App",
		"Mark bin1 Cleaned",
		"FULL – clean ASAP",
		"bin1 marked cleaned!",
		`action="/bins/bin2/clean"`,
		"Dustbin: ",
		"bad",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestPageRendersKeysAsText(t *testing.T) {
	const key = `<img src=x onerror=alert(1)>`
	ts, _ := newTestServer(t, store.NewMemory(map[string]map[string]any{
		key: {"latitude": 12.9, "longitude": 77.6, "fill_level": 85, "status": "full"},
	}))

	res, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}
	body := string(b)
	if strings.Contains(body, "<img") {
		t.Fatal("bin key rendered as markup")
	}
	if !strings.Contains(body, "&lt;img src=x onerror=alert(1)&gt;") {
		t.Error("escaped key missing from card")
	}
	if !strings.Contains(body, "label.textContent = \"Dustbin: \" + p.name") || strings.Contains(body, `bindTooltip("Dustbin: "`) {
		t.Error("tooltip must be built from a text node")
	}
}

func TestPageStoreDown(t *testing.T) {
	ts, _ := newTestServer(t, downStore{store.NewMemory(nil)})

	res, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d", res.StatusCode)
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		store.ErrNotFound:                  http.StatusNotFound,
		store.ErrInvalidKey:                http.StatusBadRequest,
		store.ErrUnavailable:               http.StatusServiceUnavailable,
		context.DeadlineExceeded:           http.StatusGatewayTimeout,
		errors.New("firebase get: denied"): http.StatusBadGateway,
	}
	for err, want := range cases {
		if got := statusFor(err); got != want {
			t.Errorf("statusFor(%v) = %d, want %d", err, got, want)
		}
	}
}
