package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if subjectsTotal == nil || fetchAttemptsTotal == nil || candidatesTotal == nil || mediaFallbacksTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveHelpers(t *testing.T) {
	before := testutil.ToFloat64(subjectsCounter("wine", "updated"))
	ObserveSubject("wine", "updated")
	if got := testutil.ToFloat64(subjectsCounter("wine", "updated")); got != before+1 {
		t.Errorf("expected subjects counter to grow by 1, got %f -> %f", before, got)
	}

	ObserveFetch("https://Shop.Example/item", "ok")
	if got := testutil.ToFloat64(fetchAttemptsTotal.WithLabelValues("shop.example", "ok")); got < 1 {
		t.Errorf("expected fetch attempt to be recorded for sanitized site, got %f", got)
	}

	ObserveMediaFallback("label")
	ObserveCandidate("label", "valid")
	ObserveRateLimitDelay("shop.example", 200*time.Millisecond)
	ObserveRun(3 * time.Second)
	if got := testutil.ToFloat64(runDurationSeconds); got != 3 {
		t.Errorf("expected run duration gauge 3, got %f", got)
	}
}

func TestPushSkipsWithoutGateway(t *testing.T) {
	if err := Push(context.Background(), "", "job"); err != nil {
		t.Fatalf("expected no-op push, got %v", err)
	}
}

func TestPushSendsToGateway(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ObserveSubject("winery", "skipped")
	if err := Push(context.Background(), srv.URL, "enricher_test"); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one push, got %d", hits.Load())
	}
}

func subjectsCounter(kind, outcome string) prometheus.Counter {
	Init()
	return subjectsTotal.WithLabelValues(kind, outcome)
}
