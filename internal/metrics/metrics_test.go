package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_Counters(t *testing.T) {
	r := New()

	r.ObservePass(120*time.Millisecond, nil)
	r.ObservePass(80*time.Millisecond, nil)
	r.ObservePass(time.Second, errors.New("ledger down"))
	r.SetSnapshot(42, 7)
	r.AlertRaised("NEW_OPPORTUNITY")

	if got := testutil.ToFloat64(r.passes.WithLabelValues("success")); got != 2 {
		t.Errorf("Expected 2 successful passes, got %v", got)
	}
	if got := testutil.ToFloat64(r.passes.WithLabelValues("failure")); got != 1 {
		t.Errorf("Expected 1 failed pass, got %v", got)
	}
	if got := testutil.ToFloat64(r.cardsScored); got != 42 {
		t.Errorf("Expected 42 cards, got %v", got)
	}
	if got := testutil.ToFloat64(r.alerts.WithLabelValues("NEW_OPPORTUNITY")); got != 1 {
		t.Errorf("Expected 1 alert, got %v", got)
	}
}

func TestRecorder_NilIsSafe(t *testing.T) {
	var r *Recorder
	r.ObservePass(time.Second, nil)
	r.SetSnapshot(1, 1)
	r.AlertRaised("PRICE_MOVE")
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.SetSnapshot(3, 1)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, name := range []string{"gradearb_cards_scored 3", "gradearb_opportunities 1", "go_goroutines"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("Expected %q in metrics output", name)
		}
	}
}
