package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCountersByChannel(t *testing.T) {
	t.Parallel()

	m := NewMetrics()

	m.IncNotificationSent("slack")
	m.IncNotificationSent("Slack ")
	m.IncNotificationFailed("teams", "TRANSIENT")
	m.IncNotificationFailed("", "")

	if got := testutil.ToFloat64(m.notificationsSentTotal.WithLabelValues("slack")); got != 2 {
		t.Fatalf("sent_total{slack} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.notificationsFailedTotal.WithLabelValues("teams", "transient")); got != 1 {
		t.Fatalf("failed_total{teams,transient} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.notificationsFailedTotal.WithLabelValues("unknown", "unknown")); got != 1 {
		t.Fatalf("failed_total{unknown,unknown} = %v, want 1", got)
	}
}

func TestMetricsInFlightGauge(t *testing.T) {
	t.Parallel()

	m := NewMetrics()

	m.IncSendInFlight("webhook")
	m.IncSendInFlight("webhook")
	m.DecSendInFlight("webhook")

	if got := testutil.ToFloat64(m.sendInFlight.WithLabelValues("webhook")); got != 1 {
		t.Fatalf("send_inflight{webhook} = %v, want 1", got)
	}
}

func TestMetricsDispatchPass(t *testing.T) {
	t.Parallel()

	m := NewMetrics()

	m.ObserveDispatchPass(50*time.Millisecond, 3)
	m.ObserveDispatchPass(-time.Second, 0)
	m.IncClaimLost()

	if got := testutil.ToFloat64(m.dispatchProcessedTotal); got != 3 {
		t.Fatalf("dispatch_processed_total = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.claimLostTotal); got != 1 {
		t.Fatalf("claim_lost_total = %v, want 1", got)
	}
}

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.IncNotificationSent("slack")
	m.IncNotificationFailed("slack", "PERMANENT")
	m.ObserveSendDuration("slack", time.Second)
	m.IncSendInFlight("slack")
	m.DecSendInFlight("slack")
	m.ObserveDispatchPass(time.Second, 1)
	m.IncClaimLost()

	if m.Handler() == nil {
		t.Fatal("Handler() on nil metrics should fall back to the default handler")
	}
}
