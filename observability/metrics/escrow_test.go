package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestOperationFailedCountsByLabel(t *testing.T) {
	collectors := Escrow()
	counter := collectors.opFailures.WithLabelValues("escrow_release", "forbidden")

	before := testutil.ToFloat64(counter)
	collectors.OperationFailed("escrow_release", "forbidden")
	collectors.OperationFailed("escrow_release", "forbidden")
	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Fatalf("expected 2 recorded failures, got %v", got)
	}

	other := testutil.ToFloat64(collectors.opFailures.WithLabelValues("escrow_refund", "invalid_state"))
	collectors.OperationFailed("escrow_refund", "invalid_state")
	if got := testutil.ToFloat64(collectors.opFailures.WithLabelValues("escrow_refund", "invalid_state")) - other; got != 1 {
		t.Fatalf("expected 1 recorded failure, got %v", got)
	}
}

func TestEscrowIsSingleton(t *testing.T) {
	if Escrow() != Escrow() {
		t.Fatal("expected one process-wide collector set")
	}
}
