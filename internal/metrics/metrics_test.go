package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPipeline_CountsByResult(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRecompute(10*time.Millisecond, nil)
	m.ObserveRecompute(time.Millisecond, errors.New("boom"))
	m.ObserveRecompute(time.Millisecond, nil)
	m.IncIncrement(errors.New("down"))
	m.IncSchedule(ResultSkipped)

	if got := testutil.ToFloat64(m.recomputes.WithLabelValues(ResultOK)); got != 2 {
		t.Fatalf("expected 2 ok recomputes, got %v", got)
	}
	if got := testutil.ToFloat64(m.recomputes.WithLabelValues(ResultError)); got != 1 {
		t.Fatalf("expected 1 failed recompute, got %v", got)
	}
	if got := testutil.ToFloat64(m.increments.WithLabelValues(ResultError)); got != 1 {
		t.Fatalf("expected 1 failed increment, got %v", got)
	}
	if got := testutil.ToFloat64(m.schedules.WithLabelValues(ResultSkipped)); got != 1 {
		t.Fatalf("expected 1 skipped schedule, got %v", got)
	}
}

func TestPipeline_NilIsNoop(t *testing.T) {
	var m *Pipeline
	m.ObserveRecompute(time.Second, nil)
	m.IncIncrement(nil)
	m.IncSchedule(ResultOK)
	m.IncDelivery(nil)
	m.IncResolverRebuild()
}
