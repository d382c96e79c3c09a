package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestAdmitJob_IncrementsCounter(t *testing.T) {
	JobsAdmittedTotal.Reset()
	AdmitJob("image")
	AdmitJob("image")
	if got := testutil.ToFloat64(JobsAdmittedTotal.WithLabelValues("image")); got != 2 {
		t.Fatalf("got %v, want 2", got)
	}
}

func TestStartAndCompleteDispatch(t *testing.T) {
	JobsRunning.Reset()
	JobsCompletedTotal.Reset()
	TokensConsumedTotal.Reset()

	StartDispatch("text")
	if got := testutil.ToFloat64(JobsRunning.WithLabelValues("text")); got != 1 {
		t.Fatalf("running gauge: got %v, want 1", got)
	}

	CompleteDispatch("text", 0.5)
	if got := testutil.ToFloat64(JobsRunning.WithLabelValues("text")); got != 0 {
		t.Fatalf("running gauge after complete: got %v, want 0", got)
	}
	if got := testutil.ToFloat64(JobsCompletedTotal.WithLabelValues("text")); got != 1 {
		t.Fatalf("completed counter: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(TokensConsumedTotal.WithLabelValues("text")); got != 0.5 {
		t.Fatalf("tokens consumed: got %v, want 0.5", got)
	}
}

func TestCompleteDispatch_ZeroTokensNotRecorded(t *testing.T) {
	TokensConsumedTotal.Reset()
	JobsRunning.Reset()
	JobsCompletedTotal.Reset()

	StartDispatch("audio")
	CompleteDispatch("audio", 0)
	if got := testutil.ToFloat64(TokensConsumedTotal.WithLabelValues("audio")); got != 0 {
		t.Fatalf("got %v, want 0", got)
	}
}

func TestFailDispatch_DecrementsRunningAndIncrementsFailed(t *testing.T) {
	JobsRunning.Reset()
	JobsFailedTotal.Reset()

	StartDispatch("video")
	FailDispatch("video", "WORKER_TIMEOUT")
	if got := testutil.ToFloat64(JobsRunning.WithLabelValues("video")); got != 0 {
		t.Fatalf("running gauge: got %v, want 0", got)
	}
	if got := testutil.ToFloat64(JobsFailedTotal.WithLabelValues("video", "WORKER_TIMEOUT")); got != 1 {
		t.Fatalf("failed counter: got %v, want 1", got)
	}
}

func TestSetQueueDepthAndWorkerFleetSize(t *testing.T) {
	QueueDepth.Reset()
	WorkerFleetSize.Reset()

	SetQueueDepth("image", 7)
	if got := testutil.ToFloat64(QueueDepth.WithLabelValues("image")); got != 7 {
		t.Fatalf("queue depth: got %v, want 7", got)
	}

	SetWorkerFleetSize("idle", 3)
	if got := testutil.ToFloat64(WorkerFleetSize.WithLabelValues("idle")); got != 3 {
		t.Fatalf("worker fleet size: got %v, want 3", got)
	}
}
