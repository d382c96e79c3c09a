package registry_test

import (
	"testing"
	"time"

	"github.com/fairyhunter13/job-scheduler/internal/adapter/registry"
	"github.com/fairyhunter13/job-scheduler/internal/domain"
)

func TestMemory_RegisterAndHealthyIdle(t *testing.T) {
	r := registry.NewMemory(time.Minute)
	r.Register("w1", "http://w1", []domain.Capability{domain.CapabilityImage, domain.CapabilityText})

	idle := r.HealthyIdleWorkers()
	if len(idle) != 1 {
		t.Fatalf("expected 1 idle worker, got %d", len(idle))
	}
	if !idle[0].HasCapability(domain.CapabilityImage) {
		t.Fatalf("expected worker to advertise image capability")
	}
}

func TestMemory_MarkBusyExcludesFromIdle(t *testing.T) {
	r := registry.NewMemory(time.Minute)
	r.Register("w1", "http://w1", []domain.Capability{domain.CapabilityImage})
	r.MarkBusy("w1")

	if len(r.HealthyIdleWorkers()) != 0 {
		t.Fatalf("expected 0 idle workers after MarkBusy")
	}
	r.MarkIdle("w1")
	if len(r.HealthyIdleWorkers()) != 1 {
		t.Fatalf("expected 1 idle worker after MarkIdle")
	}
}

func TestMemory_RegisterPreservesStatusOnReheartbeat(t *testing.T) {
	r := registry.NewMemory(time.Minute)
	r.Register("w1", "http://w1", []domain.Capability{domain.CapabilityImage})
	r.MarkBusy("w1")
	r.Register("w1", "http://w1", []domain.Capability{domain.CapabilityImage})

	snap := r.Snapshot()
	if len(snap) != 1 || snap[0].Status != domain.WorkerBusy {
		t.Fatalf("expected worker to remain busy across re-heartbeat, got %+v", snap)
	}
}

func TestMemory_HealthyIdleWorkers_ExpiresOnTTL(t *testing.T) {
	r := registry.NewMemory(10 * time.Millisecond)
	r.Register("w1", "http://w1", []domain.Capability{domain.CapabilityImage})
	time.Sleep(30 * time.Millisecond)

	if len(r.HealthyIdleWorkers()) != 0 {
		t.Fatalf("expected worker to be excluded after TTL expiry")
	}
}

func TestMemory_ForgetStale(t *testing.T) {
	r := registry.NewMemory(10 * time.Millisecond)
	r.Register("w1", "http://w1", []domain.Capability{domain.CapabilityImage})
	time.Sleep(30 * time.Millisecond)

	r.ForgetStale(time.Now())
	if len(r.Snapshot()) != 0 {
		t.Fatalf("expected stale worker to be forgotten")
	}
}

func TestMemory_Snapshot_ReturnsAllWorkers(t *testing.T) {
	r := registry.NewMemory(time.Minute)
	r.Register("w1", "http://w1", []domain.Capability{domain.CapabilityImage})
	r.Register("w2", "http://w2", []domain.Capability{domain.CapabilityText})

	if len(r.Snapshot()) != 2 {
		t.Fatalf("expected 2 workers in snapshot")
	}
}
