// Package registry implements the Worker Registry port: the in-memory
// liveness and assignment table described in SPEC_FULL.md §4.2.
package registry

import (
	"sync"
	"time"

	"github.com/fairyhunter13/job-scheduler/internal/domain"
)

// Memory is the default, in-process WorkerRegistry. It is lost on restart;
// workers rebuild it by re-heartbeating.
type Memory struct {
	ttl time.Duration

	mu      sync.RWMutex
	workers map[string]domain.Worker
}

// NewMemory constructs a Memory registry with the given heartbeat TTL.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, workers: make(map[string]domain.Worker)}
}

// Register upserts a worker, resetting its heartbeat. A new record starts
// idle; an existing record keeps its current status.
func (m *Memory) Register(workerID, baseURL string, capabilities []domain.Capability) {
	m.mu.Lock()
	defer m.mu.Unlock()

	capSet := make(map[domain.Capability]struct{}, len(capabilities))
	for _, c := range capabilities {
		capSet[c] = struct{}{}
	}

	existing, ok := m.workers[workerID]
	status := domain.WorkerIdle
	loadedModels := []string(nil)
	if ok {
		status = existing.Status
		loadedModels = existing.LoadedModels
	}

	m.workers[workerID] = domain.Worker{
		ID:              workerID,
		BaseURL:         baseURL,
		Capabilities:    capSet,
		Status:          status,
		LoadedModels:    loadedModels,
		LastHeartbeatAt: time.Now().UTC(),
	}
}

// MarkBusy transitions a worker to busy. No-op if the worker is unknown.
func (m *Memory) MarkBusy(workerID string) {
	m.setStatus(workerID, domain.WorkerBusy)
}

// MarkIdle transitions a worker to idle. No-op if the worker is unknown.
func (m *Memory) MarkIdle(workerID string) {
	m.setStatus(workerID, domain.WorkerIdle)
}

func (m *Memory) setStatus(workerID string, status domain.WorkerStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[workerID]
	if !ok {
		return
	}
	w.Status = status
	m.workers[workerID] = w
}

// HealthyIdleWorkers returns idle workers whose heartbeat is within TTL.
func (m *Memory) HealthyIdleWorkers() []domain.Worker {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now().UTC()
	out := make([]domain.Worker, 0, len(m.workers))
	for _, w := range m.workers {
		if w.Status == domain.WorkerIdle && now.Sub(w.LastHeartbeatAt) <= m.ttl {
			out = append(out, w)
		}
	}
	return out
}

// ForgetStale removes workers whose heartbeat is older than 2x TTL.
func (m *Memory) ForgetStale(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := 2 * m.ttl
	for id, w := range m.workers {
		if now.Sub(w.LastHeartbeatAt) > cutoff {
			delete(m.workers, id)
		}
	}
}

// Snapshot returns every known worker, for introspection.
func (m *Memory) Snapshot() []domain.Worker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Worker, 0, len(m.workers))
	for _, w := range m.workers {
		out = append(out, w)
	}
	return out
}
