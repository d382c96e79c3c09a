package registry

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/job-scheduler/internal/domain"
)

// Redis is an optional WorkerRegistry backed by Redis so fleet liveness
// survives a scheduler restart. Each worker is one key set with PEXPIRE at
// 2x the heartbeat TTL; expiry is the Redis analogue of ForgetStale.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedis constructs a Redis-backed WorkerRegistry.
func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

type redisWorkerRecord struct {
	ID              string   `json:"id"`
	BaseURL         string   `json:"base_url"`
	Capabilities    []string `json:"capabilities"`
	Status          string   `json:"status"`
	LoadedModels    []string `json:"loaded_models,omitempty"`
	LastHeartbeatAt int64    `json:"last_heartbeat_at"`
}

const registryIndexKey = "scheduler:registry:workers"

func workerKey(id string) string { return "scheduler:registry:worker:" + id }

// Register upserts a worker and refreshes both its TTL and the index set's
// TTL-independent membership. A new record starts idle.
func (r *Redis) Register(workerID, baseURL string, capabilities []domain.Capability) {
	ctx := context.Background()

	status := string(domain.WorkerIdle)
	var loadedModels []string
	if existing, ok := r.get(ctx, workerID); ok {
		status = existing.Status
		loadedModels = existing.LoadedModels
	}

	caps := make([]string, len(capabilities))
	for i, c := range capabilities {
		caps[i] = string(c)
	}

	rec := redisWorkerRecord{
		ID:              workerID,
		BaseURL:         baseURL,
		Capabilities:    caps,
		Status:          status,
		LoadedModels:    loadedModels,
		LastHeartbeatAt: time.Now().UTC().Unix(),
	}
	r.put(ctx, rec)
}

func (r *Redis) get(ctx context.Context, workerID string) (redisWorkerRecord, bool) {
	raw, err := r.rdb.Get(ctx, workerKey(workerID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Error("redis registry get failed", slog.String("worker_id", workerID), slog.Any("error", err))
		}
		return redisWorkerRecord{}, false
	}
	var rec redisWorkerRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		slog.Error("redis registry decode failed", slog.String("worker_id", workerID), slog.Any("error", err))
		return redisWorkerRecord{}, false
	}
	return rec, true
}

func (r *Redis) put(ctx context.Context, rec redisWorkerRecord) {
	raw, err := json.Marshal(rec)
	if err != nil {
		slog.Error("redis registry encode failed", slog.String("worker_id", rec.ID), slog.Any("error", err))
		return
	}
	if err := r.rdb.Set(ctx, workerKey(rec.ID), raw, 2*r.ttl).Err(); err != nil {
		slog.Error("redis registry set failed", slog.String("worker_id", rec.ID), slog.Any("error", err))
		return
	}
	if err := r.rdb.SAdd(ctx, registryIndexKey, rec.ID).Err(); err != nil {
		slog.Error("redis registry index update failed", slog.String("worker_id", rec.ID), slog.Any("error", err))
	}
}

// MarkBusy transitions a worker to busy. No-op if the worker is unknown.
func (r *Redis) MarkBusy(workerID string) { r.setStatus(workerID, domain.WorkerBusy) }

// MarkIdle transitions a worker to idle. No-op if the worker is unknown.
func (r *Redis) MarkIdle(workerID string) { r.setStatus(workerID, domain.WorkerIdle) }

func (r *Redis) setStatus(workerID string, status domain.WorkerStatus) {
	ctx := context.Background()
	rec, ok := r.get(ctx, workerID)
	if !ok {
		return
	}
	rec.Status = string(status)
	r.put(ctx, rec)
}

// HealthyIdleWorkers returns idle workers still present in the index; an
// expired Redis key (heartbeat older than 2x TTL) naturally drops out.
func (r *Redis) HealthyIdleWorkers() []domain.Worker {
	ctx := context.Background()
	out := make([]domain.Worker, 0)
	now := time.Now().UTC()
	for _, w := range r.snapshot(ctx) {
		if w.Status == domain.WorkerIdle && now.Sub(w.LastHeartbeatAt) <= r.ttl {
			out = append(out, w)
		}
	}
	return out
}

// ForgetStale prunes index entries whose backing key has already expired.
func (r *Redis) ForgetStale(now time.Time) {
	ctx := context.Background()
	ids, err := r.rdb.SMembers(ctx, registryIndexKey).Result()
	if err != nil {
		slog.Error("redis registry smembers failed", slog.Any("error", err))
		return
	}
	for _, id := range ids {
		if _, ok := r.get(ctx, id); !ok {
			if err := r.rdb.SRem(ctx, registryIndexKey, id).Err(); err != nil {
				slog.Error("redis registry srem failed", slog.String("worker_id", id), slog.Any("error", err))
			}
		}
	}
}

// Snapshot returns every worker still present in the index.
func (r *Redis) Snapshot() []domain.Worker {
	return r.snapshot(context.Background())
}

func (r *Redis) snapshot(ctx context.Context) []domain.Worker {
	ids, err := r.rdb.SMembers(ctx, registryIndexKey).Result()
	if err != nil {
		slog.Error("redis registry smembers failed", slog.Any("error", err))
		return nil
	}
	out := make([]domain.Worker, 0, len(ids))
	for _, id := range ids {
		rec, ok := r.get(ctx, id)
		if !ok {
			continue
		}
		capSet := make(map[domain.Capability]struct{}, len(rec.Capabilities))
		for _, c := range rec.Capabilities {
			capSet[domain.Capability(c)] = struct{}{}
		}
		out = append(out, domain.Worker{
			ID:              rec.ID,
			BaseURL:         rec.BaseURL,
			Capabilities:    capSet,
			Status:          domain.WorkerStatus(rec.Status),
			LoadedModels:    rec.LoadedModels,
			LastHeartbeatAt: time.Unix(rec.LastHeartbeatAt, 0).UTC(),
		})
	}
	return out
}
