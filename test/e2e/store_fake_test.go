//go:build e2e
// +build e2e

package e2e_test

import (
	"strconv"
	"sync"
	"time"

	"github.com/fairyhunter13/job-scheduler/internal/domain"
)

// e2eStore is a minimal in-memory domain.Store, just enough to drive a full
// admit -> dispatch -> complete cycle without a real Postgres instance.
type e2eStore struct {
	mu        sync.Mutex
	users     map[string]domain.User
	jobs      map[string]domain.Job
	artifacts map[string][]domain.Artifact
	usage     map[string]domain.UsageDaily
	jobSeq    int
	artSeq    int
}

func newE2EStore() *e2eStore {
	return &e2eStore{
		users:     map[string]domain.User{},
		jobs:      map[string]domain.Job{},
		artifacts: map[string][]domain.Artifact{},
		usage:     map[string]domain.UsageDaily{},
	}
}

func (s *e2eStore) GetOrCreateUser(_ domain.Context, platform, platformUID, ip string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := platform + ":" + platformUID
	if u, ok := s.users[key]; ok {
		return u, nil
	}
	u := domain.User{
		ID: key, Platform: platform, PlatformUserID: platformUID, PlanID: domain.DefaultPlanID,
		Plan:      domain.Plan{ID: domain.DefaultPlanID, Name: "free", DailyTokenLimit: domain.TokensFromFloat(1000), Priority: 0},
		IPAddress: ip, CreatedAt: time.Now().UTC(),
	}
	s.users[key] = u
	return u, nil
}

func (s *e2eStore) CreateJob(_ domain.Context, j domain.Job) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobSeq++
	id := "job-" + strconv.Itoa(s.jobSeq)
	j.ID = id
	s.jobs[id] = j
	return id, nil
}

func (s *e2eStore) TransitionJob(_ domain.Context, jobID string, from, to domain.JobStatus, upd domain.JobUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok || j.Status != from {
		return false, nil
	}
	j.Status = to
	if upd.QueuedAt != nil {
		j.QueuedAt = upd.QueuedAt
	}
	if upd.StartedAt != nil {
		j.StartedAt = upd.StartedAt
	}
	if upd.EndedAt != nil {
		j.EndedAt = upd.EndedAt
	}
	if upd.WorkerID != nil {
		j.WorkerID = *upd.WorkerID
	}
	if upd.ExecutionTimeSeconds != nil {
		j.ExecutionTimeSeconds = upd.ExecutionTimeSeconds
	}
	if upd.Error != nil {
		j.Error = upd.Error
	}
	if upd.Metadata != nil {
		j.Metadata = upd.Metadata
	}
	s.jobs[jobID] = j
	return true, nil
}

func (s *e2eStore) ClaimNextQueued(_ domain.Context, capabilities []domain.Capability, workerID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	allowed := map[domain.Capability]bool{}
	for _, c := range capabilities {
		allowed[c] = true
	}
	var best *domain.Job
	for id, j := range s.jobs {
		if j.Status != domain.JobQueued || !allowed[j.Capability] {
			continue
		}
		jCopy := j
		if best == nil || jCopy.CreatedAt.Before(best.CreatedAt) {
			best = &jCopy
			best.ID = id
		}
	}
	if best == nil {
		return nil, nil
	}
	now := time.Now().UTC()
	j := s.jobs[best.ID]
	j.Status = domain.JobRunning
	j.StartedAt = &now
	j.WorkerID = workerID
	s.jobs[best.ID] = j
	out := j
	return &out, nil
}

func (s *e2eStore) CountQueuedAhead(_ domain.Context, jobID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.jobs[jobID]
	if !ok {
		return 0, nil
	}
	var count int64
	for id, j := range s.jobs {
		if id == jobID || j.Status != domain.JobQueued {
			continue
		}
		if j.CreatedAt.Before(target.CreatedAt) {
			count++
		}
	}
	return count, nil
}

func (s *e2eStore) CreateArtifact(_ domain.Context, a domain.Artifact) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artSeq++
	id := "artifact-" + strconv.Itoa(s.artSeq)
	a.ID = id
	s.artifacts[a.JobID] = append(s.artifacts[a.JobID], a)
	return id, nil
}

func (s *e2eStore) ListArtifacts(_ domain.Context, jobID string) ([]domain.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Artifact(nil), s.artifacts[jobID]...), nil
}

func (s *e2eStore) IncrementUsage(_ domain.Context, userID string, date time.Time, deltaTokens domain.Tokens, deltaJobs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userID + ":" + date.Format("2006-01-02")
	u := s.usage[key]
	u.UserID = userID
	u.Date = date
	u.TokensUsed = u.TokensUsed.Add(deltaTokens)
	u.JobsCompleted += deltaJobs
	s.usage[key] = u
	return nil
}

func (s *e2eStore) GetUsage(_ domain.Context, userID string, date time.Time) (domain.UsageDaily, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userID + ":" + date.Format("2006-01-02")
	return s.usage[key], nil
}

func (s *e2eStore) GetJob(_ domain.Context, jobID string) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return domain.Job{}, domain.ErrNotFound
	}
	return j, nil
}

func (s *e2eStore) ListJobsByStatus(_ domain.Context, status domain.JobStatus, offset, limit int) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Job
	for _, j := range s.jobs {
		if j.Status == status {
			out = append(out, j)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}
