package httpserver_test

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/fairyhunter13/job-scheduler/internal/domain"
)

// fakeStore is a minimal in-memory domain.Store used to exercise the HTTP
// layer without a Postgres instance.
type fakeStore struct {
	mu sync.Mutex

	users     map[string]domain.User
	jobs      map[string]domain.Job
	artifacts map[string][]domain.Artifact
	usage     map[string]domain.UsageDaily
	jobSeq    int

	plan domain.Plan
}

func newFakeStore(plan domain.Plan) *fakeStore {
	return &fakeStore{
		users:     map[string]domain.User{},
		jobs:      map[string]domain.Job{},
		artifacts: map[string][]domain.Artifact{},
		usage:     map[string]domain.UsageDaily{},
		plan:      plan,
	}
}

func (f *fakeStore) GetOrCreateUser(_ domain.Context, platform, platformUID, ip string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := platform + ":" + platformUID
	if u, ok := f.users[key]; ok {
		return u, nil
	}
	u := domain.User{ID: key, Platform: platform, PlatformUserID: platformUID, PlanID: f.plan.ID, Plan: f.plan, IPAddress: ip, CreatedAt: time.Now().UTC()}
	f.users[key] = u
	return u, nil
}

func (f *fakeStore) CreateJob(_ domain.Context, j domain.Job) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobSeq++
	j.ID = "job-" + strconv.Itoa(f.jobSeq)
	f.jobs[j.ID] = j
	return j.ID, nil
}

func (f *fakeStore) TransitionJob(_ domain.Context, jobID string, from, to domain.JobStatus, upd domain.JobUpdate) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if j.Status != from {
		return false, nil
	}
	j.Status = to
	if upd.QueuedAt != nil {
		j.QueuedAt = upd.QueuedAt
	}
	f.jobs[jobID] = j
	return true, nil
}

func (f *fakeStore) ClaimNextQueued(_ domain.Context, _ []domain.Capability, _ string) (*domain.Job, error) {
	return nil, nil
}

func (f *fakeStore) CountQueuedAhead(_ domain.Context, jobID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	target, ok := f.jobs[jobID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	var n int64
	for _, j := range f.jobs {
		if j.ID != jobID && j.Status == domain.JobQueued && j.CreatedAt.Before(target.CreatedAt) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CreateArtifact(_ domain.Context, a domain.Artifact) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.ID = "art-" + strconv.Itoa(len(f.artifacts[a.JobID])+1)
	f.artifacts[a.JobID] = append(f.artifacts[a.JobID], a)
	return a.ID, nil
}

func (f *fakeStore) ListArtifacts(_ domain.Context, jobID string) ([]domain.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Artifact(nil), f.artifacts[jobID]...), nil
}

func (f *fakeStore) IncrementUsage(_ domain.Context, userID string, date time.Time, deltaTokens domain.Tokens, deltaJobs int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := userID + "|" + date.UTC().Format("2006-01-02")
	u := f.usage[key]
	u.UserID = userID
	u.Date = date.UTC().Truncate(24 * time.Hour)
	u.TokensUsed += deltaTokens
	u.JobsCompleted += deltaJobs
	f.usage[key] = u
	return nil
}

func (f *fakeStore) GetUsage(_ domain.Context, userID string, date time.Time) (domain.UsageDaily, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := userID + "|" + date.UTC().Format("2006-01-02")
	if u, ok := f.usage[key]; ok {
		return u, nil
	}
	return domain.UsageDaily{UserID: userID, Date: date.UTC().Truncate(24 * time.Hour)}, nil
}

func (f *fakeStore) GetJob(_ domain.Context, jobID string) (domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return domain.Job{}, domain.ErrNotFound
	}
	return j, nil
}

func (f *fakeStore) ListJobsByStatus(_ domain.Context, status domain.JobStatus, offset, limit int) ([]domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Job
	for _, j := range f.jobs {
		if j.Status == status {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}
