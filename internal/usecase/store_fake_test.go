package usecase_test

import (
	"sort"
	"sync"
	"time"

	"github.com/fairyhunter13/job-scheduler/internal/domain"
)

// fakeStore is a minimal in-memory domain.Store used to exercise the
// usecase package without a Postgres instance. It mirrors the CAS
// semantics of the real Store closely enough to test state transitions,
// but keeps no durability guarantees.
type fakeStore struct {
	mu sync.Mutex

	users     map[string]domain.User
	jobs      map[string]domain.Job
	artifacts map[string][]domain.Artifact
	usage     map[string]domain.UsageDaily
	jobSeq    int
	artSeq    int

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

func usageKey(userID string, date time.Time) string {
	return userID + "|" + date.Format("2006-01-02")
}

func (f *fakeStore) GetOrCreateUser(_ domain.Context, platform, platformUID, ip string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := platform + ":" + platformUID
	if u, ok := f.users[key]; ok {
		return u, nil
	}
	u := domain.User{
		ID:             key,
		Platform:       platform,
		PlatformUserID: platformUID,
		PlanID:         f.plan.ID,
		Plan:           f.plan,
		IPAddress:      ip,
		CreatedAt:      time.Now().UTC(),
	}
	f.users[key] = u
	return u, nil
}

func (f *fakeStore) CreateJob(_ domain.Context, j domain.Job) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobSeq++
	j.ID = "job-" + time.Now().UTC().Format("150405.000000") + "-" + itoa(f.jobSeq)
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
	f.jobs[jobID] = j
	return true, nil
}

func (f *fakeStore) ClaimNextQueued(_ domain.Context, capabilities []domain.Capability, workerID string) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	allowed := map[domain.Capability]bool{}
	for _, c := range capabilities {
		allowed[c] = true
	}
	var candidates []domain.Job
	for _, j := range f.jobs {
		if j.Status == domain.JobQueued && allowed[j.Capability] {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, k int) bool {
		if candidates[i].Priority != candidates[k].Priority {
			return candidates[i].Priority > candidates[k].Priority
		}
		return candidates[i].CreatedAt.Before(candidates[k].CreatedAt)
	})
	claimed := candidates[0]
	claimed.Status = domain.JobRunning
	claimed.WorkerID = workerID
	now := time.Now().UTC()
	claimed.StartedAt = &now
	f.jobs[claimed.ID] = claimed
	return &claimed, nil
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
		if j.ID == jobID || j.Status != domain.JobQueued {
			continue
		}
		if j.Priority > target.Priority || (j.Priority == target.Priority && j.CreatedAt.Before(target.CreatedAt)) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CreateArtifact(_ domain.Context, a domain.Artifact) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.artSeq++
	a.ID = "art-" + itoa(f.artSeq)
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
	day := date.UTC().Truncate(24 * time.Hour)
	key := usageKey(userID, day)
	u := f.usage[key]
	u.UserID = userID
	u.Date = day
	u.TokensUsed += deltaTokens
	u.JobsCompleted += deltaJobs
	f.usage[key] = u
	return nil
}

func (f *fakeStore) GetUsage(_ domain.Context, userID string, date time.Time) (domain.UsageDaily, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	day := date.UTC().Truncate(24 * time.Hour)
	if u, ok := f.usage[usageKey(userID, day)]; ok {
		return u, nil
	}
	return domain.UsageDaily{UserID: userID, Date: day}, nil
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

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
