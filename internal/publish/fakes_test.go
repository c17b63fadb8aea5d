package publish

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/notify"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/repository"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/retry"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/service"
)

type memItems struct {
	mu    sync.Mutex
	items map[int64]*models.ContentItem
}

func newMemItems(items ...*models.ContentItem) *memItems {
	m := &memItems{items: make(map[int64]*models.ContentItem)}
	for _, it := range items {
		m.items[it.ID] = it
	}
	return m
}

func (m *memItems) Create(_ context.Context, _ *sql.Tx, item *models.ContentItem) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item.ID = int64(len(m.items) + 1)
	m.items[item.ID] = item
	return item.ID, nil
}

func (m *memItems) GetByID(_ context.Context, id int64) (*models.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	cp := *it
	return &cp, nil
}

func (m *memItems) ListByClientID(_ context.Context, clientID int64) ([]*models.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ContentItem
	for _, it := range m.items {
		if it.ClientID == clientID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memItems) MarkScheduled(_ context.Context, _ *sql.Tx, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || it.Status == models.StatusPublished || it.Status == models.StatusPublishing {
		return repository.ErrStatusConflict
	}
	it.Status = models.StatusScheduled
	it.ScheduledAt = &at
	return nil
}

func (m *memItems) MarkDraft(_ context.Context, _ *sql.Tx, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || (it.Status != models.StatusScheduled && it.Status != models.StatusFailed) {
		return repository.ErrStatusConflict
	}
	it.Status = models.StatusDraft
	it.ScheduledAt = nil
	return nil
}

func (m *memItems) MarkPublishing(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || it.Status == models.StatusPublished || it.Status == models.StatusPublishing {
		return false, nil
	}
	it.Status = models.StatusPublishing
	return true, nil
}

func (m *memItems) UpdateStatus(_ context.Context, id int64, status models.ContentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it, ok := m.items[id]; ok {
		it.Status = status
	}
	return nil
}

func (m *memItems) Finish(_ context.Context, id int64, status models.ContentStatus, log map[models.Channel]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it, ok := m.items[id]; ok {
		it.Status = status
		it.PublishLog = log
	}
	return nil
}

func (m *memItems) MergePublishLog(_ context.Context, id int64, channel models.Channel, message string, promote bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil
	}
	if it.PublishLog == nil {
		it.PublishLog = map[models.Channel]string{}
	}
	it.PublishLog[channel] = message
	if promote && it.Status == models.StatusFailed {
		it.Status = models.StatusPublished
	}
	return nil
}

func (m *memItems) status(id int64) models.ContentStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id].Status
}

type memMedia map[int64][]models.MediaRef

func (m memMedia) Create(_ context.Context, _ *sql.Tx, id int64, ref *models.MediaRef) (int64, error) {
	m[id] = append(m[id], *ref)
	return int64(len(m[id])), nil
}

func (m memMedia) ListByContentItemID(_ context.Context, id int64) ([]models.MediaRef, error) {
	return m[id], nil
}

type memAttempts struct {
	mu   sync.Mutex
	logs []*models.ChannelAttemptLog
}

func (m *memAttempts) Create(_ context.Context, l *models.ChannelAttemptLog) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = int64(len(m.logs) + 1)
	l.CreatedAt = time.Now()
	m.logs = append(m.logs, l)
	return l.ID, nil
}

func (m *memAttempts) ListByContentItemID(_ context.Context, id int64) ([]*models.ChannelAttemptLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ChannelAttemptLog
	for _, l := range m.logs {
		if l.ContentItemID == id {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memAttempts) CountSuccesses(_ context.Context, clientID int64, channel models.Channel, from, to time.Time) (int, error) {
	return 0, nil
}

func (m *memAttempts) byStatus(status models.AttemptStatus) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.logs {
		if l.Status == status {
			n++
		}
	}
	return n
}

type memJobs struct {
	mu   sync.Mutex
	jobs map[string]*models.PublishJob
}

func newMemJobs(jobs ...*models.PublishJob) *memJobs {
	m := &memJobs{jobs: make(map[string]*models.PublishJob)}
	for _, j := range jobs {
		m.jobs[j.ID] = j
	}
	return m
}

func (m *memJobs) Replace(_ context.Context, _ *sql.Tx, job *models.PublishJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, j := range m.jobs {
		if j.ContentItemID == job.ContentItemID {
			delete(m.jobs, id)
		}
	}
	m.jobs[job.ID] = job
	return nil
}

func (m *memJobs) DeleteByContentItemID(_ context.Context, _ *sql.Tx, itemID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := false
	for id, j := range m.jobs {
		if j.ContentItemID == itemID {
			delete(m.jobs, id)
			deleted = true
		}
	}
	return deleted, nil
}

func (m *memJobs) GetByContentItemID(_ context.Context, itemID int64) (*models.PublishJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.ContentItemID == itemID {
			return j, nil
		}
	}
	return nil, nil
}

func (m *memJobs) Claim(_ context.Context, id string) (*models.PublishJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, nil
	}
	delete(m.jobs, id)
	return j, nil
}

func (m *memJobs) ClaimDue(_ context.Context, now time.Time, limit int) ([]*models.PublishJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*models.PublishJob
	for _, j := range m.jobs {
		if !j.FireAt.After(now) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(i, k int) bool { return due[i].FireAt.Before(due[k].FireAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	for _, j := range due {
		delete(m.jobs, j.ID)
	}
	return due, nil
}

func (m *memJobs) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// memRetryPurger counts queued retries per item and records purges.
type memRetryPurger struct {
	mu      sync.Mutex
	pending map[int64]int
	purged  []int64
}

func (m *memRetryPurger) DeleteByContentItemID(_ context.Context, _ *sql.Tx, id int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purged = append(m.purged, id)
	n := m.pending[id]
	delete(m.pending, id)
	return int64(n), nil
}

func (m *memRetryPurger) count(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending[id]
}

type staticCredentials struct {
	mu    sync.Mutex
	calls map[string]int
	creds map[string]*service.Credentials
}

func (s *staticCredentials) Credentials(_ context.Context, _ int64, platform string) (*service.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[platform]++
	c, ok := s.creds[platform]
	if !ok {
		return nil, retry.New(retry.CodeAuthenticationFailed, "no "+platform+" account connected")
	}
	return c, nil
}

type stubAdapter struct {
	mu       sync.Mutex
	calls    int
	requests []*service.PublishRequest
	publish  func(req *service.PublishRequest) (*service.PublishResult, error)
}

func (a *stubAdapter) Publish(_ context.Context, req *service.PublishRequest) (*service.PublishResult, error) {
	a.mu.Lock()
	a.calls++
	a.requests = append(a.requests, req)
	a.mu.Unlock()
	return a.publish(req)
}

func succeedWith(remoteID string) *stubAdapter {
	return &stubAdapter{publish: func(req *service.PublishRequest) (*service.PublishResult, error) {
		return &service.PublishResult{RemoteID: remoteID, Message: "Published " + remoteID}, nil
	}}
}

func failWith(perr *retry.Error) *stubAdapter {
	return &stubAdapter{publish: func(req *service.PublishRequest) (*service.PublishResult, error) {
		return nil, perr
	}}
}

type retryItemStore struct {
	mu    sync.Mutex
	items []*models.RetryItem
}

func (s *retryItemStore) Insert(_ context.Context, item *models.RetryItem, _, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, item)
	return nil
}

func (s *retryItemStore) ClaimDue(context.Context, time.Time, time.Duration, int) ([]*models.RetryItem, error) {
	return nil, nil
}

func (s *retryItemStore) Claim(context.Context, string, time.Time, time.Duration) (*models.RetryItem, error) {
	return nil, retry.ErrItemNotFound
}

func (s *retryItemStore) Reschedule(context.Context, *models.RetryItem) error { return nil }
func (s *retryItemStore) Release(context.Context, *models.RetryItem) error    { return nil }
func (s *retryItemStore) Delete(context.Context, string) error                { return nil }

func (s *retryItemStore) List(context.Context, int) ([]*models.RetryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (r *recordingNotifier) Notify(_ context.Context, msg notify.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}
