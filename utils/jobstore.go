package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"leadpilot/models"
)

const jobTTL = 24 * time.Hour

var ErrJobNotFound = errors.New("job not found")

// JobStore keeps scrape jobs started through the API along with their
// progress events. Handlers stream events by polling Events with the number
// they have already seen.
type JobStore interface {
	Create(ctx context.Context, url string) (*models.ScrapeJob, error)
	Get(ctx context.Context, id string) (*models.ScrapeJob, error)
	Update(ctx context.Context, id string, status models.JobStatus, errMsg string) error
	AppendLead(ctx context.Context, id string, lead models.Lead) error
	AppendEvent(ctx context.Context, id string, event models.JobEvent) error
	Events(ctx context.Context, id string, from int) ([]models.JobEvent, error)
}

func newJob(url string) *models.ScrapeJob {
	now := time.Now()
	return &models.ScrapeJob{
		ID:        uuid.New().String(),
		URL:       url,
		Status:    models.JobRunning,
		Leads:     []models.Lead{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

type memoryJob struct {
	job    models.ScrapeJob
	events []models.JobEvent
}

// MemoryJobStore is a process-local JobStore.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*memoryJob
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]*memoryJob)}
}

func (s *MemoryJobStore) Create(_ context.Context, url string) (*models.ScrapeJob, error) {
	job := newJob(url)
	s.mu.Lock()
	s.jobs[job.ID] = &memoryJob{job: *job}
	s.mu.Unlock()
	return job, nil
}

func (s *MemoryJobStore) Get(_ context.Context, id string) (*models.ScrapeJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mj, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	job := mj.job
	job.Leads = append([]models.Lead(nil), mj.job.Leads...)
	return &job, nil
}

func (s *MemoryJobStore) Update(_ context.Context, id string, status models.JobStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mj, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	mj.job.Status = status
	mj.job.Error = errMsg
	mj.job.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryJobStore) AppendLead(_ context.Context, id string, lead models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mj, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	mj.job.Leads = append(mj.job.Leads, lead)
	mj.job.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryJobStore) AppendEvent(_ context.Context, id string, event models.JobEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mj, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	mj.events = append(mj.events, event)
	return nil
}

func (s *MemoryJobStore) Events(_ context.Context, id string, from int) ([]models.JobEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mj, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	if from < 0 {
		from = 0
	}
	if from >= len(mj.events) {
		return nil, nil
	}
	return append([]models.JobEvent(nil), mj.events[from:]...), nil
}

// RedisJobStore shares jobs between API instances. A job is a JSON value
// plus two lists for its leads and events, all expiring after a day.
type RedisJobStore struct {
	client *redis.Client
}

func NewRedisJobStore(client *redis.Client) *RedisJobStore {
	return &RedisJobStore{client: client}
}

func jobKey(id string) string    { return "leadpilot:job:" + id }
func leadsKey(id string) string  { return jobKey(id) + ":leads" }
func eventsKey(id string) string { return jobKey(id) + ":events" }

func (s *RedisJobStore) Create(ctx context.Context, url string) (*models.ScrapeJob, error) {
	job := newJob(url)
	if err := s.saveJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *RedisJobStore) saveJob(ctx context.Context, job *models.ScrapeJob) error {
	stored := *job
	stored.Leads = nil
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, jobKey(job.ID), data, jobTTL).Err()
}

func (s *RedisJobStore) loadJob(ctx context.Context, id string) (*models.ScrapeJob, error) {
	data, err := s.client.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	var job models.ScrapeJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decoding job %s: %w", id, err)
	}
	return &job, nil
}

func (s *RedisJobStore) Get(ctx context.Context, id string) (*models.ScrapeJob, error) {
	job, err := s.loadJob(ctx, id)
	if err != nil {
		return nil, err
	}
	raw, err := s.client.LRange(ctx, leadsKey(id), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	job.Leads = make([]models.Lead, 0, len(raw))
	for _, item := range raw {
		var lead models.Lead
		if err := json.Unmarshal([]byte(item), &lead); err != nil {
			return nil, fmt.Errorf("decoding lead: %w", err)
		}
		job.Leads = append(job.Leads, lead)
	}
	return job, nil
}

func (s *RedisJobStore) Update(ctx context.Context, id string, status models.JobStatus, errMsg string) error {
	job, err := s.loadJob(ctx, id)
	if err != nil {
		return err
	}
	job.Status = status
	job.Error = errMsg
	job.UpdatedAt = time.Now()
	return s.saveJob(ctx, job)
}

func (s *RedisJobStore) push(ctx context.Context, id, key string, value interface{}) error {
	exists, err := s.client.Exists(ctx, jobKey(id)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrJobNotFound
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, jobTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisJobStore) AppendLead(ctx context.Context, id string, lead models.Lead) error {
	return s.push(ctx, id, leadsKey(id), lead)
}

func (s *RedisJobStore) AppendEvent(ctx context.Context, id string, event models.JobEvent) error {
	return s.push(ctx, id, eventsKey(id), event)
}

func (s *RedisJobStore) Events(ctx context.Context, id string, from int) ([]models.JobEvent, error) {
	if from < 0 {
		from = 0
	}
	raw, err := s.client.LRange(ctx, eventsKey(id), int64(from), -1).Result()
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		exists, err := s.client.Exists(ctx, jobKey(id)).Result()
		if err != nil {
			return nil, err
		}
		if exists == 0 {
			return nil, ErrJobNotFound
		}
		return nil, nil
	}
	events := make([]models.JobEvent, 0, len(raw))
	for _, item := range raw {
		var ev models.JobEvent
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			return nil, fmt.Errorf("decoding event: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}
