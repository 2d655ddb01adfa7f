package jobcore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-memdb"
)

// MemStorage is an in-memory Storage implementation backed by
// github.com/hashicorp/go-memdb, indexed on state, batch_id, and
// parent_job_id on jobs, and is_enabled on recurring jobs. Range predicates
// memdb's field indexers don't express directly
// (scheduled_at <= now, "ordered by X ascending") are applied over the
// indexed candidate set in Go. It has no durability across restarts; it
// exists for tests and for embedders who don't need a durable backend.
type MemStorage struct {
	db *memdb.MemDB
}

// NewMemStorage builds an empty MemStorage.
func NewMemStorage() *MemStorage {
	db, err := memdb.NewMemDB(memStorageSchema())
	if err != nil {
		panic(fmt.Sprintf("jobcore: invalid in-memory storage schema: %v", err))
	}
	return &MemStorage{db: db}
}

func memStorageSchema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			"jobs": {
				Name: "jobs",
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					"state": {
						Name:    "state",
						Indexer: &memdb.IntFieldIndex{Field: "State"},
					},
					"batch_id": {
						Name:         "batch_id",
						AllowMissing: true,
						Indexer:      &memdb.StringFieldIndex{Field: "BatchID"},
					},
					"parent_job_id": {
						Name:         "parent_job_id",
						AllowMissing: true,
						Indexer:      &memdb.StringFieldIndex{Field: "ParentJobID"},
					},
				},
			},
			"recurring_jobs": {
				Name: "recurring_jobs",
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					"is_enabled": {
						Name:    "is_enabled",
						Indexer: &memdb.BoolFieldIndex{Field: "IsEnabled"},
					},
				},
			},
		},
	}
}

func wrapStorageErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStorageError, err)
}

// StoreJob implements Storage.
func (m *MemStorage) StoreJob(_ context.Context, job *Job) error {
	txn := m.db.Txn(true)
	cp := *job
	if err := txn.Insert("jobs", &cp); err != nil {
		txn.Abort()
		return wrapStorageErr(err)
	}
	txn.Commit()
	return nil
}

// UpdateJob implements Storage.
func (m *MemStorage) UpdateJob(_ context.Context, job *Job) error {
	txn := m.db.Txn(true)
	raw, err := txn.First("jobs", "id", job.ID)
	if err != nil {
		txn.Abort()
		return wrapStorageErr(err)
	}
	if raw == nil {
		txn.Abort()
		return fmt.Errorf("%w: job %q", ErrNotFound, job.ID)
	}
	cp := *job
	if err := txn.Insert("jobs", &cp); err != nil {
		txn.Abort()
		return wrapStorageErr(err)
	}
	txn.Commit()
	return nil
}

// GetJob implements Storage.
func (m *MemStorage) GetJob(_ context.Context, id string) (*Job, error) {
	txn := m.db.Txn(false)
	defer txn.Abort()
	raw, err := txn.First("jobs", "id", id)
	if err != nil {
		return nil, wrapStorageErr(err)
	}
	if raw == nil {
		return nil, nil
	}
	cp := *raw.(*Job)
	return &cp, nil
}

// DeleteJob implements Storage.
func (m *MemStorage) DeleteJob(_ context.Context, id string) error {
	txn := m.db.Txn(true)
	raw, err := txn.First("jobs", "id", id)
	if err != nil {
		txn.Abort()
		return wrapStorageErr(err)
	}
	if raw == nil {
		txn.Abort()
		return nil
	}
	if err := txn.Delete("jobs", raw); err != nil {
		txn.Abort()
		return wrapStorageErr(err)
	}
	txn.Commit()
	return nil
}

// GetScheduledJobs implements Storage.
func (m *MemStorage) GetScheduledJobs(_ context.Context, now time.Time, batchSize int) ([]*Job, error) {
	txn := m.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get("jobs", "state", int(JobStateScheduled))
	if err != nil {
		return nil, wrapStorageErr(err)
	}

	var due []*Job
	for raw := it.Next(); raw != nil; raw = it.Next() {
		j := raw.(*Job)
		if j.ScheduledAt != nil && !j.ScheduledAt.After(now) {
			cp := *j
			due = append(due, &cp)
		}
	}

	sort.Slice(due, func(i, k int) bool { return due[i].ScheduledAt.Before(*due[k].ScheduledAt) })
	if batchSize > 0 && len(due) > batchSize {
		due = due[:batchSize]
	}
	return due, nil
}

// GetJobsByState implements Storage.
func (m *MemStorage) GetJobsByState(_ context.Context, state JobState, batchSize int) ([]*Job, error) {
	txn := m.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get("jobs", "state", int(state))
	if err != nil {
		return nil, wrapStorageErr(err)
	}

	var jobs []*Job
	for raw := it.Next(); raw != nil; raw = it.Next() {
		cp := *raw.(*Job)
		jobs = append(jobs, &cp)
	}

	sort.Slice(jobs, func(i, k int) bool { return jobs[i].CreatedAt.Before(jobs[k].CreatedAt) })
	if batchSize > 0 && len(jobs) > batchSize {
		jobs = jobs[:batchSize]
	}
	return jobs, nil
}

// GetJobCount implements Storage.
func (m *MemStorage) GetJobCount(_ context.Context, state JobState) (int, error) {
	txn := m.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get("jobs", "state", int(state))
	if err != nil {
		return 0, wrapStorageErr(err)
	}

	count := 0
	for raw := it.Next(); raw != nil; raw = it.Next() {
		count++
	}
	return count, nil
}

// StoreBatch implements Storage.
func (m *MemStorage) StoreBatch(_ context.Context, batchID string, jobs []*Job) error {
	txn := m.db.Txn(true)
	for _, job := range jobs {
		cp := *job
		cp.BatchID = batchID
		if err := txn.Insert("jobs", &cp); err != nil {
			txn.Abort()
			return wrapStorageErr(err)
		}
	}
	txn.Commit()
	return nil
}

// GetBatchJobs implements Storage.
func (m *MemStorage) GetBatchJobs(_ context.Context, batchID string) ([]*Job, error) {
	txn := m.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get("jobs", "batch_id", batchID)
	if err != nil {
		return nil, wrapStorageErr(err)
	}

	var jobs []*Job
	for raw := it.Next(); raw != nil; raw = it.Next() {
		cp := *raw.(*Job)
		jobs = append(jobs, &cp)
	}
	return jobs, nil
}

// StoreContinuation implements Storage.
func (m *MemStorage) StoreContinuation(_ context.Context, parentID string, job *Job) error {
	txn := m.db.Txn(true)
	cp := *job
	cp.ParentJobID = parentID
	if err := txn.Insert("jobs", &cp); err != nil {
		txn.Abort()
		return wrapStorageErr(err)
	}
	txn.Commit()
	return nil
}

// GetContinuations implements Storage.
func (m *MemStorage) GetContinuations(_ context.Context, parentID string) ([]*Job, error) {
	txn := m.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get("jobs", "parent_job_id", parentID)
	if err != nil {
		return nil, wrapStorageErr(err)
	}

	var jobs []*Job
	for raw := it.Next(); raw != nil; raw = it.Next() {
		j := raw.(*Job)
		if j.State == JobStateAwaitingContinuation {
			cp := *j
			jobs = append(jobs, &cp)
		}
	}
	return jobs, nil
}

// StoreRecurringJob implements Storage.
func (m *MemStorage) StoreRecurringJob(_ context.Context, def *RecurringJob) error {
	txn := m.db.Txn(true)
	cp := *def
	if err := txn.Insert("recurring_jobs", &cp); err != nil {
		txn.Abort()
		return wrapStorageErr(err)
	}
	txn.Commit()
	return nil
}

// GetRecurringJobs implements Storage.
func (m *MemStorage) GetRecurringJobs(_ context.Context) ([]*RecurringJob, error) {
	txn := m.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get("recurring_jobs", "is_enabled", true)
	if err != nil {
		return nil, wrapStorageErr(err)
	}

	var defs []*RecurringJob
	for raw := it.Next(); raw != nil; raw = it.Next() {
		cp := *raw.(*RecurringJob)
		defs = append(defs, &cp)
	}
	return defs, nil
}

// RemoveRecurringJob implements Storage.
func (m *MemStorage) RemoveRecurringJob(_ context.Context, id string) error {
	txn := m.db.Txn(true)
	raw, err := txn.First("recurring_jobs", "id", id)
	if err != nil {
		txn.Abort()
		return wrapStorageErr(err)
	}
	if raw == nil {
		txn.Abort()
		return nil
	}
	if err := txn.Delete("recurring_jobs", raw); err != nil {
		txn.Abort()
		return wrapStorageErr(err)
	}
	txn.Commit()
	return nil
}

var _ Storage = (*MemStorage)(nil)
