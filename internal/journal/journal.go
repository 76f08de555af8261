// Package journal persists provisioning runs so resources left behind by a
// crashed or interrupted run can still be cleaned up.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/btree"
	"go.etcd.io/bbolt"

	"github.com/yairfalse/azalert/pkg/resource"
)

// Bucket names in bbolt
var (
	bucketRuns = []byte("runs")
	bucketMeta = []byte("meta")

	keySequence = []byte("sequence")
)

// ErrRunNotFound is returned when a run ID is not in the journal.
var ErrRunNotFound = errors.New("run not found")

// Status is the provisioning result of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Run is one journaled provisioning attempt.
type Run struct {
	ID         string              `json:"id"`
	Seq        int64               `json:"seq"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at,omitempty"`
	Status     Status              `json:"status"`
	GroupID    string              `json:"group_id,omitempty"`
	Resources  []resource.Resource `json:"resources,omitempty"`
	Steps      []resource.Step     `json:"steps,omitempty"`
	Error      string              `json:"error,omitempty"`
	Cleanup    string              `json:"cleanup,omitempty"`
}

// CleanedUp reports whether the run has nothing left in Azure.
func (r Run) CleanedUp() bool {
	switch r.Cleanup {
	case "deleted", "gone", "skipped":
		return true
	}
	return r.GroupID == ""
}

// indexEntry orders runs by start time.
type indexEntry struct {
	ID        string
	StartedAt time.Time
	Seq       int64
}

func lessEntry(a, b *indexEntry) bool {
	if !a.StartedAt.Equal(b.StartedAt) {
		return a.StartedAt.Before(b.StartedAt)
	}
	return a.Seq < b.Seq
}

// Journal is a bbolt-backed run log with an in-memory index by start time.
type Journal struct {
	mu sync.RWMutex

	// In-memory index for ordered listing
	index *btree.BTreeG[*indexEntry]
	byID  map[string]*indexEntry

	// On-disk storage
	db *bbolt.DB

	seq int64
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketRuns, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize journal: %w", err)
	}

	j := &Journal{
		index: btree.NewG[*indexEntry](32, lessEntry),
		byID:  make(map[string]*indexEntry),
		db:    db,
	}

	if err := j.rebuildIndex(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return j, nil
}

// Close closes the journal.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Begin records the start of a run. ID and StartedAt must be set.
func (j *Journal) Begin(run *Run) error {
	if run.ID == "" {
		return errors.New("run id required")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, exists := j.byID[run.ID]; exists {
		return fmt.Errorf("run %s already journaled", run.ID)
	}

	j.seq++
	run.Seq = j.seq
	if run.Status == "" {
		run.Status = StatusRunning
	}

	err := j.db.Update(func(tx *bbolt.Tx) error {
		if err := putRun(tx, run); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keySequence, []byte(strconv.FormatInt(j.seq, 10)))
	})
	if err != nil {
		j.seq--
		return fmt.Errorf("begin run %s: %w", run.ID, err)
	}

	e := &indexEntry{ID: run.ID, StartedAt: run.StartedAt, Seq: run.Seq}
	j.index.ReplaceOrInsert(e)
	j.byID[run.ID] = e
	return nil
}

// RecordGroup stores the resource group ID as soon as it exists, so a later
// sweep can delete it.
func (j *Journal) RecordGroup(runID, groupID string) error {
	return j.update(runID, func(r *Run) {
		r.GroupID = groupID
	})
}

// RecordResource appends a created resource to the run.
func (j *Journal) RecordResource(runID string, res resource.Resource) error {
	return j.update(runID, func(r *Run) {
		r.Resources = append(r.Resources, res)
	})
}

// RecordStep appends a step result to the run.
func (j *Journal) RecordStep(runID string, step resource.Step) error {
	return j.update(runID, func(r *Run) {
		r.Steps = append(r.Steps, step)
	})
}

// Finish closes the run with its final status and cleanup outcome.
func (j *Journal) Finish(runID string, status Status, cleanup string, runErr error) error {
	return j.update(runID, func(r *Run) {
		r.Status = status
		r.Cleanup = cleanup
		r.FinishedAt = time.Now().UTC()
		if runErr != nil {
			r.Error = runErr.Error()
		}
	})
}

// SetCleanup records the outcome of a later cleanup attempt.
func (j *Journal) SetCleanup(runID, cleanup string) error {
	return j.update(runID, func(r *Run) {
		r.Cleanup = cleanup
	})
}

// Get returns the run with the given ID.
func (j *Journal) Get(id string) (Run, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var run Run
	err := j.db.View(func(tx *bbolt.Tx) error {
		r, err := getRun(tx, id)
		if err != nil {
			return err
		}
		run = *r
		return nil
	})
	return run, err
}

// List returns up to limit runs, newest first. A limit <= 0 returns all.
func (j *Journal) List(limit int) ([]Run, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var ids []string
	j.index.Descend(func(e *indexEntry) bool {
		ids = append(ids, e.ID)
		return limit <= 0 || len(ids) < limit
	})

	return j.load(ids)
}

// Pending returns runs that created a resource group whose cleanup never
// completed, oldest first.
func (j *Journal) Pending() ([]Run, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var ids []string
	j.index.Ascend(func(e *indexEntry) bool {
		ids = append(ids, e.ID)
		return true
	})

	runs, err := j.load(ids)
	if err != nil {
		return nil, err
	}

	pending := runs[:0]
	for _, r := range runs {
		if !r.CleanedUp() {
			pending = append(pending, r)
		}
	}
	return pending, nil
}

// Helper functions

func (j *Journal) load(ids []string) ([]Run, error) {
	runs := make([]Run, 0, len(ids))
	err := j.db.View(func(tx *bbolt.Tx) error {
		for _, id := range ids {
			r, err := getRun(tx, id)
			if err != nil {
				return err
			}
			runs = append(runs, *r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

func (j *Journal) update(runID string, fn func(*Run)) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.db.Update(func(tx *bbolt.Tx) error {
		r, err := getRun(tx, runID)
		if err != nil {
			return err
		}
		fn(r)
		return putRun(tx, r)
	})
}

func (j *Journal) rebuildIndex() error {
	return j.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket(bucketMeta).Get(keySequence); data != nil {
			seq, err := strconv.ParseInt(string(data), 10, 64)
			if err != nil {
				return fmt.Errorf("parse journal sequence: %w", err)
			}
			j.seq = seq
		}

		return tx.Bucket(bucketRuns).ForEach(func(k, v []byte) error {
			var r Run
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("decode run %s: %w", k, err)
			}
			e := &indexEntry{ID: r.ID, StartedAt: r.StartedAt, Seq: r.Seq}
			j.index.ReplaceOrInsert(e)
			j.byID[r.ID] = e
			return nil
		})
	})
}

func getRun(tx *bbolt.Tx, id string) (*Run, error) {
	data := tx.Bucket(bucketRuns).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	var r Run
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", id, err)
	}
	return &r, nil
}

func putRun(tx *bbolt.Tx, r *Run) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", r.ID, err)
	}
	return tx.Bucket(bucketRuns).Put([]byte(r.ID), data)
}
