package jobqueue

import (
	"context"
	"fmt"
	"sync"
)

// FakeQueue is an in-memory Queue. Jobs are assigned sequential ids and
// report SUBMITTED until SetStatus changes them.
type FakeQueue struct {
	mu        sync.Mutex
	seq       int
	jobs      map[string]JobStatus
	requests  []SubmitRequest
	failNames map[string]error
	failIDs   map[string]error
	calls     [][]string
}

var _ Queue = (*FakeQueue)(nil)

// NewFakeQueue returns an empty FakeQueue.
func NewFakeQueue() *FakeQueue {
	return &FakeQueue{
		jobs:      make(map[string]JobStatus),
		failNames: make(map[string]error),
		failIDs:   make(map[string]error),
	}
}

// FailSubmit makes submitting jobName return err.
func (f *FakeQueue) FailSubmit(jobName string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNames[jobName] = err
}

// FailDescribe makes any Describe call that includes id return err.
func (f *FakeQueue) FailDescribe(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failIDs[id] = err
}

// SetStatus replaces the state reported for a job id.
func (f *FakeQueue) SetStatus(st JobStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[st.JobID] = st
}

// Forget drops a job so Describe no longer reports it.
func (f *FakeQueue) Forget(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.jobs, id)
}

// Requests returns every accepted submit request in order.
func (f *FakeQueue) Requests() []SubmitRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SubmitRequest(nil), f.requests...)
}

// DescribeCalls returns the id lists passed to Describe.
func (f *FakeQueue) DescribeCalls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.calls...)
}

func (f *FakeQueue) Submit(ctx context.Context, req SubmitRequest) (Submission, error) {
	if err := req.Validate(); err != nil {
		return Submission{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failNames[req.JobName]; err != nil {
		return Submission{}, err
	}
	f.seq++
	id := fmt.Sprintf("job-%04d", f.seq)
	f.jobs[id] = JobStatus{JobID: id, JobName: req.JobName, Status: "SUBMITTED"}
	f.requests = append(f.requests, req)
	return Submission{JobID: id, JobName: req.JobName}, nil
}

func (f *FakeQueue) Describe(ctx context.Context, ids []string) ([]JobStatus, error) {
	if len(ids) > MaxDescribeBatch {
		return nil, fmt.Errorf("%w: %d", ErrTooManyIDs, len(ids))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), ids...))
	for _, id := range ids {
		if err := f.failIDs[id]; err != nil {
			return nil, err
		}
	}
	var out []JobStatus
	for _, id := range ids {
		if st, ok := f.jobs[id]; ok {
			out = append(out, st)
		}
	}
	return out, nil
}
