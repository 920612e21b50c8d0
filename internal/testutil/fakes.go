package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/t0ops/runconfig/internal/placement"
	"github.com/t0ops/runconfig/internal/wmspec"
)

// SubmittedWorkflow records one Submit call observed by the
// FakeSubmitter, together with everything later attached to its
// handle.
type SubmittedWorkflow struct {
	Name    string
	Task    string
	Request wmspec.WorkflowRequest

	Subscriptions []placement.SubscriptionRequest
	Owner         *wmspec.OwnerDetails
	Limits        *wmspec.PerformanceLimits
}

// FakeSubmitter is an in-memory wmspec.SubmissionService.
//
// FailOn makes Submit fail for a given workflow name, for testing
// rollback paths.
type FakeSubmitter struct {
	mu        sync.Mutex
	workflows []*SubmittedWorkflow

	FailOn map[string]error
}

// NewFakeSubmitter creates an empty fake submission service.
func NewFakeSubmitter() *FakeSubmitter {
	return &FakeSubmitter{}
}

// Submit records the request and returns a handle bound to it.
func (f *FakeSubmitter) Submit(ctx context.Context, name, task string, req wmspec.WorkflowRequest) (wmspec.WorkflowHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.FailOn[name]; ok {
		return nil, err
	}

	wf := &SubmittedWorkflow{Name: name, Task: task, Request: req}
	f.workflows = append(f.workflows, wf)
	return &fakeHandle{submitter: f, wf: wf}, nil
}

// Workflows returns every recorded submission in order.
func (f *FakeSubmitter) Workflows() []*SubmittedWorkflow {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*SubmittedWorkflow{}, f.workflows...)
}

// Workflow returns the recorded submission with the given name, or
// nil.
func (f *FakeSubmitter) Workflow(name string) *SubmittedWorkflow {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, wf := range f.workflows {
		if wf.Name == name {
			return wf
		}
	}
	return nil
}

type fakeHandle struct {
	submitter *FakeSubmitter
	wf        *SubmittedWorkflow
}

func (h *fakeHandle) ID() string { return h.wf.Name }

func (h *fakeHandle) MergeOutputMapping() map[string]string {
	mapping := make(map[string]string)
	for _, out := range h.wf.Request.Outputs {
		if out.PrimaryDataset == "" {
			continue
		}
		mapping[fmt.Sprintf("write_%s_%s", out.PrimaryDataset, out.DataTier)] = out.PrimaryDataset
	}
	return mapping
}

func (h *fakeHandle) AttachSubscriptions(subs []placement.SubscriptionRequest) error {
	h.submitter.mu.Lock()
	defer h.submitter.mu.Unlock()
	h.wf.Subscriptions = append(h.wf.Subscriptions, subs...)
	return nil
}

func (h *fakeHandle) SetOwner(owner wmspec.OwnerDetails) error {
	h.submitter.mu.Lock()
	defer h.submitter.mu.Unlock()
	h.wf.Owner = &owner
	return nil
}

func (h *fakeHandle) SetPerformanceLimits(limits wmspec.PerformanceLimits) error {
	h.submitter.mu.Lock()
	defer h.submitter.mu.Unlock()
	h.wf.Limits = &limits
	return nil
}

// RegisteredSubscription records one CreateSubscription call.
type RegisteredSubscription struct {
	Workflow         string
	Fileset          string
	AlternativeClose bool
}

// FakeRegistrar is an in-memory wmspec.FilesetRegistrar.
type FakeRegistrar struct {
	mu            sync.Mutex
	subscriptions []RegisteredSubscription

	// Err makes every CreateSubscription call fail.
	Err error
}

// NewFakeRegistrar creates an empty fake registrar.
func NewFakeRegistrar() *FakeRegistrar {
	return &FakeRegistrar{}
}

// CreateSubscription records the call.
func (f *FakeRegistrar) CreateSubscription(ctx context.Context, handle wmspec.WorkflowHandle, fileset string, alternativeClose bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.subscriptions = append(f.subscriptions, RegisteredSubscription{
		Workflow:         handle.ID(),
		Fileset:          fileset,
		AlternativeClose: alternativeClose,
	})
	return nil
}

// Subscriptions returns every recorded call in order.
func (f *FakeRegistrar) Subscriptions() []RegisteredSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RegisteredSubscription{}, f.subscriptions...)
}
