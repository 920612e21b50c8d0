package harness

import (
	"context"
	"fmt"
)

func (h *Harness) evaluate(ctx context.Context, a Assertion) error {
	switch {
	case a.Workflow != nil:
		return h.assertWorkflow(a.Workflow)
	case a.WorkflowCount != nil:
		if got := len(h.submitter.Workflows()); got != *a.WorkflowCount {
			return fmt.Errorf("workflow count = %d, want %d", got, *a.WorkflowCount)
		}
		return nil
	case a.Released != nil:
		return h.assertReleased(ctx, a.Released)
	case a.PendingCount != nil:
		pending, err := h.store.FindPendingReleases(ctx)
		if err != nil {
			return err
		}
		if len(pending) != *a.PendingCount {
			return fmt.Errorf("pending count = %d, want %d", len(pending), *a.PendingCount)
		}
		return nil
	case a.Fileset != nil:
		return h.assertFileset(a.Fileset)
	}
	return fmt.Errorf("empty assertion")
}

func (h *Harness) assertWorkflow(want *WorkflowAssertion) error {
	wf := h.submitter.Workflow(want.Name)
	if wf == nil {
		return fmt.Errorf("workflow %s was not submitted", want.Name)
	}
	if want.Task != "" && wf.Task != want.Task {
		return fmt.Errorf("workflow %s: task = %s, want %s", want.Name, wf.Task, want.Task)
	}
	if want.Priority != nil && wf.Request.RequestPriority != *want.Priority {
		return fmt.Errorf("workflow %s: priority = %d, want %d", want.Name, wf.Request.RequestPriority, *want.Priority)
	}
	if want.Memory != nil && wf.Request.Memory != *want.Memory {
		return fmt.Errorf("workflow %s: memory = %d, want %d", want.Name, wf.Request.Memory, *want.Memory)
	}
	if want.Multicore != nil && wf.Request.Multicore != *want.Multicore {
		return fmt.Errorf("workflow %s: multicore = %d, want %d", want.Name, wf.Request.Multicore, *want.Multicore)
	}
	if want.GlobalTag != "" && wf.Request.GlobalTag != want.GlobalTag {
		return fmt.Errorf("workflow %s: global tag = %s, want %s", want.Name, wf.Request.GlobalTag, want.GlobalTag)
	}
	if want.Input != "" && wf.Request.InputDataset != want.Input {
		return fmt.Errorf("workflow %s: input = %s, want %s", want.Name, wf.Request.InputDataset, want.Input)
	}
	if want.Scenario != "" && wf.Request.Scenario != want.Scenario {
		return fmt.Errorf("workflow %s: scenario = %s, want %s", want.Name, wf.Request.Scenario, want.Scenario)
	}
	if want.Outputs != nil && len(wf.Request.Outputs) != *want.Outputs {
		return fmt.Errorf("workflow %s: outputs = %d, want %d", want.Name, len(wf.Request.Outputs), *want.Outputs)
	}
	if want.Subs != nil && len(wf.Subscriptions) != *want.Subs {
		return fmt.Errorf("workflow %s: subscriptions = %d, want %d", want.Name, len(wf.Subscriptions), *want.Subs)
	}
	return nil
}

func (h *Harness) assertReleased(ctx context.Context, want *ReleasedAssertion) error {
	pending, err := h.store.FindUnreleased(ctx)
	if err != nil {
		return err
	}
	for _, c := range pending {
		if c.Run == want.Run && c.Dataset == want.Dataset {
			return fmt.Errorf("(%d, %s) is still pending release", want.Run, want.Dataset)
		}
	}

	// The pair must have been recorded at all, otherwise "released"
	// would hold vacuously.
	var n int
	err = h.store.DB().QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM reco_release_config rrc
		JOIN primary_dataset pd ON pd.id = rrc.dataset_id
		WHERE rrc.run_id = ? AND pd.name = ? AND rrc.released = 1
	`, want.Run, want.Dataset).Scan(&n)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("(%d, %s) was never recorded for release", want.Run, want.Dataset)
	}
	return nil
}

func (h *Harness) assertFileset(want *FilesetAssertion) error {
	for _, sub := range h.registrar.Subscriptions() {
		if sub.Workflow != want.Workflow || sub.Fileset != want.Name {
			continue
		}
		if want.AlternativeClose != nil && sub.AlternativeClose != *want.AlternativeClose {
			return fmt.Errorf("fileset %s: alternativeClose = %v, want %v", want.Name, sub.AlternativeClose, *want.AlternativeClose)
		}
		return nil
	}
	return fmt.Errorf("no fileset subscription %s for workflow %s", want.Name, want.Workflow)
}
