// Package streamcfg fixes the processing configuration of one
// (run, stream) pair.
//
// Each stream resolves to a processing style from policy: Bulk
// streams get a repack workflow, Express streams a low-latency
// express workflow, Ignore streams only a style marker. The whole
// configuration commits as a single transaction, keyed by the
// stream-style row, so configuring the same stream twice is either an
// idempotent no-op or a constraint failure for a concurrent writer.
package streamcfg

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/t0ops/runconfig/internal/conferr"
	"github.com/t0ops/runconfig/internal/placement"
	"github.com/t0ops/runconfig/internal/policy"
	"github.com/t0ops/runconfig/internal/store"
	"github.com/t0ops/runconfig/internal/wmspec"
)

// localRunProcess is the placeholder process name recorded for runs
// ingested without a trigger menu.
const localRunProcess = "FakeProcessName"

// Engine configures streams.
type Engine struct {
	store     *store.Store
	policy    *policy.Policy
	submitter wmspec.SubmissionService
	registrar wmspec.FilesetRegistrar
	log       *slog.Logger
}

// New creates a stream configuration engine.
func New(st *store.Store, pol *policy.Policy, submitter wmspec.SubmissionService, registrar wmspec.FilesetRegistrar, log *slog.Logger) *Engine {
	return &Engine{
		store:     st,
		policy:    pol,
		submitter: submitter,
		registrar: registrar,
		log:       log,
	}
}

// replicaRow is one dataset's storage-node assignment, persisted for
// the release scheduler.
type replicaRow struct {
	dataset  string
	archival string
	tape     string
	disk     string
}

// streamPlan is everything one stream configuration produces, built
// by the per-style strategies and committed in one transaction.
type streamPlan struct {
	style policy.ProcessingStyle

	workflowName string
	taskType     string
	request      *wmspec.WorkflowRequest
	subs         []placement.SubscriptionRequest

	versions []string

	repackRow  *store.RepackConfigRow
	expressRow *store.ExpressConfigRow

	specialDataset string
	calibProducers int

	datasetScenarios map[string]string
	replicaRows      []replicaRow
	storageNodes     []string

	fileset          string
	alternativeClose bool

	releaseDatasets map[string]string // merge module -> dataset
	releaseProcVer  string
}

// ConfigureStream fixes the configuration of one (run, stream) pair.
//
// Local runs (no trigger menu) are skipped. An already configured
// stream is an idempotent no-op. A non-Ignore stream without datasets
// is a fatal configuration error.
func (e *Engine) ConfigureStream(ctx context.Context, run uint32, stream string) error {
	info, err := e.store.GetRunInfo(ctx, run)
	if err != nil {
		return err
	}
	if info == nil {
		return conferr.NewRunNotFound(run)
	}
	if info.Process == localRunProcess {
		e.log.Info("skipping local run", "run", run, "stream", stream)
		return nil
	}

	configured, err := e.store.HasStreamStyle(ctx, run, stream)
	if err != nil {
		return err
	}
	if configured {
		e.log.Info("stream already configured", "run", run, "stream", stream)
		return nil
	}

	sp := e.policy.StreamPolicyFor(stream)

	datasets, err := e.store.GetStreamDatasets(ctx, run, stream)
	if err != nil {
		return err
	}
	if sp.Style != policy.StyleIgnore && len(datasets) == 0 {
		return conferr.NewNoDatasets(run, stream)
	}

	var plan *streamPlan
	switch sp.Style {
	case policy.StyleBulk:
		plan, err = e.buildBulk(ctx, info, sp, datasets)
	case policy.StyleExpress:
		plan, err = e.buildExpress(ctx, info, sp, datasets)
	case policy.StyleIgnore:
		plan = &streamPlan{style: policy.StyleIgnore}
	default:
		err = fmt.Errorf("stream %s: unknown processing style %q", stream, sp.Style)
	}
	if err != nil {
		return err
	}

	// Workflow submission happens outside the transaction: the spec
	// file write is idempotent, so a crash between submit and commit
	// is repaired by the retry overwriting the same spec.
	var handle wmspec.WorkflowHandle
	if plan.request != nil {
		handle, err = e.submitter.Submit(ctx, plan.workflowName, plan.taskType, *plan.request)
		if err != nil {
			return fmt.Errorf("submit %s: %w", plan.workflowName, err)
		}
		if err := handle.AttachSubscriptions(plan.subs); err != nil {
			return fmt.Errorf("attach subscriptions for %s: %w", plan.workflowName, err)
		}
		if err := handle.SetOwner(wmspec.DefaultOwner); err != nil {
			return fmt.Errorf("set owner for %s: %w", plan.workflowName, err)
		}
		if err := handle.SetPerformanceLimits(wmspec.DefaultPerformanceLimits); err != nil {
			return fmt.Errorf("set performance limits for %s: %w", plan.workflowName, err)
		}
	}

	err = e.store.WithTx(ctx, func(tx *sql.Tx) error {
		return e.commit(ctx, tx, run, stream, plan, handle)
	})
	if err != nil {
		return fmt.Errorf("configure stream (%d, %s): %w", run, stream, err)
	}

	e.log.Info("stream configured",
		"run", run,
		"stream", stream,
		"style", string(plan.style),
		"datasets", len(datasets))
	return nil
}

func (e *Engine) commit(ctx context.Context, tx *sql.Tx, run uint32, stream string, plan *streamPlan, handle wmspec.WorkflowHandle) error {
	for _, version := range plan.versions {
		if err := e.store.InsertSoftwareVersion(tx, version); err != nil {
			return err
		}
	}
	for _, node := range plan.storageNodes {
		if err := e.store.InsertStorageNode(tx, node); err != nil {
			return err
		}
	}

	if plan.specialDataset != "" {
		if err := e.store.InsertSpecialDataset(tx, run, stream, plan.specialDataset); err != nil {
			return err
		}
		if err := e.store.InsertCalibProducerCount(tx, run, stream, plan.calibProducers); err != nil {
			return err
		}
	}

	for dataset, scenario := range plan.datasetScenarios {
		if err := e.store.InsertDatasetScenario(tx, run, dataset, scenario); err != nil {
			return err
		}
	}
	for _, row := range plan.replicaRows {
		if err := e.store.InsertReplicaConfig(tx, run, row.dataset, row.archival, row.tape, row.disk); err != nil {
			return err
		}
	}

	if plan.repackRow != nil {
		if err := e.store.InsertRepackConfig(tx, *plan.repackRow); err != nil {
			return err
		}
	}
	if plan.expressRow != nil {
		if err := e.store.InsertExpressConfig(tx, *plan.expressRow); err != nil {
			return err
		}
	}

	if err := e.store.InsertStreamStyle(tx, run, stream, string(plan.style)); err != nil {
		return err
	}

	if plan.fileset != "" {
		if err := e.store.InsertStreamFileset(tx, run, stream, plan.fileset); err != nil {
			return err
		}
		if err := e.registrar.CreateSubscription(ctx, handle, plan.fileset, plan.alternativeClose); err != nil {
			return fmt.Errorf("register fileset %s: %w", plan.fileset, err)
		}
		if err := e.store.InsertWorkflowMonitoring(tx, handle.ID(), run, plan.fileset); err != nil {
			return err
		}
	}

	if len(plan.releaseDatasets) > 0 {
		mapping := handle.MergeOutputMapping()
		for module, dataset := range mapping {
			if _, ok := plan.releaseDatasets[module]; !ok {
				continue
			}
			fileset := fmt.Sprintf("Run%d_Stream%s/%s", run, stream, module)
			if err := e.store.InsertRecoRelease(tx, run, dataset, fileset, plan.releaseProcVer); err != nil {
				return err
			}
		}
	}

	return e.store.InsertStreamDone(tx, run, stream)
}

// selectEvents pairs each trigger path with the run's process name.
func selectEvents(paths []string, process string) []string {
	out := make([]string, 0, len(paths))
	for _, path := range paths {
		out = append(out, fmt.Sprintf("%s:%s", path, process))
	}
	return out
}

// countCalibProducers counts the alignment producers in a skim list.
func countCalibProducers(skims []string) int {
	n := 0
	for _, skim := range skims {
		if strings.HasPrefix(skim, "PromptCalibProd") {
			n++
		}
	}
	return n
}
