// Package release runs the delayed-release pass that hands ended-run
// datasets over to reconstruction.
//
// Each pass is idempotent: eligibility is re-derived from the store
// on every invocation, and a released (run, dataset) pair never comes
// back. One run's releases form one transaction; a failure rolls the
// run back and the next pass retries it, while runs committed earlier
// in the same pass stay committed.
package release

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/t0ops/runconfig/internal/placement"
	"github.com/t0ops/runconfig/internal/policy"
	"github.com/t0ops/runconfig/internal/store"
	"github.com/t0ops/runconfig/internal/wmspec"
)

// Clock supplies "now" for eligibility checks. The scheduler holds no
// timers of its own; the caller's clock is read fresh on every pass.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Scheduler releases datasets for reconstruction once their post-run
// delay has elapsed.
type Scheduler struct {
	store     *store.Store
	policy    *policy.Policy
	submitter wmspec.SubmissionService
	registrar wmspec.FilesetRegistrar
	clock     Clock
	log       *slog.Logger
}

// New creates a release scheduler.
func New(st *store.Store, pol *policy.Policy, submitter wmspec.SubmissionService, registrar wmspec.FilesetRegistrar, clock Clock, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:     st,
		policy:    pol,
		submitter: submitter,
		registrar: registrar,
		clock:     clock,
		log:       log,
	}
}

// datasetRelease is one dataset's ready-to-commit release.
type datasetRelease struct {
	candidate store.ReleaseCandidate

	version     string
	recoRow     *store.RecoConfigRow
	workflow    wmspec.WorkflowHandle
	upstream    string
	storageNode []string
}

// ReleaseEligible runs one scheduler pass.
func (s *Scheduler) ReleaseEligible(ctx context.Context) error {
	now := s.clock.Now().Unix()

	candidates, err := s.store.FindPendingReleases(ctx)
	if err != nil {
		return err
	}

	byRun := make(map[uint32][]store.ReleaseCandidate)
	var runs []uint32
	for _, c := range candidates {
		dp := s.policy.DatasetPolicyFor(c.Dataset)
		if c.StopTime+dp.RecoDelay-dp.RecoDelayOffset > now {
			continue
		}
		if _, seen := byRun[c.Run]; !seen {
			runs = append(runs, c.Run)
		}
		byRun[c.Run] = append(byRun[c.Run], c)
	}

	// FindPendingReleases returns runs ascending, so the slice is
	// already ordered.
	for _, run := range runs {
		if err := s.releaseRun(ctx, run, byRun[run], now); err != nil {
			return fmt.Errorf("release run %d: %w", run, err)
		}
	}
	return nil
}

func (s *Scheduler) releaseRun(ctx context.Context, run uint32, candidates []store.ReleaseCandidate, now int64) error {
	info, err := s.store.GetRunInfo(ctx, run)
	if err != nil {
		return err
	}
	if info == nil {
		return fmt.Errorf("run not found")
	}

	releases := make([]*datasetRelease, 0, len(candidates))
	for _, c := range candidates {
		rel, err := s.buildRelease(ctx, info, c)
		if err != nil {
			return err
		}
		releases = append(releases, rel)
	}

	err = s.store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, rel := range releases {
			if rel.version != "" {
				if err := s.store.InsertSoftwareVersion(tx, rel.version); err != nil {
					return err
				}
			}
			for _, node := range rel.storageNode {
				if err := s.store.InsertStorageNode(tx, node); err != nil {
					return err
				}
			}
			if rel.recoRow != nil {
				if err := s.store.InsertRecoConfig(tx, *rel.recoRow); err != nil {
					return err
				}
			}
			if err := s.store.MarkReleased(tx, run, rel.candidate.Dataset, now); err != nil {
				return err
			}

			if rel.workflow == nil {
				continue
			}
			if err := s.registrar.CreateSubscription(ctx, rel.workflow, rel.candidate.Fileset, false); err != nil {
				return fmt.Errorf("register fileset %s: %w", rel.candidate.Fileset, err)
			}
			if rel.upstream != "" {
				if err := s.store.MarkWorkflowInjected(tx, rel.upstream); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("run released",
		"run", run,
		"datasets", len(releases))
	return nil
}

// buildRelease resolves policy for one candidate and, when the
// dataset does secondary processing, submits its reconstruction
// workflow. Submission happens before the transaction; spec writes
// are idempotent under retry.
func (s *Scheduler) buildRelease(ctx context.Context, info *store.RunInfo, c store.ReleaseCandidate) (*datasetRelease, error) {
	run := info.RunID
	dp := s.policy.DatasetPolicyFor(c.Dataset)
	era := info.AcquisitionEra

	rel := &datasetRelease{candidate: c}
	if !dp.DoReco {
		return rel, nil
	}

	version := dp.Version.Resolve(era, run)
	globalTag := dp.GlobalTag.Resolve(era, run)
	procVer := dp.ProcessingVersion.Resolve(era, run)
	if version == "" || globalTag == "" {
		return nil, fmt.Errorf("dataset %s: reconstruction enabled but version or global tag unresolved", c.Dataset)
	}
	arch := s.policy.Global.PlatformFor(version)
	rel.version = version

	tiers, writes := recoTierSets(dp, s.policy.Global.DQMDataTier)
	if writes == 0 {
		// No output tiers: release without a workflow.
		return rel, nil
	}

	archival, tape, disk, err := s.store.GetReplicaNodes(ctx, run, c.Dataset)
	if err != nil {
		return nil, err
	}
	subs := placement.Plan(c.Dataset, tiers, placement.Nodes{Tape: tape, Disk: disk, Archival: archival})
	for _, node := range []string{archival, tape, disk} {
		if node != "" {
			rel.storageNode = append(rel.storageNode, node)
		}
	}

	cores, memory := wmspec.Resources(dp.Scenario, dp.Multicore)
	memory += 100 * len(dp.PhysicsSkims)

	siteWhitelist := dp.SiteWhitelist
	if len(siteWhitelist) == 0 {
		siteWhitelist = []string{info.ProcessingSite}
	}

	unmergedLFN := "/store/unmerged/" + info.BulkDataType
	mergedLFN := "/store/" + info.BulkDataType
	if info.Backfill != "" {
		mergedLFN = fmt.Sprintf("/store/backfill/%s/%s", info.Backfill, info.BulkDataType)
	}

	req := wmspec.WorkflowRequest{
		Run:            run,
		AcquisitionEra: era,
		Valid:          !info.ValidationMode,
		CMSSWVersion:   version,
		ScramArch:      arch,

		Scenario:         dp.Scenario,
		GlobalTag:        globalTag,
		GlobalTagConnect: dp.GlobalTagConnect,

		ProcessingString: procVer,

		InputDataset: fmt.Sprintf("/%s/%s-%s/RAW", c.Dataset, era, c.RepackProcVer),

		UnmergedLFNBase: unmergedLFN,
		MergedLFNBase:   mergedLFN,

		SiteWhitelist: siteWhitelist,

		Multicore: cores,
		Memory:    memory,

		RequestPriority: s.policy.Global.BaseRequestPriority,

		RecoSplit:    dp.RecoSplit,
		WriteRECO:    dp.WriteRECO,
		WriteAOD:     dp.WriteAOD,
		WriteMINIAOD: dp.WriteMINIAOD,
		WriteDQM:     dp.WriteDQM,

		AlcaSkims:    dp.AlcaSkims,
		PhysicsSkims: dp.PhysicsSkims,
		DQMSequences: dp.DqmSequences,

		BlockCloseDelay: dp.BlockCloseDelay,

		TimePerEvent: dp.TimePerEvent,
		SizePerEvent: dp.SizePerEvent,
	}
	for _, tier := range outputTiers(dp, s.policy.Global.DQMDataTier) {
		req.Outputs = append(req.Outputs, wmspec.OutputModule{
			DataTier:       tier,
			EventContent:   tier,
			PrimaryDataset: c.Dataset,
		})
	}

	name := fmt.Sprintf("PromptReco_Run%d_%s", run, c.Dataset)
	handle, err := s.submitter.Submit(ctx, name, "PromptReco", req)
	if err != nil {
		return nil, fmt.Errorf("submit %s: %w", name, err)
	}
	if err := handle.AttachSubscriptions(subs); err != nil {
		return nil, fmt.Errorf("attach subscriptions for %s: %w", name, err)
	}
	if err := handle.SetOwner(wmspec.DefaultOwner); err != nil {
		return nil, fmt.Errorf("set owner for %s: %w", name, err)
	}
	if err := handle.SetPerformanceLimits(wmspec.DefaultPerformanceLimits); err != nil {
		return nil, fmt.Errorf("set performance limits for %s: %w", name, err)
	}
	rel.workflow = handle

	rel.upstream, err = s.upstreamWorkflow(ctx, run, c.Fileset)
	if err != nil {
		return nil, err
	}

	rel.recoRow = &store.RecoConfigRow{
		Run:     run,
		Dataset: c.Dataset,

		DoReco:       dp.DoReco,
		RecoSplit:    dp.RecoSplit,
		WriteRECO:    dp.WriteRECO,
		WriteAOD:     dp.WriteAOD,
		WriteMINIAOD: dp.WriteMINIAOD,
		WriteDQM:     dp.WriteDQM,

		CMSSW:            version,
		ScramArch:        arch,
		GlobalTag:        globalTag,
		GlobalTagConnect: dp.GlobalTagConnect,
		ProcVersion:      procVer,

		AlcaSkims:    strings.Join(dp.AlcaSkims, ","),
		PhysicsSkims: strings.Join(dp.PhysicsSkims, ","),
		DqmSequences: strings.Join(dp.DqmSequences, ","),
		Multicore:    cores,
	}
	return rel, nil
}

// upstreamWorkflow finds the repack workflow that owns the release
// candidate's fileset. The fileset is namespaced under the stream
// fileset, which is what workflow monitoring records. The lookup runs
// before the commit transaction: the store holds a single connection,
// so a pool-level query under an open transaction would block.
func (s *Scheduler) upstreamWorkflow(ctx context.Context, run uint32, fileset string) (string, error) {
	streamFileset := fileset
	if i := strings.IndexByte(fileset, '/'); i >= 0 {
		streamFileset = fileset[:i]
	}
	return s.store.GetWorkflowForFileset(ctx, run, streamFileset)
}

// recoTierSets categorizes the dataset's written tiers for replica
// placement. AOD-level tiers and DQM go to tape, analysis tiers to
// disk, skim output and calibration output through their own
// pathways.
func recoTierSets(dp policy.DatasetPolicy, dqmTier string) (placement.TierSets, int) {
	var tiers placement.TierSets

	written := outputTiers(dp, dqmTier)
	for _, tier := range written {
		switch tier {
		case "AOD", "MINIAOD", dqmTier:
			tiers.Tape = append(tiers.Tape, tier)
		}
		switch tier {
		case "AOD", "MINIAOD", "RECO":
			tiers.Disk = append(tiers.Disk, tier)
		}
	}
	tiers.Skim = append(tiers.Skim, dp.SkimTiers...)
	if len(dp.AlcaSkims) > 0 {
		tiers.Alca = []string{"ALCARECO"}
	}
	return tiers, len(written)
}

// outputTiers lists the data tiers a dataset's policy writes, in a
// fixed order.
func outputTiers(dp policy.DatasetPolicy, dqmTier string) []string {
	var tiers []string
	if dp.WriteRECO {
		tiers = append(tiers, "RECO")
	}
	if dp.WriteAOD {
		tiers = append(tiers, "AOD")
	}
	if dp.WriteMINIAOD {
		tiers = append(tiers, "MINIAOD")
	}
	if dp.WriteDQM {
		tiers = append(tiers, dqmTier)
	}
	if len(dp.AlcaSkims) > 0 {
		tiers = append(tiers, "ALCARECO")
	}
	return tiers
}
