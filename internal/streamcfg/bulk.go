package streamcfg

import (
	"context"
	"fmt"

	"github.com/t0ops/runconfig/internal/placement"
	"github.com/t0ops/runconfig/internal/policy"
	"github.com/t0ops/runconfig/internal/store"
	"github.com/t0ops/runconfig/internal/wmspec"
)

// Repack workflows run single-core with a fixed memory request.
const repackMemory = 1000

func (e *Engine) buildBulk(ctx context.Context, info *store.RunInfo, sp policy.StreamPolicy, datasets []string) (*streamPlan, error) {
	run := info.RunID
	stream := sp.Name
	repack := sp.Repack
	if repack == nil {
		return nil, fmt.Errorf("stream %s: bulk style without repack parameters", stream)
	}

	online, err := e.store.GetStreamOnlineVersion(ctx, run, stream)
	if err != nil {
		return nil, err
	}
	version := sp.ResolveVersion(online)
	if version == "" {
		return nil, fmt.Errorf("stream %s: no CMSSW version: neither override nor online version known for run %d", stream, run)
	}
	arch := e.policy.Global.PlatformFor(version)

	unmergedLFN, mergedLFN := repackLFNBases(info)

	plan := &streamPlan{
		style:            policy.StyleBulk,
		workflowName:     fmt.Sprintf("Repack_Run%d_Stream%s", run, stream),
		taskType:         "Repack",
		versions:         []string{version},
		datasetScenarios: make(map[string]string),
		fileset:          fmt.Sprintf("Run%d_Stream%s", run, stream),
		releaseDatasets:  make(map[string]string),
		releaseProcVer:   fmt.Sprintf("v%d", repack.ProcessingVersion),
	}

	req := &wmspec.WorkflowRequest{
		Run:            run,
		AcquisitionEra: info.AcquisitionEra,
		Valid:          !info.ValidationMode,
		CMSSWVersion:   version,
		ScramArch:      arch,

		ProcessingVersion: repack.ProcessingVersion,

		UnmergedLFNBase: unmergedLFN,
		MergedLFNBase:   mergedLFN,

		SiteWhitelist: []string{info.ProcessingSite},

		Multicore: 1,
		Memory:    repackMemory,

		RequestPriority: e.policy.Global.BaseRequestPriority + 5000,

		MaxSizeSingleLumi: repack.MaxSizeSingleLumi,
		MaxSizeMultiLumi:  repack.MaxSizeMultiLumi,
		MinInputSize:      repack.MinInputSize,
		MaxInputSize:      repack.MaxInputSize,
		MaxEdmSize:        repack.MaxEdmSize,
		MaxOverSize:       repack.MaxOverSize,
		MaxInputEvents:    repack.MaxInputEvents,
		MaxInputFiles:     repack.MaxInputFiles,
		MaxLatency:        repack.MaxLatency,
		BlockCloseDelay:   repack.BlockCloseDelay,

		StreamName: stream,
	}

	for _, dataset := range datasets {
		paths, err := e.store.GetDatasetTriggers(ctx, run, dataset)
		if err != nil {
			return nil, err
		}
		req.Outputs = append(req.Outputs, wmspec.OutputModule{
			DataTier:       "RAW",
			EventContent:   "ALL",
			PrimaryDataset: dataset,
			SelectEvents:   selectEvents(paths, info.Process),
		})
		plan.releaseDatasets[fmt.Sprintf("write_%s_RAW", dataset)] = dataset

		dp := e.policy.DatasetPolicyFor(dataset)
		plan.datasetScenarios[dataset] = dp.Scenario
		plan.replicaRows = append(plan.replicaRows, replicaRow{
			dataset:  dataset,
			archival: dp.ArchivalNode,
			tape:     dp.TapeNode,
			disk:     dp.DiskNode,
		})

		plan.subs = append(plan.subs, placement.Plan(dataset,
			placement.TierSets{Tape: []string{"RAW"}},
			placement.Nodes{Tape: dp.TapeNode, Disk: dp.DiskNode, Archival: dp.ArchivalNode},
		)...)

		// The error partition collects repack rejects. It only ever
		// goes to the archival node, custodial and auto-approved.
		if dp.ArchivalNode != "" {
			plan.subs = append(plan.subs, placement.SubscriptionRequest{
				Dataset:          dataset + "-Error",
				DataTier:         "RAW",
				CustodialSites:   []string{dp.ArchivalNode},
				AutoApproveSites: []string{dp.ArchivalNode},
				Priority:         "high",
				CustodialGroup:   "DataOps",
				DeleteFromSource: true,
			})
		}
	}

	plan.request = req
	plan.repackRow = &store.RepackConfigRow{
		Run:    run,
		Stream: stream,

		ProcVersion:       repack.ProcessingVersion,
		MaxSizeSingleLumi: repack.MaxSizeSingleLumi,
		MaxSizeMultiLumi:  repack.MaxSizeMultiLumi,
		MinInputSize:      repack.MinInputSize,
		MaxInputSize:      repack.MaxInputSize,
		MaxEdmSize:        repack.MaxEdmSize,
		MaxOverSize:       repack.MaxOverSize,
		MaxInputEvents:    repack.MaxInputEvents,
		MaxInputFiles:     repack.MaxInputFiles,
		MaxLatency:        repack.MaxLatency,
		BlockCloseDelay:   repack.BlockCloseDelay,

		CMSSW:     version,
		ScramArch: arch,
	}
	return plan, nil
}
