package streamcfg

import (
	"context"
	"fmt"
	"strings"

	"github.com/t0ops/runconfig/internal/placement"
	"github.com/t0ops/runconfig/internal/policy"
	"github.com/t0ops/runconfig/internal/store"
	"github.com/t0ops/runconfig/internal/wmspec"
)

// auxiliaryTiers are express tiers that never form a per-dataset
// output; they only exist on the stream's special dataset.
var auxiliaryTiers = map[string]bool{
	"ALCARECO": true,
	"DQM":      true,
	"DQMIO":    true,
}

func (e *Engine) buildExpress(ctx context.Context, info *store.RunInfo, sp policy.StreamPolicy, datasets []string) (*streamPlan, error) {
	run := info.RunID
	stream := sp.Name
	express := sp.Express
	if express == nil {
		return nil, fmt.Errorf("stream %s: express style without express parameters", stream)
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

	var recoVersion, recoArch string
	if express.RecoVersion != "" {
		recoVersion = express.RecoVersion
		recoArch = e.policy.Global.PlatformFor(recoVersion)
	}

	unmergedLFN, mergedLFN := expressLFNBases(info)
	specialDataset := "Stream" + stream
	cores, memory := wmspec.Resources(express.Scenario, express.Multicore)

	plan := &streamPlan{
		style:            policy.StyleExpress,
		workflowName:     fmt.Sprintf("Express_Run%d_Stream%s", run, stream),
		taskType:         "Express",
		versions:         []string{version},
		specialDataset:   specialDataset,
		calibProducers:   countCalibProducers(express.AlcaSkims),
		datasetScenarios: make(map[string]string),
		fileset:          fmt.Sprintf("Run%d_Stream%s", run, stream),
		alternativeClose: true,
	}
	if recoVersion != "" {
		plan.versions = append(plan.versions, recoVersion)
	}

	req := &wmspec.WorkflowRequest{
		Run:            run,
		AcquisitionEra: info.AcquisitionEra,
		Valid:          !info.ValidationMode,
		CMSSWVersion:   version,
		ScramArch:      arch,

		RecoCMSSWVersion: recoVersion,
		RecoScramArch:    recoArch,

		Scenario:             express.Scenario,
		GlobalTag:            express.GlobalTag,
		GlobalTagConnect:     express.GlobalTagConnect,
		GlobalTagTransaction: fmt.Sprintf("Express_%d", run),

		ProcessingVersion: express.ProcessingVersion,

		UnmergedLFNBase: unmergedLFN,
		MergedLFNBase:   mergedLFN,

		SiteWhitelist: []string{info.ProcessingSite},

		Multicore: cores,
		Memory:    memory,

		RequestPriority: e.policy.Global.BaseRequestPriority + 10000,

		MaxInputRate:    express.MaxInputRate,
		MaxInputEvents:  express.MaxInputEvents,
		MaxInputSize:    express.MaxInputSize,
		MaxInputFiles:   express.MaxInputFiles,
		MaxLatency:      express.MaxLatency,
		BlockCloseDelay: express.BlockCloseDelay,

		DQMInterval:  express.HarvestInterval,
		DQMUploadURL: info.DQMUploadURL,
		DQMSequences: express.DqmSequences,

		AlcaSkims: express.AlcaSkims,

		TimePerEvent: express.TimePerEvent,
		SizePerEvent: express.SizePerEvent,

		StreamName: stream,
	}

	// Per-dataset outputs carry only the non-auxiliary tiers; the
	// monitoring and calibration outputs belong to the special
	// dataset below.
	for _, dataset := range datasets {
		paths, err := e.store.GetDatasetTriggers(ctx, run, dataset)
		if err != nil {
			return nil, err
		}
		events := selectEvents(paths, info.Process)
		for _, tier := range express.DataTiers {
			if auxiliaryTiers[tier] {
				continue
			}
			req.Outputs = append(req.Outputs, wmspec.OutputModule{
				DataTier:       tier,
				EventContent:   tier,
				PrimaryDataset: dataset,
				SelectEvents:   events,
			})
		}

		dp := e.policy.DatasetPolicyFor(dataset)
		plan.datasetScenarios[dataset] = dp.Scenario
	}
	plan.datasetScenarios[specialDataset] = express.Scenario

	if express.WriteDQM {
		req.Outputs = append(req.Outputs, wmspec.OutputModule{
			DataTier:       e.policy.Global.DQMDataTier,
			EventContent:   "DQM",
			PrimaryDataset: specialDataset,
		})
	}
	if len(express.AlcaSkims) > 0 {
		req.Outputs = append(req.Outputs, wmspec.OutputModule{
			DataTier:       "ALCARECO",
			EventContent:   "ALCARECO",
			PrimaryDataset: specialDataset,
		})
	}

	// Express data is subscribed non-custodially to the subscribe
	// node so it is browsable immediately; the processing-site copy
	// is dropped once the transfer lands.
	if info.ExpressSubscribeNode != "" {
		for _, dataset := range append(append([]string{}, datasets...), specialDataset) {
			plan.subs = append(plan.subs, placement.SubscriptionRequest{
				Dataset:           dataset,
				NonCustodialSites: []string{info.ExpressSubscribeNode},
				AutoApproveSites:  []string{info.ExpressSubscribeNode},
				Priority:          "high",
				NonCustodialGroup: "AnalysisOps",
				DeleteFromSource:  true,
			})
		}
	}

	plan.request = req
	plan.expressRow = &store.ExpressConfigRow{
		Run:    run,
		Stream: stream,

		Scenario:         express.Scenario,
		ProcVersion:      express.ProcessingVersion,
		GlobalTag:        express.GlobalTag,
		GlobalTagConnect: express.GlobalTagConnect,

		MaxInputRate:    express.MaxInputRate,
		MaxInputEvents:  express.MaxInputEvents,
		MaxInputSize:    express.MaxInputSize,
		MaxInputFiles:   express.MaxInputFiles,
		MaxLatency:      express.MaxLatency,
		DQMInterval:     express.HarvestInterval,
		BlockCloseDelay: express.BlockCloseDelay,

		CMSSW:         version,
		ScramArch:     arch,
		RecoCMSSW:     recoVersion,
		RecoScramArch: recoArch,

		Multicore:    cores,
		WriteDQM:     express.WriteDQM,
		AlcaSkims:    strings.Join(express.AlcaSkims, ","),
		DqmSequences: strings.Join(express.DqmSequences, ","),
	}
	return plan, nil
}
