// Package ingest records new runs and their trigger menu topology.
package ingest

import (
	"context"
	"database/sql"
	"log/slog"
	"sort"

	"github.com/t0ops/runconfig/internal/conferr"
	"github.com/t0ops/runconfig/internal/policy"
	"github.com/t0ops/runconfig/internal/store"
)

// UnassignedPathDataset is the sentinel dataset name the HLT uses for
// trigger paths not assigned to any dataset.
const UnassignedPathDataset = "Unassigned path"

// unassignedPathCutoverRun is the first run for which an unassigned
// path in the menu is a fatal error. Menus below it predate full path
// assignment and are accepted as-is.
const unassignedPathCutoverRun = 240000

// TriggerConfig is the trigger menu reported for a run: the HLT
// process name and the stream → dataset → trigger path topology.
type TriggerConfig struct {
	Process string
	Mapping map[string]map[string][]string
}

// Service ingests runs into the configuration store.
type Service struct {
	store *store.Store
	log   *slog.Logger
}

// New creates an ingestion service.
func New(st *store.Store, log *slog.Logger) *Service {
	return &Service{store: st, log: log}
}

// IngestRun records a run's policy snapshot and, when a trigger
// config is present, its full menu topology. A nil config marks a
// local run: the snapshot is still written, with the process, era and
// bulk data type defaulted to placeholders, and no streams or
// datasets are recorded.
//
// The whole ingestion is one transaction; any failure rolls back
// everything.
func (s *Service) IngestRun(ctx context.Context, run uint32, global policy.GlobalPolicy, cfg *TriggerConfig, hltKey string) error {
	info := store.RunInfo{
		RunID:                run,
		Process:              "FakeProcessName",
		AcquisitionEra:       global.AcquisitionEra,
		Backfill:             global.Backfill,
		BulkDataType:         global.BulkDataType,
		ProcessingSite:       global.ProcessingSite,
		BulkInjectNode:       global.BulkInjectNode,
		ExpressInjectNode:    global.ExpressInjectNode,
		ExpressSubscribeNode: global.ExpressSubscribeNode,
		DQMUploadURL:         global.DQMUploadURL,

		AlcaHarvestTimeout:     global.AlcaHarvestTimeout,
		AlcaHarvestDir:         global.AlcaHarvestDir,
		ConditionUploadTimeout: global.ConditionUploadTimeout,
		DropboxHost:            global.DropboxHost,
		ValidationMode:         global.ValidationMode,

		HLTKey: hltKey,
	}
	if cfg != nil {
		info.Process = cfg.Process
	} else {
		info.AcquisitionEra = "FakeAcquisitionEra"
		info.BulkDataType = "FakeBulkDataType"
	}

	if cfg != nil {
		if err := checkUnassignedPaths(run, cfg); err != nil {
			return err
		}
	}

	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.store.InsertRun(tx, info); err != nil {
			return err
		}

		for _, node := range []string{global.BulkInjectNode, global.ExpressInjectNode, global.ExpressSubscribeNode} {
			if node == "" {
				continue
			}
			if err := s.store.InsertStorageNode(tx, node); err != nil {
				return err
			}
		}

		if cfg == nil {
			return nil
		}
		return s.insertTopology(tx, run, cfg)
	})
	if err != nil {
		return err
	}

	if cfg == nil {
		s.log.Info("local run ingested", "run", run)
	} else {
		s.log.Info("run ingested",
			"run", run,
			"process", cfg.Process,
			"streams", len(cfg.Mapping))
	}
	return nil
}

func (s *Service) insertTopology(tx *sql.Tx, run uint32, cfg *TriggerConfig) error {
	streams := make([]string, 0, len(cfg.Mapping))
	for stream := range cfg.Mapping {
		streams = append(streams, stream)
	}
	sort.Strings(streams)

	for _, stream := range streams {
		datasets := make([]string, 0, len(cfg.Mapping[stream]))
		for dataset := range cfg.Mapping[stream] {
			datasets = append(datasets, dataset)
		}
		sort.Strings(datasets)

		for _, dataset := range datasets {
			if dataset == UnassignedPathDataset {
				continue
			}
			if err := s.store.InsertStreamDataset(tx, run, stream, dataset); err != nil {
				return err
			}
			paths := append([]string{}, cfg.Mapping[stream][dataset]...)
			sort.Strings(paths)
			for _, path := range paths {
				if err := s.store.InsertTriggerAssignment(tx, run, path, dataset); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// checkUnassignedPaths rejects menus with unassigned paths at or
// above the cutover run.
func checkUnassignedPaths(run uint32, cfg *TriggerConfig) error {
	if run < unassignedPathCutoverRun {
		return nil
	}
	streams := make([]string, 0, len(cfg.Mapping))
	for stream := range cfg.Mapping {
		streams = append(streams, stream)
	}
	sort.Strings(streams)
	for _, stream := range streams {
		if _, ok := cfg.Mapping[stream][UnassignedPathDataset]; ok {
			return conferr.NewUnassignedPath(run, stream)
		}
	}
	return nil
}
