package store

import (
	"context"
	"database/sql"
	"fmt"
)

// RunInfo is the policy snapshot recorded for a run at ingestion
// time.
type RunInfo struct {
	RunID   uint32
	Process string

	AcquisitionEra       string
	Backfill             string
	BulkDataType         string
	ProcessingSite       string
	BulkInjectNode       string
	ExpressInjectNode    string
	ExpressSubscribeNode string
	DQMUploadURL         string

	AlcaHarvestTimeout     int64
	AlcaHarvestDir         string
	ConditionUploadTimeout int64
	DropboxHost            string
	ValidationMode         bool

	HLTKey   string
	StopTime int64
}

// InsertRun records a run's policy snapshot. Duplicate ingestion of
// the same run is silently ignored.
func (s *Store) InsertRun(tx *sql.Tx, info RunInfo) error {
	_, err := tx.Exec(`
		INSERT INTO run
		(run_id, process, acquisition_era, backfill, bulk_data_type, processing_site,
		 bulk_inject_node, express_inject_node, express_subscribe_node, dqm_upload_url,
		 alca_harvest_timeout, alca_harvest_dir, condition_upload_timeout, dropbox_host,
		 validation_mode, hlt_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO NOTHING
	`,
		info.RunID,
		info.Process,
		info.AcquisitionEra,
		info.Backfill,
		info.BulkDataType,
		info.ProcessingSite,
		info.BulkInjectNode,
		info.ExpressInjectNode,
		info.ExpressSubscribeNode,
		info.DQMUploadURL,
		info.AlcaHarvestTimeout,
		info.AlcaHarvestDir,
		info.ConditionUploadTimeout,
		info.DropboxHost,
		boolToInt(info.ValidationMode),
		info.HLTKey,
	)
	if err != nil {
		return fmt.Errorf("insert run %d: %w", info.RunID, err)
	}
	return nil
}

// GetRunInfo returns the stored snapshot for a run, or nil if the run
// was never ingested.
func (s *Store) GetRunInfo(ctx context.Context, run uint32) (*RunInfo, error) {
	var info RunInfo
	var validMode int
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, process, acquisition_era, backfill, bulk_data_type, processing_site,
		       bulk_inject_node, express_inject_node, express_subscribe_node, dqm_upload_url,
		       alca_harvest_timeout, alca_harvest_dir, condition_upload_timeout, dropbox_host,
		       validation_mode, hlt_key, stop_time
		FROM run WHERE run_id = ?
	`, run).Scan(
		&info.RunID,
		&info.Process,
		&info.AcquisitionEra,
		&info.Backfill,
		&info.BulkDataType,
		&info.ProcessingSite,
		&info.BulkInjectNode,
		&info.ExpressInjectNode,
		&info.ExpressSubscribeNode,
		&info.DQMUploadURL,
		&info.AlcaHarvestTimeout,
		&info.AlcaHarvestDir,
		&info.ConditionUploadTimeout,
		&info.DropboxHost,
		&validMode,
		&info.HLTKey,
		&info.StopTime,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run %d: %w", run, err)
	}
	info.ValidationMode = validMode != 0
	return &info, nil
}

// SetRunStopTime records the run's end-of-data timestamp. The write
// happens at most once; later calls for an already ended run are
// no-ops.
func (s *Store) SetRunStopTime(ctx context.Context, run uint32, stopTime int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE run SET stop_time = ? WHERE run_id = ? AND stop_time = 0
	`, stopTime, run)
	if err != nil {
		return fmt.Errorf("set stop time for run %d: %w", run, err)
	}
	return nil
}

// InsertStreamDataset interns the stream and dataset names and links
// them for the run.
func (s *Store) InsertStreamDataset(tx *sql.Tx, run uint32, stream, dataset string) error {
	if err := internName(tx, "stream", stream); err != nil {
		return err
	}
	if err := internName(tx, "primary_dataset", dataset); err != nil {
		return err
	}
	_, err := tx.Exec(`
		INSERT INTO run_stream_dataset_assoc (run_id, stream_id, dataset_id)
		VALUES (?,
		        (SELECT id FROM stream WHERE name = ?),
		        (SELECT id FROM primary_dataset WHERE name = ?))
		ON CONFLICT DO NOTHING
	`, run, stream, dataset)
	if err != nil {
		return fmt.Errorf("insert stream dataset (%d, %s, %s): %w", run, stream, dataset, err)
	}
	return nil
}

// InsertTriggerAssignment interns the trigger path and links it to
// the dataset for the run.
func (s *Store) InsertTriggerAssignment(tx *sql.Tx, run uint32, path, dataset string) error {
	if err := internName(tx, "trigger_path", path); err != nil {
		return err
	}
	_, err := tx.Exec(`
		INSERT INTO run_trigger_dataset_assoc (run_id, trigger_id, dataset_id)
		VALUES (?,
		        (SELECT id FROM trigger_path WHERE name = ?),
		        (SELECT id FROM primary_dataset WHERE name = ?))
		ON CONFLICT DO NOTHING
	`, run, path, dataset)
	if err != nil {
		return fmt.Errorf("insert trigger assignment (%d, %s, %s): %w", run, path, dataset, err)
	}
	return nil
}

// internName inserts a name into one of the interning tables if not
// already present.
func internName(tx *sql.Tx, table, name string) error {
	_, err := tx.Exec(
		fmt.Sprintf("INSERT INTO %s (name) VALUES (?) ON CONFLICT(name) DO NOTHING", table),
		name,
	)
	if err != nil {
		return fmt.Errorf("intern %s %q: %w", table, name, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
