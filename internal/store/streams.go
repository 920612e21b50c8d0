package store

import (
	"context"
	"database/sql"
	"fmt"
)

// GetStreamDatasets returns the datasets mapped to a stream for a
// run, sorted by name.
func (s *Store) GetStreamDatasets(ctx context.Context, run uint32, stream string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pd.name
		FROM run_stream_dataset_assoc a
		JOIN stream st ON st.id = a.stream_id
		JOIN primary_dataset pd ON pd.id = a.dataset_id
		WHERE a.run_id = ? AND st.name = ?
		ORDER BY pd.name
	`, run, stream)
	if err != nil {
		return nil, fmt.Errorf("get datasets for (%d, %s): %w", run, stream, err)
	}
	defer rows.Close()

	var datasets []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("get datasets for (%d, %s): %w", run, stream, err)
		}
		datasets = append(datasets, name)
	}
	return datasets, rows.Err()
}

// GetDatasetTriggers returns the trigger paths assigned to a dataset
// for a run, sorted lexicographically.
func (s *Store) GetDatasetTriggers(ctx context.Context, run uint32, dataset string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tp.name
		FROM run_trigger_dataset_assoc a
		JOIN trigger_path tp ON tp.id = a.trigger_id
		JOIN primary_dataset pd ON pd.id = a.dataset_id
		WHERE a.run_id = ? AND pd.name = ?
		ORDER BY tp.name
	`, run, dataset)
	if err != nil {
		return nil, fmt.Errorf("get triggers for (%d, %s): %w", run, dataset, err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("get triggers for (%d, %s): %w", run, dataset, err)
		}
		paths = append(paths, name)
	}
	return paths, rows.Err()
}

// GetStreamOnlineVersion returns the CMSSW version the HLT reported
// for a (run, stream), or "" when none was recorded.
func (s *Store) GetStreamOnlineVersion(ctx context.Context, run uint32, stream string) (string, error) {
	var version string
	err := s.db.QueryRowContext(ctx, `
		SELECT sv.name
		FROM run_stream_online_version v
		JOIN stream st ON st.id = v.stream_id
		JOIN software_version sv ON sv.id = v.version_id
		WHERE v.run_id = ? AND st.name = ?
	`, run, stream).Scan(&version)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get online version for (%d, %s): %w", run, stream, err)
	}
	return version, nil
}

// SetStreamOnlineVersion records the CMSSW version the HLT used for a
// (run, stream).
func (s *Store) SetStreamOnlineVersion(ctx context.Context, run uint32, stream, version string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := internName(tx, "stream", stream); err != nil {
			return err
		}
		if err := internName(tx, "software_version", version); err != nil {
			return err
		}
		_, err := tx.Exec(`
			INSERT INTO run_stream_online_version (run_id, stream_id, version_id)
			VALUES (?,
			        (SELECT id FROM stream WHERE name = ?),
			        (SELECT id FROM software_version WHERE name = ?))
			ON CONFLICT DO NOTHING
		`, run, stream, version)
		if err != nil {
			return fmt.Errorf("set online version for (%d, %s): %w", run, stream, err)
		}
		return nil
	})
}

// HasStreamStyle reports whether a processing style was already
// committed for the (run, stream).
func (s *Store) HasStreamStyle(ctx context.Context, run uint32, stream string) (bool, error) {
	var style string
	err := s.db.QueryRowContext(ctx, `
		SELECT rs.style
		FROM run_stream_style rs
		JOIN stream st ON st.id = rs.stream_id
		WHERE rs.run_id = ? AND st.name = ?
	`, run, stream).Scan(&style)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get style for (%d, %s): %w", run, stream, err)
	}
	return true, nil
}

// InsertStreamStyle fixes the processing style for a (run, stream).
// Deliberately has no conflict clause: a concurrent second
// configuration of the same stream must fail at commit instead of
// merging.
func (s *Store) InsertStreamStyle(tx *sql.Tx, run uint32, stream, style string) error {
	if err := internName(tx, "stream", stream); err != nil {
		return err
	}
	_, err := tx.Exec(`
		INSERT INTO run_stream_style (run_id, stream_id, style)
		VALUES (?, (SELECT id FROM stream WHERE name = ?), ?)
	`, run, stream, style)
	if err != nil {
		return fmt.Errorf("insert style for (%d, %s): %w", run, stream, err)
	}
	return nil
}

// InsertStreamDone marks a (run, stream) as fully configured.
func (s *Store) InsertStreamDone(tx *sql.Tx, run uint32, stream string) error {
	_, err := tx.Exec(`
		INSERT INTO run_stream_done (run_id, stream_id)
		VALUES (?, (SELECT id FROM stream WHERE name = ?))
		ON CONFLICT DO NOTHING
	`, run, stream)
	if err != nil {
		return fmt.Errorf("insert done marker for (%d, %s): %w", run, stream, err)
	}
	return nil
}

// InsertSoftwareVersion interns a CMSSW version name.
func (s *Store) InsertSoftwareVersion(tx *sql.Tx, version string) error {
	return internName(tx, "software_version", version)
}

// InsertStorageNode interns a storage node name.
func (s *Store) InsertStorageNode(tx *sql.Tx, node string) error {
	return internName(tx, "storage_node", node)
}

// RepackConfigRow is the persisted repack parameter set for a bulk
// stream.
type RepackConfigRow struct {
	Run    uint32
	Stream string

	ProcVersion       int
	MaxSizeSingleLumi int64
	MaxSizeMultiLumi  int64
	MinInputSize      int64
	MaxInputSize      int64
	MaxEdmSize        int64
	MaxOverSize       int64
	MaxInputEvents    int64
	MaxInputFiles     int
	MaxLatency        int64
	BlockCloseDelay   int64

	CMSSW     string
	ScramArch string
}

// InsertRepackConfig persists the repack parameter set.
func (s *Store) InsertRepackConfig(tx *sql.Tx, row RepackConfigRow) error {
	_, err := tx.Exec(`
		INSERT INTO repack_config
		(run_id, stream_id, proc_version, max_size_single_lumi, max_size_multi_lumi,
		 min_input_size, max_input_size, max_edm_size, max_over_size, max_input_events,
		 max_input_files, max_latency, block_close_delay, cmssw_id, scram_arch)
		VALUES (?, (SELECT id FROM stream WHERE name = ?), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
		        (SELECT id FROM software_version WHERE name = ?), ?)
	`,
		row.Run, row.Stream,
		row.ProcVersion,
		row.MaxSizeSingleLumi, row.MaxSizeMultiLumi,
		row.MinInputSize, row.MaxInputSize,
		row.MaxEdmSize, row.MaxOverSize,
		row.MaxInputEvents, row.MaxInputFiles,
		row.MaxLatency, row.BlockCloseDelay,
		row.CMSSW, row.ScramArch,
	)
	if err != nil {
		return fmt.Errorf("insert repack config for (%d, %s): %w", row.Run, row.Stream, err)
	}
	return nil
}

// ExpressConfigRow is the persisted express parameter set.
type ExpressConfigRow struct {
	Run    uint32
	Stream string

	Scenario         string
	ProcVersion      int
	GlobalTag        string
	GlobalTagConnect string

	MaxInputRate    int64
	MaxInputEvents  int64
	MaxInputSize    int64
	MaxInputFiles   int
	MaxLatency      int64
	DQMInterval     int64
	BlockCloseDelay int64

	CMSSW         string
	ScramArch     string
	RecoCMSSW     string
	RecoScramArch string

	Multicore    int
	WriteDQM     bool
	AlcaSkims    string
	DqmSequences string
}

// InsertExpressConfig persists the express parameter set.
func (s *Store) InsertExpressConfig(tx *sql.Tx, row ExpressConfigRow) error {
	var recoCMSSW, recoArch any
	if row.RecoCMSSW != "" {
		recoCMSSW = row.RecoCMSSW
		recoArch = row.RecoScramArch
	}
	_, err := tx.Exec(`
		INSERT INTO express_config
		(run_id, stream_id, scenario, proc_version, global_tag, global_tag_connect,
		 max_input_rate, max_input_events, max_input_size, max_input_files, max_latency,
		 dqm_interval, block_close_delay, cmssw_id, scram_arch, reco_cmssw_id,
		 reco_scram_arch, multicore, write_dqm, alca_skims, dqm_sequences)
		VALUES (?, (SELECT id FROM stream WHERE name = ?), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
		        (SELECT id FROM software_version WHERE name = ?),
		        ?,
		        (SELECT id FROM software_version WHERE name = ?),
		        ?, ?, ?, ?, ?)
	`,
		row.Run, row.Stream,
		row.Scenario, row.ProcVersion,
		row.GlobalTag, row.GlobalTagConnect,
		row.MaxInputRate, row.MaxInputEvents,
		row.MaxInputSize, row.MaxInputFiles,
		row.MaxLatency, row.DQMInterval, row.BlockCloseDelay,
		row.CMSSW, row.ScramArch,
		recoCMSSW, recoArch,
		row.Multicore, boolToInt(row.WriteDQM),
		row.AlcaSkims, row.DqmSequences,
	)
	if err != nil {
		return fmt.Errorf("insert express config for (%d, %s): %w", row.Run, row.Stream, err)
	}
	return nil
}

// InsertSpecialDataset records the synthetic express dataset for a
// stream.
func (s *Store) InsertSpecialDataset(tx *sql.Tx, run uint32, stream, dataset string) error {
	if err := internName(tx, "primary_dataset", dataset); err != nil {
		return err
	}
	_, err := tx.Exec(`
		INSERT INTO special_dataset_assoc (run_id, stream_id, dataset_id)
		VALUES (?,
		        (SELECT id FROM stream WHERE name = ?),
		        (SELECT id FROM primary_dataset WHERE name = ?))
		ON CONFLICT DO NOTHING
	`, run, stream, dataset)
	if err != nil {
		return fmt.Errorf("insert special dataset for (%d, %s): %w", run, stream, err)
	}
	return nil
}

// InsertDatasetScenario records the event scenario used for a dataset
// in a run.
func (s *Store) InsertDatasetScenario(tx *sql.Tx, run uint32, dataset, scenario string) error {
	_, err := tx.Exec(`
		INSERT INTO dataset_scenario (run_id, dataset_id, scenario)
		VALUES (?, (SELECT id FROM primary_dataset WHERE name = ?), ?)
		ON CONFLICT DO NOTHING
	`, run, dataset, scenario)
	if err != nil {
		return fmt.Errorf("insert scenario for (%d, %s): %w", run, dataset, err)
	}
	return nil
}

// InsertCalibProducerCount records how many alignment producers an
// express stream configured.
func (s *Store) InsertCalibProducerCount(tx *sql.Tx, run uint32, stream string, producers int) error {
	_, err := tx.Exec(`
		INSERT INTO calibration_producer_count (run_id, stream_id, producers)
		VALUES (?, (SELECT id FROM stream WHERE name = ?), ?)
		ON CONFLICT DO NOTHING
	`, run, stream, producers)
	if err != nil {
		return fmt.Errorf("insert producer count for (%d, %s): %w", run, stream, err)
	}
	return nil
}

// InsertReplicaConfig records the storage nodes assigned to a dataset
// for a run. Empty node names are stored as NULL.
func (s *Store) InsertReplicaConfig(tx *sql.Tx, run uint32, dataset, archival, tape, disk string) error {
	for _, node := range []string{archival, tape, disk} {
		if node == "" {
			continue
		}
		if err := internName(tx, "storage_node", node); err != nil {
			return err
		}
	}
	_, err := tx.Exec(`
		INSERT INTO replica_config (run_id, dataset_id, archival_node_id, tape_node_id, disk_node_id)
		VALUES (?,
		        (SELECT id FROM primary_dataset WHERE name = ?),
		        (SELECT id FROM storage_node WHERE name = ?),
		        (SELECT id FROM storage_node WHERE name = ?),
		        (SELECT id FROM storage_node WHERE name = ?))
		ON CONFLICT DO NOTHING
	`, run, dataset, archival, tape, disk)
	if err != nil {
		return fmt.Errorf("insert replica config for (%d, %s): %w", run, dataset, err)
	}
	return nil
}

// GetReplicaNodes returns the storage nodes recorded for a dataset in
// a run. Missing assignments come back as empty strings.
func (s *Store) GetReplicaNodes(ctx context.Context, run uint32, dataset string) (archival, tape, disk string, err error) {
	var a, t, d sql.NullString
	err = s.db.QueryRowContext(ctx, `
		SELECT an.name, tn.name, dn.name
		FROM replica_config rc
		JOIN primary_dataset pd ON pd.id = rc.dataset_id
		LEFT JOIN storage_node an ON an.id = rc.archival_node_id
		LEFT JOIN storage_node tn ON tn.id = rc.tape_node_id
		LEFT JOIN storage_node dn ON dn.id = rc.disk_node_id
		WHERE rc.run_id = ? AND pd.name = ?
	`, run, dataset).Scan(&a, &t, &d)
	if err == sql.ErrNoRows {
		return "", "", "", nil
	}
	if err != nil {
		return "", "", "", fmt.Errorf("get replica nodes for (%d, %s): %w", run, dataset, err)
	}
	return a.String, t.String, d.String, nil
}

// InsertStreamFileset records the processing fileset name for a
// (run, stream).
func (s *Store) InsertStreamFileset(tx *sql.Tx, run uint32, stream, fileset string) error {
	_, err := tx.Exec(`
		INSERT INTO run_stream_fileset (run_id, stream_id, fileset)
		VALUES (?, (SELECT id FROM stream WHERE name = ?), ?)
		ON CONFLICT DO NOTHING
	`, run, stream, fileset)
	if err != nil {
		return fmt.Errorf("insert fileset for (%d, %s): %w", run, stream, err)
	}
	return nil
}

// InsertWorkflowMonitoring records a submitted workflow for
// monitoring.
func (s *Store) InsertWorkflowMonitoring(tx *sql.Tx, workflow string, run uint32, fileset string) error {
	_, err := tx.Exec(`
		INSERT INTO workflow_monitoring (workflow, run_id, fileset)
		VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING
	`, workflow, run, fileset)
	if err != nil {
		return fmt.Errorf("insert monitoring for workflow %s: %w", workflow, err)
	}
	return nil
}

// GetWorkflowForFileset returns the monitored workflow feeding the
// given fileset in a run, or "" when none was recorded.
func (s *Store) GetWorkflowForFileset(ctx context.Context, run uint32, fileset string) (string, error) {
	var workflow string
	err := s.db.QueryRowContext(ctx, `
		SELECT workflow FROM workflow_monitoring WHERE run_id = ? AND fileset = ?
	`, run, fileset).Scan(&workflow)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get workflow for fileset (%d, %s): %w", run, fileset, err)
	}
	return workflow, nil
}

// MarkWorkflowInjected flags a monitored workflow as injected into
// the processing system.
func (s *Store) MarkWorkflowInjected(tx *sql.Tx, workflow string) error {
	_, err := tx.Exec(`
		UPDATE workflow_monitoring SET injected = 1 WHERE workflow = ?
	`, workflow)
	if err != nil {
		return fmt.Errorf("mark workflow %s injected: %w", workflow, err)
	}
	return nil
}
