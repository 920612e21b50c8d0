package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/t0ops/runconfig/internal/conferr"
)

// ReleaseCandidate is an unreleased (run, dataset) pair whose run has
// ended, together with the upstream fileset and repack processing
// version recorded at stream configuration time.
type ReleaseCandidate struct {
	Run           uint32
	Dataset       string
	Fileset       string
	RepackProcVer string
	StopTime      int64
}

// InsertRecoRelease writes the release bookkeeping row for a
// (run, dataset) pair, initially unreleased.
func (s *Store) InsertRecoRelease(tx *sql.Tx, run uint32, dataset, fileset, repackProcVer string) error {
	if err := internName(tx, "primary_dataset", dataset); err != nil {
		return err
	}
	_, err := tx.Exec(`
		INSERT INTO reco_release_config (run_id, dataset_id, fileset, repack_proc_ver)
		VALUES (?, (SELECT id FROM primary_dataset WHERE name = ?), ?, ?)
		ON CONFLICT DO NOTHING
	`, run, dataset, fileset, repackProcVer)
	if err != nil {
		return fmt.Errorf("insert release config for (%d, %s): %w", run, dataset, err)
	}
	return nil
}

// FindReleaseDatasets returns the distinct dataset names that have at
// least one unreleased row, sorted by name.
func (s *Store) FindReleaseDatasets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT pd.name
		FROM reco_release_config rrc
		JOIN primary_dataset pd ON pd.id = rrc.dataset_id
		WHERE rrc.released = 0
		ORDER BY pd.name
	`)
	if err != nil {
		return nil, fmt.Errorf("find release datasets: %w", err)
	}
	defer rows.Close()

	var datasets []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("find release datasets: %w", err)
		}
		datasets = append(datasets, name)
	}
	return datasets, rows.Err()
}

// FindPendingReleases returns every unreleased (run, dataset) pair
// whose run has ended, in ascending run order. Delay filtering
// happens in the caller since the delay depends on per-dataset
// policy.
func (s *Store) FindPendingReleases(ctx context.Context) ([]ReleaseCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rrc.run_id, pd.name, rrc.fileset, rrc.repack_proc_ver, r.stop_time
		FROM reco_release_config rrc
		JOIN primary_dataset pd ON pd.id = rrc.dataset_id
		JOIN run r ON r.run_id = rrc.run_id
		WHERE rrc.released = 0 AND r.stop_time > 0
		ORDER BY rrc.run_id, pd.name
	`)
	if err != nil {
		return nil, fmt.Errorf("find pending releases: %w", err)
	}
	defer rows.Close()

	var candidates []ReleaseCandidate
	for rows.Next() {
		var c ReleaseCandidate
		if err := rows.Scan(&c.Run, &c.Dataset, &c.Fileset, &c.RepackProcVer, &c.StopTime); err != nil {
			return nil, fmt.Errorf("find pending releases: %w", err)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// FindUnreleased returns every unreleased (run, dataset) pair
// regardless of whether the run has ended, in ascending run order.
// StopTime is zero for runs still taking data.
func (s *Store) FindUnreleased(ctx context.Context) ([]ReleaseCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rrc.run_id, pd.name, rrc.fileset, rrc.repack_proc_ver, r.stop_time
		FROM reco_release_config rrc
		JOIN primary_dataset pd ON pd.id = rrc.dataset_id
		JOIN run r ON r.run_id = rrc.run_id
		WHERE rrc.released = 0
		ORDER BY rrc.run_id, pd.name
	`)
	if err != nil {
		return nil, fmt.Errorf("find unreleased: %w", err)
	}
	defer rows.Close()

	var candidates []ReleaseCandidate
	for rows.Next() {
		var c ReleaseCandidate
		if err := rows.Scan(&c.Run, &c.Dataset, &c.Fileset, &c.RepackProcVer, &c.StopTime); err != nil {
			return nil, fmt.Errorf("find unreleased: %w", err)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// MarkReleased flips the release flag for a (run, dataset) pair.
// Returns a release conflict error if the pair was already released,
// so a concurrent double release fails instead of silently merging.
func (s *Store) MarkReleased(tx *sql.Tx, run uint32, dataset string, releasedAt int64) error {
	res, err := tx.Exec(`
		UPDATE reco_release_config
		SET released = 1, released_at = ?
		WHERE run_id = ?
		  AND dataset_id = (SELECT id FROM primary_dataset WHERE name = ?)
		  AND released = 0
	`, releasedAt, run, dataset)
	if err != nil {
		return fmt.Errorf("mark released (%d, %s): %w", run, dataset, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark released (%d, %s): %w", run, dataset, err)
	}
	if n == 0 {
		return conferr.NewReleaseConflict(run, dataset)
	}
	return nil
}

// RecoConfigRow is the persisted reconstruction parameter set written
// when a dataset is released.
type RecoConfigRow struct {
	Run     uint32
	Dataset string

	DoReco       bool
	RecoSplit    int
	WriteRECO    bool
	WriteAOD     bool
	WriteMINIAOD bool
	WriteDQM     bool

	CMSSW            string
	ScramArch        string
	GlobalTag        string
	GlobalTagConnect string
	ProcVersion      string

	AlcaSkims    string
	PhysicsSkims string
	DqmSequences string
	Multicore    int
}

// InsertRecoConfig persists the reconstruction parameter set.
func (s *Store) InsertRecoConfig(tx *sql.Tx, row RecoConfigRow) error {
	_, err := tx.Exec(`
		INSERT INTO reco_config
		(run_id, dataset_id, do_reco, reco_split, write_reco, write_aod, write_miniaod,
		 write_dqm, cmssw_id, scram_arch, global_tag, global_tag_connect, proc_version,
		 alca_skims, physics_skims, dqm_sequences, multicore)
		VALUES (?, (SELECT id FROM primary_dataset WHERE name = ?), ?, ?, ?, ?, ?, ?,
		        (SELECT id FROM software_version WHERE name = ?), ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		row.Run, row.Dataset,
		boolToInt(row.DoReco), row.RecoSplit,
		boolToInt(row.WriteRECO), boolToInt(row.WriteAOD),
		boolToInt(row.WriteMINIAOD), boolToInt(row.WriteDQM),
		row.CMSSW, row.ScramArch,
		row.GlobalTag, row.GlobalTagConnect, row.ProcVersion,
		row.AlcaSkims, row.PhysicsSkims, row.DqmSequences,
		row.Multicore,
	)
	if err != nil {
		return fmt.Errorf("insert reco config for (%d, %s): %w", row.Run, row.Dataset, err)
	}
	return nil
}
