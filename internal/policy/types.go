package policy

// ProcessingStyle determines how a stream's data is handled.
type ProcessingStyle string

const (
	// StyleBulk repacks raw streamer files into RAW datasets.
	StyleBulk ProcessingStyle = "Bulk"

	// StyleExpress runs low-latency reduced processing.
	StyleExpress ProcessingStyle = "Express"

	// StyleIgnore disables automated processing for the stream.
	StyleIgnore ProcessingStyle = "Ignore"
)

// Valid reports whether the style is one of the known styles.
func (s ProcessingStyle) Valid() bool {
	switch s {
	case StyleBulk, StyleExpress, StyleIgnore:
		return true
	}
	return false
}

// GlobalPolicy holds run-wide settings that do not belong to a
// particular stream or dataset.
type GlobalPolicy struct {
	AcquisitionEra string

	// Backfill labels test traffic; empty means production. A non-empty
	// label redirects merged output under /store/backfill/<label>.
	Backfill string

	BulkDataType   string
	ProcessingSite string

	BulkInjectNode       string
	ExpressInjectNode    string
	ExpressSubscribeNode string

	DQMDataTier  string
	DQMUploadURL string

	// AlcaHarvestTimeout and ConditionUploadTimeout are seconds past
	// the run stop time.
	AlcaHarvestTimeout     int64
	AlcaHarvestDir         string
	ConditionUploadTimeout int64
	DropboxHost            string
	ValidationMode         bool

	BaseRequestPriority int

	// ScramArches maps a software version to its build platform.
	// Versions not listed fall back to DefaultScramArch.
	ScramArches      map[string]string
	DefaultScramArch string

	Version string
}

// PlatformFor returns the build platform for a software version,
// falling back to the process-wide default.
func (g GlobalPolicy) PlatformFor(version string) string {
	if arch, ok := g.ScramArches[version]; ok {
		return arch
	}
	return g.DefaultScramArch
}

// RepackPolicy holds the thresholds for bulk repacking of a stream.
// All sizes are bytes, all delays and latencies are seconds.
type RepackPolicy struct {
	ProcessingVersion int

	MaxSizeSingleLumi int64
	MaxSizeMultiLumi  int64
	MinInputSize      int64
	MaxInputSize      int64

	// MaxEdmSize caps repack merge output; larger lumis are broken up
	// and routed to the error dataset.
	MaxEdmSize int64

	// MaxOverSize allows overmerge past MaxInputSize, never past
	// MaxEdmSize (clamped at load time).
	MaxOverSize int64

	MaxInputEvents  int64
	MaxInputFiles   int
	MaxLatency      int64
	BlockCloseDelay int64
}

// ExpressPolicy holds the configuration for express streams.
type ExpressPolicy struct {
	Scenario  string
	DataTiers []string

	GlobalTag        string
	GlobalTagConnect string

	// RecoVersion is only set when the reconstruction step runs with a
	// different software version than repacking; empty means the
	// stream's resolved processing version is used throughout.
	RecoVersion string

	Multicore         int
	AlcaSkims         []string
	WriteDQM          bool
	DqmSequences      []string
	ProcessingVersion int

	TimePerEvent float64
	SizePerEvent int64

	MaxInputRate    int64
	MaxInputEvents  int64
	MaxInputSize    int64
	MaxInputFiles   int
	MaxLatency      int64
	HarvestInterval int64
	BlockCloseDelay int64
}

// StreamPolicy is the per-stream processing policy. Exactly one of
// Repack or Express is set, matching Style.
type StreamPolicy struct {
	Name  string
	Style ProcessingStyle

	// VersionOverride maps an online software version to the version
	// actually used offline. Unlisted versions are used as-is.
	VersionOverride map[string]string

	Repack  *RepackPolicy
	Express *ExpressPolicy
}

// ResolveVersion maps the stream's last observed online software
// version through the override table.
func (s StreamPolicy) ResolveVersion(onlineVersion string) string {
	if v, ok := s.VersionOverride[onlineVersion]; ok {
		return v
	}
	return onlineVersion
}

// DatasetPolicy is the per-dataset reconstruction and placement policy.
type DatasetPolicy struct {
	Name     string
	Scenario string

	DoReco bool

	// RecoDelay is the seconds past run stop before the dataset is
	// released for reconstruction. RecoDelayOffset shifts the release
	// earlier; during the offset window the settings are locked in and
	// the release is treated as already decided.
	RecoDelay       int64
	RecoDelayOffset int64

	ProcessingVersion Override
	Version           Override
	GlobalTag         Override
	GlobalTagConnect  string

	RecoSplit int

	WriteRECO    bool
	WriteAOD     bool
	WriteMINIAOD bool
	WriteDQM     bool

	ArchivalNode string
	TapeNode     string
	DiskNode     string

	Multicore    int
	AlcaSkims    []string
	PhysicsSkims []string

	// SkimTiers lists data tiers produced through the skim pathway;
	// they get the dual tape+disk placement with the skim flag set.
	SkimTiers []string

	DqmSequences []string

	BlockCloseDelay int64
	SiteWhitelist   []string

	TimePerEvent float64
	SizePerEvent int64
}

// Policy is the full offline configuration: global settings plus the
// stream and dataset sections, each with an optional Default entry.
type Policy struct {
	Global   GlobalPolicy
	Streams  map[string]StreamPolicy
	Datasets map[string]DatasetPolicy
}

// StreamPolicyFor returns the policy for a stream. Streams without an
// explicit section fall back to the Default section; without one, a
// synthesized bulk repack policy applies.
func (p *Policy) StreamPolicyFor(name string) StreamPolicy {
	if sc, ok := p.Streams[name]; ok {
		return sc
	}
	if def, ok := p.Streams["Default"]; ok {
		def.Name = name
		return def
	}
	sc := defaultStreamPolicy()
	sc.Name = name
	return sc
}

// DatasetPolicyFor returns the policy for a dataset, falling back to
// the Default section. The zero policy (reconstruction disabled, no
// placement) applies when neither exists.
func (p *Policy) DatasetPolicyFor(name string) DatasetPolicy {
	if dc, ok := p.Datasets[name]; ok {
		return dc
	}
	if def, ok := p.Datasets["Default"]; ok {
		def.Name = name
		return def
	}
	return DatasetPolicy{Name: name}
}
