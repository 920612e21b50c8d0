package wmspec

import (
	"context"
	"strings"

	"github.com/t0ops/runconfig/internal/placement"
)

// OutputModule declares one output of a workflow.
type OutputModule struct {
	DataTier       string   `json:"dataTier"`
	EventContent   string   `json:"eventContent"`
	PrimaryDataset string   `json:"primaryDataset"`
	SelectEvents   []string `json:"selectEvents,omitempty"`
}

// WorkflowRequest is the parameter bag submitted to the processing
// system. Only fields relevant to the request's task are set; zero
// values are omitted from the serialized spec.
type WorkflowRequest struct {
	Run            uint32 `json:"run"`
	AcquisitionEra string `json:"acquisitionEra"`
	Valid          bool   `json:"valid"`

	CMSSWVersion string `json:"cmsswVersion,omitempty"`
	ScramArch    string `json:"scramArch,omitempty"`

	RecoCMSSWVersion string `json:"recoCmsswVersion,omitempty"`
	RecoScramArch    string `json:"recoScramArch,omitempty"`

	Scenario             string `json:"scenario,omitempty"`
	GlobalTag            string `json:"globalTag,omitempty"`
	GlobalTagConnect     string `json:"globalTagConnect,omitempty"`
	GlobalTagTransaction string `json:"globalTagTransaction,omitempty"`

	ProcessingString  string `json:"processingString,omitempty"`
	ProcessingVersion int    `json:"processingVersion,omitempty"`

	InputDataset string `json:"inputDataset,omitempty"`

	UnmergedLFNBase string `json:"unmergedLfnBase,omitempty"`
	MergedLFNBase   string `json:"mergedLfnBase,omitempty"`

	SiteWhitelist []string `json:"siteWhitelist,omitempty"`

	Multicore int `json:"multicore,omitempty"`
	Memory    int `json:"memory,omitempty"`

	RequestPriority int `json:"requestPriority"`

	MaxSizeSingleLumi int64 `json:"maxSizeSingleLumi,omitempty"`
	MaxSizeMultiLumi  int64 `json:"maxSizeMultiLumi,omitempty"`
	MinInputSize      int64 `json:"minInputSize,omitempty"`
	MaxInputSize      int64 `json:"maxInputSize,omitempty"`
	MaxEdmSize        int64 `json:"maxEdmSize,omitempty"`
	MaxOverSize       int64 `json:"maxOverSize,omitempty"`
	MaxInputEvents    int64 `json:"maxInputEvents,omitempty"`
	MaxInputFiles     int   `json:"maxInputFiles,omitempty"`
	MaxLatency        int64 `json:"maxLatency,omitempty"`
	BlockCloseDelay   int64 `json:"blockCloseDelay,omitempty"`

	MaxInputRate int64    `json:"maxInputRate,omitempty"`
	DQMInterval  int64    `json:"dqmInterval,omitempty"`
	DQMUploadURL string   `json:"dqmUploadUrl,omitempty"`
	DQMSequences []string `json:"dqmSequences,omitempty"`

	AlcaSkims    []string `json:"alcaSkims,omitempty"`
	PhysicsSkims []string `json:"physicsSkims,omitempty"`

	RecoSplit    int  `json:"recoSplit,omitempty"`
	WriteRECO    bool `json:"writeReco,omitempty"`
	WriteAOD     bool `json:"writeAod,omitempty"`
	WriteMINIAOD bool `json:"writeMiniAod,omitempty"`
	WriteDQM     bool `json:"writeDqm,omitempty"`

	TimePerEvent float64 `json:"timePerEvent,omitempty"`
	SizePerEvent int64   `json:"sizePerEvent,omitempty"`

	StreamName string `json:"streamName,omitempty"`

	Outputs []OutputModule `json:"outputs,omitempty"`
}

// OwnerDetails identifies who a workflow runs on behalf of.
type OwnerDetails struct {
	Email string
	Group string
}

// PerformanceLimits bounds a workflow's resource usage.
type PerformanceLimits struct {
	MaxRSS      int64
	MaxVSize    int64
	SoftTimeout int64
	GracePeriod int64
}

// WorkflowHandle is the submission service's view of one submitted
// workflow.
type WorkflowHandle interface {
	// ID returns the workflow's unique name in the processing system.
	ID() string

	// MergeOutputMapping maps each merge-output module name to the
	// primary dataset it feeds.
	MergeOutputMapping() map[string]string

	// AttachSubscriptions records the replica subscriptions belonging
	// to this workflow.
	AttachSubscriptions(subs []placement.SubscriptionRequest) error

	// SetOwner attaches owner metadata.
	SetOwner(owner OwnerDetails) error

	// SetPerformanceLimits attaches resource bounds.
	SetPerformanceLimits(limits PerformanceLimits) error
}

// SubmissionService accepts workflow requests.
type SubmissionService interface {
	Submit(ctx context.Context, name, task string, req WorkflowRequest) (WorkflowHandle, error)
}

// FilesetRegistrar creates processing subscriptions between a
// workflow and a named input fileset.
type FilesetRegistrar interface {
	CreateSubscription(ctx context.Context, handle WorkflowHandle, fileset string, alternativeClose bool) error
}

// DefaultOwner is the operations identity attached to every
// automatically submitted workflow.
var DefaultOwner = OwnerDetails{
	Email: "t0-ops@cern.ch",
	Group: "T0",
}

// DefaultPerformanceLimits bounds automatic workflows: 10 GiB of
// RSS/VSize, one week of soft runtime and an hour of grace.
var DefaultPerformanceLimits = PerformanceLimits{
	MaxRSS:      10485760,
	MaxVSize:    10485760,
	SoftTimeout: 604800,
	GracePeriod: 3600,
}

const (
	normalBaseMemory    = 2000
	normalPerCoreMemory = 800

	heavyIonBaseMemory    = 3000
	heavyIonPerCoreMemory = 1300
)

// Resources computes the core count and memory request for a
// scenario. Heavy-ion scenarios carry a larger per-core footprint.
func Resources(scenario string, multicore int) (cores, memory int) {
	cores = multicore
	if cores < 1 {
		cores = 1
	}
	base, perCore := normalBaseMemory, normalPerCoreMemory
	if strings.Contains(scenario, "HeavyIons") {
		base, perCore = heavyIonBaseMemory, heavyIonPerCoreMemory
	}
	return cores, base + perCore*cores
}
