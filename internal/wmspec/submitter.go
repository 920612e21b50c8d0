package wmspec

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/t0ops/runconfig/internal/placement"
)

// SpecDirSubmitter is a SubmissionService writing one canonical JSON
// spec file per workflow into a directory. The processing system's
// injector picks the files up from there.
type SpecDirSubmitter struct {
	dir string
	log *slog.Logger
}

// NewSpecDirSubmitter creates a submitter writing into dir.
func NewSpecDirSubmitter(dir string, log *slog.Logger) *SpecDirSubmitter {
	return &SpecDirSubmitter{dir: dir, log: log}
}

// Submit serializes the request and writes the spec file. The file
// name is the workflow name, so re-submitting the same workflow
// overwrites its previous spec.
func (s *SpecDirSubmitter) Submit(ctx context.Context, name, task string, req WorkflowRequest) (WorkflowHandle, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create spec directory: %w", err)
	}

	h := &specHandle{
		submitter: s,
		id:        uuid.NewString(),
		name:      name,
		task:      task,
		req:       req,
	}
	if err := h.write(); err != nil {
		return nil, err
	}

	s.log.Info("workflow spec written",
		"workflow", name,
		"task", task,
		"run", req.Run,
		"id", h.id)
	return h, nil
}

// CreateSubscription records the workflow's input fileset in its spec
// document, making SpecDirSubmitter a FilesetRegistrar as well. The
// handle must come from this submitter's Submit.
func (s *SpecDirSubmitter) CreateSubscription(ctx context.Context, handle WorkflowHandle, fileset string, alternativeClose bool) error {
	h, ok := handle.(*specHandle)
	if !ok {
		return fmt.Errorf("workflow %s was not submitted through this service", handle.ID())
	}
	h.filesets = append(h.filesets, filesetSubscription{
		Name:             fileset,
		AlternativeClose: alternativeClose,
	})
	return h.write()
}

type filesetSubscription struct {
	Name             string
	AlternativeClose bool
}

type specHandle struct {
	submitter *SpecDirSubmitter
	id        string
	name      string
	task      string
	req       WorkflowRequest

	subs     []placement.SubscriptionRequest
	filesets []filesetSubscription
	owner    *OwnerDetails
	limits   *PerformanceLimits
}

func (h *specHandle) ID() string { return h.name }

// MergeOutputMapping derives the merge-output module name for every
// output that feeds a primary dataset.
func (h *specHandle) MergeOutputMapping() map[string]string {
	mapping := make(map[string]string)
	for _, out := range h.req.Outputs {
		if out.PrimaryDataset == "" {
			continue
		}
		module := fmt.Sprintf("write_%s_%s", out.PrimaryDataset, out.DataTier)
		mapping[module] = out.PrimaryDataset
	}
	return mapping
}

func (h *specHandle) AttachSubscriptions(subs []placement.SubscriptionRequest) error {
	h.subs = append(h.subs, subs...)
	return h.write()
}

func (h *specHandle) SetOwner(owner OwnerDetails) error {
	h.owner = &owner
	return h.write()
}

func (h *specHandle) SetPerformanceLimits(limits PerformanceLimits) error {
	h.limits = &limits
	return h.write()
}

// write serializes the full spec document and renames it into place
// so readers never observe a partial file.
func (h *specHandle) write() error {
	doc, err := h.document()
	if err != nil {
		return err
	}
	data, err := MarshalCanonical(doc)
	if err != nil {
		return fmt.Errorf("marshal spec for %s: %w", h.name, err)
	}

	path := filepath.Join(h.submitter.dir, h.name+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write spec for %s: %w", h.name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write spec for %s: %w", h.name, err)
	}
	return nil
}

// document flattens the handle into a canonical-JSON-compatible map.
// The round trip through encoding/json honors the request's omitempty
// tags.
func (h *specHandle) document() (map[string]any, error) {
	raw, err := json.Marshal(h.req)
	if err != nil {
		return nil, fmt.Errorf("marshal request for %s: %w", h.name, err)
	}
	var request map[string]any
	if err := json.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("marshal request for %s: %w", h.name, err)
	}

	doc := map[string]any{
		"workflow": h.name,
		"task":     h.task,
		"request":  request,
	}

	if len(h.subs) > 0 {
		subs := make([]any, 0, len(h.subs))
		for _, sub := range h.subs {
			subs = append(subs, map[string]any{
				"dataset":           sub.Dataset,
				"dataTier":          sub.DataTier,
				"custodialSites":    append([]string{}, sub.CustodialSites...),
				"nonCustodialSites": append([]string{}, sub.NonCustodialSites...),
				"autoApproveSites":  append([]string{}, sub.AutoApproveSites...),
				"priority":          sub.Priority,
				"custodialGroup":    sub.CustodialGroup,
				"nonCustodialGroup": sub.NonCustodialGroup,
				"deleteFromSource":  sub.DeleteFromSource,
				"isSkim":            sub.IsSkim,
			})
		}
		doc["subscriptions"] = subs
	}
	if len(h.filesets) > 0 {
		filesets := make([]any, 0, len(h.filesets))
		for _, fs := range h.filesets {
			filesets = append(filesets, map[string]any{
				"fileset":          fs.Name,
				"alternativeClose": fs.AlternativeClose,
			})
		}
		doc["inputFilesets"] = filesets
	}
	if h.owner != nil {
		doc["owner"] = map[string]any{
			"email": h.owner.Email,
			"group": h.owner.Group,
		}
	}
	if h.limits != nil {
		doc["performance"] = map[string]any{
			"maxRss":      h.limits.MaxRSS,
			"maxVSize":    h.limits.MaxVSize,
			"softTimeout": h.limits.SoftTimeout,
			"gracePeriod": h.limits.GracePeriod,
		}
	}
	return doc, nil
}
