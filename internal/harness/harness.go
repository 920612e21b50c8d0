package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"cuelang.org/go/cue/cuecontext"

	"github.com/t0ops/runconfig/internal/conferr"
	"github.com/t0ops/runconfig/internal/ingest"
	"github.com/t0ops/runconfig/internal/policy"
	"github.com/t0ops/runconfig/internal/release"
	"github.com/t0ops/runconfig/internal/store"
	"github.com/t0ops/runconfig/internal/streamcfg"
	"github.com/t0ops/runconfig/internal/testutil"
)

const defaultStartTime = 1_700_000_000

// Harness executes one scenario against a real store, with the
// submission service, fileset registrar and clock replaced by
// deterministic fakes.
type Harness struct {
	store     *store.Store
	policy    *policy.Policy
	submitter *testutil.FakeSubmitter
	registrar *testutil.FakeRegistrar
	clock     *testutil.FixedClock

	ingest    *ingest.Service
	engine    *streamcfg.Engine
	scheduler *release.Scheduler
}

// New builds a harness for the scenario: compiles its inline policy
// and opens a fresh database under dir.
func New(sc *Scenario, dir string) (*Harness, error) {
	v := cuecontext.New().CompileString(sc.Policy)
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile scenario policy: %w", err)
	}
	pol, err := policy.Parse(v)
	if err != nil {
		return nil, fmt.Errorf("parse scenario policy: %w", err)
	}

	st, err := store.Open(filepath.Join(dir, sc.Name+".db"))
	if err != nil {
		return nil, err
	}

	start := sc.StartTime
	if start == 0 {
		start = defaultStartTime
	}
	clock := testutil.NewFixedClock(time.Unix(start, 0))
	submitter := testutil.NewFakeSubmitter()
	registrar := testutil.NewFakeRegistrar()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &Harness{
		store:     st,
		policy:    pol,
		submitter: submitter,
		registrar: registrar,
		clock:     clock,
		ingest:    ingest.New(st, log),
		engine:    streamcfg.New(st, pol, submitter, registrar, log),
		scheduler: release.New(st, pol, submitter, registrar, clock, log),
	}, nil
}

// Close releases the harness database.
func (h *Harness) Close() error {
	return h.store.Close()
}

// Run executes the scenario's steps in order, then evaluates its
// assertions.
func (h *Harness) Run(ctx context.Context, sc *Scenario) error {
	for i, step := range sc.Steps {
		if err := h.runStep(ctx, step); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	for i, a := range sc.Assertions {
		if err := h.evaluate(ctx, a); err != nil {
			return fmt.Errorf("assertion %d: %w", i+1, err)
		}
	}
	return nil
}

func (h *Harness) runStep(ctx context.Context, step Step) error {
	switch {
	case step.Ingest != nil:
		s := step.Ingest
		var menu *ingest.TriggerConfig
		if s.Process != "" {
			menu = &ingest.TriggerConfig{Process: s.Process, Mapping: s.Streams}
		}
		err := h.ingest.IngestRun(ctx, s.Run, h.policy.Global, menu, s.HLTKey)
		return expectConfigError(err, s.ExpectError)

	case step.SetVersion != nil:
		s := step.SetVersion
		return h.store.SetStreamOnlineVersion(ctx, s.Run, s.Stream, s.Version)

	case step.Configure != nil:
		s := step.Configure
		err := h.engine.ConfigureStream(ctx, s.Run, s.Stream)
		return expectConfigError(err, s.ExpectError)

	case step.Stop != nil:
		return h.store.SetRunStopTime(ctx, step.Stop.Run, h.clock.Now().Unix())

	case step.Advance != nil:
		h.clock.Advance(time.Duration(step.Advance.Seconds) * time.Second)
		return nil

	case step.Release != nil:
		err := h.scheduler.ReleaseEligible(ctx)
		if step.Release.ExpectError {
			if err == nil {
				return fmt.Errorf("expected release pass to fail")
			}
			return nil
		}
		return err
	}
	return fmt.Errorf("empty step")
}

// expectConfigError checks a step outcome against its expectError
// clause.
func expectConfigError(err error, want string) error {
	if want == "" {
		return err
	}
	if err == nil {
		return fmt.Errorf("expected error %s, step succeeded", want)
	}
	var ce *conferr.ConfigError
	if !errors.As(err, &ce) || string(ce.Code) != want {
		return fmt.Errorf("expected error %s, got: %v", want, err)
	}
	return nil
}
