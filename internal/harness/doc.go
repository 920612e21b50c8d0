// Package harness provides a conformance testing framework for the
// run configuration engine.
//
// Scenarios are YAML documents describing a run's lifecycle: the
// trigger menu it was ingested with, the stream configuration calls,
// run stop and clock movement, and release passes. The harness
// executes the steps against a real store and an in-memory workflow
// submission service, then evaluates the scenario's assertions
// against the submitted workflows and the release bookkeeping.
//
// A scenario carries its own offline configuration as inline CUE, so
// one file is a complete, reproducible description of a behavior:
//
//	name: bulk-stream-lifecycle
//	policy: |
//	  global: { ... }
//	  streams: { ... }
//	  datasets: { ... }
//	steps:
//	  - ingest: {run: 370000, process: HLT, streams: {...}}
//	  - configure: {run: 370000, stream: PhysicsA}
//	  - stop: {run: 370000}
//	  - advance: {seconds: 172800}
//	  - release: {}
//	assertions:
//	  - workflow: {name: PromptReco_Run370000_Cosmics, task: PromptReco}
//	  - released: {run: 370000, dataset: Cosmics}
package harness
