// Package wmspec models workflow requests handed to the processing
// system.
//
// A WorkflowRequest is a flat parameter bag assembled by the stream
// configuration engine or the release scheduler. The package defines
// the collaborator interfaces (submission service, fileset registrar)
// and a file-based SpecDirSubmitter that serializes each request to
// canonical JSON, which keeps spec files byte-identical across
// submissions of the same request.
package wmspec
