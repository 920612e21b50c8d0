// Package policy holds the typed offline processing policy: global run
// settings, per-stream repack/express configuration and per-dataset
// reconstruction and placement configuration.
//
// Policy files are written in CUE and loaded with LoadDir. A "Default"
// entry in the streams and datasets sections supplies fallback values
// for names that are not configured explicitly, mirroring how the
// online menu can reference streams and datasets the operators never
// wrote a section for.
//
// Values that vary by acquisition era or run number use the Override
// type, a tagged variant of {scalar | era mapping | run-threshold
// mapping}, resolved per field with Override.Resolve.
package policy
