package policy

import "sort"

// RunThreshold attaches a value to an upper run-number bound.
type RunThreshold struct {
	MaxRun uint32
	Value  string
}

// Override is a configuration value that may vary by acquisition era
// or run number. It is either a plain scalar, returned unchanged, or a
// structured override holding an era mapping and/or a run-threshold
// mapping plus a mandatory default.
//
// The zero Override is unset (IsZero reports true) and resolves to "".
type Override struct {
	scalar string

	eraValues  map[string]string
	thresholds []RunThreshold
	def        string

	kind overrideKind
}

type overrideKind int

const (
	overrideUnset overrideKind = iota
	overrideScalar
	overrideStructured
)

// Scalar wraps a plain value.
func Scalar(v string) Override {
	return Override{scalar: v, kind: overrideScalar}
}

// Structured builds an override from an era mapping and/or a
// run-threshold mapping. Either mapping may be nil; the default is
// mandatory. Thresholds are kept sorted ascending by MaxRun regardless
// of input order.
func Structured(eraValues map[string]string, thresholds []RunThreshold, def string) Override {
	var m map[string]string
	if len(eraValues) > 0 {
		m = make(map[string]string, len(eraValues))
		for k, v := range eraValues {
			m[k] = v
		}
	}
	var ts []RunThreshold
	if len(thresholds) > 0 {
		ts = make([]RunThreshold, len(thresholds))
		copy(ts, thresholds)
		sort.Slice(ts, func(i, j int) bool { return ts[i].MaxRun < ts[j].MaxRun })
	}
	return Override{eraValues: m, thresholds: ts, def: def, kind: overrideStructured}
}

// IsZero reports whether the override was never set.
func (o Override) IsZero() bool {
	return o.kind == overrideUnset
}

// Resolve returns the concrete value for the given era and run.
//
// Resolution order: an era match wins; otherwise the run-threshold
// mapping is consulted; otherwise the default applies. A plain scalar
// is returned unchanged.
//
// Threshold semantics: the value of the highest threshold below the
// run applies, provided a threshold at or above the run still exists;
// once the run is past every threshold, or below the first one, the
// default applies. This reproduces the ascending-scan-and-overwrite
// behavior of the production configuration loader.
func (o Override) Resolve(era string, run uint32) string {
	switch o.kind {
	case overrideScalar:
		return o.scalar
	case overrideStructured:
		if v, ok := o.eraValues[era]; ok {
			return v
		}
		prev := o.def
		for _, t := range o.thresholds {
			if run <= t.MaxRun {
				return prev
			}
			prev = t.Value
		}
		return o.def
	default:
		return ""
	}
}
