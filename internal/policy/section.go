package policy

import (
	"fmt"

	"cuelang.org/go/cue"
)

// section reads fields out of one CUE struct, remembering the first
// error it hits so callers can chain lookups without checking each
// one.
type section struct {
	val   cue.Value
	label string
	err   error
}

func (s *section) lookup(name string) (cue.Value, bool) {
	if s.err != nil {
		return cue.Value{}, false
	}
	v := s.val.LookupPath(cue.ParsePath(name))
	return v, v.Exists()
}

func (s *section) fail(name string, err error) {
	if s.err == nil {
		s.err = &LoadError{Code: ErrCodeBadValue, Message: fmt.Sprintf("%s.%s: %v", s.label, name, err)}
	}
}

func (s *section) reqStr(name string) string {
	v, ok := s.lookup(name)
	if !ok {
		if s.err == nil {
			s.err = &LoadError{Code: ErrCodeMissingField, Message: fmt.Sprintf("%s.%s is required", s.label, name)}
		}
		return ""
	}
	sv, err := v.String()
	if err != nil {
		s.fail(name, err)
		return ""
	}
	return sv
}

func (s *section) str(name, def string) string {
	v, ok := s.lookup(name)
	if !ok {
		return def
	}
	sv, err := v.String()
	if err != nil {
		s.fail(name, err)
		return def
	}
	return sv
}

func (s *section) i64(name string, def int64) int64 {
	v, ok := s.lookup(name)
	if !ok {
		return def
	}
	iv, err := v.Int64()
	if err != nil {
		s.fail(name, err)
		return def
	}
	return iv
}

func (s *section) integer(name string, def int) int {
	return int(s.i64(name, int64(def)))
}

func (s *section) f64(name string, def float64) float64 {
	v, ok := s.lookup(name)
	if !ok {
		return def
	}
	fv, err := v.Float64()
	if err != nil {
		s.fail(name, err)
		return def
	}
	return fv
}

func (s *section) boolean(name string, def bool) bool {
	v, ok := s.lookup(name)
	if !ok {
		return def
	}
	bv, err := v.Bool()
	if err != nil {
		s.fail(name, err)
		return def
	}
	return bv
}

func (s *section) strList(name string) []string {
	v, ok := s.lookup(name)
	if !ok {
		return nil
	}
	iter, err := v.List()
	if err != nil {
		s.fail(name, err)
		return nil
	}
	var out []string
	for iter.Next() {
		sv, err := iter.Value().String()
		if err != nil {
			s.fail(name, err)
			return nil
		}
		out = append(out, sv)
	}
	return out
}

func (s *section) strMap(name string) map[string]string {
	v, ok := s.lookup(name)
	if !ok {
		return nil
	}
	iter, err := v.Fields()
	if err != nil {
		s.fail(name, err)
		return nil
	}
	out := make(map[string]string)
	for iter.Next() {
		sv, err := iter.Value().String()
		if err != nil {
			s.fail(name, err)
			return nil
		}
		out[selectorString(iter.Selector())] = sv
	}
	return out
}
