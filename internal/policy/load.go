package policy

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

// Error codes for policy loading.
const (
	ErrCodeNotFound     = "POLICY_DIR_NOT_FOUND"
	ErrCodeLoadFailed   = "POLICY_LOAD_FAILED"
	ErrCodeBuildFailed  = "POLICY_BUILD_FAILED"
	ErrCodeMissingField = "POLICY_MISSING_FIELD"
	ErrCodeBadValue     = "POLICY_BAD_VALUE"
)

// LoadError is an error encountered while loading or validating a
// policy directory.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadDir loads the offline policy from a directory of CUE files.
// The files must share one package clause; package-less files are not
// picked up by the directory loader.
//
// The directory must evaluate to a single struct with "global",
// "streams" and "datasets" fields. Stream and dataset entries inherit
// from the "Default" entry of their section; explicitly set fields
// win.
func LoadDir(dir string) (*Policy, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("policy directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing policy directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	return Parse(value)
}

// Parse builds a Policy from an already evaluated CUE value. Exposed
// separately so tests can compile policy snippets in-process.
func Parse(value cue.Value) (*Policy, error) {
	p := &Policy{
		Streams:  make(map[string]StreamPolicy),
		Datasets: make(map[string]DatasetPolicy),
	}

	global, err := parseGlobal(value.LookupPath(cue.ParsePath("global")))
	if err != nil {
		return nil, err
	}
	p.Global = global

	if err := parseStreams(value.LookupPath(cue.ParsePath("streams")), p); err != nil {
		return nil, err
	}
	if err := parseDatasets(value.LookupPath(cue.ParsePath("datasets")), p); err != nil {
		return nil, err
	}
	return p, nil
}

func parseGlobal(v cue.Value) (GlobalPolicy, error) {
	g := GlobalPolicy{DQMDataTier: "DQMIO", BaseRequestPriority: 150000}
	if !v.Exists() {
		return g, &LoadError{Code: ErrCodeMissingField, Message: "global section is required"}
	}
	s := &section{val: v, label: "global"}

	g.AcquisitionEra = s.reqStr("acquisitionEra")
	g.Backfill = s.str("backfill", "")
	g.BulkDataType = s.reqStr("bulkDataType")
	g.ProcessingSite = s.reqStr("processingSite")
	g.BulkInjectNode = s.str("bulkInjectNode", "")
	g.ExpressInjectNode = s.str("expressInjectNode", "")
	g.ExpressSubscribeNode = s.str("expressSubscribeNode", "")
	g.DQMDataTier = s.str("dqmDataTier", g.DQMDataTier)
	g.DQMUploadURL = s.str("dqmUploadUrl", "")
	g.AlcaHarvestTimeout = s.i64("alcaHarvestTimeout", 0)
	g.AlcaHarvestDir = s.str("alcaHarvestDir", "")
	g.ConditionUploadTimeout = s.i64("conditionUploadTimeout", 0)
	g.DropboxHost = s.str("dropboxHost", "")
	g.ValidationMode = s.boolean("validationMode", false)
	g.BaseRequestPriority = s.integer("baseRequestPriority", g.BaseRequestPriority)
	g.ScramArches = s.strMap("scramArches")
	g.DefaultScramArch = s.reqStr("defaultScramArch")
	g.Version = s.str("version", "")

	if g.DQMDataTier != "DQM" && g.DQMDataTier != "DQMIO" {
		return g, &LoadError{Code: ErrCodeBadValue, Message: fmt.Sprintf("global.dqmDataTier: %q is not an allowed DQM data tier", g.DQMDataTier)}
	}
	return g, s.err
}

func parseStreams(v cue.Value, p *Policy) error {
	if !v.Exists() {
		return nil
	}
	names, byName, err := structEntries(v, "streams")
	if err != nil {
		return err
	}

	var def *StreamPolicy
	if dv, ok := byName["Default"]; ok {
		sc, err := parseStream("Default", dv, nil)
		if err != nil {
			return err
		}
		def = &sc
		p.Streams["Default"] = sc
	}
	for _, name := range names {
		if name == "Default" {
			continue
		}
		sc, err := parseStream(name, byName[name], def)
		if err != nil {
			return err
		}
		p.Streams[name] = sc
	}
	return nil
}

func parseStream(name string, v cue.Value, def *StreamPolicy) (StreamPolicy, error) {
	sc := StreamPolicy{Name: name, Style: StyleBulk}
	if def != nil {
		sc = *def
		sc.Name = name
	}
	s := &section{val: v, label: "streams." + name}

	style := s.str("style", string(sc.Style))
	sc.Style = ProcessingStyle(style)
	if !sc.Style.Valid() {
		return sc, &LoadError{Code: ErrCodeBadValue, Message: fmt.Sprintf("streams.%s.style: unknown processing style %q", name, style)}
	}
	if m := s.strMap("versionOverride"); m != nil {
		sc.VersionOverride = m
	}

	switch sc.Style {
	case StyleBulk:
		sc.Express = nil
		repack := defaultRepackPolicy()
		if def != nil && def.Repack != nil {
			repack = *def.Repack
		}
		if rv := v.LookupPath(cue.ParsePath("repack")); rv.Exists() {
			rs := &section{val: rv, label: "streams." + name + ".repack"}
			repack.ProcessingVersion = rs.integer("processingVersion", repack.ProcessingVersion)
			repack.MaxSizeSingleLumi = rs.i64("maxSizeSingleLumi", repack.MaxSizeSingleLumi)
			repack.MaxSizeMultiLumi = rs.i64("maxSizeMultiLumi", repack.MaxSizeMultiLumi)
			repack.MinInputSize = rs.i64("minInputSize", repack.MinInputSize)
			repack.MaxInputSize = rs.i64("maxInputSize", repack.MaxInputSize)
			repack.MaxEdmSize = rs.i64("maxEdmSize", repack.MaxEdmSize)
			repack.MaxOverSize = rs.i64("maxOverSize", repack.MaxOverSize)
			repack.MaxInputEvents = rs.i64("maxInputEvents", repack.MaxInputEvents)
			repack.MaxInputFiles = rs.integer("maxInputFiles", repack.MaxInputFiles)
			repack.MaxLatency = rs.i64("maxLatency", repack.MaxLatency)
			repack.BlockCloseDelay = rs.i64("blockCloseDelay", repack.BlockCloseDelay)
			if rs.err != nil {
				return sc, rs.err
			}
		}
		// Prefer too-large over too-small merge output, but never past
		// the EDM size cap.
		if repack.MaxOverSize > repack.MaxEdmSize {
			repack.MaxOverSize = repack.MaxEdmSize
		}
		sc.Repack = &repack

	case StyleExpress:
		sc.Repack = nil
		express := defaultExpressPolicy()
		ev := v.LookupPath(cue.ParsePath("express"))
		if !ev.Exists() {
			return sc, &LoadError{Code: ErrCodeMissingField, Message: fmt.Sprintf("streams.%s: express section is required for Express streams", name)}
		}
		es := &section{val: ev, label: "streams." + name + ".express"}
		express.Scenario = es.reqStr("scenario")
		express.DataTiers = es.strList("dataTiers")
		express.GlobalTag = es.str("globalTag", "")
		express.GlobalTagConnect = es.str("globalTagConnect", "")
		express.RecoVersion = es.str("recoVersion", "")
		express.Multicore = es.integer("multicore", 0)
		express.AlcaSkims = es.strList("alcaProducers")
		express.WriteDQM = es.boolean("writeDqm", express.WriteDQM)
		express.DqmSequences = es.strList("dqmSequences")
		express.ProcessingVersion = es.integer("processingVersion", express.ProcessingVersion)
		express.TimePerEvent = es.f64("timePerEvent", 0)
		express.SizePerEvent = es.i64("sizePerEvent", 0)
		express.MaxInputRate = es.i64("maxInputRate", express.MaxInputRate)
		express.MaxInputEvents = es.i64("maxInputEvents", express.MaxInputEvents)
		express.MaxInputSize = es.i64("maxInputSize", express.MaxInputSize)
		express.MaxInputFiles = es.integer("maxInputFiles", express.MaxInputFiles)
		express.MaxLatency = es.i64("maxLatency", express.MaxLatency)
		express.HarvestInterval = es.i64("harvestInterval", express.HarvestInterval)
		express.BlockCloseDelay = es.i64("blockCloseDelay", express.BlockCloseDelay)
		if es.err != nil {
			return sc, es.err
		}
		if len(express.DataTiers) == 0 {
			return sc, &LoadError{Code: ErrCodeMissingField, Message: fmt.Sprintf("streams.%s.express: dataTiers needs at least one tier", name)}
		}
		sc.Express = &express

	case StyleIgnore:
		sc.Repack = nil
		sc.Express = nil
	}

	return sc, s.err
}

func parseDatasets(v cue.Value, p *Policy) error {
	if !v.Exists() {
		return nil
	}
	names, byName, err := structEntries(v, "datasets")
	if err != nil {
		return err
	}

	var def *DatasetPolicy
	if dv, ok := byName["Default"]; ok {
		dc, err := parseDataset("Default", dv, nil)
		if err != nil {
			return err
		}
		def = &dc
		p.Datasets["Default"] = dc
	}
	for _, name := range names {
		if name == "Default" {
			continue
		}
		dc, err := parseDataset(name, byName[name], def)
		if err != nil {
			return err
		}
		p.Datasets[name] = dc
	}
	return nil
}

func parseDataset(name string, v cue.Value, def *DatasetPolicy) (DatasetPolicy, error) {
	dc := DatasetPolicy{Name: name, BlockCloseDelay: 24 * 3600}
	if def != nil {
		dc = *def
		dc.Name = name
	}
	s := &section{val: v, label: "datasets." + name}

	dc.Scenario = s.str("scenario", dc.Scenario)
	dc.DoReco = s.boolean("doReco", dc.DoReco)
	dc.RecoDelay = s.i64("recoDelay", dc.RecoDelay)
	dc.RecoDelayOffset = s.i64("recoDelayOffset", dc.RecoDelayOffset)
	dc.GlobalTagConnect = s.str("globalTagConnect", dc.GlobalTagConnect)
	dc.RecoSplit = s.integer("recoSplit", dc.RecoSplit)
	dc.WriteRECO = s.boolean("writeReco", dc.WriteRECO)
	dc.WriteAOD = s.boolean("writeAod", dc.WriteAOD)
	dc.WriteMINIAOD = s.boolean("writeMiniAod", dc.WriteMINIAOD)
	dc.WriteDQM = s.boolean("writeDqm", dc.WriteDQM)
	dc.ArchivalNode = s.str("archivalNode", dc.ArchivalNode)
	dc.TapeNode = s.str("tapeNode", dc.TapeNode)
	dc.DiskNode = s.str("diskNode", dc.DiskNode)
	dc.Multicore = s.integer("multicore", dc.Multicore)
	dc.BlockCloseDelay = s.i64("blockCloseDelay", dc.BlockCloseDelay)
	dc.TimePerEvent = s.f64("timePerEvent", dc.TimePerEvent)
	dc.SizePerEvent = s.i64("sizePerEvent", dc.SizePerEvent)

	for _, f := range []struct {
		path string
		dst  *Override
	}{
		{"processingVersion", &dc.ProcessingVersion},
		{"version", &dc.Version},
		{"globalTag", &dc.GlobalTag},
	} {
		ov := v.LookupPath(cue.ParsePath(f.path))
		if !ov.Exists() {
			continue
		}
		parsed, err := parseOverride(ov, s.label+"."+f.path)
		if err != nil {
			return dc, err
		}
		*f.dst = parsed
	}

	// Skim, producer and sequence lists never inherit from Default.
	dc.AlcaSkims = s.strList("alcaProducers")
	dc.PhysicsSkims = s.strList("physicsSkims")
	dc.SkimTiers = s.strList("skimTiers")
	dc.DqmSequences = s.strList("dqmSequences")

	if wl := s.strList("siteWhitelist"); wl != nil {
		dc.SiteWhitelist = wl
	}

	if s.err != nil {
		return dc, s.err
	}
	if name != "Default" {
		if dc.Scenario == "" {
			return dc, &LoadError{Code: ErrCodeMissingField, Message: fmt.Sprintf("datasets.%s: no scenario defined for dataset or Default", name)}
		}
		if dc.DoReco {
			if dc.Version.IsZero() {
				return dc, &LoadError{Code: ErrCodeMissingField, Message: fmt.Sprintf("datasets.%s: no version defined for dataset or Default", name)}
			}
			if dc.GlobalTag.IsZero() {
				return dc, &LoadError{Code: ErrCodeMissingField, Message: fmt.Sprintf("datasets.%s: no globalTag defined for dataset or Default", name)}
			}
		}
	}
	return dc, nil
}

// parseOverride parses a value that is either a plain string or a
// structured override {default, acqEra?, maxRun?}. maxRun keys are
// run numbers encoded as struct labels.
func parseOverride(v cue.Value, label string) (Override, error) {
	if v.Kind() == cue.StringKind {
		sv, err := v.String()
		if err != nil {
			return Override{}, &LoadError{Code: ErrCodeBadValue, Message: fmt.Sprintf("%s: %v", label, err), Pos: v.Pos()}
		}
		return Scalar(sv), nil
	}
	if v.Kind() == cue.IntKind {
		iv, err := v.Int64()
		if err != nil {
			return Override{}, &LoadError{Code: ErrCodeBadValue, Message: fmt.Sprintf("%s: %v", label, err), Pos: v.Pos()}
		}
		return Scalar(strconv.FormatInt(iv, 10)), nil
	}

	defVal := v.LookupPath(cue.ParsePath("default"))
	if !defVal.Exists() {
		return Override{}, &LoadError{Code: ErrCodeMissingField, Message: fmt.Sprintf("%s: structured override requires a default", label), Pos: v.Pos()}
	}
	def, err := overrideScalarString(defVal)
	if err != nil {
		return Override{}, &LoadError{Code: ErrCodeBadValue, Message: fmt.Sprintf("%s.default: %v", label, err), Pos: defVal.Pos()}
	}

	var eraValues map[string]string
	if ev := v.LookupPath(cue.ParsePath("acqEra")); ev.Exists() {
		eraValues = make(map[string]string)
		iter, err := ev.Fields()
		if err != nil {
			return Override{}, &LoadError{Code: ErrCodeBadValue, Message: fmt.Sprintf("%s.acqEra: %v", label, err), Pos: ev.Pos()}
		}
		for iter.Next() {
			sv, err := overrideScalarString(iter.Value())
			if err != nil {
				return Override{}, &LoadError{Code: ErrCodeBadValue, Message: fmt.Sprintf("%s.acqEra.%s: %v", label, iter.Selector(), err), Pos: iter.Value().Pos()}
			}
			eraValues[selectorString(iter.Selector())] = sv
		}
	}

	var thresholds []RunThreshold
	if tv := v.LookupPath(cue.ParsePath("maxRun")); tv.Exists() {
		iter, err := tv.Fields()
		if err != nil {
			return Override{}, &LoadError{Code: ErrCodeBadValue, Message: fmt.Sprintf("%s.maxRun: %v", label, err), Pos: tv.Pos()}
		}
		for iter.Next() {
			key := selectorString(iter.Selector())
			run, err := strconv.ParseUint(key, 10, 32)
			if err != nil {
				return Override{}, &LoadError{Code: ErrCodeBadValue, Message: fmt.Sprintf("%s.maxRun: %q is not a run number", label, key), Pos: iter.Value().Pos()}
			}
			sv, err := overrideScalarString(iter.Value())
			if err != nil {
				return Override{}, &LoadError{Code: ErrCodeBadValue, Message: fmt.Sprintf("%s.maxRun.%s: %v", label, key, err), Pos: iter.Value().Pos()}
			}
			thresholds = append(thresholds, RunThreshold{MaxRun: uint32(run), Value: sv})
		}
	}

	return Structured(eraValues, thresholds, def), nil
}

func overrideScalarString(v cue.Value) (string, error) {
	switch v.Kind() {
	case cue.StringKind:
		return v.String()
	case cue.IntKind:
		iv, err := v.Int64()
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(iv, 10), nil
	default:
		return "", fmt.Errorf("expected string or int, got %s", v.Kind())
	}
}

func selectorString(sel cue.Selector) string {
	if sel.Type() == cue.StringLabel {
		return sel.Unquoted()
	}
	return sel.String()
}

// structEntries returns the field names of a struct value, sorted
// lexicographically for deterministic parse order, plus a name→value
// lookup.
func structEntries(v cue.Value, label string) ([]string, map[string]cue.Value, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, nil, &LoadError{Code: ErrCodeBadValue, Message: fmt.Sprintf("%s: %v", label, err), Pos: v.Pos()}
	}
	byName := make(map[string]cue.Value)
	var names []string
	for iter.Next() {
		name := selectorString(iter.Selector())
		names = append(names, name)
		byName[name] = iter.Value()
	}
	sort.Strings(names)
	return names, byName, nil
}
