package testspec

import (
	"fmt"
	"sync"

	"github.com/nonsonwune/tofhir_db/models"
)

// IDRule describes how a tester id is derived from a record's id column
type IDRule int

const (
	// DirectID uses the id column as the tester id
	DirectID IDRule = iota
	// PairedChannel divides a combined chip id by two; both chips of a pair share one board
	PairedChannel
)

func (r IDRule) TesterID(id int) int {
	if r == PairedChannel {
		return id / 2
	}
	return id
}

func (r IDRule) String() string {
	if r == PairedChannel {
		return "paired-channel"
	}
	return "direct"
}

// Layout describes the column layout of a result file
type Layout struct {
	Header bool
	// Positional names the columns of headerless files in order
	Positional []string
	// Sentinel is the final column current exports carry; when it is missing the
	// header's last name is replaced by LegacyTail
	Sentinel   string
	LegacyTail []string
}

type Predicate func(rec models.TestRecord) bool

// Reducer collapses raw rows into derived rows before the predicate runs
type Reducer func(records []models.TestRecord) []models.TestRecord

// Binning is a regular histogram axis
type Binning struct {
	Low  float64
	High float64
	Bins int
}

// Spec is the rule set of one test type
type Spec struct {
	Name     string
	File     string
	Layout   Layout
	IDColumn string
	IDRule   IDRule
	// Columns are the kept raw measurement columns, in output order
	Columns []string
	// ReducedColumns replace Columns once Reduce has run
	ReducedColumns []string
	Reduce         Reducer
	Predicate      Predicate
	Binnings       map[string]Binning
}

// Evaluated reports whether the test has a pass/fail predicate
func (s Spec) Evaluated() bool {
	return s.Predicate != nil
}

// OutputColumns returns the columns of the table produced at the given stage
func (s Spec) OutputColumns(evaluated bool) []string {
	if evaluated && s.Reduce != nil {
		return s.ReducedColumns
	}
	return s.Columns
}

// Evaluate applies the reducer and predicate to a raw table
func (s Spec) Evaluate(raw *models.Table) *models.Table {
	records := raw.Records
	if s.Reduce != nil {
		records = s.Reduce(records)
	}

	out := models.NewTable(s.Name, s.OutputColumns(true), s.Evaluated())
	out.Records = make([]models.TestRecord, 0, len(records))
	for _, rec := range records {
		values := make(map[string]float64, len(rec.Values))
		for k, v := range rec.Values {
			values[k] = v
		}
		rec.Values = values
		if s.Predicate != nil {
			rec.Pass = s.Predicate(rec)
		}
		out.Records = append(out.Records, rec)
	}
	return out
}

// Registry maps test-type names to their specs; it is never modified after construction
type Registry struct {
	specs map[string]Spec
	order []string
}

func NewRegistry(specs ...Spec) (*Registry, error) {
	r := &Registry{
		specs: make(map[string]Spec, len(specs)),
		order: make([]string, 0, len(specs)),
	}
	for _, s := range specs {
		if s.Name == "" || s.File == "" {
			return nil, &ConfigError{Test: s.Name, Message: "spec needs a name and a file"}
		}
		if _, dup := r.specs[s.Name]; dup {
			return nil, &ConfigError{Test: s.Name, Message: "duplicate test type"}
		}
		r.specs[s.Name] = s
		r.order = append(r.order, s.Name)
	}
	return r, nil
}

// Lookup returns the spec of a test type
func (r *Registry) Lookup(name string) (Spec, error) {
	s, ok := r.specs[name]
	if !ok {
		return Spec{}, &ConfigError{Test: name, Message: "unknown test type"}
	}
	return s, nil
}

// Resolve looks up several test types, failing on the first unknown name
func (r *Registry) Resolve(names []string) ([]Spec, error) {
	out := make([]Spec, 0, len(names))
	for _, name := range names {
		s, err := r.Lookup(name)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Names returns every registered test type in registration order
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

var (
	defaultRegistry *Registry
	defaultOnce     sync.Once
)

// Default returns the registry of the TOFHIR2C calibration tests
func Default() *Registry {
	defaultOnce.Do(func() {
		reg, err := NewRegistry(defaultSpecs()...)
		if err != nil {
			panic(fmt.Sprintf("building default test registry: %v", err))
		}
		defaultRegistry = reg
	})
	return defaultRegistry
}

var (
	testPulseColumns = []string{"chipID", "channelID", "amplitude", "time_resolution", "energy_mean", "energy_rms"}
	discColumns      = []string{"chipID", "channelID", "noise_T1", "noise_T2", "noise_E", "zero_T1", "zero_T2", "zero_E"}
	qdcColumns       = []string{"chipID", "trim", "p0", "p1", "p2", "p3", "sigma"}
	tdcColumns       = []string{"chipID", "channelID", "tacID", "branch", "t0", "a0", "a1", "a2", "sigma"}
	aldoRawColumns   = []string{"tester_ID", "asic_id", "side", "gain", "DAC", "Vout", "current"}
)

func defaultSpecs() []Spec {
	specs := []Spec{
		{
			Name:           "Aldo",
			File:           "aldo.tsv",
			Layout:         Layout{Positional: aldoRawColumns},
			IDColumn:       "tester_ID",
			IDRule:         DirectID,
			Columns:        aldoRawColumns,
			ReducedColumns: []string{"tester_ID", "asic_id", "side", "gain", "slope", "b", "max_inl"},
			Reduce:         reduceAldo,
			Predicate:      aldoPredicate,
		},
		testPulseSpec("TestPulse", "fetp_tres_scan.tsv"),
		testPulseSpec("ExtTestPulse", "extp_tres_scan.tsv"),
	}
	for i := 0; i < 4; i++ {
		specs = append(specs, Spec{
			Name:      fmt.Sprintf("DiscCalibration%d", i),
			File:      fmt.Sprintf("disc_calibration%d.tsv", i),
			Layout:    Layout{Header: true},
			IDColumn:  "chipID",
			IDRule:    PairedChannel,
			Columns:   discColumns,
			Predicate: discPredicate(i),
		})
	}
	for i := 0; i < 8; i++ {
		specs = append(specs, Spec{
			Name: fmt.Sprintf("QDCCalibration%d", i),
			File: fmt.Sprintf("qdc_calibration%d.tsv", i),
			Layout: Layout{
				Header:     true,
				Sentinel:   "p9",
				LegacyTail: []string{"p9", "sigma"},
			},
			IDColumn:  "chipID",
			IDRule:    PairedChannel,
			Columns:   qdcColumns,
			Predicate: qdcPredicate,
			Binnings:  qdcBinnings,
		})
	}
	specs = append(specs, Spec{
		Name:      "TDCCalibration",
		File:      "tdc_calibration.tsv",
		Layout:    Layout{Header: true},
		IDColumn:  "chipID",
		IDRule:    PairedChannel,
		Columns:   tdcColumns,
		Predicate: tdcPredicate,
		Binnings:  tdcBinnings,
	})
	return specs
}

func testPulseSpec(name, file string) Spec {
	return Spec{
		Name:     name,
		File:     file,
		Layout:   Layout{Positional: testPulseColumns},
		IDColumn: "chipID",
		IDRule:   PairedChannel,
		Columns:  testPulseColumns,
	}
}

var (
	tdcBinnings = map[string]Binning{
		"t0":    {-0.2, 0.3, 50},
		"a0":    {20, 120, 50},
		"a1":    {450, 650, 50},
		"a2":    {-20, 1, 21},
		"sigma": {0.002, 0.01, 40},
	}
	qdcBinnings = map[string]Binning{
		"trim":  {2, 44, 42},
		"p0":    {40, 80, 40},
		"p1":    {-2, 3, 50},
		"p2":    {-0.5, 0.5, 20},
		"p3":    {-0.02, 0.02, 20},
		"sigma": {0, 25, 25},
	}
)
