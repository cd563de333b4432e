package canberra

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v2"
)

// ParamCode is the vendor-internal numeric address of a CAM parameter
type ParamCode uint32

// names of the CAM parameters this package reads itself.  Any other
// parameter in the table may be used through Param and SetParam.
const (
	// ParamEnergySlope is the energy calibration slope (energy per channel)
	ParamEnergySlope = "CAM_F_ECSLOPE"

	// ParamEnergyOffset is the energy calibration intercept
	ParamEnergyOffset = "CAM_F_ECOFFSET"

	// ParamPresetLive is the live time preset, seconds
	ParamPresetLive = "CAM_X_PLIVE"

	// ParamElapsedLive is the elapsed live time, seconds
	ParamElapsedLive = "CAM_X_ELIVE"

	// ParamPresetReal is the real time preset, seconds
	ParamPresetReal = "CAM_X_PREAL"

	// ParamElapsedReal is the elapsed real time, seconds
	ParamElapsedReal = "CAM_X_EREAL"
)

// ParamTable maps symbolic CAM parameter names to their codes.
//
// The codes are not published by the vendor; they are dumped from an
// installed DeviceAccess runtime and differ between runtime versions, which
// is why the table carries the version it was dumped from.  A ParamTable is
// immutable once constructed and safe to share between goroutines.
type ParamTable struct {
	version string
	codes   map[string]ParamCode
}

// paramFile is the on-disk layout of a parameter table
type paramFile struct {
	// Version names the runtime the table was dumped from
	Version string `yaml:"Version"`

	// Params maps name => code
	Params map[string]ParamCode `yaml:"Params"`
}

// NewParamTable copies codes into a new table.  Empty tables and tables
// with two names mapping to one code are rejected.
func NewParamTable(version string, codes map[string]ParamCode) (*ParamTable, error) {
	if len(codes) == 0 {
		return nil, errors.New("canberra: parameter table is empty")
	}
	t := &ParamTable{version: version, codes: make(map[string]ParamCode, len(codes))}
	seen := make(map[ParamCode]string, len(codes))
	for name, code := range codes {
		if name == "" {
			return nil, errors.New("canberra: parameter table contains an empty name")
		}
		if other, dup := seen[code]; dup {
			// order the pair so the message is deterministic
			a, b := other, name
			if b < a {
				a, b = b, a
			}
			return nil, fmt.Errorf("canberra: parameters %s and %s share code %d", a, b, code)
		}
		seen[code] = name
		t.codes[name] = code
	}
	return t, nil
}

// ReadParamTable decodes a YAML parameter table from r
func ReadParamTable(r io.Reader) (*ParamTable, error) {
	pf := paramFile{}
	err := yaml.NewDecoder(r).Decode(&pf)
	if err != nil {
		return nil, fmt.Errorf("canberra: decoding parameter table: %w", err)
	}
	return NewParamTable(pf.Version, pf.Params)
}

// LoadParamTable converts a (path to a) yaml file into a ParamTable
func LoadParamTable(path string) (*ParamTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadParamTable(f)
}

// Lookup returns the code for name, or an *UnknownParameterError
func (t *ParamTable) Lookup(name string) (ParamCode, error) {
	code, ok := t.codes[name]
	if !ok {
		return 0, &UnknownParameterError{Name: name}
	}
	return code, nil
}

// Names returns the parameter names in sorted order
func (t *ParamTable) Names() []string {
	out := make([]string, 0, len(t.codes))
	for k := range t.codes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Version is the runtime version the table was dumped from
func (t *ParamTable) Version() string {
	return t.version
}

// Len is the number of parameters in the table
func (t *ParamTable) Len() int {
	return len(t.codes)
}
