// Package canberratest provides a recording stand-in for the DeviceAccess
// automation object.  It models no detector behaviour: every value it
// returns is one a test put there.
package canberratest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/lare/gammalab/canberra"
)

// Call is one recorded method invocation
type Call struct {
	Method string
	Args   []interface{}
}

// Fake implements canberra.Automation
type Fake struct {
	sync.Mutex

	// Params holds the value returned by Param for each code
	Params map[canberra.ParamCode]interface{}

	// Sequences, if set for a code, are returned one per Param call in
	// order, the last element repeating.  They take precedence over Params.
	Sequences map[canberra.ParamCode][]interface{}

	// Status is returned by AnalyzerStatus
	Status int

	// Counts is the full spectrum; GetSpectrum slices it
	Counts []uint32

	// Errs maps a method name to the error it returns
	Errs map[string]error

	// Connected is true between Connect and Disconnect
	Connected bool

	// HighVoltage is the last value passed to SetHighVoltage
	HighVoltage bool

	// Calls records every call in order
	Calls []Call
}

// New returns a Fake with empty maps
func New() *Fake {
	return &Fake{
		Params:    map[canberra.ParamCode]interface{}{},
		Sequences: map[canberra.ParamCode][]interface{}{},
		Errs:      map[string]error{},
		Status:    int(canberra.StatusIdle),
	}
}

// record appends a call and returns the configured error for method
func (f *Fake) record(method string, args ...interface{}) error {
	f.Calls = append(f.Calls, Call{Method: method, Args: args})
	return f.Errs[method]
}

// Methods returns the method names called, in order
func (f *Fake) Methods() []string {
	f.Lock()
	defer f.Unlock()
	out := make([]string, len(f.Calls))
	for i, c := range f.Calls {
		out[i] = c.Method
	}
	return out
}

// SetErr makes method fail with err; nil clears it
func (f *Fake) SetErr(method string, err error) {
	f.Lock()
	defer f.Unlock()
	if err == nil {
		delete(f.Errs, method)
		return
	}
	f.Errs[method] = err
}

func (f *Fake) Connect(source string) error {
	f.Lock()
	defer f.Unlock()
	if err := f.record("Connect", source); err != nil {
		return err
	}
	if f.Connected {
		return errors.New("canberratest: already connected")
	}
	f.Connected = true
	return nil
}

func (f *Fake) Disconnect() error {
	f.Lock()
	defer f.Unlock()
	f.Connected = false
	return f.record("Disconnect")
}

func (f *Fake) AnalyzerStatus() (int, error) {
	f.Lock()
	defer f.Unlock()
	return f.Status, f.record("AnalyzerStatus")
}

func (f *Fake) Param(code canberra.ParamCode) (interface{}, error) {
	f.Lock()
	defer f.Unlock()
	if err := f.record("Param", code); err != nil {
		return nil, err
	}
	if seq := f.Sequences[code]; len(seq) > 0 {
		v := seq[0]
		if len(seq) > 1 {
			f.Sequences[code] = seq[1:]
		}
		return v, nil
	}
	v, ok := f.Params[code]
	if !ok {
		return nil, fmt.Errorf("canberratest: no value for code %d", code)
	}
	return v, nil
}

func (f *Fake) SetParam(code canberra.ParamCode, record, entry int, value interface{}) error {
	f.Lock()
	defer f.Unlock()
	if err := f.record("SetParam", code, record, entry, value); err != nil {
		return err
	}
	f.Params[code] = value
	return nil
}

func (f *Fake) GetSpectrum(left, right int) ([]uint32, error) {
	f.Lock()
	defer f.Unlock()
	if err := f.record("GetSpectrum", left, right); err != nil {
		return nil, err
	}
	if right == canberra.LastChannel {
		right = len(f.Counts)
	}
	if left < 1 || right > len(f.Counts) || left > right {
		return nil, fmt.Errorf("canberratest: channels [%d, %d] out of range for %d channels", left, right, len(f.Counts))
	}
	out := make([]uint32, right-left+1)
	copy(out, f.Counts[left-1:right])
	return out, nil
}

func (f *Fake) SpectroscopyAcquireSetup(mode int, preset float64) error {
	f.Lock()
	defer f.Unlock()
	return f.record("SpectroscopyAcquireSetup", mode, preset)
}

func (f *Fake) AcquireStart() error {
	f.Lock()
	defer f.Unlock()
	return f.record("AcquireStart")
}

func (f *Fake) AcquirePause() error {
	f.Lock()
	defer f.Unlock()
	return f.record("AcquirePause")
}

func (f *Fake) Clear() error {
	f.Lock()
	defer f.Unlock()
	return f.record("Clear")
}

func (f *Fake) SetHighVoltage(on bool) error {
	f.Lock()
	defer f.Unlock()
	if err := f.record("SetHighVoltage", on); err != nil {
		return err
	}
	f.HighVoltage = on
	return nil
}

func (f *Fake) Save(filename string, overwrite bool) error {
	f.Lock()
	defer f.Unlock()
	return f.record("Save", filename, overwrite)
}
