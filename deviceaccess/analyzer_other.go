//go:build !windows

package deviceaccess

import "github.com/lare/gammalab/canberra"

var _ canberra.Automation = (*Analyzer)(nil)

// Analyzer is a DeviceAccess automation object.  It cannot be created on
// this platform; the methods exist so dependent code builds everywhere.
type Analyzer struct{}

// Dial always returns ErrUnsupportedPlatform on this platform
func Dial() (*Analyzer, error) {
	return nil, ErrUnsupportedPlatform
}

// Release is a no-op
func (a *Analyzer) Release() {}

func (a *Analyzer) Connect(source string) error { return ErrUnsupportedPlatform }

func (a *Analyzer) Disconnect() error { return ErrUnsupportedPlatform }

func (a *Analyzer) AnalyzerStatus() (int, error) { return 0, ErrUnsupportedPlatform }

func (a *Analyzer) Param(code canberra.ParamCode) (interface{}, error) {
	return nil, ErrUnsupportedPlatform
}

func (a *Analyzer) SetParam(code canberra.ParamCode, record, entry int, value interface{}) error {
	return ErrUnsupportedPlatform
}

func (a *Analyzer) GetSpectrum(left, right int) ([]uint32, error) {
	return nil, ErrUnsupportedPlatform
}

func (a *Analyzer) SpectroscopyAcquireSetup(mode int, preset float64) error {
	return ErrUnsupportedPlatform
}

func (a *Analyzer) AcquireStart() error { return ErrUnsupportedPlatform }

func (a *Analyzer) AcquirePause() error { return ErrUnsupportedPlatform }

func (a *Analyzer) Clear() error { return ErrUnsupportedPlatform }

func (a *Analyzer) SetHighVoltage(on bool) error { return ErrUnsupportedPlatform }

func (a *Analyzer) Save(filename string, overwrite bool) error { return ErrUnsupportedPlatform }
