package canberra

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// AcquireLiveTime is the SpectroscopyAcquireSetup mode which counts
	// until the live time preset is reached
	AcquireLiveTime = 1

	// setParamRecord and setParamEntry are the record and entry arguments
	// to SetParam.  Both are 1 for every parameter of a single detector.
	setParamRecord = 1
	setParamEntry  = 1

	// FirstChannel and LastChannel passed to GetSpectrum select the whole spectrum
	FirstChannel = 1
	LastChannel  = -1
)

// Automation is the subset of the Canberra.DeviceAccess automation object
// used by this package.  Package deviceaccess provides the real one.
//
// Implementations are responsible for exclusivity: after Connect the
// source is unavailable to every other process until Disconnect.
type Automation interface {
	// Connect opens the named detector or spectrum file
	Connect(source string) error

	// Disconnect releases the source
	Disconnect() error

	// AnalyzerStatus returns the raw analyzer state
	AnalyzerStatus() (int, error)

	// Param reads a CAM parameter.  The dynamic type of the value depends
	// on the parameter: float64, an integer type, or string
	Param(code ParamCode) (interface{}, error)

	// SetParam writes a CAM parameter
	SetParam(code ParamCode, record, entry int, value interface{}) error

	// GetSpectrum returns the counts from channel left to right, inclusive.
	// right = -1 means the last channel
	GetSpectrum(left, right int) ([]uint32, error)

	// SpectroscopyAcquireSetup programs the preset of the next count
	SpectroscopyAcquireSetup(mode int, preset float64) error

	// AcquireStart starts counting
	AcquireStart() error

	// AcquirePause stops counting without clearing
	AcquirePause() error

	// Clear zeroes the spectrum and the elapsed times
	Clear() error

	// SetHighVoltage turns the detector bias on or off
	SetHighVoltage(on bool) error

	// Save writes the current spectrum in the vendor's format
	Save(filename string, overwrite bool) error
}

// AsFloat converts a parameter value to float64
func AsFloat(v interface{}) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int8:
		return float64(t), nil
	case int16:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint:
		return float64(t), nil
	case uint8:
		return float64(t), nil
	case uint16:
		return float64(t), nil
	case uint32:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(t), 64)
	case nil:
		return 0, fmt.Errorf("canberra: parameter value is empty")
	default:
		return 0, fmt.Errorf("canberra: cannot convert parameter value of type %T to float", v)
	}
}
