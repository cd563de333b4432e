/*Package deviceaccess binds canberra.Automation to the Canberra.DeviceAccess
COM object installed with Genie 2000.

The COM object is only present on Windows machines with the vendor runtime
and an authorized dongle.  On every other platform Dial returns
ErrUnsupportedPlatform.

COM objects are bound to the thread that created them, so an Analyzer owns
one goroutine locked to its OS thread and runs every call there.  It is
safe to share an Analyzer between goroutines; calls are serialized.
*/
package deviceaccess

import (
	"errors"
	"fmt"
	"math"
)

const (
	// ProgID is the COM class of the automation object
	ProgID = "Canberra.DeviceAccess"
)

var (
	// ErrUnsupportedPlatform is returned by Dial where COM is not available
	ErrUnsupportedPlatform = errors.New("deviceaccess: Canberra DeviceAccess requires Windows")

	// ErrReleased is returned by calls on an Analyzer after Release
	ErrReleased = errors.New("deviceaccess: analyzer has been released")
)

// VendorError is an exception raised inside DeviceAccess.  It implements
// canberra.Diagnoser so connection failures report the vendor's own text.
type VendorError struct {
	// Method is the automation member that failed
	Method string

	// Description is the text the vendor put in the exception, may be empty
	Description string

	// Err is the COM error
	Err error
}

// Error satisfies the error interface
func (e *VendorError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("deviceaccess: %s: %s", e.Method, e.Description)
	}
	return fmt.Sprintf("deviceaccess: %s: %v", e.Method, e.Err)
}

// Unwrap returns the COM error
func (e *VendorError) Unwrap() error {
	return e.Err
}

// Diagnostic returns the vendor's description
func (e *VendorError) Diagnostic() string {
	return e.Description
}

// toCounts converts the elements of a VARIANT array to counts
func toCounts(vals []interface{}) ([]uint32, error) {
	out := make([]uint32, len(vals))
	for i, v := range vals {
		var f float64
		switch t := v.(type) {
		case int32:
			f = float64(t)
		case uint32:
			out[i] = t
			continue
		case int64:
			f = float64(t)
		case int16:
			f = float64(t)
		case int:
			f = float64(t)
		case float64:
			f = t
		case float32:
			f = float64(t)
		default:
			return nil, fmt.Errorf("deviceaccess: spectrum element %d has type %T", i, v)
		}
		if f < 0 || f > math.MaxUint32 || math.IsNaN(f) {
			return nil, fmt.Errorf("deviceaccess: spectrum element %d out of range: %v", i, v)
		}
		out[i] = uint32(f)
	}
	return out, nil
}
