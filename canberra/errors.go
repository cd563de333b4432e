package canberra

import (
	"errors"
	"fmt"
)

var (
	// ErrCodes maps DeviceAccess status codes to human readable strings.
	// They are for display only.
	ErrCodes = map[int]string{
		0:  "OK! Operation performed successfully. ",
		17: "Error: Could not connect to the desired detector or file (detector already opened by another program?)",
		29: "Error: The certificate file could not be found.",
		31: "Error: recalibration failure with the specified spectrum.",
	}

	// ErrNotOpen is generated when an operation is attempted on a detector
	// that has not been opened, or has been closed
	ErrNotOpen = errors.New("canberra: detector is not open")

	// ErrAlreadyOpen is generated when Open is called twice on one Detector
	ErrAlreadyOpen = errors.New("canberra: detector is already open")

	// ErrUnknownParameter is matched by errors.Is for every UnknownParameterError
	ErrUnknownParameter = errors.New("canberra: unknown CAM parameter")

	// ErrHighVoltageUnsupported is wrapped by the automation layer when the
	// analyzer rejects a high voltage toggle.  Many file sources and some
	// MCAs have no HV supply; callers may treat this as a warning.
	ErrHighVoltageUnsupported = errors.New("canberra: high voltage control not supported by this source")

	// ErrUncalibrated is returned when converting energy to channel with a
	// zero calibration slope
	ErrUncalibrated = errors.New("canberra: energy calibration has zero slope")
)

// ErrorText returns the string for a DeviceAccess status code, or a generic
// message naming the code if it is not in ErrCodes
func ErrorText(code int) string {
	if s, ok := ErrCodes[code]; ok {
		return s
	}
	return fmt.Sprintf("Error: unknown status code %d", code)
}

// ConnectError is generated when the analyzer refuses a connection.
// Diagnostic holds the text the vendor embedded in its exception, which is
// usually the only useful part.
type ConnectError struct {
	// Source is the detector or file that was opened
	Source string

	// Diagnostic is the vendor's description, possibly empty
	Diagnostic string

	// Err is the underlying automation error
	Err error
}

// Error satisfies the error interface
func (e *ConnectError) Error() string {
	msg := e.Diagnostic
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("canberra: connect to %q failed: %s", e.Source, msg)
}

// Unwrap returns the underlying automation error
func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Diagnoser is implemented by automation errors which carry the vendor's
// diagnostic text separately from the rest of the error
type Diagnoser interface {
	Diagnostic() string
}

// diagnostic pulls the vendor text out of err, falling back to err.Error()
func diagnostic(err error) string {
	var d Diagnoser
	if errors.As(err, &d) {
		if s := d.Diagnostic(); s != "" {
			return s
		}
	}
	return err.Error()
}

// UnknownParameterError is generated when a parameter name is looked up in
// a ParamTable but does not exist there
type UnknownParameterError struct {
	// Name is the specific parameter not found
	Name string
}

// Error satisfies the error interface
func (e *UnknownParameterError) Error() string {
	return fmt.Sprintf("canberra: parameter %s not found in the parameter table", e.Name)
}

// Is makes errors.Is(err, ErrUnknownParameter) true
func (e *UnknownParameterError) Is(target error) bool {
	return target == ErrUnknownParameter
}
