//go:build windows

package deviceaccess

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	ole "github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"

	"github.com/lare/gammalab/canberra"
)

// sFalse is the HRESULT CoInitializeEx returns when the thread already has
// a COM apartment; go-ole reports it as an error
const sFalse = 1

var _ canberra.Automation = (*Analyzer)(nil)

type request struct {
	fn   func(*ole.IDispatch) error
	done chan error
}

// Analyzer is a DeviceAccess automation object
type Analyzer struct {
	reqs    chan request
	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// Dial creates a DeviceAccess object.  Release it when done; it does not
// disconnect a detector, canberra.Detector.Close does that.
func Dial() (*Analyzer, error) {
	a := &Analyzer{
		reqs:    make(chan request),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	ready := make(chan error)
	go a.loop(ready)
	if err := <-ready; err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Analyzer) loop(ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(a.stopped)

	err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED)
	if err != nil {
		var oe *ole.OleError
		if !errors.As(err, &oe) || oe.Code() != sFalse {
			ready <- fmt.Errorf("deviceaccess: initializing COM: %w", err)
			return
		}
	}
	defer ole.CoUninitialize()

	unknown, err := oleutil.CreateObject(ProgID)
	if err != nil {
		ready <- fmt.Errorf("deviceaccess: creating %s, is Genie 2000 installed? %w", ProgID, err)
		return
	}
	disp, err := unknown.QueryInterface(ole.IID_IDispatch)
	unknown.Release()
	if err != nil {
		ready <- fmt.Errorf("deviceaccess: %s has no IDispatch: %w", ProgID, err)
		return
	}
	defer disp.Release()
	ready <- nil

	for {
		select {
		case r := <-a.reqs:
			r.done <- r.fn(disp)
		case <-a.quit:
			return
		}
	}
}

// Release frees the COM object and its thread.  Calls made afterwards
// return ErrReleased.
func (a *Analyzer) Release() {
	a.once.Do(func() { close(a.quit) })
	<-a.stopped
}

// do runs fn on the COM thread
func (a *Analyzer) do(fn func(*ole.IDispatch) error) error {
	r := request{fn: fn, done: make(chan error, 1)}
	select {
	case a.reqs <- r:
	case <-a.quit:
		return ErrReleased
	}
	return <-r.done
}

// vendorErr converts an OLE error into a VendorError
func vendorErr(method string, err error) error {
	if err == nil {
		return nil
	}
	ve := &VendorError{Method: method, Err: err}
	var oe *ole.OleError
	if errors.As(err, &oe) {
		ve.Description = oe.Description()
	}
	return ve
}

// call invokes a method and discards its result
func (a *Analyzer) call(method string, args ...interface{}) error {
	return a.do(func(disp *ole.IDispatch) error {
		v, err := oleutil.CallMethod(disp, method, args...)
		if err != nil {
			return vendorErr(method, err)
		}
		v.Clear()
		return nil
	})
}

// Connect opens a detector or file by its Genie 2000 name
func (a *Analyzer) Connect(source string) error {
	return a.call("Connect", source)
}

// Disconnect releases the open source
func (a *Analyzer) Disconnect() error {
	return a.call("Disconnect")
}

// AnalyzerStatus reads the analyzer state
func (a *Analyzer) AnalyzerStatus() (int, error) {
	var status int
	err := a.do(func(disp *ole.IDispatch) error {
		v, err := oleutil.GetProperty(disp, "AnalyzerStatus")
		if err != nil {
			return vendorErr("AnalyzerStatus", err)
		}
		defer v.Clear()
		f, err := canberra.AsFloat(v.Value())
		if err != nil {
			return err
		}
		status = int(f)
		return nil
	})
	return status, err
}

// Param reads a CAM parameter.  Codes are passed as COM longs.
func (a *Analyzer) Param(code canberra.ParamCode) (interface{}, error) {
	var val interface{}
	err := a.do(func(disp *ole.IDispatch) error {
		v, err := oleutil.GetProperty(disp, "Param", int32(code))
		if err != nil {
			return vendorErr("Param", err)
		}
		defer v.Clear()
		val = v.Value()
		return nil
	})
	return val, err
}

// SetParam writes a CAM parameter
func (a *Analyzer) SetParam(code canberra.ParamCode, record, entry int, value interface{}) error {
	return a.call("SetParam", int32(code), int32(record), int32(entry), value)
}

// GetSpectrum reads counts from channel left to right
func (a *Analyzer) GetSpectrum(left, right int) ([]uint32, error) {
	var counts []uint32
	err := a.do(func(disp *ole.IDispatch) error {
		v, err := oleutil.CallMethod(disp, "GetSpectrum", int32(left), int32(right))
		if err != nil {
			return vendorErr("GetSpectrum", err)
		}
		defer v.Clear()
		arr := v.ToArray()
		if arr == nil {
			return fmt.Errorf("deviceaccess: GetSpectrum returned %v, not an array", v.VT)
		}
		counts, err = toCounts(arr.ToValueArray())
		return err
	})
	return counts, err
}

// SpectroscopyAcquireSetup programs the preset of the next count
func (a *Analyzer) SpectroscopyAcquireSetup(mode int, preset float64) error {
	return a.call("SpectroscopyAcquireSetup", int32(mode), preset)
}

// AcquireStart starts counting
func (a *Analyzer) AcquireStart() error {
	return a.call("AcquireStart")
}

// AcquirePause stops counting
func (a *Analyzer) AcquirePause() error {
	return a.call("AcquirePause")
}

// Clear zeroes the spectrum
func (a *Analyzer) Clear() error {
	return a.call("Clear")
}

// SetHighVoltage sets HighVoltage.On.  Any exception raised by the
// HighVoltage object wraps canberra.ErrHighVoltageUnsupported.
func (a *Analyzer) SetHighVoltage(on bool) error {
	return a.do(func(disp *ole.IDispatch) error {
		hv, err := oleutil.GetProperty(disp, "HighVoltage")
		if err != nil {
			return fmt.Errorf("%w: %w", canberra.ErrHighVoltageUnsupported, vendorErr("HighVoltage", err))
		}
		defer hv.Clear()
		hvd := hv.ToIDispatch()
		if hvd == nil {
			return fmt.Errorf("%w: HighVoltage is not an object", canberra.ErrHighVoltageUnsupported)
		}
		v, err := oleutil.PutProperty(hvd, "On", on)
		if err != nil {
			return fmt.Errorf("%w: %w", canberra.ErrHighVoltageUnsupported, vendorErr("HighVoltage.On", err))
		}
		v.Clear()
		return nil
	})
}

// Save writes the spectrum in the vendor's CAM file format
func (a *Analyzer) Save(filename string, overwrite bool) error {
	return a.call("Save", filename, overwrite)
}
