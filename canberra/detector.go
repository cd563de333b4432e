/*Package canberra operates Canberra gamma/alpha spectroscopy detectors
through the vendor's DeviceAccess automation object.

Opening a detector takes exclusive ownership of it: neither Genie 2000 nor
any other process can reach it until it is closed, and a process which
exits without closing leaves it held until the vendor service notices.
Use Session or Detector.With, which close on every exit path:

	table, err := canberra.LoadParamTable("cam-params.yml")
	...
	auto, err := deviceaccess.Dial()
	...
	defer auto.Release()
	err = canberra.Session(auto, table, "DET01", func(d *canberra.Detector) error {
		err := d.StartAcquisition(300*time.Second, true)
		if err != nil {
			return err
		}
		_, err = d.WaitLive(ctx, canberra.DefaultPollInterval, canberra.TextReporter(os.Stdout))
		if err != nil {
			return err
		}
		spec, err := d.FullSpectrum()
		...
	})

Parameters are addressed by their CAM names (CAM_F_ECSLOPE, ...); the
numeric codes come from a ParamTable dumped from the installed runtime.
*/
package canberra

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lare/gammalab/util"
)

// Detector is a session with one detector or spectrum file.
// It is safe for concurrent use.
type Detector struct {
	mu     sync.Mutex
	auto   Automation
	table  *ParamTable
	source string
	open   bool
	cal    Calibration
}

// New returns a closed Detector for source.  table must contain at least
// the energy calibration parameters for Open to succeed.
func New(auto Automation, table *ParamTable, source string) *Detector {
	return &Detector{auto: auto, table: table, source: source}
}

// Source is the name the detector was created with
func (d *Detector) Source() string {
	return d.source
}

// Table is the parameter table in use
func (d *Detector) Table() *ParamTable {
	return d.table
}

// Open connects to the source and reads the energy calibration.
// If the calibration cannot be read the connection is released again.
func (d *Detector) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		return ErrAlreadyOpen
	}
	// check the table before taking the hardware
	slopeCode, err := d.table.Lookup(ParamEnergySlope)
	if err != nil {
		return err
	}
	offsetCode, err := d.table.Lookup(ParamEnergyOffset)
	if err != nil {
		return err
	}
	err = d.auto.Connect(d.source)
	if err != nil {
		return &ConnectError{Source: d.source, Diagnostic: diagnostic(err), Err: err}
	}
	cal, err := d.readCalibration(slopeCode, offsetCode)
	if err != nil {
		if derr := d.auto.Disconnect(); derr != nil {
			err = errors.Join(err, derr)
		}
		return err
	}
	d.cal = cal
	d.open = true
	return nil
}

func (d *Detector) readCalibration(slopeCode, offsetCode ParamCode) (Calibration, error) {
	c := Calibration{}
	v, err := d.auto.Param(slopeCode)
	if err != nil {
		return c, fmt.Errorf("canberra: reading %s: %w", ParamEnergySlope, err)
	}
	c.Slope, err = AsFloat(v)
	if err != nil {
		return c, fmt.Errorf("canberra: reading %s: %w", ParamEnergySlope, err)
	}
	v, err = d.auto.Param(offsetCode)
	if err != nil {
		return c, fmt.Errorf("canberra: reading %s: %w", ParamEnergyOffset, err)
	}
	c.Intercept, err = AsFloat(v)
	if err != nil {
		return c, fmt.Errorf("canberra: reading %s: %w", ParamEnergyOffset, err)
	}
	return c, nil
}

// Close releases the source.  The detector is marked closed even if the
// vendor reports an error, and closing a closed detector is a no-op.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return nil
	}
	d.open = false
	return d.auto.Disconnect()
}

// IsOpen is true between a successful Open and Close
func (d *Detector) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// With opens the detector, calls fn, and closes the detector on every
// exit path out of fn, including a panic.  fn's error is reported first.
func (d *Detector) With(fn func(*Detector) error) (err error) {
	if err = d.Open(); err != nil {
		return err
	}
	defer func() {
		if cerr := d.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("canberra: closing %q: %w", d.source, cerr))
		}
	}()
	return fn(d)
}

// Session is shorthand for New(auto, table, source).With(fn)
func Session(auto Automation, table *ParamTable, source string, fn func(*Detector) error) error {
	return New(auto, table, source).With(fn)
}

// lockOpen takes the lock and checks the session; on success the caller
// must unlock
func (d *Detector) lockOpen() error {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return ErrNotOpen
	}
	return nil
}

// Calibration returns the energy calibration read at Open
func (d *Detector) Calibration() (Calibration, error) {
	if err := d.lockOpen(); err != nil {
		return Calibration{}, err
	}
	defer d.mu.Unlock()
	return d.cal, nil
}

// EnergyToChannel converts energy to a fractional channel with the session calibration
func (d *Detector) EnergyToChannel(energy float64) (float64, error) {
	c, err := d.Calibration()
	if err != nil {
		return 0, err
	}
	if !c.Valid() {
		return 0, ErrUncalibrated
	}
	return c.EnergyToChannel(energy), nil
}

// ChannelToEnergy converts a channel to energy with the session calibration
func (d *Detector) ChannelToEnergy(channel float64) (float64, error) {
	c, err := d.Calibration()
	if err != nil {
		return 0, err
	}
	return c.ChannelToEnergy(channel), nil
}

// Status returns the analyzer state
func (d *Detector) Status() (Status, error) {
	if err := d.lockOpen(); err != nil {
		return 0, err
	}
	defer d.mu.Unlock()
	s, err := d.auto.AnalyzerStatus()
	return Status(s), err
}

// Param reads a CAM parameter by name.  Unknown names fail before the
// device is touched.
func (d *Detector) Param(name string) (interface{}, error) {
	code, err := d.table.Lookup(name)
	if err != nil {
		return nil, err
	}
	if err := d.lockOpen(); err != nil {
		return nil, err
	}
	defer d.mu.Unlock()
	return d.auto.Param(code)
}

// ParamFloat reads a numeric CAM parameter by name
func (d *Detector) ParamFloat(name string) (float64, error) {
	v, err := d.Param(name)
	if err != nil {
		return 0, err
	}
	f, err := AsFloat(v)
	if err != nil {
		return 0, fmt.Errorf("canberra: %s: %w", name, err)
	}
	return f, nil
}

// SetParam writes a CAM parameter by name.  Unknown names fail before the
// device is touched.
func (d *Detector) SetParam(name string, value interface{}) error {
	code, err := d.table.Lookup(name)
	if err != nil {
		return err
	}
	if err := d.lockOpen(); err != nil {
		return err
	}
	defer d.mu.Unlock()
	return d.auto.SetParam(code, setParamRecord, setParamEntry, value)
}

// StartAcquisition programs a count to the given live time and starts it,
// clearing the previous spectrum first if clear is true.  It does not wait.
func (d *Detector) StartAcquisition(live time.Duration, clear bool) error {
	if live <= 0 {
		return fmt.Errorf("canberra: live time preset must be positive, got %v", live)
	}
	if err := d.lockOpen(); err != nil {
		return err
	}
	defer d.mu.Unlock()
	if clear {
		if err := d.auto.Clear(); err != nil {
			return err
		}
	}
	err := d.auto.SpectroscopyAcquireSetup(AcquireLiveTime, util.DurationToSecs(live))
	if err != nil {
		return err
	}
	return d.auto.AcquireStart()
}

// StopAcquisition pauses the count without clearing it
func (d *Detector) StopAcquisition() error {
	if err := d.lockOpen(); err != nil {
		return err
	}
	defer d.mu.Unlock()
	return d.auto.AcquirePause()
}

// Clear zeroes the spectrum and elapsed times
func (d *Detector) Clear() error {
	if err := d.lockOpen(); err != nil {
		return err
	}
	defer d.mu.Unlock()
	return d.auto.Clear()
}

// LiveTime samples the elapsed live time against the preset
func (d *Detector) LiveTime() (Progress, error) {
	p := Progress{}
	var err error
	p.Preset, err = d.ParamFloat(ParamPresetLive)
	if err != nil {
		return p, err
	}
	p.Elapsed, err = d.ParamFloat(ParamElapsedLive)
	return p, err
}

// WaitLive blocks until the elapsed live time reaches the preset, sampling
// every interval and passing each sample to report (which may be nil).
// The preset is read once.  Cancelling ctx stops waiting but does not stop
// the count; call StopAcquisition for that.
func (d *Detector) WaitLive(ctx context.Context, interval time.Duration, report func(Progress)) (Progress, error) {
	preset, err := d.ParamFloat(ParamPresetLive)
	if err != nil {
		return Progress{}, err
	}
	m := Monitor{Interval: interval, Report: report}
	return m.Run(ctx, func() (Progress, error) {
		elapsed, err := d.ParamFloat(ParamElapsedLive)
		return Progress{Elapsed: elapsed, Preset: preset}, err
	})
}

// Acquire starts a live time limited count and waits for it to finish
func (d *Detector) Acquire(ctx context.Context, live time.Duration, clear bool, interval time.Duration, report func(Progress)) (Progress, error) {
	err := d.StartAcquisition(live, clear)
	if err != nil {
		return Progress{}, err
	}
	return d.WaitLive(ctx, interval, report)
}

// Spectrum reads channels left through right, inclusive and 1-based.
// right = LastChannel reads to the end.  Elapsed times are filled in on a
// best effort basis.
func (d *Detector) Spectrum(left, right int) (Spectrum, error) {
	if left < FirstChannel {
		return Spectrum{}, fmt.Errorf("canberra: first channel must be >= %d, got %d", FirstChannel, left)
	}
	if right != LastChannel && right < left {
		return Spectrum{}, fmt.Errorf("canberra: channel range [%d, %d] is empty", left, right)
	}
	if err := d.lockOpen(); err != nil {
		return Spectrum{}, err
	}
	counts, err := d.auto.GetSpectrum(left, right)
	cal := d.cal
	d.mu.Unlock()
	if err != nil {
		return Spectrum{}, err
	}
	s := Spectrum{
		Source:       d.source,
		FirstChannel: left,
		Counts:       counts,
		Calibration:  cal,
	}
	if lt, err := d.ParamFloat(ParamElapsedLive); err == nil {
		s.LiveTime = lt
	}
	if rt, err := d.ParamFloat(ParamElapsedReal); err == nil {
		s.RealTime = rt
	}
	return s, nil
}

// FullSpectrum reads every channel
func (d *Detector) FullSpectrum() (Spectrum, error) {
	return d.Spectrum(FirstChannel, LastChannel)
}

// SetHighVoltage turns the detector bias on or off.  If the source has no
// controllable supply the returned error wraps ErrHighVoltageUnsupported
// and a warning is logged; callers that consider this benign can test for
// it with errors.Is.
func (d *Detector) SetHighVoltage(on bool) error {
	if err := d.lockOpen(); err != nil {
		return err
	}
	defer d.mu.Unlock()
	err := d.auto.SetHighVoltage(on)
	if errors.Is(err, ErrHighVoltageUnsupported) {
		log.Printf("warning: %s: high voltage not switched: %v", d.source, err)
	}
	return err
}

// Save writes the current spectrum to filename in the vendor's format
func (d *Detector) Save(filename string, overwrite bool) error {
	if filename == "" {
		return errors.New("canberra: save needs a file name")
	}
	if err := d.lockOpen(); err != nil {
		return err
	}
	defer d.mu.Unlock()
	return d.auto.Save(filename, overwrite)
}
