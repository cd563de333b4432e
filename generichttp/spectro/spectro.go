// Package spectro exposes an HTTP interface to spectroscopy detectors
package spectro

import (
	"encoding/json"
	"errors"
	"fmt"
	"go/types"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"

	"github.com/lare/gammalab/canberra"
	"github.com/lare/gammalab/generichttp"
	"github.com/lare/gammalab/specrec"
	"github.com/lare/gammalab/util"
)

// Spectrometer is a multichannel analyzer that counts to a live time preset
type Spectrometer interface {
	// Status returns the analyzer state
	Status() (canberra.Status, error)

	// Param reads a named device parameter
	Param(name string) (interface{}, error)

	// SetParam writes a named device parameter
	SetParam(name string, value interface{}) error

	// StartAcquisition starts a count to a live time, optionally clearing first
	StartAcquisition(live time.Duration, clear bool) error

	// StopAcquisition pauses the count
	StopAcquisition() error

	// Clear zeroes the spectrum
	Clear() error

	// LiveTime samples elapsed live time against the preset
	LiveTime() (canberra.Progress, error)

	// Spectrum reads a channel range, 1-based and inclusive
	Spectrum(left, right int) (canberra.Spectrum, error)
}

// HighVoltager can switch the detector bias
type HighVoltager interface {
	SetHighVoltage(on bool) error
}

// Saver can save the spectrum in the vendor's format
type Saver interface {
	Save(filename string, overwrite bool) error
}

// Calibrated has an energy calibration
type Calibrated interface {
	Calibration() (canberra.Calibration, error)
}

// Converter converts between energy and channel with the detector's
// calibration
type Converter interface {
	EnergyToChannel(energy float64) (float64, error)
	ChannelToEnergy(channel float64) (float64, error)
}

// ParamLister knows its parameter table
type ParamLister interface {
	Table() *canberra.ParamTable
}

// statusCode maps package canberra's errors to HTTP statuses
func statusCode(err error) int {
	switch {
	case errors.Is(err, canberra.ErrUnknownParameter):
		return http.StatusNotFound
	case errors.Is(err, canberra.ErrHighVoltageUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, canberra.ErrNotOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, canberra.ErrUncalibrated):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func httpError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusCode(err))
}

// StatusT is the response of GET /status
type StatusT struct {
	Code  int    `json:"code"`
	State string `json:"state"`
}

// GetStatus returns the analyzer state as JSON
func GetStatus(s Spectrometer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := s.Status()
		if err != nil {
			httpError(w, err)
			return
		}
		generichttp.RespondJSON(w, StatusT{Code: int(st), State: st.String()})
	}
}

// GetParam returns the parameter named in the URL as {"f64": x} for
// numeric parameters and {"str": s} otherwise
func GetParam(s Spectrometer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		v, err := s.Param(name)
		if err != nil {
			httpError(w, err)
			return
		}
		var hp generichttp.HumanPayload
		if str, ok := v.(string); ok {
			hp = generichttp.HumanPayload{T: types.String, String: str}
		} else {
			f, err := canberra.AsFloat(v)
			if err != nil {
				hp = generichttp.HumanPayload{T: types.String, String: fmt.Sprint(v)}
			} else {
				hp = generichttp.HumanPayload{T: types.Float64, Float: f}
			}
		}
		hp.EncodeAndRespond(w, r)
	}
}

// paramBody is the body of POST /param/{name}; exactly one field is set
type paramBody struct {
	F64 *float64 `json:"f64"`
	Int *int     `json:"int"`
	Str *string  `json:"str"`
}

// SetParam writes the parameter named in the URL from {"f64": x},
// {"int": n} or {"str": s}
func SetParam(s Spectrometer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		b := paramBody{}
		err := json.NewDecoder(r.Body).Decode(&b)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var v interface{}
		n := 0
		if b.F64 != nil {
			v = *b.F64
			n++
		}
		if b.Int != nil {
			v = int32(*b.Int)
			n++
		}
		if b.Str != nil {
			v = *b.Str
			n++
		}
		if n != 1 {
			http.Error(w, `body must have exactly one of "f64", "int", "str"`, http.StatusBadRequest)
			return
		}
		err = s.SetParam(name, v)
		if err != nil {
			httpError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// AcquireT is the body of POST /acquire
type AcquireT struct {
	// LiveTime is the preset in seconds
	LiveTime float64 `json:"liveTime"`

	// Clear zeroes the previous spectrum first, default true
	Clear *bool `json:"clear"`
}

// Acquire starts a live time limited count.  It returns as soon as the
// count has started; poll /progress or /status for completion.
func Acquire(s Spectrometer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a := AcquireT{}
		err := json.NewDecoder(r.Body).Decode(&a)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if a.LiveTime <= 0 {
			http.Error(w, "liveTime must be positive", http.StatusBadRequest)
			return
		}
		clear := true
		if a.Clear != nil {
			clear = *a.Clear
		}
		err = s.StartAcquisition(util.SecsToDuration(a.LiveTime), clear)
		if err != nil {
			httpError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// ProgressT is the response of GET /progress
type ProgressT struct {
	canberra.Progress
	Percent int  `json:"percent"`
	Done    bool `json:"done"`
}

// GetProgress samples the live time once
func GetProgress(s Spectrometer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.LiveTime()
		if err != nil {
			httpError(w, err)
			return
		}
		generichttp.RespondJSON(w, ProgressT{Progress: p, Percent: p.Percent(), Done: p.Done()})
	}
}

// queryInt reads an integer query parameter with a default
func queryInt(r *http.Request, key string, def int) (int, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return def, nil
	}
	i, err := strconv.Atoi(str)
	if err != nil {
		return 0, fmt.Errorf("query parameter %s: %w", key, err)
	}
	return i, nil
}

// queryFloat reads a required float query parameter
func queryFloat(r *http.Request, key string) (float64, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return 0, fmt.Errorf("query parameter %s is required", key)
	}
	return strconv.ParseFloat(str, 64)
}

// GetSpectrum returns a channel range, ?left=1&right=-1 by default, as JSON
// or with ?fmt=fits as a FITS file.  If rec is enabled each spectrum served
// is also written to disk.
func GetSpectrum(s Spectrometer, rec *specrec.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		left, err := queryInt(r, "left", canberra.FirstChannel)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		right, err := queryInt(r, "right", canberra.LastChannel)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		spec, err := s.Spectrum(left, right)
		if err != nil {
			httpError(w, err)
			return
		}
		if rec != nil && rec.IsEnabled() {
			fn, err := rec.Record(spec)
			if err != nil {
				log.Printf("autowrite of spectrum failed: %v\n", err)
			} else {
				log.Println("spectrum written to", fn)
			}
		}
		switch r.URL.Query().Get("fmt") {
		case "", "json":
			generichttp.RespondJSON(w, spec)
		case "fits":
			w.Header().Set("Content-Type", "image/fits")
			w.Header().Set("Content-Disposition", `attachment; filename="spectrum.fits"`)
			err = canberra.WriteFITS(w, spec)
			if err != nil {
				// headers are gone, all we can do is log
				log.Printf("error streaming FITS spectrum: %v\n", err)
			}
		default:
			http.Error(w, "fmt must be json or fits", http.StatusBadRequest)
		}
	}
}

// GetCalibration returns the energy calibration as JSON
func GetCalibration(c Calibrated) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cal, err := c.Calibration()
		if err != nil {
			httpError(w, err)
			return
		}
		generichttp.RespondJSON(w, cal)
	}
}

// convert answers ?key= passed through fcn as {"f64": x}
func convert(key string, fcn func(float64) (float64, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, err := queryFloat(r, key)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		out, err := fcn(in)
		if err != nil {
			httpError(w, err)
			return
		}
		hp := generichttp.HumanPayload{T: types.Float64, Float: out}
		hp.EncodeAndRespond(w, r)
	}
}

// EnergyToChannel converts ?e= to a channel as {"f64": ch}.  A zero
// calibration slope answers 409.
func EnergyToChannel(c Converter) http.HandlerFunc {
	return convert("e", c.EnergyToChannel)
}

// ChannelToEnergy converts ?ch= to an energy as {"f64": e}
func ChannelToEnergy(c Converter) http.HandlerFunc {
	return convert("ch", c.ChannelToEnergy)
}

// SetHighVoltage switches the bias from {"bool": b}.  A source without a
// controllable supply answers 501.
func SetHighVoltage(h HighVoltager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b := generichttp.BoolT{}
		err := json.NewDecoder(r.Body).Decode(&b)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = h.SetHighVoltage(b.Bool)
		if err != nil {
			httpError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// SaveT is the body of POST /save
type SaveT struct {
	Filename  string `json:"filename"`
	Overwrite bool   `json:"overwrite"`
}

// Save writes the spectrum in the vendor's format on the server's disk
func Save(s Saver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b := SaveT{}
		err := json.NewDecoder(r.Body).Decode(&b)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if b.Filename == "" {
			http.Error(w, "filename is required", http.StatusBadRequest)
			return
		}
		err = s.Save(b.Filename, b.Overwrite)
		if err != nil {
			httpError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// ParamsT is the response of GET /params
type ParamsT struct {
	Version string   `json:"version"`
	Names   []string `json:"names"`
}

// GetParams lists the parameter names the server knows
func GetParams(p ParamLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t := p.Table()
		generichttp.RespondJSON(w, ParamsT{Version: t.Version(), Names: t.Names()})
	}
}

// HTTPSpectrometer wraps a Spectrometer in an HTTP route table
type HTTPSpectrometer struct {
	// Spec is the underlying detector
	Spec Spectrometer

	// RouteTable maps URLs to functions
	RouteTable generichttp.RouteTable
}

// NewHTTPSpectrometer returns a new HTTP wrapper around a detector.
// rec may be nil; if it is not, its autowrite routes are injected and
// served spectra are recorded while it is enabled.
func NewHTTPSpectrometer(s Spectrometer, rec *specrec.Recorder) HTTPSpectrometer {
	h := HTTPSpectrometer{Spec: s}
	rt := generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodGet, Path: "/status"}:        GetStatus(s),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/param/{name}"}:  GetParam(s),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/param/{name}"}: SetParam(s),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/acquire"}:      Acquire(s),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/stop"}:         generichttp.Do(s.StopAcquisition),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/clear"}:        generichttp.Do(s.Clear),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/progress"}:      GetProgress(s),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/spectrum"}:      GetSpectrum(s, rec),
	}
	if cal, ok := interface{}(s).(Calibrated); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/calibration"}] = GetCalibration(cal)
	}
	if cv, ok := interface{}(s).(Converter); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/energy-to-channel"}] = EnergyToChannel(cv)
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/channel-to-energy"}] = ChannelToEnergy(cv)
	}
	if hv, ok := interface{}(s).(HighVoltager); ok {
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/high-voltage"}] = SetHighVoltage(hv)
	}
	if sv, ok := interface{}(s).(Saver); ok {
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/save"}] = Save(sv)
	}
	if pl, ok := interface{}(s).(ParamLister); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/params"}] = GetParams(pl)
	}
	h.RouteTable = rt
	if rec != nil {
		specrec.NewHTTPWrapper(rec).Inject(h)
	}
	return h
}

// RT satisfies the generichttp.HTTPer interface
func (h HTTPSpectrometer) RT() generichttp.RouteTable {
	return h.RouteTable
}
