package spectro

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/lare/gammalab/canberra"
	"github.com/lare/gammalab/canberra/canberratest"
	"github.com/lare/gammalab/generichttp"
	"github.com/lare/gammalab/specrec"
)

func setup(t *testing.T, rec *specrec.Recorder) (chi.Router, *canberratest.Fake, *canberra.Detector) {
	t.Helper()
	f := canberratest.NewCalibrated(0.5, 1, []uint32{5, 6, 7, 8})
	d := canberra.New(f, canberratest.Table(), "DET01")
	if err := d.Open(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	r := chi.NewRouter()
	NewHTTPSpectrometer(d, rec).RT().Bind(r)
	return r, f, d
}

func do(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	r.ServeHTTP(w, req)
	return w
}

func TestStatusRoute(t *testing.T) {
	r, f, _ := setup(t, nil)
	f.Status = int(canberra.StatusPaused)
	w := do(r, http.MethodGet, "/status", "")
	st := StatusT{}
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Code != 2092 || st.State != "paused" {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestParamRoutes(t *testing.T) {
	r, _, _ := setup(t, nil)
	w := do(r, http.MethodPost, "/param/CAM_X_PLIVE", `{"f64": 60}`)
	if w.Code != http.StatusOK {
		t.Fatalf("set: %d %s", w.Code, w.Body.String())
	}
	w = do(r, http.MethodGet, "/param/CAM_X_PLIVE", "")
	f := generichttp.FloatT{}
	json.NewDecoder(w.Body).Decode(&f)
	if f.F64 != 60 {
		t.Errorf("expected 60, got %f", f.F64)
	}
	w = do(r, http.MethodGet, "/param/CAM_T_DETNAME", "")
	s := generichttp.StrT{}
	json.NewDecoder(w.Body).Decode(&s)
	if s.Str != "DET01" {
		t.Errorf("expected DET01, got %q", s.Str)
	}
}

func TestUnknownParamIs404(t *testing.T) {
	r, _, _ := setup(t, nil)
	if w := do(r, http.MethodGet, "/param/NOT_A_REAL_PARAM", ""); w.Code != http.StatusNotFound {
		t.Errorf("get: expected 404, got %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/param/NOT_A_REAL_PARAM", `{"f64":1}`); w.Code != http.StatusNotFound {
		t.Errorf("set: expected 404, got %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/param/CAM_X_PLIVE", `{"f64":1,"str":"x"}`); w.Code != http.StatusBadRequest {
		t.Errorf("ambiguous body: expected 400, got %d", w.Code)
	}
}

func TestAcquireRoute(t *testing.T) {
	r, f, _ := setup(t, nil)
	f.Calls = nil
	w := do(r, http.MethodPost, "/acquire", `{"liveTime": 30, "clear": false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", w.Code, w.Body.String())
	}
	if diff := cmp.Diff([]string{"SpectroscopyAcquireSetup", "AcquireStart"}, f.Methods()); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	f.Calls = nil
	do(r, http.MethodPost, "/acquire", `{"liveTime": 30}`)
	if f.Methods()[0] != "Clear" {
		t.Error("expected clear by default")
	}
	if w := do(r, http.MethodPost, "/acquire", `{"liveTime": 0}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for zero live time, got %d", w.Code)
	}
}

func TestProgressRoute(t *testing.T) {
	r, f, _ := setup(t, nil)
	f.Params[canberratest.Codes[canberra.ParamPresetLive]] = 200.
	f.Params[canberratest.Codes[canberra.ParamElapsedLive]] = 50.
	w := do(r, http.MethodGet, "/progress", "")
	p := ProgressT{}
	if err := json.NewDecoder(w.Body).Decode(&p); err != nil {
		t.Fatal(err)
	}
	if p.Percent != 25 || p.Done || p.Elapsed != 50 {
		t.Errorf("unexpected progress %+v", p)
	}
}

func TestSpectrumJSONAndFITS(t *testing.T) {
	r, _, _ := setup(t, nil)
	w := do(r, http.MethodGet, "/spectrum?left=2&right=3", "")
	s := canberra.Spectrum{}
	if err := json.NewDecoder(w.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint32{6, 7}, s.Counts); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
	w = do(r, http.MethodGet, "/spectrum?fmt=fits", "")
	if w.Header().Get("Content-Type") != "image/fits" {
		t.Errorf("unexpected content type %q", w.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("SIMPLE  =")) {
		t.Error("response is not a FITS file")
	}
	if w := do(r, http.MethodGet, "/spectrum?left=x", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad channel, got %d", w.Code)
	}
}

func TestSpectrumAutowrite(t *testing.T) {
	rec := specrec.New(t.TempDir(), "auto_")
	r, _, _ := setup(t, rec)
	do(r, http.MethodGet, "/spectrum", "")
	matches, _ := filepath.Glob(filepath.Join(rec.Root, "*", "auto_*.fits"))
	if len(matches) != 1 {
		t.Fatalf("expected one recorded spectrum, found %v", matches)
	}
	if fi, err := os.Stat(matches[0]); err != nil || fi.Size() == 0 {
		t.Errorf("recorded file is empty or missing: %v", err)
	}
	if w := do(r, http.MethodGet, "/autowrite/enabled", ""); w.Code != http.StatusOK {
		t.Errorf("autowrite routes not injected, got %d", w.Code)
	}
}

func TestConversionRoutes(t *testing.T) {
	r, _, _ := setup(t, nil)
	f := generichttp.FloatT{}
	w := do(r, http.MethodGet, "/energy-to-channel?e=51", "")
	json.NewDecoder(w.Body).Decode(&f)
	if f.F64 != 100 {
		t.Errorf("expected channel 100, got %f", f.F64)
	}
	w = do(r, http.MethodGet, "/channel-to-energy?ch=100", "")
	json.NewDecoder(w.Body).Decode(&f)
	if f.F64 != 51 {
		t.Errorf("expected 51 keV, got %f", f.F64)
	}
	if w := do(r, http.MethodGet, "/energy-to-channel", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without e, got %d", w.Code)
	}
}

func TestConversionWithoutCalibration(t *testing.T) {
	d := canberra.New(canberratest.NewCalibrated(0, 1, []uint32{1}), canberratest.Table(), "DET01")
	if err := d.Open(); err != nil {
		t.Fatal(err)
	}
	r := chi.NewRouter()
	NewHTTPSpectrometer(d, nil).RT().Bind(r)
	if w := do(r, http.MethodGet, "/energy-to-channel?e=10", ""); w.Code != http.StatusConflict {
		t.Errorf("zero slope: expected 409, got %d", w.Code)
	}
	d.Close()
	if w := do(r, http.MethodGet, "/channel-to-energy?ch=10", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("closed detector: expected 503, got %d", w.Code)
	}
}

func TestHighVoltageUnsupportedIs501(t *testing.T) {
	r, f, _ := setup(t, nil)
	if w := do(r, http.MethodPost, "/high-voltage", `{"bool": true}`); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	f.SetErr("SetHighVoltage", errors.Join(canberra.ErrHighVoltageUnsupported, errors.New("no HVPS")))
	if w := do(r, http.MethodPost, "/high-voltage", `{"bool": false}`); w.Code != http.StatusNotImplemented {
		t.Errorf("expected 501, got %d", w.Code)
	}
}

func TestSaveRoute(t *testing.T) {
	r, f, _ := setup(t, nil)
	w := do(r, http.MethodPost, "/save", `{"filename":"C:/data/x.cnf","overwrite":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	last := f.Calls[len(f.Calls)-1]
	if diff := cmp.Diff(canberratest.Call{Method: "Save", Args: []interface{}{"C:/data/x.cnf", true}}, last); diff != "" {
		t.Errorf("save call mismatch (-want +got):\n%s", diff)
	}
	if w := do(r, http.MethodPost, "/save", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without a filename, got %d", w.Code)
	}
}

func TestClosedDetectorIs503(t *testing.T) {
	r, _, d := setup(t, nil)
	d.Close()
	if w := do(r, http.MethodGet, "/status", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestCollector(t *testing.T) {
	_, f, d := setup(t, nil)
	f.Params[canberratest.Codes[canberra.ParamPresetLive]] = 10.
	c := NewCollector(d, "DET01")
	if n := testutil.CollectAndCount(c); n != 6 {
		t.Errorf("expected 6 metrics, got %d", n)
	}
	if n := testutil.CollectAndCount(c, "canberra_spectrum_counts"); n != 1 {
		t.Errorf("expected the counts metric, got %d", n)
	}
	d.Close()
	if n := testutil.CollectAndCount(c); n != 1 {
		t.Errorf("expected only canberra_up from a closed detector, got %d", n)
	}
}
