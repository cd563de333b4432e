package specrec

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lare/gammalab/canberra"
	"github.com/lare/gammalab/generichttp"
)

func fixedRecorder(t *testing.T) *Recorder {
	r := New(t.TempDir(), "det01_")
	r.now = func() time.Time { return time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC) }
	return r
}

var spec = canberra.Spectrum{Source: "DET01", FirstChannel: 1, Counts: []uint32{1, 2, 3}}

func TestRecordIncrements(t *testing.T) {
	r := fixedRecorder(t)
	var paths []string
	for i := 0; i < 3; i++ {
		p, err := r.Record(spec)
		if err != nil {
			t.Fatal(err)
		}
		paths = append(paths, filepath.Base(p))
	}
	want := []string{"det01_000001.fits", "det01_000002.fits", "det01_000003.fits"}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("file %d: expected %s, got %s", i, want[i], paths[i])
		}
	}
	if _, err := os.Stat(filepath.Join(r.Root, "2026-10-18", want[2])); err != nil {
		t.Errorf("expected file in dated folder: %v", err)
	}
}

func TestRecordResumesCounter(t *testing.T) {
	r := fixedRecorder(t)
	fldr := filepath.Join(r.Root, "2026-10-18")
	os.MkdirAll(fldr, 0777)
	os.WriteFile(filepath.Join(fldr, "det01_000041.fits"), nil, 0666)
	os.WriteFile(filepath.Join(fldr, "other_000099.fits"), nil, 0666)
	p, err := r.Record(spec)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(p) != "det01_000042.fits" {
		t.Errorf("expected det01_000042.fits, got %s", filepath.Base(p))
	}
}

func TestRecordEmptySpectrumLeavesNoFile(t *testing.T) {
	r := fixedRecorder(t)
	if _, err := r.Record(canberra.Spectrum{}); err == nil {
		t.Fatal("expected an error for an empty spectrum")
	}
	entries, _ := os.ReadDir(filepath.Join(r.Root, "2026-10-18"))
	if len(entries) != 0 {
		t.Errorf("expected no files, found %d", len(entries))
	}
}

type table struct{ rt generichttp.RouteTable }

func (t table) RT() generichttp.RouteTable { return t.rt }

func TestInjectPrefix(t *testing.T) {
	r := fixedRecorder(t)
	tbl := table{rt: generichttp.RouteTable{}}
	NewHTTPWrapper(r).Inject(tbl)
	h := tbl.rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/prefix"}]
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/autowrite/prefix", strings.NewReader(`{"str":"bkg_"}`)))
	if w.Code != http.StatusOK || r.Prefix != "bkg_" {
		t.Errorf("prefix not updated: %d %q", w.Code, r.Prefix)
	}
	w = httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/autowrite/prefix", strings.NewReader(`{"str":"../x"}`)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a prefix with a separator, got %d", w.Code)
	}
}

func TestInjectEnabledAndRoot(t *testing.T) {
	r := fixedRecorder(t)
	tbl := table{rt: generichttp.RouteTable{}}
	NewHTTPWrapper(r).Inject(tbl)
	route := func(method, path string) http.HandlerFunc {
		return tbl.rt[generichttp.MethodPath{Method: method, Path: path}]
	}

	w := httptest.NewRecorder()
	route(http.MethodPost, "/autowrite/enabled")(w, httptest.NewRequest(http.MethodPost, "/autowrite/enabled", strings.NewReader(`{"bool":false}`)))
	if w.Code != http.StatusOK || r.IsEnabled() {
		t.Errorf("recorder not disabled: %d", w.Code)
	}
	w = httptest.NewRecorder()
	route(http.MethodGet, "/autowrite/enabled")(w, httptest.NewRequest(http.MethodGet, "/autowrite/enabled", nil))
	if got := strings.TrimSpace(w.Body.String()); got != `{"bool":false}` {
		t.Errorf("expected {\"bool\":false}, got %s", got)
	}
	w = httptest.NewRecorder()
	route(http.MethodPost, "/autowrite/enabled")(w, httptest.NewRequest(http.MethodPost, "/autowrite/enabled", strings.NewReader(`{`)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a malformed body, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	route(http.MethodGet, "/autowrite/root")(w, httptest.NewRequest(http.MethodGet, "/autowrite/root", nil))
	if !strings.Contains(w.Body.String(), `"str"`) || !strings.Contains(w.Body.String(), filepath.Base(r.Root)) {
		t.Errorf("root not reported: %s", w.Body.String())
	}
	w = httptest.NewRecorder()
	route(http.MethodGet, "/autowrite/prefix")(w, httptest.NewRequest(http.MethodGet, "/autowrite/prefix", nil))
	if got := strings.TrimSpace(w.Body.String()); got != `{"str":"det01_"}` {
		t.Errorf("expected {\"str\":\"det01_\"}, got %s", got)
	}
}
