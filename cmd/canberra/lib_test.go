package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/lare/gammalab/canberra"
	"github.com/lare/gammalab/canberra/canberratest"
)

func TestParseArgsPrecedence(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "canberra.yml")
	err := os.WriteFile(cfg, []byte("source: DET02\nlive: 60\ninterval: 2s\n"), 0666)
	if err != nil {
		t.Fatal(err)
	}
	c, args, err := parseArgs([]string{"--config", cfg, "--live", "90", "acquire"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	want := Config{
		Source:   "DET02",
		Table:    "cam-params.yml",
		Live:     90,
		Clear:    true,
		Interval: 2 * time.Second,
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"acquire"}, args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestParseArgsMissingConfigIsFine(t *testing.T) {
	c, _, err := parseArgs([]string{"--config", filepath.Join(t.TempDir(), "nope.yml"), "--clear=false", "status"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if c.Clear || c.Source != "DET01" {
		t.Errorf("unexpected config %+v", c)
	}
}

func TestParseValue(t *testing.T) {
	cases := []struct {
		in   string
		want interface{}
	}{
		{"42", int32(42)},
		{"0.25", 0.25},
		{"1e3", 1000.},
		{"Ge-1", "Ge-1"},
		{"99999999999", 99999999999.},
	}
	for _, c := range cases {
		if got := parseValue(c.in); got != c.want {
			t.Errorf("%q: expected %v (%T), got %v (%T)", c.in, c.want, c.want, got, got)
		}
	}
}

func TestErrtextNeedsNoDevice(t *testing.T) {
	if needsDevice("errtext") {
		t.Fatal("errtext should run offline")
	}
	var buf bytes.Buffer
	if err := offline(DefaultConfig(), []string{"errtext", "17"}, &buf); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "Error: Could not connect") {
		t.Errorf("unexpected text %q", buf.String())
	}
}

func TestParamsListsTable(t *testing.T) {
	c := DefaultConfig()
	c.Table = filepath.Join("..", "..", "canberra", "testdata", "cam-params.yml")
	var buf bytes.Buffer
	if err := offline(c, []string{"params"}, &buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "CAM_F_ECSLOPE\n") {
		t.Errorf("slope missing from\n%s", buf.String())
	}
}

func open(t *testing.T) (*canberra.Detector, *canberratest.Fake) {
	t.Helper()
	f := canberratest.NewCalibrated(1, 0, []uint32{3, 4})
	d := canberra.New(f, canberratest.Table(), "DET01")
	if err := d.Open(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	return d, f
}

func TestExecuteStatusAndGet(t *testing.T) {
	d, _ := open(t)
	var buf bytes.Buffer
	ctx := context.Background()
	if err := execute(ctx, d, DefaultConfig(), []string{"status"}, &buf, nil); err != nil {
		t.Fatal(err)
	}
	if err := execute(ctx, d, DefaultConfig(), []string{"get", "CAM_T_DETNAME"}, &buf, nil); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "2080 idle\nDET01\n" {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestExecuteArgCount(t *testing.T) {
	d, f := open(t)
	f.Calls = nil
	err := execute(context.Background(), d, DefaultConfig(), []string{"set", "CAM_X_PLIVE"}, io.Discard, nil)
	if !errors.Is(err, errUsage) {
		t.Errorf("expected a usage error, got %v", err)
	}
	if len(f.Calls) != 0 {
		t.Errorf("device was called: %v", f.Methods())
	}
}

func TestExecuteAcquireWritesFITS(t *testing.T) {
	d, f := open(t)
	f.Params[canberratest.Codes[canberra.ParamPresetLive]] = 5.
	f.Sequences[canberratest.Codes[canberra.ParamElapsedLive]] = []interface{}{0., 5.}
	c := DefaultConfig()
	c.Live = 5
	c.Interval = time.Millisecond
	c.Out = filepath.Join(t.TempDir(), "out.fits")
	var reports int
	err := execute(context.Background(), d, c, []string{"acquire"}, io.Discard, func(canberra.Progress) { reports++ })
	if err != nil {
		t.Fatal(err)
	}
	if reports != 2 {
		t.Errorf("expected 2 progress reports, got %d", reports)
	}
	fi, err := os.Stat(c.Out)
	if err != nil || fi.Size()%2880 != 0 {
		t.Errorf("bad FITS output: %v", err)
	}
}

func TestExecuteAcquireNeedsLive(t *testing.T) {
	d, _ := open(t)
	err := execute(context.Background(), d, DefaultConfig(), []string{"acquire"}, io.Discard, nil)
	if !errors.Is(err, errUsage) {
		t.Errorf("expected a usage error, got %v", err)
	}
}

func TestExecuteHV(t *testing.T) {
	d, f := open(t)
	if err := execute(context.Background(), d, DefaultConfig(), []string{"hv", "on"}, io.Discard, nil); err != nil {
		t.Fatal(err)
	}
	if !f.HighVoltage {
		t.Error("high voltage not switched on")
	}
	if err := execute(context.Background(), d, DefaultConfig(), []string{"hv", "maybe"}, io.Discard, nil); err == nil {
		t.Error("expected an error for hv maybe")
	}
}

// display records how a progress display was used
type fakeDisplay struct {
	started, stopped int
	ok               bool
}

func (d *fakeDisplay) start() (func(canberra.Progress), func(bool), error) {
	d.started++
	return func(canberra.Progress) {}, func(ok bool) { d.stopped++; d.ok = ok }, nil
}

func TestDisplayNotStartedWhenOpenFails(t *testing.T) {
	f := canberratest.NewCalibrated(1, 0, []uint32{1})
	f.SetErr("Connect", errors.New("detector in use"))
	disp := &fakeDisplay{}
	err := canberra.Session(f, canberratest.Table(), "DET01", func(d *canberra.Detector) error {
		return runDevice(context.Background(), d, DefaultConfig(), []string{"acquire"}, io.Discard, disp.start)
	})
	var cerr *canberra.ConnectError
	if !errors.As(err, &cerr) {
		t.Errorf("expected a ConnectError, got %v", err)
	}
	if disp.started != 0 {
		t.Errorf("display started %d times for a detector that never opened", disp.started)
	}
}

func TestDisplayStoppedOnce(t *testing.T) {
	d, _ := open(t)
	disp := &fakeDisplay{}
	err := runDevice(context.Background(), d, DefaultConfig(), []string{"acquire"}, io.Discard, disp.start)
	if !errors.Is(err, errUsage) {
		t.Errorf("expected a usage error, got %v", err)
	}
	if disp.started != 1 || disp.stopped != 1 || disp.ok {
		t.Errorf("expected one failed stop, got %+v", *disp)
	}

	disp = &fakeDisplay{}
	if err := runDevice(context.Background(), d, DefaultConfig(), []string{"status"}, io.Discard, disp.start); err != nil {
		t.Fatal(err)
	}
	if disp.started != 0 {
		t.Error("display started for a command other than acquire")
	}
}
