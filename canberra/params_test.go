package canberra

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadParamTable(t *testing.T) {
	tbl, err := LoadParamTable("testdata/cam-params.yml")
	if err != nil {
		t.Fatal(err)
	}
	if tbl.Version() != "sample" {
		t.Errorf("expected version sample, got %q", tbl.Version())
	}
	truth := map[string]ParamCode{
		"CAM_F_ECSLOPE":  1001,
		"CAM_F_ECOFFSET": 1002,
		"CAM_X_PLIVE":    1003,
		"CAM_X_ELIVE":    1004,
		"CAM_X_PREAL":    1005,
		"CAM_X_EREAL":    1006,
		"CAM_T_DETNAME":  1007,
		"CAM_L_CHANNELS": 1008,
	}
	if tbl.Len() != len(truth) {
		t.Errorf("expected %d entries, got %d", len(truth), tbl.Len())
	}
	for name, code := range truth {
		got, err := tbl.Lookup(name)
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if got != code {
			t.Errorf("%s: expected code %d, got %d", name, code, got)
		}
	}
}

func TestLookupUnknownParameter(t *testing.T) {
	tbl, err := LoadParamTable("testdata/cam-params.yml")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		_, err = tbl.Lookup("NOT_A_REAL_PARAM")
		if !errors.Is(err, ErrUnknownParameter) {
			t.Fatalf("expected ErrUnknownParameter, got %v", err)
		}
		var upe *UnknownParameterError
		if !errors.As(err, &upe) || upe.Name != "NOT_A_REAL_PARAM" {
			t.Errorf("expected UnknownParameterError naming the parameter, got %v", err)
		}
	}
}

func TestNamesSorted(t *testing.T) {
	tbl, err := NewParamTable("v", map[string]ParamCode{"B": 2, "C": 3, "A": 1})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"A", "B", "C"}, tbl.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
}

func TestTableIsCopied(t *testing.T) {
	src := map[string]ParamCode{"A": 1}
	tbl, err := NewParamTable("v", src)
	if err != nil {
		t.Fatal(err)
	}
	src["A"] = 99
	src["B"] = 2
	if code, _ := tbl.Lookup("A"); code != 1 {
		t.Errorf("table changed with its source map, A = %d", code)
	}
	if _, err := tbl.Lookup("B"); err == nil {
		t.Error("table gained an entry added to its source map")
	}
}

func TestDuplicateCodesRejected(t *testing.T) {
	_, err := LoadParamTable("testdata/dup-params.yml")
	if err == nil {
		t.Fatal("expected an error for two names sharing a code")
	}
	if !strings.Contains(err.Error(), "CAM_F_ECOFFSET and CAM_F_ECSLOPE") {
		t.Errorf("error should name both parameters, got %v", err)
	}
}

func TestEmptyTableRejected(t *testing.T) {
	_, err := ReadParamTable(strings.NewReader("Version: x\n"))
	if err == nil {
		t.Error("expected an error for a table without parameters")
	}
}
