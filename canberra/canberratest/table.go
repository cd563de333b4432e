package canberratest

import "github.com/lare/gammalab/canberra"

// Codes used by Table.  They are arbitrary and only meaningful to Fake.
var Codes = map[string]canberra.ParamCode{
	canberra.ParamEnergySlope:  1001,
	canberra.ParamEnergyOffset: 1002,
	canberra.ParamPresetLive:   1003,
	canberra.ParamElapsedLive:  1004,
	canberra.ParamPresetReal:   1005,
	canberra.ParamElapsedReal:  1006,
	"CAM_T_DETNAME":            1007,
	"CAM_L_CHANNELS":           1008,
}

// Table returns a parameter table built from Codes
func Table() *canberra.ParamTable {
	t, err := canberra.NewParamTable("canberratest", Codes)
	if err != nil {
		panic(err)
	}
	return t
}

// NewCalibrated returns a Fake holding an energy calibration, zero elapsed
// times, and counts
func NewCalibrated(slope, intercept float64, counts []uint32) *Fake {
	f := New()
	f.Params[Codes[canberra.ParamEnergySlope]] = slope
	f.Params[Codes[canberra.ParamEnergyOffset]] = intercept
	f.Params[Codes[canberra.ParamPresetLive]] = 0.
	f.Params[Codes[canberra.ParamElapsedLive]] = 0.
	f.Params[Codes[canberra.ParamPresetReal]] = 0.
	f.Params[Codes[canberra.ParamElapsedReal]] = 0.
	f.Params[Codes["CAM_T_DETNAME"]] = "DET01"
	f.Params[Codes["CAM_L_CHANNELS"]] = int32(len(counts))
	f.Counts = counts
	return f
}
