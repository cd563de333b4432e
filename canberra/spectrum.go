package canberra

import (
	"errors"
	"io"

	"github.com/astrogo/fitsio"
)

// Spectrum is a block of channel counts read from a detector.  It is
// owned by the caller; the detector does not hold on to it.
type Spectrum struct {
	// Source is the detector or file the spectrum came from
	Source string `json:"source"`

	// FirstChannel is the (1-based) channel of Counts[0]
	FirstChannel int `json:"firstChannel"`

	// Counts holds one value per channel
	Counts []uint32 `json:"counts"`

	// Calibration is the session's energy calibration
	Calibration Calibration `json:"calibration"`

	// LiveTime and RealTime are the elapsed times in seconds at readout,
	// zero if they could not be read
	LiveTime float64 `json:"liveTime"`
	RealTime float64 `json:"realTime"`
}

// Channels is the number of channels in the spectrum
func (s Spectrum) Channels() int {
	return len(s.Counts)
}

// Total is the sum of all counts
func (s Spectrum) Total() uint64 {
	var sum uint64
	for _, c := range s.Counts {
		sum += uint64(c)
	}
	return sum
}

// Channel is the detector channel number of Counts[i]
func (s Spectrum) Channel(i int) int {
	return s.FirstChannel + i
}

// Energy is the calibrated energy of Counts[i]
func (s Spectrum) Energy(i int) float64 {
	return s.Calibration.ChannelToEnergy(float64(s.Channel(i)))
}

// fitsBZero offsets unsigned 32-bit counts into the signed range FITS stores
const fitsBZero = 1 << 31

// WriteFITS streams s to w as a one dimensional, 32-bit FITS image with the
// calibration and times in the header
func WriteFITS(w io.Writer, s Spectrum) error {
	if len(s.Counts) == 0 {
		return errors.New("canberra: cannot write an empty spectrum")
	}
	metadata := []fitsio.Card{
		// an integer card, a float one is written with six significant digits
		{Name: "BZERO", Value: int64(fitsBZero)},
		{Name: "BSCALE", Value: 1.0},
		{Name: "SOURCE", Value: s.Source, Comment: "detector or file"},
		{Name: "CHAN0", Value: s.FirstChannel, Comment: "channel of the first pixel"},
		{Name: "ECSLOPE", Value: s.Calibration.Slope, Comment: "energy per channel"},
		{Name: "ECOFFSET", Value: s.Calibration.Intercept, Comment: "energy of channel 0"},
		{Name: "LIVETIME", Value: s.LiveTime, Comment: "elapsed live time, s"},
		{Name: "REALTIME", Value: s.RealTime, Comment: "elapsed real time, s"},
	}
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	im := fitsio.NewImage(32, []int{len(s.Counts)})
	defer im.Close()
	err = im.Header().Append(metadata...)
	if err != nil {
		return err
	}
	buf := make([]int32, len(s.Counts))
	for i, c := range s.Counts {
		buf[i] = int32(c ^ fitsBZero)
	}
	err = im.Write(buf)
	if err != nil {
		return err
	}
	return fits.Write(im)
}
