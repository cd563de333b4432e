package canberra

import "math"

// Calibration is the linear energy calibration of a detector,
// energy = channel*Slope + Intercept.  Energies are in the units the
// calibration was made in, conventionally keV.
type Calibration struct {
	// Slope is CAM_F_ECSLOPE, energy per channel
	Slope float64 `json:"slope"`

	// Intercept is CAM_F_ECOFFSET, the energy of channel zero
	Intercept float64 `json:"intercept"`
}

// ChannelToEnergy converts a (possibly fractional) channel to energy
func (c Calibration) ChannelToEnergy(channel float64) float64 {
	return channel*c.Slope + c.Intercept
}

// EnergyToChannel converts an energy to a fractional channel.
// It returns NaN if the calibration has zero slope.
func (c Calibration) EnergyToChannel(energy float64) float64 {
	if c.Slope == 0 {
		return math.NaN()
	}
	return (energy - c.Intercept) / c.Slope
}

// Valid is true if the calibration can be inverted
func (c Calibration) Valid() bool {
	return c.Slope != 0 && !math.IsNaN(c.Slope) && !math.IsInf(c.Slope, 0) &&
		!math.IsNaN(c.Intercept) && !math.IsInf(c.Intercept, 0)
}
