package matte

import (
	"errors"
	"fmt"
)

// CoverageFunc returns the coverage in [0, 1] of a pixel index. Values
// outside the range are clamped by Finalize.
type CoverageFunc func(pixel int) float32

// UniformCoverage returns a CoverageFunc that yields c for every pixel.
func UniformCoverage(c float32) CoverageFunc {
	return func(int) float32 { return c }
}

// CoverageMap holds one coverage value per pixel.
type CoverageMap []float32

// Func returns a CoverageFunc reading from m. Pixels beyond the end of the
// map are fully covered.
func (m CoverageMap) Func() CoverageFunc {
	return func(p int) float32 {
		if p < 0 || p >= len(m) {
			return 1
		}
		return m[p]
	}
}

// ErrTransmittanceSize is returned when a transmittance sample does not
// match the accumulator size.
var ErrTransmittanceSize = errors.New("matte: transmittance sample has wrong length")

// VolumeTransmittance accumulates per-sample RGB transmittance through
// volumes and converts it into pixel coverage.
type VolumeTransmittance struct {
	width, height int
	sum           []float32
	samples       int
}

// NewVolumeTransmittance creates an accumulator for a width x height image.
func NewVolumeTransmittance(width, height int) *VolumeTransmittance {
	return &VolumeTransmittance{
		width:  width,
		height: height,
		sum:    make([]float32, width*height),
	}
}

// Add integrates one sample of interleaved RGB transmittance, three values
// per pixel.
func (v *VolumeTransmittance) Add(rgb []float32) error {
	if len(rgb) != 3*len(v.sum) {
		return fmt.Errorf("%w: got %d values, want %d", ErrTransmittanceSize, len(rgb), 3*len(v.sum))
	}
	for p := range v.sum {
		v.sum[p] += rgb[3*p] + rgb[3*p+1] + rgb[3*p+2]
	}
	v.samples++
	return nil
}

// Samples returns the number of samples added.
func (v *VolumeTransmittance) Samples() int {
	return v.samples
}

// Coverage returns the mean transmittance of each pixel,
// sum(R+G+B) / (3*samples), clamped to [0, 1]. With no samples every pixel
// is fully covered.
func (v *VolumeTransmittance) Coverage() CoverageMap {
	m := make(CoverageMap, len(v.sum))
	if v.samples == 0 {
		for p := range m {
			m[p] = 1
		}
		return m
	}
	scale := 1 / float32(3*v.samples)
	for p, sum := range v.sum {
		m[p] = max(0, min(sum*scale, 1))
	}
	return m
}

// Reset discards all samples.
func (v *VolumeTransmittance) Reset() {
	clear(v.sum)
	v.samples = 0
}
