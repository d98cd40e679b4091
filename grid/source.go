package grid

import "fmt"

// Source is anything that can hand out whole z-planes of voxel values in
// x-fastest order. Implementations must allow concurrent ReadPlanes calls and
// must not change while an evaluation is running.
type Source interface {
	Geometry() Geometry
	// ReadPlanes fills dst[:(z1-z0)*PlaneLen] with planes z0 (inclusive)
	// through z1 (exclusive).
	ReadPlanes(z0, z1 int, dst []float64) error
}

// Volume is an in-memory Source.
type Volume struct {
	geom Geometry
	Data []float64
}

func NewVolume(geom Geometry) *Volume {
	return &Volume{geom: geom, Data: make([]float64, geom.Len())}
}

// NewVolumeFromData wraps data without copying it.
func NewVolumeFromData(geom Geometry, data []float64) (*Volume, error) {
	if len(data) != geom.Len() {
		return nil, fmt.Errorf("geometry %v needs %d values, got %d", geom, geom.Len(), len(data))
	}

	return &Volume{geom: geom, Data: data}, nil
}

func (v *Volume) Geometry() Geometry {
	return v.geom
}

func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.geom.Index(x, y, z)]
}

func (v *Volume) Set(x, y, z int, value float64) {
	v.Data[v.geom.Index(x, y, z)] = value
}

// FillBox sets every voxel of the half-open box [lo, hi) to value.
func (v *Volume) FillBox(lo, hi [3]int, value float64) {
	for z := lo[2]; z < hi[2]; z++ {
		for y := lo[1]; y < hi[1]; y++ {
			for x := lo[0]; x < hi[0]; x++ {
				if v.geom.Contains(x, y, z) {
					v.Set(x, y, z, value)
				}
			}
		}
	}
}

func (v *Volume) ReadPlanes(z0, z1 int, dst []float64) error {
	if z0 < 0 || z1 > v.geom.Dims[2] || z0 > z1 {
		return fmt.Errorf("planes [%d, %d) out of range for depth %d", z0, z1, v.geom.Dims[2])
	}
	plane := v.geom.PlaneLen()
	n := copy(dst, v.Data[z0*plane:z1*plane])
	if n != (z1-z0)*plane {
		return fmt.Errorf("destination holds %d values, need %d", len(dst), (z1-z0)*plane)
	}

	return nil
}
