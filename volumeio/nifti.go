package volumeio

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
	"github.com/carbocation/segeval"
	"github.com/carbocation/segeval/grid"
	"github.com/henghuang/nifti"
)

// loadNifti reads a whole (possibly gzipped) NIfTI file into memory. Only the
// first time point of 4D files is used.
func loadNifti(ctx context.Context, path string, client *storage.Client) (*grid.Volume, error) {
	local, cleanup, err := localCopy(ctx, path, client)
	defer cleanup()
	if err != nil {
		return nil, err
	}

	vol, err := decodeNifti(local)
	if err != nil {
		return nil, segeval.Wrap(segeval.KindInputLoad, "nifti", pfx.Err(fmt.Errorf("%s: %w", path, err)))
	}

	return vol, nil
}

// decodeNifti converts a local NIfTI file into a volume. The nifti library
// panics on malformed input; those panics are returned as errors.
func decodeNifti(filename string) (vol *grid.Volume, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			vol, err = nil, fmt.Errorf("%v", panicErr)
		}
	}()

	var header nifti.Nifti1Header
	header.LoadHeader(filename)
	if magic := string(header.Magic[:3]); magic != "n+1" && magic != "ni1" {
		return nil, fmt.Errorf("not a NIfTI-1 file (magic %q)", header.Magic)
	}
	if header.Dim[0] < 2 || header.Dim[0] > 7 {
		return nil, fmt.Errorf("unsupported number of dimensions %d", header.Dim[0])
	}

	var img nifti.Nifti1Image
	img.LoadImage(filename, true)

	dims := img.GetDims()
	xm, ym, zm := dims[0], dims[1], dims[2]
	if zm < 1 {
		zm = 1
	}
	if xm < 1 || ym < 1 {
		return nil, fmt.Errorf("invalid dimensions %v", dims)
	}

	// A truncated file panics here, before the volume is allocated.
	img.GetAt(xm-1, ym-1, zm-1, 0)

	geom := grid.NewGeometry(xm, ym, zm,
		float64(header.Pixdim[1]), float64(header.Pixdim[2]), float64(header.Pixdim[3]))
	vol = grid.NewVolume(geom)
	for z := 0; z < zm; z++ {
		for y := 0; y < ym; y++ {
			for x := 0; x < xm; x++ {
				vol.Set(x, y, z, float64(img.GetAt(x, y, z, 0)))
			}
		}
	}

	return vol, nil
}
