package overlay

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"io"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"cloud.google.com/go/storage"
	"github.com/carbocation/segeval"
	"github.com/carbocation/segeval/grid"
	_ "golang.org/x/image/bmp"
)

// ImageFromBytes creates an image from the specified bytes. Must be PNG, GIF,
// BMP, or JPEG formatted (based on the decoders we have imported).
func ImageFromBytes(imgBytes []byte) (image.Image, error) {
	imgReader := bytes.NewReader(imgBytes)

	// Extract and decode the image.
	img, _, err := image.Decode(imgReader)

	return img, err
}

// OpenImage reads an image from a local path, a gs:// path or a URL.
func OpenImage(ctx context.Context, filePath string, storageClient *storage.Client) (image.Image, error) {
	f, size, err := segeval.OpenSource(ctx, filePath, storageClient)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// The image decoder swallows errors, so we won't see i/o errors if they
	// happen during image decoding. To capture these, we read the full image
	// into memory here, and pass a byte reader to the image decoder.
	imgBytes, err := io.ReadAll(io.NewSectionReader(f, 0, size))
	if err != nil {
		return nil, err
	}

	return ImageFromBytes(imgBytes)
}

// ImageToVolume turns a 2D image into a single-plane grid. Pixels are read
// as:
//   - the raw sample of 16-bit grayscale images;
//   - label IDs (#010101 is 1) when every pixel is gray;
//   - the nearest label color of labels, if given;
//   - luminance otherwise, which needs thresholding before evaluation.
func ImageToVolume(img image.Image, labels LabelMap, spacing [2]float64) (*grid.Volume, error) {
	b := img.Bounds()
	geom := grid.NewGeometry(b.Dx(), b.Dy(), 1, spacing[0], spacing[1], 1)
	vol := grid.NewVolume(geom)

	set := func(fn func(c color.Color) (float64, error)) error {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				v, err := fn(img.At(x, y))
				if err != nil {
					return err
				}
				vol.Set(x-b.Min.X, y-b.Min.Y, 0, v)
			}
		}
		return nil
	}

	if g16, ok := img.(*image.Gray16); ok {
		err := set(func(c color.Color) (float64, error) {
			return float64(g16.ColorModel().Convert(c).(color.Gray16).Y), nil
		})
		return vol, err
	}

	if allGray(img) {
		err := set(func(c color.Color) (float64, error) {
			id, err := LabeledPixelToID(c)
			return float64(id), err
		})
		return vol, err
	}

	if len(labels) > 0 {
		dec, err := labels.Decoder()
		if err != nil {
			return nil, err
		}
		err = set(func(c color.Color) (float64, error) {
			return float64(dec.ID(c)), nil
		})
		return vol, err
	}

	err := set(func(c color.Color) (float64, error) {
		return float64(color.GrayModel.Convert(c).(color.Gray).Y), nil
	})

	return vol, err
}

func allGray(img image.Image) bool {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			if r != g || g != bl {
				return false
			}
		}
	}
	return true
}
