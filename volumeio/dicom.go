package volumeio

import (
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/carbocation/segeval/grid"
	"github.com/carbocation/segeval/overlay"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/dicomtag"
	"github.com/suyashkumar/dicom/element"
)

// SafelyDicomParse consumes panics emitted by the dicom library, which are
// inappropriate and must be captured in order to turn them into recoverable
// errors.
func SafelyDicomParse(dcm []byte) (parsedData *element.DataSet, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			err = fmt.Errorf("%v", panicErr)
		}
	}()

	p, err := dicom.NewParserFromBytes(dcm, nil)
	if err != nil {
		return nil, err
	}

	parsedData, err = p.Parse(dicom.ParseOptions{
		DropPixelData: false,
	})
	if parsedData == nil && err == nil {
		err = fmt.Errorf("parser returned no data")
	}

	return
}

// DicomToVolume decodes the first frame of a single DICOM slice into a 2D
// grid. Encapsulated (compressed) frames are decoded as images. Pixel
// spacing is taken from PixelSpacing (row spacing, then column spacing) when
// present.
func DicomToVolume(dcm []byte) (*grid.Volume, error) {
	parsedData, err := SafelyDicomParse(dcm)
	if err != nil {
		return nil, err
	}

	var imgRows, imgCols int
	var imgPixels []int
	var encoded image.Image
	spacing := [2]float64{1, 1}

	for _, elem := range parsedData.Elements {
		if len(elem.Value) == 0 {
			continue
		}

		switch elem.Tag {
		case dicomtag.Rows:
			if v, ok := elem.Value[0].(uint16); ok {
				imgRows = int(v)
			}
		case dicomtag.Columns:
			if v, ok := elem.Value[0].(uint16); ok {
				imgCols = int(v)
			}
		case dicomtag.PixelSpacing:
			if len(elem.Value) < 2 {
				continue
			}
			row, err1 := parseDecimal(elem.Value[0])
			col, err2 := parseDecimal(elem.Value[1])
			if err1 == nil && err2 == nil && row > 0 && col > 0 {
				spacing = [2]float64{col, row}
			}
		case dicomtag.PixelData:
			data, ok := elem.Value[0].(element.PixelDataInfo)
			if !ok || len(data.Frames) == 0 {
				return nil, fmt.Errorf("pixel data has no frames")
			}
			frame := data.Frames[0]
			if frame.IsEncapsulated() {
				img, err := frame.GetImage()
				if err != nil {
					return nil, fmt.Errorf("decoding encapsulated frame: %w", err)
				}
				encoded = img
				continue
			}
			for j := 0; j < len(frame.NativeData.Data); j++ {
				imgPixels = append(imgPixels, frame.NativeData.Data[j][0])
			}
		}
	}

	if encoded != nil {
		return overlay.ImageToVolume(encoded, nil, spacing)
	}
	if imgRows < 1 || imgCols < 1 {
		return nil, fmt.Errorf("missing image dimensions (rows %d, columns %d)", imgRows, imgCols)
	}
	if len(imgPixels) != imgRows*imgCols {
		return nil, fmt.Errorf("found %d pixels for a %dx%d image", len(imgPixels), imgCols, imgRows)
	}

	geom := grid.NewGeometry(imgCols, imgRows, 1, spacing[0], spacing[1], 1)
	vol := grid.NewVolume(geom)
	for i, v := range imgPixels {
		vol.Data[i] = float64(v)
	}

	return vol, nil
}

func parseDecimal(v interface{}) (float64, error) {
	switch t := v.(type) {
	case string:
		return strconv.ParseFloat(strings.TrimSpace(t), 64)
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	}

	return 0, fmt.Errorf("unexpected decimal value %T", v)
}
