package volumeio

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
	"github.com/carbocation/segeval"
	"github.com/carbocation/segeval/landmark"
	"github.com/carbocation/segeval/lesion"
	"github.com/gocarina/gocsv"
)

// PointRecord is one row of a landmark or lesion list. Files carry a header
// row naming the columns; radius is optional.
type PointRecord struct {
	ID     string  `csv:"id"`
	X      float64 `csv:"x"`
	Y      float64 `csv:"y"`
	Z      float64 `csv:"z"`
	Radius float64 `csv:"radius"`
}

// LoadPoints reads a delimited point list. The file may be compressed and
// its delimiter (comma, tab, semicolon, pipe or space) is detected.
func LoadPoints(ctx context.Context, path string, client *storage.Client) ([]*PointRecord, error) {
	f, size, err := segeval.OpenSource(ctx, path, client)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rc, err := segeval.MaybeDecompress(f, size)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	fileBytes, err := io.ReadAll(rc)
	if err != nil {
		return nil, segeval.Wrap(segeval.KindInputLoad, "points", pfx.Err(err))
	}

	records, err := ParsePoints(fileBytes)
	if err != nil {
		return nil, segeval.Wrap(segeval.KindInputLoad, "points", pfx.Err(fmt.Errorf("%s: %w", path, err)))
	}

	return records, nil
}

func ParsePoints(fileBytes []byte) ([]*PointRecord, error) {
	head := fileBytes
	if len(head) > 64*1024 {
		head = head[:64*1024]
	}
	var sample []byte
	for _, line := range bytes.SplitAfter(head, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 || line[0] == '#' {
			continue
		}
		sample = append(sample, line...)
	}

	r := csv.NewReader(bytes.NewReader(fileBytes))
	r.Comma = segeval.DetermineDelimiter(sample)
	r.Comment = '#'
	r.LazyQuotes = true
	r.TrimLeadingSpace = r.Comma != ' '

	records := []*PointRecord{}
	if err := gocsv.UnmarshalCSV(r, &records); err != nil {
		return nil, err
	}

	for i, v := range records {
		if v.ID == "" {
			return nil, fmt.Errorf("row %d has no id", i+1)
		}
	}

	return records, nil
}

func LoadLandmarks(ctx context.Context, path string, client *storage.Client) ([]landmark.Landmark, error) {
	records, err := LoadPoints(ctx, path, client)
	if err != nil {
		return nil, err
	}

	out := make([]landmark.Landmark, 0, len(records))
	for _, v := range records {
		out = append(out, landmark.Landmark{ID: v.ID, Position: [3]float64{v.X, v.Y, v.Z}})
	}

	return out, nil
}

// LoadLesions reads point lesions. They carry no voxels, so matching relies on
// center distance against radius and tolerance.
func LoadLesions(ctx context.Context, path string, client *storage.Client) ([]lesion.Lesion, error) {
	records, err := LoadPoints(ctx, path, client)
	if err != nil {
		return nil, err
	}

	out := make([]lesion.Lesion, 0, len(records))
	for _, v := range records {
		out = append(out, lesion.Lesion{ID: v.ID, Center: [3]float64{v.X, v.Y, v.Z}, Radius: v.Radius})
	}

	return out, nil
}
