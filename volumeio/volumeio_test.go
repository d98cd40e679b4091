package volumeio

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/carbocation/segeval"
)

func TestDetectFormat(t *testing.T) {
	for _, v := range []struct {
		path   string
		format Format
	}{
		{"seg.nii", FormatNifti},
		{"SEG.NII.GZ", FormatNiftiGz},
		{"gs://bucket/a/seg.nii.gz", FormatNiftiGz},
		{"https://example.org/seg.nii?token=abc", FormatNifti},
		{"slice.dcm", FormatDicom},
		{"mask.png", FormatImage},
		{"mask.BMP", FormatImage},
		{"points.csv", FormatUnknown},
	} {
		if got := DetectFormat(v.path); got != v.format {
			t.Fatalf("%s: got %v, expected %v", v.path, got, v.format)
		}
	}
}

// writeNifti writes a minimal single-file NIfTI-1 volume.
func writeNifti(t *testing.T, order binary.ByteOrder, dims [3]int16, spacing [3]float32, datatype int16, slope, inter float32, data interface{}) string {
	t.Helper()

	var buf bytes.Buffer
	head := make([]byte, 352)
	order.PutUint32(head[0:], 348)
	order.PutUint16(head[offDim:], 3)
	for i, d := range dims {
		order.PutUint16(head[offDim+2*(i+1):], uint16(d))
	}
	order.PutUint16(head[offDatatype:], uint16(datatype))
	voxels := int(dims[0]) * int(dims[1]) * int(dims[2])
	order.PutUint16(head[offBitpix:], uint16(8*binary.Size(data)/voxels))
	order.PutUint32(head[offPixdim:], math.Float32bits(1))
	for i, s := range spacing {
		order.PutUint32(head[offPixdim+4*(i+1):], math.Float32bits(s))
	}
	order.PutUint32(head[offVoxOffset:], math.Float32bits(352))
	order.PutUint32(head[offSclSlope:], math.Float32bits(slope))
	order.PutUint32(head[offSclInter:], math.Float32bits(inter))
	copy(head[offMagic:], "n+1\x00")
	buf.Write(head)
	if err := binary.Write(&buf, order, data); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "vol.nii")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNiftiStream(t *testing.T) {
	data := []int16{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
	path := writeNifti(t, binary.LittleEndian, [3]int16{3, 2, 2}, [3]float32{1, 2, 3}, dtInt16, 0, 0, data)

	v, err := LoadVolume(context.Background(), path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()

	if v.Format != FormatNifti {
		t.Fatalf("format %v", v.Format)
	}
	geom := v.Geometry()
	if geom.Dims != [3]int{3, 2, 2} || geom.Spacing != [3]float64{1, 2, 3} {
		t.Fatalf("unexpected geometry %v", geom)
	}

	dst := make([]float64, 6)
	if err := v.ReadPlanes(1, 2, dst); err != nil {
		t.Fatal(err)
	}
	for i, got := range dst {
		if got != float64(6+i) {
			t.Fatalf("voxel %d of plane 1: got %v, expected %d", i, got, 6+i)
		}
	}

	if err := v.ReadPlanes(1, 3, make([]float64, 12)); err == nil {
		t.Fatalf("expected an out of range error")
	}
}

func TestNiftiInMemory(t *testing.T) {
	data := []int16{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
	path := writeNifti(t, binary.LittleEndian, [3]int16{3, 2, 2}, [3]float32{1, 2, 3}, dtInt16, 0, 0, data)

	v, err := LoadVolume(context.Background(), path, Options{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()

	geom := v.Geometry()
	if geom.Dims != [3]int{3, 2, 2} || geom.Spacing != [3]float64{1, 2, 3} {
		t.Fatalf("unexpected geometry %v", geom)
	}
	dst := make([]float64, 12)
	if err := v.ReadPlanes(0, 2, dst); err != nil {
		t.Fatal(err)
	}
	for i, got := range dst {
		if got != float64(i) {
			t.Fatalf("voxel %d: got %v, expected %d", i, got, i)
		}
	}

	// Truncated pixel data is an error rather than a crash.
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	short := filepath.Join(t.TempDir(), "short.nii")
	if err := os.WriteFile(short, b[:len(b)-4], 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadVolume(context.Background(), short, Options{InMemory: true}); !errors.Is(err, segeval.ErrInputLoad) {
		t.Fatalf("expected an input load error, got %v", err)
	}

	garbage := filepath.Join(t.TempDir(), "garbage.nii")
	if err := os.WriteFile(garbage, bytes.Repeat([]byte{7}, 400), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadVolume(context.Background(), garbage, Options{InMemory: true}); !errors.Is(err, segeval.ErrInputLoad) {
		t.Fatalf("expected an input load error, got %v", err)
	}
}

func TestNiftiStreamScaledBigEndian(t *testing.T) {
	data := []float32{0, 0.5, 1, 1.5}
	path := writeNifti(t, binary.BigEndian, [3]int16{2, 2, 1}, [3]float32{0.5, 0.5, 1}, dtFloat32, 2, 1, data)

	s, err := OpenNiftiStream(context.Background(), path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	dst := make([]float64, 4)
	if err := s.ReadPlanes(0, 1, dst); err != nil {
		t.Fatal(err)
	}
	for i, expected := range []float64{1, 2, 3, 4} {
		if dst[i] != expected {
			t.Fatalf("voxel %d: got %v, expected %v", i, dst[i], expected)
		}
	}
}

func TestNiftiStreamRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.nii")
	if err := os.WriteFile(path, bytes.Repeat([]byte{7}, 400), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadVolume(context.Background(), path, Options{})
	if !errors.Is(err, segeval.ErrInputLoad) {
		t.Fatalf("expected an input load error, got %v", err)
	}
}

func TestDicomRejectsGarbage(t *testing.T) {
	garbage := bytes.Repeat([]byte{7}, 300)
	if _, err := DicomToVolume(garbage); err == nil {
		t.Fatalf("expected an error decoding a file without a DICOM header")
	}

	path := filepath.Join(t.TempDir(), "slice.dcm")
	if err := os.WriteFile(path, garbage, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadVolume(context.Background(), path, Options{})
	if !errors.Is(err, segeval.ErrInputLoad) {
		t.Fatalf("expected an input load error, got %v", err)
	}
}

func TestUnknownFormat(t *testing.T) {
	_, err := LoadVolume(context.Background(), "volume.xyz", Options{})
	if !errors.Is(err, segeval.ErrInputLoad) {
		t.Fatalf("expected an input load error, got %v", err)
	}
}

func TestLoadImageVolume(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 3))
	img.Set(1, 1, color.NRGBA{1, 1, 1, 255})

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "mask.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	v, err := LoadVolume(context.Background(), path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if geom := v.Geometry(); geom.Dims != [3]int{3, 3, 1} {
		t.Fatalf("unexpected geometry %v", geom)
	}
	dst := make([]float64, 9)
	if err := v.ReadPlanes(0, 1, dst); err != nil {
		t.Fatal(err)
	}
	if dst[4] != 1 || dst[0] != 0 {
		t.Fatalf("unexpected values %v", dst)
	}
}

func TestParsePoints(t *testing.T) {
	for _, body := range []string{
		"id,x,y,z\nA,0,0,0\nB,10,0,0\n",
		"id\tx\ty\tz\nA\t0\t0\t0\nB\t10\t0\t0\n",
		"# comment\nid;x;y;z\nA;0;0;0\nB;10;0;0\n",
	} {
		records, err := ParsePoints([]byte(body))
		if err != nil {
			t.Fatalf("%q: %v", body, err)
		}
		if len(records) != 2 || records[1].ID != "B" || records[1].X != 10 {
			t.Fatalf("%q: unexpected records %+v", body, records)
		}
	}

	if _, err := ParsePoints([]byte("id,x,y,z\n,1,2,3\n")); err == nil {
		t.Fatalf("expected an error for a missing id")
	}
}

func TestLoadCompressedLists(t *testing.T) {
	dir := t.TempDir()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write([]byte("id,x,y,z\nA,1,0,0\nB,10,1,0\n"))
	zw.Close()
	landmarks := filepath.Join(dir, "landmarks.csv.gz")
	if err := os.WriteFile(landmarks, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := LoadLandmarks(context.Background(), landmarks, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[1].Position != [3]float64{10, 1, 0} {
		t.Fatalf("unexpected landmarks %+v", out)
	}

	lesions := filepath.Join(dir, "lesions.tsv")
	if err := os.WriteFile(lesions, []byte("id\tx\ty\tz\tradius\nL1\t5\t5\t5\t2\nL2\t9\t9\t9\t3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ls, err := LoadLesions(context.Background(), lesions, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(ls) != 2 || ls[0].ID != "L1" || ls[0].Radius != 2 || ls[1].Center != [3]float64{9, 9, 9} {
		t.Fatalf("unexpected lesions %+v", ls)
	}
}
