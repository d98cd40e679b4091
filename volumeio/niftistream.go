package volumeio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
	"github.com/carbocation/segeval"
	"github.com/carbocation/segeval/grid"
)

// NIfTI-1 header layout.
const (
	niftiHeaderSize = 348
	offDim          = 40
	offDatatype     = 70
	offBitpix       = 72
	offPixdim       = 76
	offVoxOffset    = 108
	offSclSlope     = 112
	offSclInter     = 116
	offMagic        = 344
)

// NIfTI datatype codes.
const (
	dtUint8   = 2
	dtInt16   = 4
	dtInt32   = 8
	dtFloat32 = 16
	dtFloat64 = 64
	dtInt8    = 256
	dtUint16  = 512
	dtUint32  = 768
)

// NiftiStream is a grid.Source over an uncompressed .nii file that reads
// planes on demand, so only the tiles being evaluated are held in memory.
type NiftiStream struct {
	r      segeval.ReaderAtCloser
	geom   grid.Geometry
	order  binary.ByteOrder
	dtype  int16
	width  int
	offset int64
	slope  float64
	inter  float64
}

// OpenNiftiStream opens a local, gs:// or http(s) .nii file for streaming.
// The caller must Close it.
func OpenNiftiStream(ctx context.Context, path string, client *storage.Client) (*NiftiStream, error) {
	f, size, err := segeval.OpenSource(ctx, path, client)
	if err != nil {
		return nil, err
	}

	s, err := NewNiftiStream(f, size)
	if err != nil {
		f.Close()
		return nil, segeval.Wrap(segeval.KindInputLoad, "nifti", pfx.Err(fmt.Errorf("%s: %w", path, err)))
	}

	return s, nil
}

// NewNiftiStream parses the header of r and takes ownership of it.
func NewNiftiStream(r segeval.ReaderAtCloser, size int64) (*NiftiStream, error) {
	head := make([]byte, niftiHeaderSize)
	if _, err := r.ReadAt(head, 0); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	s := &NiftiStream{r: r, order: binary.LittleEndian}
	if int32(s.order.Uint32(head)) != niftiHeaderSize {
		s.order = binary.BigEndian
		if int32(s.order.Uint32(head)) != niftiHeaderSize {
			return nil, fmt.Errorf("not a NIfTI-1 file")
		}
	}
	if magic := head[offMagic : offMagic+4]; !bytes.Equal(magic, []byte("n+1\x00")) {
		return nil, fmt.Errorf("magic %q: only single-file .nii data can be streamed", magic)
	}

	i16 := func(off int) int16 { return int16(s.order.Uint16(head[off:])) }
	f32 := func(off int) float64 { return float64(math.Float32frombits(s.order.Uint32(head[off:]))) }

	ndim := int(i16(offDim))
	if ndim < 1 || ndim > 7 {
		return nil, fmt.Errorf("invalid dimension count %d", ndim)
	}
	var dims [3]int
	for i := range dims {
		dims[i] = 1
		if i < ndim {
			dims[i] = int(i16(offDim + 2*(i+1)))
		}
		if dims[i] < 1 {
			return nil, fmt.Errorf("invalid dimension %d along axis %d", dims[i], i)
		}
	}
	s.geom = grid.NewGeometry(dims[0], dims[1], dims[2], f32(offPixdim+4), f32(offPixdim+8), f32(offPixdim+12))

	s.dtype = i16(offDatatype)
	switch s.dtype {
	case dtUint8, dtInt8:
		s.width = 1
	case dtInt16, dtUint16:
		s.width = 2
	case dtInt32, dtUint32, dtFloat32:
		s.width = 4
	case dtFloat64:
		s.width = 8
	default:
		return nil, fmt.Errorf("unsupported datatype %d", s.dtype)
	}
	if bitpix := int(i16(offBitpix)); bitpix != 0 && bitpix != 8*s.width {
		return nil, fmt.Errorf("datatype %d with %d bits per voxel", s.dtype, bitpix)
	}

	s.offset = int64(f32(offVoxOffset))
	if s.offset < niftiHeaderSize {
		s.offset = 352
	}
	if need := s.offset + int64(s.geom.Len()*s.width); need > size {
		return nil, fmt.Errorf("file holds %d bytes, voxel data needs %d", size, need)
	}

	// A zero slope means no scaling.
	s.slope, s.inter = f32(offSclSlope), f32(offSclInter)
	if s.slope == 0 || math.IsNaN(s.slope) {
		s.slope, s.inter = 1, 0
	}

	return s, nil
}

func (s *NiftiStream) Geometry() grid.Geometry {
	return s.geom
}

func (s *NiftiStream) Close() error {
	return s.r.Close()
}

func (s *NiftiStream) ReadPlanes(z0, z1 int, dst []float64) error {
	if z0 < 0 || z1 > s.geom.Dims[2] || z0 > z1 {
		return fmt.Errorf("planes [%d, %d) out of range for depth %d", z0, z1, s.geom.Dims[2])
	}
	n := (z1 - z0) * s.geom.PlaneLen()
	if len(dst) < n {
		return fmt.Errorf("destination holds %d values, need %d", len(dst), n)
	}

	buf := make([]byte, n*s.width)
	if _, err := s.r.ReadAt(buf, s.offset+int64(z0*s.geom.PlaneLen()*s.width)); err != nil {
		return pfx.Err(err)
	}

	for i := 0; i < n; i++ {
		b := buf[i*s.width:]
		var v float64
		switch s.dtype {
		case dtUint8:
			v = float64(b[0])
		case dtInt8:
			v = float64(int8(b[0]))
		case dtInt16:
			v = float64(int16(s.order.Uint16(b)))
		case dtUint16:
			v = float64(s.order.Uint16(b))
		case dtInt32:
			v = float64(int32(s.order.Uint32(b)))
		case dtUint32:
			v = float64(s.order.Uint32(b))
		case dtFloat32:
			v = float64(math.Float32frombits(s.order.Uint32(b)))
		case dtFloat64:
			v = math.Float64frombits(s.order.Uint64(b))
		}
		dst[i] = v*s.slope + s.inter
	}

	return nil
}
