package segeval

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"io"

	"github.com/krolaw/zipstream"
	"github.com/xi2/xz"
)

type DataType byte

const (
	DataTypeInvalid DataType = iota
	DataTypeNoCompression
	DataTypeGzip
	DataTypeZip
	DataTypeXZ
	DataTypeZ
	DataTypeBZip2
)

// Byte code signatures from https://stackoverflow.com/a/19127748/199475
var byteCodeSigs = map[DataType][]byte{
	DataTypeGzip:  {0x1f, 0x8b, 0x08},
	DataTypeZip:   {0x50, 0x4b, 0x03, 0x04},
	DataTypeXZ:    {0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00},
	DataTypeZ:     {0x1f, 0x9d},
	DataTypeBZip2: {0x42, 0x5a, 0x68},
}

// DetectDataType matches the leading bytes of a stream against known
// compression signatures. Short inputs are treated as uncompressed.
func DetectDataType(head []byte) DataType {
	for dt, sig := range byteCodeSigs {
		if bytes.HasPrefix(head, sig) {
			return dt
		}
	}

	return DataTypeNoCompression
}

// MaybeDecompress sniffs the first bytes of r through ReadAt, so the
// underlying stream position is never disturbed, and returns a reader that
// yields the decompressed contents.
func MaybeDecompress(r io.ReaderAt, size int64) (io.ReadCloser, error) {
	head := make([]byte, 6)
	n, err := r.ReadAt(head, 0)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, Wrap(KindInputLoad, "decompress", err)
	}
	head = head[:n]

	body := io.NewSectionReader(r, 0, size)

	switch DetectDataType(head) {
	case DataTypeGzip:
		gz, err := gzip.NewReader(body)
		if err != nil {
			return nil, Wrap(KindInputLoad, "decompress", err)
		}
		return gz, nil
	case DataTypeZip:
		// Only the first member of a zip archive is read.
		zr := zipstream.NewReader(body)
		if _, err := zr.Next(); err != nil {
			return nil, Wrap(KindInputLoad, "decompress", err)
		}
		return io.NopCloser(zr), nil
	case DataTypeBZip2:
		return io.NopCloser(bzip2.NewReader(body)), nil
	case DataTypeXZ:
		reader, err := xz.NewReader(body, 0)
		if err != nil {
			return nil, Wrap(KindInputLoad, "decompress", err)
		}
		return io.NopCloser(reader), nil
	case DataTypeZ:
		return nil, Errorf(KindInputLoad, "decompress", "unix compress (.Z) streams are not supported")
	}

	return io.NopCloser(body), nil
}
