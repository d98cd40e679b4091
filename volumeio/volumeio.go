// Package volumeio loads the inputs of an evaluation: label or intensity
// volumes (NIfTI, DICOM, 2D images) and landmark or lesion point lists, from
// local paths, gs:// objects or URLs.
package volumeio

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
	"github.com/carbocation/segeval"
	"github.com/carbocation/segeval/grid"
	"github.com/carbocation/segeval/overlay"
	"github.com/rs/zerolog"
)

type Format uint8

const (
	FormatUnknown Format = iota
	FormatNifti
	FormatNiftiGz
	FormatDicom
	FormatImage
)

func (f Format) String() string {
	switch f {
	case FormatNifti:
		return "nifti"
	case FormatNiftiGz:
		return "nifti.gz"
	case FormatDicom:
		return "dicom"
	case FormatImage:
		return "image"
	}
	return "unknown"
}

// DetectFormat picks a loader from the file extension. Query strings of URLs
// are ignored.
func DetectFormat(path string) Format {
	p := strings.ToLower(path)
	if i := strings.IndexByte(p, '?'); i >= 0 && strings.Contains(p, "://") {
		p = p[:i]
	}

	switch {
	case strings.HasSuffix(p, ".nii.gz"):
		return FormatNiftiGz
	case strings.HasSuffix(p, ".nii"):
		return FormatNifti
	case strings.HasSuffix(p, ".dcm"), strings.HasSuffix(p, ".dicom"):
		return FormatDicom
	}

	switch filepath.Ext(p) {
	case ".png", ".gif", ".jpg", ".jpeg", ".bmp":
		return FormatImage
	}

	return FormatUnknown
}

type Options struct {
	// Client is required for gs:// paths.
	Client *storage.Client

	// Labels decodes colored 2D label images. Optional.
	Labels overlay.LabelMap

	// InMemory reads uncompressed NIfTI files fully instead of streaming
	// their planes on demand.
	InMemory bool

	Logger *zerolog.Logger
}

// Volume is a loaded grid source. Close releases any file or network handle a
// streaming source keeps open.
type Volume struct {
	grid.Source
	Format Format
	closer io.Closer
}

func (v *Volume) Close() error {
	if v == nil || v.closer == nil {
		return nil
	}
	return v.closer.Close()
}

// LoadVolume opens path and decodes it according to its extension. Failures
// are InputLoad errors.
func LoadVolume(ctx context.Context, path string, opts Options) (*Volume, error) {
	log := logger(opts)
	format := DetectFormat(path)
	log.Debug().Str("path", path).Stringer("format", format).Msg("loading volume")

	switch format {
	case FormatNifti:
		if !opts.InMemory {
			s, err := OpenNiftiStream(ctx, path, opts.Client)
			if err != nil {
				return nil, err
			}
			return &Volume{Source: s, Format: format, closer: s}, nil
		}
		fallthrough
	case FormatNiftiGz:
		v, err := loadNifti(ctx, path, opts.Client)
		if err != nil {
			return nil, err
		}
		return &Volume{Source: v, Format: format}, nil

	case FormatDicom:
		b, err := readAll(ctx, path, opts.Client)
		if err != nil {
			return nil, err
		}
		v, err := DicomToVolume(b)
		if err != nil {
			return nil, segeval.Wrap(segeval.KindInputLoad, "dicom", pfx.Err(err))
		}
		return &Volume{Source: v, Format: format}, nil

	case FormatImage:
		img, err := overlay.OpenImage(ctx, path, opts.Client)
		if err != nil {
			return nil, segeval.Wrap(segeval.KindInputLoad, "image", err)
		}
		v, err := overlay.ImageToVolume(img, opts.Labels, [2]float64{1, 1})
		if err != nil {
			return nil, segeval.Wrap(segeval.KindInputLoad, "image", pfx.Err(err))
		}
		return &Volume{Source: v, Format: format}, nil
	}

	return nil, segeval.Errorf(segeval.KindInputLoad, "load", "%s: unrecognized volume format", path)
}

func logger(opts Options) zerolog.Logger {
	if opts.Logger == nil {
		return zerolog.Nop()
	}
	return opts.Logger.With().Str("component", "volumeio").Logger()
}

func readAll(ctx context.Context, path string, client *storage.Client) ([]byte, error) {
	f, size, err := segeval.OpenSource(ctx, path, client)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	b, err := io.ReadAll(io.NewSectionReader(f, 0, size))
	if err != nil {
		return nil, segeval.Wrap(segeval.KindInputLoad, "read", pfx.Err(err))
	}

	return b, nil
}

// localCopy returns a local path holding the contents of path, copying remote
// objects to a temporary file that keeps the original extension. cleanup must
// always be called.
func localCopy(ctx context.Context, path string, client *storage.Client) (local string, cleanup func(), err error) {
	cleanup = func() {}
	if !strings.Contains(path, "://") {
		return path, cleanup, nil
	}

	b, err := readAll(ctx, path, client)
	if err != nil {
		return "", cleanup, err
	}

	ext := ".nii"
	if DetectFormat(path) == FormatNiftiGz {
		ext = ".nii.gz"
	}
	f, err := os.CreateTemp("", "segeval-*"+ext)
	if err != nil {
		return "", cleanup, segeval.Wrap(segeval.KindInputLoad, "copy", pfx.Err(err))
	}
	cleanup = func() { os.Remove(f.Name()) }

	if _, err := f.Write(b); err != nil {
		f.Close()
		return "", cleanup, segeval.Wrap(segeval.KindInputLoad, "copy", pfx.Err(err))
	}
	if err := f.Close(); err != nil {
		return "", cleanup, segeval.Wrap(segeval.KindInputLoad, "copy", pfx.Err(err))
	}

	return f.Name(), cleanup, nil
}
