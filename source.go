package segeval

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
)

type ReaderAtCloser interface {
	io.Reader
	io.ReaderAt
	io.Closer
}

// OpenSource opens a local file, a gs://bucket/object path, or an http(s) URL
// and returns it as a ReaderAtCloser together with its size in bytes. Google
// Storage objects are read lazily with range requests, so only the bytes that
// are actually requested get transferred. client may be nil unless path is a
// gs:// path.
func OpenSource(ctx context.Context, path string, client *storage.Client) (ReaderAtCloser, int64, error) {
	switch {
	case strings.HasPrefix(path, "gs://"):
		if client == nil {
			return nil, 0, Errorf(KindInputLoad, "open", "%s: a Google Storage client is required for gs:// paths", path)
		}

		// Detect the bucket and the path to the actual file
		pathParts := strings.SplitN(strings.TrimPrefix(path, "gs://"), "/", 2)
		if len(pathParts) != 2 {
			return nil, 0, Errorf(KindInputLoad, "open", "tried to split your google storage path into 2 parts, but got %d: %v", len(pathParts), pathParts)
		}

		handle := client.Bucket(pathParts[0]).Object(pathParts[1])
		wrapped := &GSReaderAtCloser{
			ObjectHandle: handle,
			Context:      ctx,
		}

		// Make a hard call to get the filesize
		attrs, err := handle.Attrs(ctx)
		if err != nil {
			return nil, 0, Wrap(KindInputLoad, "open", pfx.Err(fmt.Errorf("%s: %s", path, err)))
		}

		return wrapped, attrs.Size, nil

	case strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://"):
		return openURL(ctx, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, Wrap(KindInputLoad, "open", pfx.Err(err))
	}
	fstat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, Wrap(KindInputLoad, "open", pfx.Err(err))
	}

	return f, fstat.Size(), nil
}

// openURL downloads the whole body. Label maps and point lists are small
// enough that range requests are not worth the complexity here.
func openURL(ctx context.Context, url string) (ReaderAtCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, Wrap(KindInputLoad, "open", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, 0, Wrap(KindInputLoad, "open", pfx.Err(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, Errorf(KindInputLoad, "open", "%s: HTTP status %s", url, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, Wrap(KindInputLoad, "open", pfx.Err(err))
	}

	return &bytesReaderAtCloser{bytes.NewReader(body)}, int64(len(body)), nil
}

type bytesReaderAtCloser struct {
	*bytes.Reader
}

func (b *bytesReaderAtCloser) Close() error {
	return nil
}

// GSReaderAtCloser decorates a Google Storage object handle with Read and
// ReadAt.
type GSReaderAtCloser struct {
	*storage.ObjectHandle
	Context context.Context
	Reader  *storage.Reader
}

func (o *GSReaderAtCloser) Read(p []byte) (n int, err error) {
	if o.Reader == nil {
		o.Reader, err = o.NewReader(o.Context)
		if err != nil {
			return 0, err
		}
	}

	return o.Reader.Read(p)
}

// ReadAt satisfies io.ReaderAt. Each call issues its own range request, so
// concurrent calls are safe.
func (o *GSReaderAtCloser) ReadAt(p []byte, offset int64) (int, error) {
	rdr, err := o.NewRangeReader(o.Context, offset, int64(len(p)))
	if err != nil {
		return 0, err
	}
	defer rdr.Close()

	return io.ReadFull(rdr, p)
}

func (o *GSReaderAtCloser) Close() error {
	if o.Reader != nil {
		return o.Reader.Close()
	}

	return nil
}
