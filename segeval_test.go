package segeval

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	na := Errorf(KindNotApplicable, "HDRFDST", "empty boundary")
	if !errors.Is(na, ErrNotApplicable) || errors.Is(na, ErrInputLoad) {
		t.Fatalf("kind matching failed for %v", na)
	}
	if IsFatal(na) || IsFatal(nil) {
		t.Fatalf("not applicable must not be fatal")
	}

	wrapped := fmt.Errorf("loading truth: %w", Wrap(KindInputLoad, "open", os.ErrNotExist))
	if !errors.Is(wrapped, ErrInputLoad) || !errors.Is(wrapped, os.ErrNotExist) {
		t.Fatalf("wrapping lost information: %v", wrapped)
	}
	if KindOf(wrapped) != KindInputLoad || !IsFatal(wrapped) {
		t.Fatalf("unexpected kind %v", KindOf(wrapped))
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Fatalf("plain errors have no kind")
	}
	if Wrap(KindInputLoad, "open", nil) != nil {
		t.Fatalf("wrapping nil must yield nil")
	}
}

func TestMaybeDecompress(t *testing.T) {
	payload := []byte("id,x,y,z\nA,1,2,3\n")

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	gw.Write(payload)
	gw.Close()

	for _, v := range []struct {
		name string
		data []byte
		dt   DataType
	}{
		{"plain", payload, DataTypeNoCompression},
		{"gzip", gz.Bytes(), DataTypeGzip},
		{"short", []byte("a"), DataTypeNoCompression},
	} {
		if dt := DetectDataType(v.data); dt != v.dt {
			t.Fatalf("%s: detected %v, expected %v", v.name, dt, v.dt)
		}
		if v.name == "short" {
			continue
		}

		rc, err := MaybeDecompress(bytes.NewReader(v.data), int64(len(v.data)))
		if err != nil {
			t.Fatalf("%s: %v", v.name, err)
		}
		got, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("%s: %v", v.name, err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("%s: got %q", v.name, got)
		}
	}
}

func TestDetermineDelimiter(t *testing.T) {
	for _, v := range []struct {
		sample string
		delim  rune
	}{
		{"id,x,y,z\nA,1,2,3\nB,4,5,6\n", ','},
		{"id\tx\ty\tz\nA\t1.5\t2.5\t3.5\nB\t4.5\t5.5\t6.5\n", '\t'},
		{"id;x;y;z\n", ';'},
		{"", ','},
	} {
		if got := DetermineDelimiter([]byte(v.sample)); got != v.delim {
			t.Fatalf("%q: got %q, expected %q", v.sample, got, v.delim)
		}
	}
}

func TestOpenSource(t *testing.T) {
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, size, err := OpenSource(ctx, path, nil)
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	if size != 5 {
		t.Fatalf("size %d, expected 5", size)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/points.csv" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, "id,x,y,z\n")
	}))
	defer srv.Close()

	f, size, err = OpenSource(ctx, srv.URL+"/points.csv", nil)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, size)
	if _, err := f.ReadAt(buf, 0); err != nil {
		t.Fatal(err)
	}
	f.Close()
	if string(buf) != "id,x,y,z\n" {
		t.Fatalf("got %q", buf)
	}

	for _, p := range []string{
		srv.URL + "/missing.csv",
		filepath.Join(t.TempDir(), "missing.txt"),
		"gs://bucket/object",
	} {
		if _, _, err := OpenSource(ctx, p, nil); !errors.Is(err, ErrInputLoad) {
			t.Fatalf("%s: expected an input load error, got %v", p, err)
		}
	}
}
