package sigrok

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func entries(t *testing.T, b []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		t.Fatal(err)
	}
	files := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		files[f.Name] = data
	}
	return files
}

func TestWriteTrace(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTrace(&buf, "CHAN1", []float64{0.5, -1.25, 3}, 1e-6); err != nil {
		t.Fatal(err)
	}
	files := entries(t, buf.Bytes())
	if string(files["version"]) != "2\n" {
		t.Errorf("version %q", files["version"])
	}
	meta := string(files["metadata"])
	for _, want := range []string{"samplerate=1000000\n", "total analog=1\n", "analog1=CHAN1\n"} {
		if !strings.Contains(meta, want) {
			t.Errorf("metadata lacks %q:\n%s", want, meta)
		}
	}
	part := files["analog-1-1-1"]
	if len(part) != 12 {
		t.Fatalf("part of %d bytes", len(part))
	}
	var got []float32
	for i := 0; i < len(part); i += 4 {
		got = append(got, math.Float32frombits(binary.LittleEndian.Uint32(part[i:])))
	}
	if want := []float32{0.5, -1.25, 3}; !slices.Equal(got, want) {
		t.Errorf("samples %v, want %v", got, want)
	}
}

func TestParts(t *testing.T) {
	var buf bytes.Buffer
	sr := NewWriter(&buf)
	sr.PartLimit = 4
	ch1 := sr.NewAnalogChannel("CHAN1")
	ch2 := sr.NewAnalogChannel("CHAN2")
	if err := ch1.WriteSamples(make([]float64, 10)); err != nil {
		t.Fatal(err)
	}
	if err := ch2.WriteSamples(make([]float64, 4)); err != nil {
		t.Fatal(err)
	}
	if err := ch1.Write(1); !errors.Is(err, errInterleaved) {
		t.Errorf("interleaved write: %v", err)
	}
	if err := sr.Close(); err != nil {
		t.Fatal(err)
	}
	files := entries(t, buf.Bytes())
	for name, size := range map[string]int{
		"analog-1-1-1": 16,
		"analog-1-1-2": 16,
		"analog-1-1-3": 8,
		"analog-1-2-1": 16,
	} {
		if len(files[name]) != size {
			t.Errorf("%s: %d bytes, want %d", name, len(files[name]), size)
		}
	}
	if _, ok := files["analog-1-2-2"]; ok {
		t.Error("empty part written")
	}
	if ch1.Samples() != 10 || ch2.Samples() != 4 {
		t.Errorf("samples %d, %d", ch1.Samples(), ch2.Samples())
	}
}

func TestCreate(t *testing.T) {
	ts := time.Date(2024, time.March, 5, 14, 3, 9, 0, time.UTC)
	name := Filename(filepath.Join(t.TempDir(), "trace"), ts)
	if !strings.HasSuffix(name, "trace_05Mar_14_03_09.000.sr") {
		t.Errorf("Filename = %q", name)
	}
	if got := Filename("trace", time.Time{}); got != "trace.sr" {
		t.Errorf("Filename = %q", got)
	}
	sr, err := Create(name)
	if err != nil {
		t.Fatal(err)
	}
	sr.NewAnalogChannel("CHAN1").Write(1)
	if err := sr.Close(); err != nil {
		t.Fatal(err)
	}
	zr, err := zip.OpenReader(name)
	if err != nil {
		t.Fatal(err)
	}
	zr.Close()
}
