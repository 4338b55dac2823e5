package agreement

import (
	"bytes"
	"image/png"
	"math"
	"strings"
	"testing"
	"time"
)

func TestSignature_CaptureAndClear(t *testing.T) {
	s := NewSignature(100, 50)
	if !s.IsEmpty() {
		t.Fatal("Expected new signature to be empty")
	}

	s.Capture(Stroke{}, Stroke{{X: 10, Y: 10}, {X: 40, Y: 30}})
	if s.IsEmpty() {
		t.Fatal("Expected signature to be non-empty after capture")
	}

	s.Clear()
	if !s.IsEmpty() {
		t.Fatal("Expected Clear to empty the signature immediately")
	}
	if _, err := s.DataURL(); err != ErrEmptySignature {
		t.Fatalf("Expected ErrEmptySignature, got %v", err)
	}
}

func TestSignature_EmptyStrokesDoNotCount(t *testing.T) {
	s := NewSignature(0, 0)
	s.Capture(Stroke{}, nil)
	if !s.IsEmpty() {
		t.Fatal("Expected strokes without points to be ignored")
	}
}

func TestSignature_RendersPNG(t *testing.T) {
	s := NewSignature(100, 50)
	s.Capture(Stroke{{X: 0, Y: 0}, {X: 99, Y: 49}})

	raw, err := s.PNG()
	if err != nil {
		t.Fatalf("PNG failed: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("decode rendered PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 50 {
		t.Fatalf("unexpected bounds %v", b)
	}
	if _, _, _, a := img.At(50, 25).RGBA(); a == 0 {
		t.Error("Expected ink on the diagonal")
	}
	if _, _, _, a := img.At(90, 5).RGBA(); a != 0 {
		t.Error("Expected transparent background away from the stroke")
	}

	url, err := s.DataURL()
	if err != nil {
		t.Fatalf("DataURL failed: %v", err)
	}
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Errorf("unexpected data URL prefix %q", url[:30])
	}
}

func TestSignature_LoadDataURLRoundTrip(t *testing.T) {
	src := NewSignature(20, 20)
	src.Capture(Stroke{{X: 2, Y: 2}, {X: 18, Y: 18}})
	url, err := src.DataURL()
	if err != nil {
		t.Fatalf("DataURL failed: %v", err)
	}

	dst := NewSignature(0, 0)
	if err := dst.LoadDataURL(url); err != nil {
		t.Fatalf("LoadDataURL failed: %v", err)
	}
	if dst.IsEmpty() {
		t.Fatal("Expected loaded signature to be non-empty")
	}
	got, err := dst.DataURL()
	if err != nil || got != url {
		t.Fatalf("Expected loaded image to be exported unchanged, err=%v", err)
	}
}

func TestSignature_LoadRejectsNonPNG(t *testing.T) {
	s := NewSignature(0, 0)
	if err := s.LoadPNG([]byte("%PDF-1.4 not an image")); err == nil {
		t.Fatal("Expected error for non-PNG data")
	}
	if err := s.LoadDataURL("data:image/jpeg;base64,AAAA"); err == nil {
		t.Fatal("Expected error for non-PNG data URL")
	}
	if !s.IsEmpty() {
		t.Fatal("Expected failed loads to leave the buffer empty")
	}
}

func TestSignature_OffCanvasPointsAreClamped(t *testing.T) {
	s := NewSignature(100, 50)
	s.Capture(
		Stroke{{X: 0, Y: 10}, {X: 1e12, Y: 10}},
		Stroke{{X: math.NaN(), Y: math.Inf(1)}, {X: -3e9, Y: -1}},
	)

	start := time.Now()
	raw, err := s.PNG()
	if err != nil {
		t.Fatalf("PNG failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("rendering took %v", elapsed)
	}

	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("decode rendered PNG: %v", err)
	}
	if _, _, _, a := img.At(99, 10).RGBA(); a == 0 {
		t.Error("Expected the stroke to run to the right edge")
	}
	if _, _, _, a := img.At(0, 25).RGBA(); a == 0 {
		t.Error("Expected the clamped second stroke along the left edge")
	}
}
