package agreement

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"sync"

	"github.com/gabriel-vasile/mimetype"
)

// Default canvas size of the signature pad, in pixels.
const (
	DefaultSignatureWidth  = 500
	DefaultSignatureHeight = 200
)

const dataURLPrefix = "data:image/png;base64,"

// ErrEmptySignature is returned when an empty buffer is exported.
var ErrEmptySignature = errors.New("signature is empty")

// Point is a pen position on the canvas.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stroke is one continuous pen movement.
type Stroke []Point

// Signature is a headless drawing buffer. It holds either captured strokes
// or an uploaded PNG; either makes it non-empty.
type Signature struct {
	width, height int

	mu      sync.Mutex
	strokes []Stroke
	image   []byte
}

// NewSignature returns an empty buffer of the given canvas size.
func NewSignature(width, height int) *Signature {
	if width <= 0 {
		width = DefaultSignatureWidth
	}
	if height <= 0 {
		height = DefaultSignatureHeight
	}
	return &Signature{width: width, height: height}
}

// Capture appends strokes. Strokes without points are ignored. Capturing
// replaces a previously loaded image.
func (s *Signature) Capture(strokes ...Stroke) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range strokes {
		if len(st) == 0 {
			continue
		}
		s.image = nil
		clamped := make(Stroke, len(st))
		for i, p := range st {
			clamped[i] = s.clamp(p)
		}
		s.strokes = append(s.strokes, clamped)
	}
}

// clamp pulls a point onto the canvas so rendering work stays bounded by
// the canvas size. Non-finite coordinates become 0.
func (s *Signature) clamp(p Point) Point {
	return Point{X: clampAxis(p.X, float64(s.width)), Y: clampAxis(p.Y, float64(s.height))}
}

func clampAxis(v, max float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > max:
		return max
	}
	return v
}

// LoadPNG replaces the buffer with an already rendered image.
func (s *Signature) LoadPNG(data []byte) error {
	if mt := mimetype.Detect(data); !mt.Is("image/png") {
		return fmt.Errorf("signature image: expected image/png, got %s", mt.String())
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("signature image: %w", err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return errors.New("signature image: zero size")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.strokes = nil
	s.image = append([]byte(nil), data...)
	return nil
}

// LoadDataURL accepts the data:image/png;base64 form a browser canvas exports.
func (s *Signature) LoadDataURL(dataURL string) error {
	if len(dataURL) < len(dataURLPrefix) || dataURL[:len(dataURLPrefix)] != dataURLPrefix {
		return errors.New("signature image: expected a data:image/png;base64 URL")
	}
	raw, err := base64.StdEncoding.DecodeString(dataURL[len(dataURLPrefix):])
	if err != nil {
		return fmt.Errorf("signature image: %w", err)
	}
	return s.LoadPNG(raw)
}

// Clear empties the buffer. IsEmpty reflects it immediately.
func (s *Signature) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strokes = nil
	s.image = nil
}

// IsEmpty reports whether nothing has been drawn or loaded.
func (s *Signature) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.strokes) == 0 && len(s.image) == 0
}

// PNG renders the buffer.
func (s *Signature) PNG() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.image) > 0 {
		return append([]byte(nil), s.image...), nil
	}
	if len(s.strokes) == 0 {
		return nil, ErrEmptySignature
	}

	img := image.NewNRGBA(image.Rect(0, 0, s.width, s.height))
	ink := color.NRGBA{A: 0xff}
	for _, st := range s.strokes {
		if len(st) == 1 {
			plot(img, st[0], ink)
			continue
		}
		for i := 1; i < len(st); i++ {
			line(img, st[i-1], st[i], ink)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode signature: %w", err)
	}
	return buf.Bytes(), nil
}

// DataURL renders the buffer as the data URL the backend stores.
func (s *Signature) DataURL() (string, error) {
	raw, err := s.PNG()
	if err != nil {
		return "", err
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(raw), nil
}

// line draws a segment by sampling it once per pixel of length.
func line(img *image.NRGBA, a, b Point, c color.NRGBA) {
	steps := int(math.Ceil(math.Max(math.Abs(b.X-a.X), math.Abs(b.Y-a.Y))))
	if steps == 0 {
		plot(img, a, c)
		return
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		plot(img, Point{X: a.X + (b.X-a.X)*t, Y: a.Y + (b.Y-a.Y)*t}, c)
	}
}

// plot sets a 2x2 dot so strokes stay visible when scaled down.
func plot(img *image.NRGBA, p Point, c color.NRGBA) {
	x, y := int(math.Round(p.X)), int(math.Round(p.Y))
	for dx := 0; dx < 2; dx++ {
		for dy := 0; dy < 2; dy++ {
			if (image.Point{X: x + dx, Y: y + dy}).In(img.Rect) {
				img.SetNRGBA(x+dx, y+dy, c)
			}
		}
	}
}
