package imageprocessor

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"
)

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 80, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeProducesNRGBA(t *testing.T) {
	t.Parallel()

	img, err := Decode(encodePNG(t, gradient(32, 24)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if img.Bounds().Dx() != 32 || img.Bounds().Dy() != 24 {
		t.Fatalf("unexpected bounds: %v", img.Bounds())
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()

	for name, data := range map[string][]byte{
		"empty":   nil,
		"text":    []byte("definitely not an image"),
		"partial": encodePNG(t, gradient(8, 8))[:20],
	} {
		if _, err := Decode(data); !errors.Is(err, ErrUnsupportedImage) {
			t.Fatalf("%s: expected ErrUnsupportedImage, got %v", name, err)
		}
	}
}

// withPNGDimensions rewrites the IHDR width and height of an encoded PNG and
// fixes up the chunk checksum, leaving the pixel data untouched.
func withPNGDimensions(t *testing.T, data []byte, w, h uint32) []byte {
	t.Helper()
	out := append([]byte(nil), data...)
	if string(out[12:16]) != "IHDR" {
		t.Fatalf("unexpected first chunk %q", out[12:16])
	}
	binary.BigEndian.PutUint32(out[16:20], w)
	binary.BigEndian.PutUint32(out[20:24], h)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func TestDecodeRejectsOversizedDimensions(t *testing.T) {
	t.Parallel()

	data := withPNGDimensions(t, encodePNG(t, gradient(8, 8)), 12000, 12000)
	if len(data) > 1024 {
		t.Fatalf("expected a tiny payload, got %d bytes", len(data))
	}

	_, err := Decode(data)
	if !errors.Is(err, ErrUnsupportedImage) {
		t.Fatalf("expected ErrUnsupportedImage, got %v", err)
	}
}

func TestDigestDistinguishesLookalikes(t *testing.T) {
	t.Parallel()

	solid := func(c color.NRGBA) *image.NRGBA {
		img := image.NewNRGBA(image.Rect(0, 0, 64, 48))
		for i := 0; i < len(img.Pix); i += 4 {
			img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
		}
		return img
	}
	yellow := solid(color.NRGBA{R: 250, G: 220, B: 40, A: 255})
	green := solid(color.NRGBA{R: 180, G: 230, B: 170, A: 255})

	fy, err := Fingerprint(yellow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fg, err := Fingerprint(green)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fy != fg {
		t.Fatalf("expected flat images to share a perceptual hash, got %s and %s", fy, fg)
	}

	if Digest(yellow) == Digest(green) {
		t.Fatal("expected different rasters to have different digests")
	}
	if Digest(yellow) != Digest(solid(color.NRGBA{R: 250, G: 220, B: 40, A: 255})) {
		t.Fatal("expected identical rasters to share a digest")
	}
}

func TestFingerprintStableAcrossReencoding(t *testing.T) {
	t.Parallel()

	original := gradient(64, 64)
	first, err := Fingerprint(original)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != 16 {
		t.Fatalf("expected 16 hex digits, got %q", first)
	}

	jpegBytes, err := EncodeJPEG(original)
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	decoded, err := Decode(jpegBytes)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	second, err := Fingerprint(decoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatalf("fingerprint changed after re-encoding: %s vs %s", first, second)
	}

	flipped, err := Fingerprint(imaging.FlipH(original))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flipped == first {
		t.Fatal("expected a mirrored image to fingerprint differently")
	}
}
