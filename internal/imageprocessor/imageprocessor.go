// Package imageprocessor turns uploaded bytes into the RGB raster the
// classifier works on, and fingerprints it for result caching.
package imageprocessor

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedImage is returned when the payload cannot be decoded.
var ErrUnsupportedImage = errors.New("unsupported or corrupt image")

// MaxPixels bounds the decoded raster. Compressed size says little about the
// decoded size, so dimensions are checked from the header before decoding.
const MaxPixels = 40_000_000

// JPEGQuality is used when images are re-encoded for the detector transport.
const JPEGQuality = 90

// Decode decodes data, applies the EXIF orientation and converts the result to
// 8-bit NRGBA so every detector backend sees the same colour model.
func Decode(data []byte) (*image.NRGBA, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrUnsupportedImage)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: zero-sized image", ErrUnsupportedImage)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrUnsupportedImage, cfg.Width, cfg.Height, MaxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("%w: zero-sized image", ErrUnsupportedImage)
	}
	return imaging.Clone(img), nil
}

// Fingerprint returns the perceptual difference hash of img as 16 hex digits.
// Visually similar uploads (re-encoded, resized, or just alike) share a
// fingerprint, so it is stored for near-duplicate analysis and never used to
// look up an answer.
func Fingerprint(img image.Image) (string, error) {
	hash, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return "", fmt.Errorf("fingerprint image: %w", err)
	}
	return fmt.Sprintf("%016x", hash.GetHash()), nil
}

// Digest returns the hex SHA-256 of img's bounds and pixels. Two uploads share
// a digest only when they decode to the same raster.
func Digest(img *image.NRGBA) string {
	h := sha256.New()
	b := img.Bounds()
	var header [16]byte
	binary.BigEndian.PutUint32(header[0:], uint32(b.Min.X))
	binary.BigEndian.PutUint32(header[4:], uint32(b.Min.Y))
	binary.BigEndian.PutUint32(header[8:], uint32(b.Dx()))
	binary.BigEndian.PutUint32(header[12:], uint32(b.Dy()))
	h.Write(header[:])
	rowLen := b.Dx() * 4
	for y := 0; y < b.Dy(); y++ {
		start := y * img.Stride
		h.Write(img.Pix[start : start+rowLen])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// EncodeJPEG encodes img for transports that ship compressed frames.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
