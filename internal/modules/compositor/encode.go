package compositor

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"math"

	"golang.org/x/image/tiff"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// IHDR is always first: signature, then 4 length + 4 type + 13 data + 4 crc.
const ihdrEnd = 8 + 4 + 4 + 13 + 4

func encode(img image.Image, format string, dpi int) ([]byte, string, error) {
	switch format {
	case FormatTIFF:
		var buf bytes.Buffer
		if err := tiff.Encode(&buf, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true}); err != nil {
			return nil, "", fmt.Errorf("encode tiff: %w", err)
		}
		return buf.Bytes(), "image/tiff", nil
	case FormatPNG, "":
		b, err := encodePNG(img, dpi)
		if err != nil {
			return nil, "", err
		}
		return b, "image/png", nil
	default:
		return nil, "", fmt.Errorf("unsupported output format %q", format)
	}
}

func encodePNG(img image.Image, dpi int) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	raw := buf.Bytes()
	if len(raw) < ihdrEnd || !bytes.Equal(raw[:8], pngSignature) || string(raw[12:16]) != "IHDR" {
		return nil, errors.New("encode png: unexpected encoder output")
	}

	// sRGB (perceptual intent) and pHYs go right after IHDR, ahead of IDAT.
	ppm := uint32(math.Round(float64(dpi) / 0.0254))
	phys := make([]byte, 9)
	binary.BigEndian.PutUint32(phys[0:4], ppm)
	binary.BigEndian.PutUint32(phys[4:8], ppm)
	phys[8] = 1

	out := make([]byte, 0, len(raw)+13+21)
	out = append(out, raw[:ihdrEnd]...)
	out = appendChunk(out, "sRGB", []byte{0})
	out = appendChunk(out, "pHYs", phys)
	out = append(out, raw[ihdrEnd:]...)
	return out, nil
}

func appendChunk(dst []byte, typ string, data []byte) []byte {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(data)))
	dst = append(dst, n[:]...)
	start := len(dst)
	dst = append(dst, typ...)
	dst = append(dst, data...)
	binary.BigEndian.PutUint32(n[:], crc32.ChecksumIEEE(dst[start:]))
	return append(dst, n[:]...)
}

// PNGDPI reads the pixels-per-inch recorded in a PNG's pHYs chunk.
func PNGDPI(b []byte) (int, bool) {
	if len(b) < 8 || !bytes.Equal(b[:8], pngSignature) {
		return 0, false
	}
	for off := 8; off+12 <= len(b); {
		n := int(binary.BigEndian.Uint32(b[off : off+4]))
		typ := string(b[off+4 : off+8])
		if off+12+n > len(b) {
			return 0, false
		}
		switch typ {
		case "pHYs":
			if n != 9 || b[off+16] != 1 {
				return 0, false
			}
			ppm := binary.BigEndian.Uint32(b[off+8 : off+12])
			return int(math.Round(float64(ppm) * 0.0254)), true
		case "IDAT", "IEND":
			return 0, false
		}
		off += 12 + n
	}
	return 0, false
}
