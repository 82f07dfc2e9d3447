package publisher

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"github.com/factoryedge/videoingest/internal/ingest/frame"
)

// bufferToImage packs a raw RGB buffer into an image.Image the standard
// library encoders can consume. Alpha is always opaque; the pipeline never
// carries a fourth channel.
func bufferToImage(buf frame.Buffer) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, buf.Width, buf.Height))
	c := buf.Channels
	if c == 0 {
		c = 3
	}
	for y := 0; y < buf.Height; y++ {
		rowBase := y * buf.Width * c
		for x := 0; x < buf.Width; x++ {
			idx := rowBase + x*c
			var r, g, b byte
			switch {
			case c >= 3:
				r, g, b = buf.Pix[idx], buf.Pix[idx+1], buf.Pix[idx+2]
			default:
				r = buf.Pix[idx]
				g, b = r, r
			}
			img.SetNRGBA(x, y, color.NRGBA{R: r, G: g, B: b, A: 255})
		}
	}
	return img
}

// encodeJPEG requires 0 <= quality <= 100, the cv2.IMWRITE_JPEG_QUALITY
// range.
func encodeJPEG(buf frame.Buffer, quality int) ([]byte, error) {
	if quality < 0 || quality > 100 {
		return nil, fmt.Errorf("jpeg quality %d out of range [0,100]", quality)
	}
	img := bufferToImage(buf)
	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// pngCompressionLevel maps the 0-9 libpng compression scale onto the four
// discrete levels image/png exposes; the standard library does not offer
// libpng's fine-grained control, so this is a coarse approximation.
func pngCompressionLevel(level int) png.CompressionLevel {
	switch {
	case level <= 0:
		return png.NoCompression
	case level <= 3:
		return png.BestSpeed
	case level <= 6:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}

// encodePNG requires 0 <= level <= 9, the libpng compression range.
func encodePNG(buf frame.Buffer, level int) ([]byte, error) {
	if level < 0 || level > 9 {
		return nil, fmt.Errorf("png compression level %d out of range [0,9]", level)
	}
	img := bufferToImage(buf)
	enc := png.Encoder{CompressionLevel: pngCompressionLevel(level)}
	var out bytes.Buffer
	if err := enc.Encode(&out, img); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
