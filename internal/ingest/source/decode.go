package source

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/factoryedge/videoingest/internal/ingest/frame"
)

// decodeToBuffer decodes a JPEG or PNG stream into a packed RGB buffer.
// Alpha, if present, is dropped: the pipeline's data model only carries
// height/width/channels, and every reference filter and the resize/encode
// path in the Publisher assume a 3-channel buffer.
func decodeToBuffer(r io.Reader) (frame.Buffer, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return frame.Buffer{}, err
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	pix := make([]byte, width*height*3)
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r32, g32, b32, _ := img.At(x, y).RGBA()
			pix[i] = byte(r32 >> 8)
			pix[i+1] = byte(g32 >> 8)
			pix[i+2] = byte(b32 >> 8)
			i += 3
		}
	}
	return frame.Buffer{Pix: pix, Height: height, Width: width, Channels: 3}, nil
}
