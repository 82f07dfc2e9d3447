package publisher

import (
	"strconv"
	"strings"

	"github.com/factoryedge/videoingest/internal/ingest/frame"
)

// parseResolution splits a "WxH" string into width, height. It mirrors the
// original's resolution.split("x") unpacking: anything other than exactly
// two decimal fields is rejected rather than guessed at.
func parseResolution(resolution string) (width, height int, ok bool) {
	parts := strings.SplitN(resolution, "x", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	w, err := strconv.Atoi(parts[0])
	if err != nil || w <= 0 {
		return 0, 0, false
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

// resizeBuffer resamples buf to outW x outH by area-weighted averaging: the
// same box-filter behavior cv2.resize(..., INTER_AREA) gives for downscale,
// approximated here (without sub-pixel coverage weights) since no imaging
// library in the corpus exposes that resampling kernel directly.
func resizeBuffer(buf frame.Buffer, outW, outH int) frame.Buffer {
	if outW <= 0 || outH <= 0 || buf.Width <= 0 || buf.Height <= 0 {
		return buf
	}
	if outW == buf.Width && outH == buf.Height {
		return buf
	}
	c := buf.Channels
	if c == 0 {
		c = 3
	}
	out := make([]byte, outW*outH*c)
	scaleX := float64(buf.Width) / float64(outW)
	scaleY := float64(buf.Height) / float64(outH)

	for oy := 0; oy < outH; oy++ {
		srcY0 := int(float64(oy) * scaleY)
		srcY1 := int(float64(oy+1) * scaleY)
		if srcY1 <= srcY0 {
			srcY1 = srcY0 + 1
		}
		if srcY1 > buf.Height {
			srcY1 = buf.Height
		}
		for ox := 0; ox < outW; ox++ {
			srcX0 := int(float64(ox) * scaleX)
			srcX1 := int(float64(ox+1) * scaleX)
			if srcX1 <= srcX0 {
				srcX1 = srcX0 + 1
			}
			if srcX1 > buf.Width {
				srcX1 = buf.Width
			}
			for ch := 0; ch < c; ch++ {
				sum := 0
				count := 0
				for sy := srcY0; sy < srcY1; sy++ {
					rowBase := sy * buf.Width * c
					for sx := srcX0; sx < srcX1; sx++ {
						sum += int(buf.Pix[rowBase+sx*c+ch])
						count++
					}
				}
				if count == 0 {
					count = 1
				}
				out[(oy*outW+ox)*c+ch] = byte(sum / count)
			}
		}
	}
	return frame.Buffer{Pix: out, Height: outH, Width: outW, Channels: c}
}
