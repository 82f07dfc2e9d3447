package filter

import "github.com/factoryedge/videoingest/internal/ingest/frame"

// toGray averages the channels of a packed pixel buffer into an 8-bit
// grayscale plane. Buffers with Channels==1 are returned as-is.
func toGray(buf frame.Buffer) []byte {
	if buf.Channels <= 1 {
		out := make([]byte, len(buf.Pix))
		copy(out, buf.Pix)
		return out
	}
	n := buf.Height * buf.Width
	gray := make([]byte, n)
	c := buf.Channels
	for i := 0; i < n; i++ {
		var sum int
		base := i * c
		for k := 0; k < c; k++ {
			sum += int(buf.Pix[base+k])
		}
		gray[i] = byte(sum / c)
	}
	return gray
}

// otsuThreshold computes the binarization threshold that maximizes
// between-class variance over an 8-bit histogram (Otsu's method).
func otsuThreshold(gray []byte) int {
	var hist [256]int
	for _, v := range gray {
		hist[v]++
	}
	total := len(gray)
	var sum float64
	for i, count := range hist {
		sum += float64(i * count)
	}

	var sumB, wB float64
	wF := float64(total)
	var maxVar float64
	threshold := 0

	for i := 0; i < 256; i++ {
		wB += float64(hist[i])
		if wB == 0 {
			continue
		}
		wF = float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(i * hist[i])
		mB := sumB / wB
		mF := (sum - sumB) / wF
		betweenVar := wB * wF * (mB - mF) * (mB - mF)
		if betweenVar > maxVar {
			maxVar = betweenVar
			threshold = i
		}
	}
	return threshold
}

// binarize turns a grayscale plane into a 0/255 mask using the supplied
// threshold: a pixel strictly greater than the threshold is foreground.
func binarize(gray []byte, threshold int) []byte {
	mask := make([]byte, len(gray))
	for i, v := range gray {
		if int(v) > threshold {
			mask[i] = 255
		}
	}
	return mask
}

// morphClose applies a dilate-then-erode pass with a kw x kh rectangular
// structuring element, closing small gaps in the foreground mask — the
// same role cv2.morphologyEx(MORPH_CLOSE) plays upstream.
func morphClose(mask []byte, width, height, kw, kh int) []byte {
	return erode(dilate(mask, width, height, kw, kh), width, height, kw, kh)
}

func dilate(mask []byte, width, height, kw, kh int) []byte {
	out := make([]byte, len(mask))
	halfW, halfH := kw/2, kh/2
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if mask[y*width+x] == 255 {
				continue
			}
			found := false
			for dy := -halfH; dy < kh-halfH && !found; dy++ {
				ny := y + dy
				if ny < 0 || ny >= height {
					continue
				}
				for dx := -halfW; dx < kw-halfW; dx++ {
					nx := x + dx
					if nx < 0 || nx >= width {
						continue
					}
					if mask[ny*width+nx] == 255 {
						found = true
						break
					}
				}
			}
			if found {
				out[y*width+x] = 255
			}
		}
	}
	// Pixels already set stay set.
	for i, v := range mask {
		if v == 255 {
			out[i] = 255
		}
	}
	return out
}

func erode(mask []byte, width, height, kw, kh int) []byte {
	out := make([]byte, len(mask))
	halfW, halfH := kw/2, kh/2
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if mask[y*width+x] != 255 {
				continue
			}
			all := true
			for dy := -halfH; dy < kh-halfH && all; dy++ {
				ny := y + dy
				if ny < 0 || ny >= height {
					all = false
					break
				}
				for dx := -halfW; dx < kw-halfW; dx++ {
					nx := x + dx
					if nx < 0 || nx >= width || mask[ny*width+nx] != 255 {
						all = false
						break
					}
				}
			}
			if all {
				out[y*width+x] = 255
			}
		}
	}
	return out
}

func countWhite(mask []byte, width, height, x0, x1 int) int {
	count := 0
	for y := 0; y < height; y++ {
		for x := x0; x < x1; x++ {
			if mask[y*width+x] == 255 {
				count++
			}
		}
	}
	return count
}

type rect struct {
	x, y, w, h int
}

// largestComponent finds the largest 4-connected run of foreground pixels
// and returns its bounding box, approximating cv2.findContours +
// max(contourArea) + boundingRect without a CV library: the bounding box
// of the largest connected foreground blob is the same quantity the
// original computes from the largest external contour.
func largestComponent(mask []byte, width, height int) (rect, bool) {
	visited := make([]bool, len(mask))
	var best rect
	bestArea := 0
	found := false

	stack := make([]int, 0, 256)
	for start := 0; start < len(mask); start++ {
		if mask[start] != 255 || visited[start] {
			continue
		}
		minX, minY := width, height
		maxX, maxY := -1, -1
		area := 0
		stack = stack[:0]
		stack = append(stack, start)
		visited[start] = true
		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := idx%width, idx/width
			area++
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
			neighbors := [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}}
			for _, n := range neighbors {
				nx, ny := n[0], n[1]
				if nx < 0 || nx >= width || ny < 0 || ny >= height {
					continue
				}
				nIdx := ny*width + nx
				if visited[nIdx] || mask[nIdx] != 255 {
					continue
				}
				visited[nIdx] = true
				stack = append(stack, nIdx)
			}
		}
		if area > bestArea {
			bestArea = area
			best = rect{x: minX, y: minY, w: maxX - minX + 1, h: maxY - minY + 1}
			found = true
		}
	}
	return best, found
}
