package flamegraph

import (
	"crypto/md5"
	"encoding/binary"
	"image/color"
)

// Neutral gray used for the synthetic root and for unchanged frames in
// differential mode.
var neutralGray = color.RGBA{R: 200, G: 200, B: 200, A: 255}

// Differential palette thresholds: rate deltas below deltaEpsilon read as
// unchanged; deltaSaturation is the delta magnitude at full intensity.
const (
	deltaEpsilon    = 0.001
	deltaSaturation = 0.3
)

// NameColor maps a frame name deterministically to a warm-toned color.
//
// A stable hash of the name drives the hue within the red-to-yellow band
// and perturbs saturation and value through distinct bit windows. The
// blue channel carries a floor offset so colors never read as fully
// saturated red.
func NameColor(name string) color.RGBA {
	sum := md5.Sum([]byte(name))
	h := binary.BigEndian.Uint32(sum[:4])

	hue := float64(h % 60) // 0-60: red to yellow
	sat := float64(160 + (h>>8)%55)
	val := float64(200 + (h>>16)%56)

	hf := hue / 60.0
	s := sat / 255.0
	v := val / 255.0
	c := v * s
	x := c * (1.0 - hf)
	m := v - c

	var rf, gf float64
	if hf < 1.0 {
		rf, gf = c, x
	} else {
		rf, gf = x, c
	}

	return color.RGBA{
		R: uint8((rf + m) * 255),
		G: uint8((gf + m) * 255),
		B: uint8(m*55 + 30),
		A: 255,
	}
}

// DeltaColor maps a frame's normalized rate change between two profiles
// to a color: red for regression (more relative weight after), blue for
// improvement, neutral gray when essentially unchanged.
//
// Counts are normalized per-profile before comparison, so a raw-count
// drop with unchanged relative weight reads as neutral.
func DeltaColor(countBefore, countAfter, totalBefore, totalAfter int64) color.RGBA {
	if totalBefore == 0 && totalAfter == 0 {
		return neutralGray
	}

	var rateBefore, rateAfter float64
	if totalBefore > 0 {
		rateBefore = float64(countBefore) / float64(totalBefore)
	}
	if totalAfter > 0 {
		rateAfter = float64(countAfter) / float64(totalAfter)
	}

	delta := rateAfter - rateBefore
	if delta < deltaEpsilon && delta > -deltaEpsilon {
		return neutralGray
	}

	mag := delta
	if mag < 0 {
		mag = -mag
	}
	intensity := mag / deltaSaturation
	if intensity > 1.0 {
		intensity = 1.0
	}

	var r, g, b int
	if delta > 0 {
		// Regression: red
		r = 200 + int(55*intensity)
		g = 200 - int(140*intensity)
		b = 200 - int(140*intensity)
	} else {
		// Improvement: blue
		r = 200 - int(140*intensity)
		g = 200 - int(80*intensity)
		b = 200 + int(55*intensity)
	}

	return color.RGBA{
		R: clampChannel(r),
		G: clampChannel(g),
		B: clampChannel(b),
		A: 255,
	}
}

func clampChannel(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
