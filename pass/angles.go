package pass

import "math"

// NormalizeToStopRange folds angle into the rotator's settable azimuth
// window. The window is the type's default range shifted so that it starts
// at the configured stop position; the default stop (0 for 0..360, -180 for
// -180..180) leaves the range unshifted. AzTypeRaw angles are returned
// unchanged.
func NormalizeToStopRange(angle float64, typ AzType, stopPos float64) float64 {
	min, max, ok := typ.window()
	if !ok {
		return angle
	}
	offset := stopPos - min
	min += offset
	max += offset
	for angle >= max {
		angle -= 360
	}
	for angle < min {
		angle += 360
	}
	return angle
}

// RingAbsDiff returns the minimum absolute difference between two angles on
// the azimuth ring, in [0, 180]. Ex. RingAbsDiff(350, 10) == 20.
func RingAbsDiff(a, b float64) float64 {
	diff := math.Abs(a - b)
	if diff > 180 {
		diff = math.Abs(diff - 360)
	}
	return diff
}

// Smooth keeps successive azimuths continuous across the due-north seam:
// if cur is more than 170 degrees away from last it is shifted by a full
// turn back toward last.
func Smooth(last, cur float64) float64 {
	if last+170 < cur {
		cur -= 360
	}
	if last-170 > cur {
		cur += 360
	}
	return cur
}

// WithinThreshold reports whether two az/el points are within threshold
// degrees of each other, using the Euclidean distance of the ring-folded
// differences. Not exact on the sphere, but better than per-axis checks.
func WithinThreshold(az1, el1, az2, el2, threshold float64) bool {
	da := RingAbsDiff(az1, az2)
	de := RingAbsDiff(el1, el2)
	return da*da+de*de < threshold*threshold
}

// MakePositive shifts angle up by full turns until it is non-negative.
func MakePositive(angle float64) float64 {
	for angle < 0 {
		angle += 360
	}
	return angle
}

// ProfileAzimuth examines the whole smoothed azimuth excursion of the pass,
// re-based near sampleAz, and picks the full-turn offset that keeps the
// excursion inside the rotator's [minAz, maxAz] limits while staying as
// close to 0 as possible (moving -10..-40 beats 350..320 even when both are
// reachable). Returns 0 when no offset qualifies.
func ProfileAzimuth(p *Pass, sampleAz, minAz, maxAz float64) float64 {
	if p == nil || len(p.Details) == 0 {
		return 0
	}
	last := p.Details[0].Az
	lo := math.Inf(1)
	hi := math.Inf(-1)
	for _, d := range p.Details {
		az := Smooth(last, d.Az)
		if az < lo {
			lo = az
		}
		if az > hi {
			hi = az
		}
		last = az
	}
	for sampleAz < lo {
		lo -= 360
		hi -= 360
	}
	for sampleAz > hi {
		lo += 360
		hi += 360
	}
	offset := 0.0
	maxStretch := math.Inf(1)
	for _, off := range []float64{-360, 0, 360} {
		low := lo + off
		high := hi + off
		if low > minAz && high < maxAz {
			stretch := math.Max(math.Abs(low), math.Abs(high))
			if stretch < maxStretch {
				maxStretch = stretch
				offset = off
			}
		}
	}
	return offset
}

// DisplayAngles folds az into the display range for the given type. Used
// for presentation only; targeting always works on raw smoothed angles.
func DisplayAngles(az, el float64, typ AzType) (float64, float64) {
	switch typ {
	case AzType360:
		for az < 0 {
			az += 360
		}
		for az > 360 {
			az -= 360
		}
	case AzType180:
		for az < -180 {
			az += 360
		}
		for az > 180 {
			az -= 360
		}
	}
	return az, el
}
