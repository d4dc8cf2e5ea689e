// Package pass holds the predicted trajectory of a satellite pass and the
// azimuth geometry used to drive a rotator along it.
package pass

import (
	"time"
)

// AzType describes how a rotator reports and accepts azimuth angles.
type AzType int

const (
	// AzTypeRaw passes azimuth angles through unchanged.
	AzTypeRaw AzType = iota
	// AzType360 covers rotators with a 0..360 degree azimuth range.
	AzType360
	// AzType180 covers rotators with a -180..180 degree azimuth range.
	AzType180
)

func (t AzType) String() string {
	switch t {
	case AzTypeRaw:
		return "RAW"
	case AzType360:
		return "0..360"
	case AzType180:
		return "-180..180"
	}
	return "UNKNOWN"
}

// window returns the default azimuth range for the type. The second return
// is false for AzTypeRaw, which has no range.
func (t AzType) window() (min, max float64, ok bool) {
	switch t {
	case AzType360:
		return 0, 360, true
	case AzType180:
		return -180, 180, true
	}
	return 0, 0, false
}

// Detail is one time-stamped trajectory sample within a pass.
type Detail struct {
	Time time.Time `json:"time"`
	Az   float64   `json:"az"`
	El   float64   `json:"el"`
}

// Pass is a single pass of a satellite over a ground station, from AOS to
// LOS, with the sampled trajectory in between.
type Pass struct {
	SatName string    `json:"sat_name"`
	AOS     time.Time `json:"aos"`
	LOS     time.Time `json:"los"`
	AOSAz   float64   `json:"aos_az"`
	LOSAz   float64   `json:"los_az"`
	MaxEl   float64   `json:"max_el"`
	Details []Detail  `json:"details"`

	// Ground station the pass was computed for, in degrees. Used to detect
	// a stale pass after the station has been moved.
	QTHLat float64 `json:"qth_lat"`
	QTHLon float64 `json:"qth_lon"`
}

// Valid reports whether the pass is internally consistent: AOS precedes LOS
// and the details are time-ordered.
func (p *Pass) Valid() bool {
	if p == nil || !p.AOS.Before(p.LOS) {
		return false
	}
	for i := 1; i < len(p.Details); i++ {
		if p.Details[i].Time.Before(p.Details[i-1].Time) {
			return false
		}
	}
	return true
}

// Flipped reports whether the pass requires an over-the-top rotator to be
// tracked without a long azimuth traverse: folded into the rotator's stop
// range, some consecutive pair of samples jumps by more than 180 degrees.
// Sampled across AOS azimuth, the interior detail points, and LOS azimuth.
func (p *Pass) Flipped(typ AzType, stopPos float64) bool {
	flipped := false
	last := NormalizeToStopRange(p.AOSAz, typ, stopPos)
	if n := len(p.Details); n > 1 {
		for _, d := range p.Details[1 : n-1] {
			az := NormalizeToStopRange(d.Az, typ, stopPos)
			if ringGap(az, last) > 180 {
				flipped = true
			}
			last = az
		}
	}
	az := NormalizeToStopRange(p.LOSAz, typ, stopPos)
	if ringGap(az, last) > 180 {
		flipped = true
	}
	return flipped
}

func ringGap(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
