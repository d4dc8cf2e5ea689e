package predict

import (
	"time"

	"github.com/w1xm/sattrack/pass"
)

const (
	// scanStep is the coarse step used to bracket horizon crossings.
	// LEO passes last several minutes, so 30 s cannot skip over one.
	scanStep = 30 * time.Second
	// crossingResolution is the bisection limit for AOS/LOS times.
	crossingResolution = time.Second
	// detailStep is the sample spacing of the stored trajectory.
	detailStep = 10 * time.Second
)

// NextAOS returns the next time the satellite rises above the horizon at
// qth, searching up to window past t. If the satellite is already up, t
// itself is returned. ok is false when no rise is found inside the window.
func (s *Satellite) NextAOS(qth QTH, t time.Time, window time.Duration) (time.Time, bool) {
	if _, el := s.Position(qth, t); el >= 0 {
		return t, true
	}
	return s.nextCrossing(qth, t, t.Add(window), true)
}

// nextCrossing brackets the first horizon crossing in (from, until] with a
// coarse scan, then bisects it down to crossingResolution. rising selects
// an upward (AOS) or downward (LOS) crossing.
func (s *Satellite) nextCrossing(qth QTH, from, until time.Time, rising bool) (time.Time, bool) {
	up := func(t time.Time) bool {
		_, el := s.Position(qth, t)
		return el >= 0
	}
	prev := from
	for t := from.Add(scanStep); !t.After(until.Add(scanStep)); t = t.Add(scanStep) {
		if up(t) == rising {
			lo, hi := prev, t
			for hi.Sub(lo) > crossingResolution {
				mid := lo.Add(hi.Sub(lo) / 2)
				if up(mid) == rising {
					hi = mid
				} else {
					lo = mid
				}
			}
			if hi.After(until) {
				return time.Time{}, false
			}
			return hi, true
		}
		prev = t
	}
	return time.Time{}, false
}

// CurrentPass returns the pass in progress at time t, or nil if the
// satellite is below the horizon.
func (s *Satellite) CurrentPass(qth QTH, t time.Time) *pass.Pass {
	if _, el := s.Position(qth, t); el < 0 {
		return nil
	}
	// Walk back to the AOS. A pass cannot be longer than the search
	// window used going forward.
	aos := t
	for {
		probe := aos.Add(-scanStep)
		if _, el := s.Position(qth, probe); el < 0 {
			// Bracket [probe, aos]; bisect the rise.
			lo, hi := probe, aos
			for hi.Sub(lo) > crossingResolution {
				mid := lo.Add(hi.Sub(lo) / 2)
				if _, el := s.Position(qth, mid); el >= 0 {
					hi = mid
				} else {
					lo = mid
				}
			}
			aos = hi
			break
		}
		aos = probe
		if t.Sub(aos) > 6*time.Hour {
			// Geostationary-style target that never sets; treat the
			// visible arc start as now.
			aos = t
			break
		}
	}
	los, ok := s.nextCrossing(qth, t, t.Add(6*time.Hour), false)
	if !ok {
		los = t.Add(6 * time.Hour)
	}
	return s.buildPass(qth, aos, los)
}

// NextPass returns the next pass beginning after t, searching up to window
// ahead. If a pass is already in progress it is skipped; the following one
// is returned. Returns nil when no pass occurs inside the window.
func (s *Satellite) NextPass(qth QTH, t time.Time, window time.Duration) *pass.Pass {
	until := t.Add(window)
	start := t
	if _, el := s.Position(qth, t); el >= 0 {
		los, ok := s.nextCrossing(qth, t, until, false)
		if !ok {
			return nil
		}
		start = los
	}
	aos, ok := s.nextCrossing(qth, start, until, true)
	if !ok {
		return nil
	}
	los, ok := s.nextCrossing(qth, aos, aos.Add(6*time.Hour), false)
	if !ok {
		return nil
	}
	return s.buildPass(qth, aos, los)
}

func (s *Satellite) buildPass(qth QTH, aos, los time.Time) *pass.Pass {
	p := &pass.Pass{
		SatName: s.Name,
		AOS:     aos,
		LOS:     los,
		QTHLat:  qth.Lat,
		QTHLon:  qth.Lon,
	}
	for t := aos; t.Before(los); t = t.Add(detailStep) {
		az, el := s.Position(qth, t)
		if el > p.MaxEl {
			p.MaxEl = el
		}
		p.Details = append(p.Details, pass.Detail{Time: t, Az: az, El: el})
	}
	az, el := s.Position(qth, los)
	p.Details = append(p.Details, pass.Detail{Time: los, Az: az, El: el})
	if el > p.MaxEl {
		p.MaxEl = el
	}
	p.AOSAz = p.Details[0].Az
	p.LOSAz = az
	return p
}
