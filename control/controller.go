// Package control turns a satellite's predicted trajectory into safe
// rotator commands: it clamps to the rotator's range limits, keeps the
// azimuth continuous across due north, and presents flipped targets for
// passes that are best tracked over the top.
package control

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/w1xm/sattrack/hwconf"
	"github.com/w1xm/sattrack/pass"
	"github.com/w1xm/sattrack/predict"
	"github.com/w1xm/sattrack/rotctld"
)

const (
	DefaultCycle = time.Second
	MinCycle     = 10 * time.Millisecond

	// noPassLookahead bounds the future-target search when no pass is
	// known.
	noPassLookahead = 20 * time.Minute
	// passSearchWindow is how far ahead to look for upcoming passes.
	passSearchWindow = 72 * time.Hour
	// maxQTHDrift is the ground-station movement, in degrees of
	// latitude plus longitude, that invalidates a computed pass.
	maxQTHDrift = 1.0
)

// Trajectory is the orbit-prediction surface the controller consumes.
// *predict.Satellite implements it; tests substitute scripted paths.
type Trajectory interface {
	Position(qth predict.QTH, t time.Time) (az, el float64)
	NextAOS(qth predict.QTH, t time.Time, window time.Duration) (time.Time, bool)
	CurrentPass(qth predict.QTH, t time.Time) *pass.Pass
	NextPass(qth predict.QTH, t time.Time, window time.Duration) *pass.Pass
}

// Satellite is one selectable tracking target.
type Satellite struct {
	Name   string
	CatNum int
	Traj   Trajectory
}

// Marker is a polar-plot position. HiddenMarker means "do not draw".
type Marker struct {
	Az float64 `json:"az"`
	El float64 `json:"el"`
}

var HiddenMarker = Marker{Az: -10, El: -10}

// PlotSink receives pass and marker updates for display.
type PlotSink interface {
	SetPass(p *pass.Pass)
	SetMarkers(sat, target, rotor Marker)
}

// Status is the full display state after one control cycle.
type Status struct {
	Satellite string `json:"satellite"`
	CatNum    int    `json:"catnum"`

	Tracking bool `json:"tracking"`
	Engaged  bool `json:"engaged"`
	Monitor  bool `json:"monitor"`
	Flipped  bool `json:"flipped"`

	// SatAz and SatEl are the satellite's current look angles.
	SatAz float64 `json:"sat_az"`
	SatEl float64 `json:"sat_el"`

	// Target is the commanded position on the smoothed continuous
	// azimuth scale; Knob is the same target folded for display.
	Target rotctld.Position `json:"target"`
	Knob   rotctld.Position `json:"knob"`

	// Rotor is the raw readback; RotorDisplay is range-adjusted.
	Rotor        rotctld.Position `json:"rotor"`
	RotorDisplay rotctld.Position `json:"rotor_display"`
	RotorValid   bool             `json:"rotor_valid"`
	RotorError   bool             `json:"rotor_error"`

	// Countdown runs to AOS while the target is below the horizon,
	// to LOS while it is up.
	Countdown      time.Duration `json:"countdown"`
	CountdownToAOS bool          `json:"countdown_to_aos"`

	Pass *pass.Pass `json:"pass,omitempty"`

	SatMarker    Marker `json:"sat_marker"`
	TargetMarker Marker `json:"target_marker"`
	RotorMarker  Marker `json:"rotor_marker"`
}

// Controller holds all tracking state and drives the rotator session.
// It is not safe for concurrent use; callers serialize access.
type Controller struct {
	QTH predict.QTH

	plot    PlotSink
	metrics *rotctld.Metrics

	sats []Satellite
	sel  *Satellite

	conf    *hwconf.Config
	session *rotctld.Session

	tracking bool
	monitor  bool

	knob       rotctld.Position
	lastTrg    rotctld.Position
	lastTrgSet bool

	pass    *pass.Pass
	flipped bool

	threshold float64
	cycle     time.Duration

	rotor     rotctld.Position
	rotorErr  bool
	rotorSeen bool
}

// New returns a controller for the given ground station. plot and
// metrics may be nil.
func New(qth predict.QTH, plot PlotSink, metrics *rotctld.Metrics) *Controller {
	return &Controller{
		QTH:       qth,
		plot:      plot,
		metrics:   metrics,
		threshold: 5,
		cycle:     DefaultCycle,
	}
}

// SetSatellites replaces the satellite list, ordered by display name.
// The current selection survives if its catalog number is still listed.
func (c *Controller) SetSatellites(sats []Satellite) {
	c.sats = append([]Satellite(nil), sats...)
	sort.Slice(c.sats, func(i, j int) bool { return c.sats[i].Name < c.sats[j].Name })
	if c.sel == nil {
		return
	}
	catnum := c.sel.CatNum
	c.sel = nil
	for i := range c.sats {
		if c.sats[i].CatNum == catnum {
			c.sel = &c.sats[i]
			return
		}
	}
	c.lastTrgSet = false
	c.setPass(nil)
}

// Satellites returns the list in display order.
func (c *Controller) Satellites() []Satellite {
	return append([]Satellite(nil), c.sats...)
}

// Selected returns the current target, if any.
func (c *Controller) Selected() (Satellite, bool) {
	if c.sel == nil {
		return Satellite{}, false
	}
	return *c.sel, true
}

// SelectSatellite switches the tracking target by catalog number,
// discarding the current pass and target history.
func (c *Controller) SelectSatellite(catnum int, t time.Time) error {
	for i := range c.sats {
		if c.sats[i].CatNum == catnum {
			c.sel = &c.sats[i]
			c.lastTrgSet = false
			c.refreshPass(t)
			return nil
		}
	}
	return fmt.Errorf("no satellite with catalog number %d", catnum)
}

// SetTracking toggles path-driven control. Target history is reset so
// the next cycle starts fresh from the path.
func (c *Controller) SetTracking(tracking bool) {
	c.tracking = tracking
	c.lastTrgSet = false
}

// SetMonitor toggles monitor-only mode: position polls continue but
// pending targets are withheld from the rotator.
func (c *Controller) SetMonitor(monitor bool) {
	c.monitor = monitor
	if c.session != nil {
		c.session.SetMonitor(monitor)
	}
}

// SetKnob sets the manual target used while not tracking.
func (c *Controller) SetKnob(az, el float64) {
	c.knob = rotctld.Position{Az: az, El: el}
}

// Park stops tracking and points the antenna at its stow position.
func (c *Controller) Park() {
	c.SetTracking(false)
	if c.conf != nil {
		c.knob = rotctld.Position{Az: pass.MakePositive(c.conf.AzStopPos), El: c.conf.MinEl}
		return
	}
	c.knob = rotctld.Position{}
}

// SetConfig installs a rotator configuration. Refused while engaged.
func (c *Controller) SetConfig(conf hwconf.Config) error {
	if c.session != nil {
		return errors.New("cannot change rotator configuration while engaged")
	}
	c.conf = &conf
	c.threshold = conf.Threshold
	c.SetCycle(conf.Cycle())
	if c.pass != nil {
		c.flipped = c.pass.Flipped(conf.AzType, conf.AzStopPos)
	}
	return nil
}

// Config returns the active configuration, if any.
func (c *Controller) Config() (hwconf.Config, bool) {
	if c.conf == nil {
		return hwconf.Config{}, false
	}
	return *c.conf, true
}

// SetCycle adjusts the control period, clamped to MinCycle.
func (c *Controller) SetCycle(d time.Duration) {
	if d < MinCycle {
		d = MinCycle
	}
	c.cycle = d
	if c.conf != nil {
		c.conf.CycleMS = int(d / time.Millisecond)
	}
}

// Cycle returns the control period.
func (c *Controller) Cycle() time.Duration {
	return c.cycle
}

// SetThreshold adjusts the movement tolerance in degrees.
func (c *Controller) SetThreshold(v float64) {
	c.threshold = v
	if c.conf != nil {
		c.conf.Threshold = v
	}
}

// Engage opens the rotator session. A configuration must be installed
// first; a connect failure leaves the controller disengaged.
func (c *Controller) Engage() error {
	if c.session != nil {
		return nil
	}
	if c.conf == nil {
		return errors.New("no rotator configuration selected")
	}
	s, err := rotctld.Start(c.conf.Addr(), c.metrics)
	if err != nil {
		return err
	}
	s.SetMonitor(c.monitor)
	c.session = s
	return nil
}

// Disengage stops the rotator and tears down the session, blocking
// until its goroutine has exited and the socket is closed.
func (c *Controller) Disengage() {
	if c.session == nil {
		return
	}
	c.session.Shutdown()
	c.session = nil
	c.rotorSeen = false
	c.rotorErr = false
}

// Engaged reports whether a session is open.
func (c *Controller) Engaged() bool {
	return c.session != nil
}

func (c *Controller) refreshPass(t time.Time) {
	if c.sel == nil {
		c.setPass(nil)
		return
	}
	if _, el := c.sel.Traj.Position(c.QTH, t); el > 0 {
		c.setPass(c.sel.Traj.CurrentPass(c.QTH, t))
	} else {
		c.setPass(c.sel.Traj.NextPass(c.QTH, t, passSearchWindow))
	}
}

func (c *Controller) setPass(p *pass.Pass) {
	c.pass = p
	c.flipped = false
	if p != nil && c.conf != nil {
		c.flipped = p.Flipped(c.conf.AzType, c.conf.AzStopPos)
	}
	if c.plot != nil {
		c.plot.SetPass(p)
	}
}

// updateTarget re-evaluates pass staleness: the ground station may have
// moved, the pass may be over, or the satellite may be up outside the
// predicted window.
func (c *Controller) updateTarget(t time.Time, satEl float64) {
	if c.pass != nil && c.QTH.DistanceTo(c.pass.QTHLat, c.pass.QTHLon) > maxQTHDrift {
		c.setPass(c.sel.Traj.NextPass(c.QTH, t, passSearchWindow))
	}
	if c.pass == nil {
		c.refreshPass(t)
		return
	}
	if t.Before(c.pass.AOS) || t.After(c.pass.LOS) {
		if satEl >= 0 {
			// Up outside the predicted window: an unexpected pass,
			// possibly one that missed a minimum-elevation cut.
			c.lastTrgSet = false
			c.setPass(c.sel.Traj.CurrentPass(c.QTH, t))
		} else if aos, ok := c.sel.Traj.NextAOS(c.QTH, t, passSearchWindow); ok && aos.Sub(c.pass.AOS) > c.cycle/4 {
			// The next predicted rise is well past this pass's AOS,
			// so the stored pass is no longer the upcoming one.
			c.lastTrgSet = false
			c.setPass(c.sel.Traj.NextPass(c.QTH, t, passSearchWindow))
		}
	} else if satEl < 0 {
		// Inside the window but the target already dropped below the
		// horizon, so the pass ended early.
		c.lastTrgSet = false
		c.setPass(c.sel.Traj.NextPass(c.QTH, t, passSearchWindow))
	}
}

// flip presents the geometrically flipped target for rotators whose
// elevation range extends past the zenith.
func (c *Controller) flip(az, el float64) (float64, float64) {
	if !c.flipped || c.conf == nil || c.conf.MaxEl < 180 {
		return az, el
	}
	el = 180 - el
	if az > 180 {
		az -= 180
	} else {
		az += 180
	}
	return az, el
}

// pathPosition is the point on the pass the rotator should follow: the
// satellite itself while it is up, otherwise the AOS or LOS azimuth
// held at the horizon.
func (c *Controller) pathPosition(t time.Time, satAz, satEl float64) (float64, float64, bool) {
	var az, el float64
	ok := false
	if satEl < 0 {
		if c.pass != nil {
			if t.Before(c.pass.AOS) {
				az, el, ok = c.pass.AOSAz, 0, true
			} else if t.After(c.pass.LOS) {
				az, el, ok = c.pass.LOSAz, 0, true
			}
		}
	} else {
		az, el, ok = satAz, satEl, true
	}
	az, el = c.flip(az, el)
	return az, el, ok
}

func (c *Controller) smoothAz(az float64) float64 {
	if !c.lastTrgSet {
		return az
	}
	return pass.Smooth(c.lastTrg.Az, az)
}

// futureTarget binary-searches the trajectory for the furthest future
// point still within threshold of the current path position, so the
// rotator moves once and lets the satellite catch up. The search only
// ever returns an in-threshold point; if no probe qualifies (for
// example a pass about to end) the path position itself is returned.
func (c *Controller) futureTarget(t time.Time, pthAz, pthEl float64) (float64, float64) {
	window := noPassLookahead
	if c.pass != nil {
		window = c.pass.LOS.Sub(t)
	}
	step := window / 2
	if step < c.cycle {
		step = c.cycle
	}
	minStep := c.cycle / 4

	bestAz, bestEl := pthAz, pthEl
	var delta time.Duration
	for step > minStep {
		az, el := c.sel.Traj.Position(c.QTH, t.Add(delta+step))
		az, el = c.flip(az, el)
		if el >= 0 && el <= 180 && pass.WithinThreshold(pthAz, pthEl, az, el, c.threshold) {
			delta += step
			bestAz, bestEl = az, el
		}
		step /= 2
	}
	return bestAz, bestEl
}

// Tick runs one control cycle at time t and returns the display state.
// It never blocks on the network: the session exchange uses a
// non-blocking lock and is simply skipped on contention.
func (c *Controller) Tick(t time.Time) Status {
	var satAz, satEl float64
	hasSat := c.sel != nil
	if hasSat {
		satAz, satEl = c.sel.Traj.Position(c.QTH, t)
		c.updateTarget(t, satEl)
	}

	tracking := c.tracking && hasSat
	engaged := c.session != nil && c.conf != nil
	azType := pass.AzType360
	if c.conf != nil {
		azType = c.conf.AzType
	}

	var trgAz, trgEl float64
	satMarker := HiddenMarker
	if !tracking {
		trgAz, trgEl = c.knob.Az, c.knob.El
		c.lastTrg = rotctld.Position{Az: trgAz, El: trgEl}
		c.lastTrgSet = true
	} else if pthAz, pthEl, ok := c.pathPosition(t, satAz, satEl); ok {
		pthAz = c.smoothAz(pthAz)
		if c.lastTrgSet {
			trgAz, trgEl = c.lastTrg.Az, c.lastTrg.El
		} else {
			trgAz, trgEl = pthAz, pthEl
		}
		if !pass.WithinThreshold(pthAz, pthEl, trgAz, trgEl, c.threshold) {
			if satEl < 0 {
				trgAz, trgEl = pthAz, pthEl
			} else {
				trgAz, trgEl = c.futureTarget(t, pthAz, pthEl)
			}
			trgAz = c.smoothAz(trgAz)
		}
		c.lastTrg = rotctld.Position{Az: trgAz, El: trgEl}
		c.lastTrgSet = true
		if c.pass != nil && c.conf != nil {
			trgAz += pass.ProfileAzimuth(c.pass, trgAz, c.conf.MinAz, c.conf.MaxAz)
		}
		// The knob follows the computed target so disabling tracking
		// holds the antenna where it is.
		dspAz, dspEl := pass.DisplayAngles(trgAz, trgEl, azType)
		c.knob = rotctld.Position{Az: dspAz, El: dspEl}
		satMarker = Marker{Az: pass.MakePositive(pthAz), El: pass.MakePositive(pthEl)}
	} else {
		// Below the horizon with no pass boundary to hold. Keep the
		// last target rather than slewing to a default.
		if c.lastTrgSet {
			trgAz, trgEl = c.lastTrg.Az, c.lastTrg.El
		} else {
			trgAz, trgEl = c.knob.Az, c.knob.El
		}
	}

	if engaged {
		cmd := rotctld.Position{
			Az: clamp(trgAz, c.conf.MinAz, c.conf.MaxAz),
			El: clamp(trgEl, c.conf.MinEl, c.conf.MaxEl),
		}
		if st, ok := c.session.Exchange(&cmd); ok {
			c.rotor = st.In
			c.rotorErr = st.IOError
			c.rotorSeen = true
		}
		// On contention the previous readback persists for display.
	}

	rotorMarker := HiddenMarker
	rotorValid := engaged && c.rotorSeen && !c.rotorErr
	if rotorValid {
		rotorMarker = Marker{Az: pass.MakePositive(c.rotor.Az), El: pass.MakePositive(c.rotor.El)}
	}
	targetMarker := Marker{Az: pass.MakePositive(trgAz), El: pass.MakePositive(trgEl)}
	if c.plot != nil {
		c.plot.SetMarkers(satMarker, targetMarker, rotorMarker)
	}

	st := Status{
		Tracking:     tracking,
		Engaged:      engaged,
		Monitor:      c.monitor,
		Flipped:      c.flipped,
		Target:       rotctld.Position{Az: trgAz, El: trgEl},
		Knob:         c.knob,
		Rotor:        c.rotor,
		RotorValid:   rotorValid,
		RotorError:   engaged && c.rotorErr,
		Pass:         c.pass,
		SatMarker:    satMarker,
		TargetMarker: targetMarker,
		RotorMarker:  rotorMarker,
	}
	st.RotorDisplay.Az, st.RotorDisplay.El = pass.DisplayAngles(c.rotor.Az, c.rotor.El, azType)
	if hasSat {
		st.Satellite = c.sel.Name
		st.CatNum = c.sel.CatNum
		st.SatAz, st.SatEl = satAz, satEl
		if c.pass != nil {
			if satEl < 0 {
				st.CountdownToAOS = true
				st.Countdown = c.pass.AOS.Sub(t)
			} else {
				st.Countdown = c.pass.LOS.Sub(t)
			}
			if st.Countdown < 0 {
				st.Countdown = 0
			}
		}
	}
	return st
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
