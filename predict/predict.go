// Package predict computes satellite look angles and passes for a ground
// station, backed by SGP4 propagation of two-line elements.
package predict

import (
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

// QTH is the ground station location. Latitude and longitude are in
// degrees (north/east positive), altitude in metres above sea level.
type QTH struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Alt  float64 `json:"alt"`
}

// DistanceTo returns the flat lat/lon distance in degrees to another
// location. Only used to decide whether a computed pass has gone stale
// after the station moved, so the crude metric is fine.
func (q QTH) DistanceTo(lat, lon float64) float64 {
	dlat := q.Lat - lat
	dlon := q.Lon - lon
	return math.Sqrt(dlat*dlat + dlon*dlon)
}

// Satellite propagates one satellite from its TLE.
type Satellite struct {
	Name   string
	CatNum int

	sat satellite.Satellite
}

// NewSatellite parses the TLE lines and returns a propagatable satellite.
func NewSatellite(name string, catnum int, line1, line2 string) *Satellite {
	return &Satellite{
		Name:   name,
		CatNum: catnum,
		sat:    satellite.TLEToSat(line1, line2, satellite.GravityWGS72),
	}
}

func deg2rad(x float64) float64 { return x * math.Pi / 180 }
func rad2deg(x float64) float64 { return x * 180 / math.Pi }

// Position returns the azimuth and elevation of the satellite as seen from
// qth at time t, in degrees. Azimuth is in [0, 360).
func (s *Satellite) Position(qth QTH, t time.Time) (az, el float64) {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	pos, _ := satellite.Propagate(s.sat, year, int(month), day, hour, min, sec)
	jday := satellite.JDay(year, int(month), day, hour, min, sec)
	obs := satellite.LatLong{
		Latitude:  deg2rad(qth.Lat),
		Longitude: deg2rad(qth.Lon),
	}
	angles := satellite.ECIToLookAngles(pos, obs, qth.Alt/1000, jday)
	az = math.Mod(rad2deg(angles.Az)+360, 360)
	el = rad2deg(angles.El)
	return az, el
}
