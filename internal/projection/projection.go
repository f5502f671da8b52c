// Package projection converts coordinates between a projected reference
// system (described by a proj4 definition string) and WGS84 lon/lat.
package projection

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrUnsupportedProjection = errors.New("unsupported projection type")
	ErrBadDefinition         = errors.New("malformed projection definition")
)

// ellipsoids maps proj4 +ellps names to semi-major axis / inverse flattening.
var ellipsoids = map[string][2]float64{
	"WGS84":  {6378137.0, 298.257223563},
	"GRS80":  {6378137.0, 298.257222101},
	"intl":   {6378388.0, 297.0},
	"clrk66": {6378206.4, 294.978698214},
	"sphere": {6370997.0, 0}, // rf 0 means no flattening
}

// Transformer converts between one projected CRS and WGS84 longitude/latitude
// (degrees). It is safe for concurrent use once constructed.
type Transformer struct {
	proj   string  // longlat, merc, tmerc (utm is normalized to tmerc)
	a      float64 // semi-major axis
	es     float64 // eccentricity squared
	k0     float64
	lon0   float64 // radians
	lat0   float64 // radians
	x0, y0 float64 // false easting/northing
	m0     float64 // meridian arc at lat0, precomputed
}

// Parse builds a Transformer from a proj4 definition string, e.g.
// "+proj=utm +zone=33 +datum=WGS84 +units=m +no_defs".
func Parse(def string) (*Transformer, error) {
	params := map[string]string{}
	for _, tok := range strings.Fields(def) {
		tok = strings.TrimPrefix(tok, "+")
		if tok == "" {
			continue
		}
		if i := strings.IndexByte(tok, '='); i >= 0 {
			params[tok[:i]] = tok[i+1:]
		} else {
			params[tok] = ""
		}
	}

	projName, ok := params["proj"]
	if !ok {
		return nil, fmt.Errorf("%w: missing +proj in %q", ErrBadDefinition, def)
	}

	t := &Transformer{proj: projName, k0: 1}

	// Ellipsoid: explicit a/b or a/rf beats +ellps beats +datum, WGS84 default.
	a, b, rf := math.NaN(), math.NaN(), math.NaN()
	if v, ok := params["a"]; ok {
		a, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := params["b"]; ok {
		b, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := params["rf"]; ok {
		rf, _ = strconv.ParseFloat(v, 64)
	}
	if math.IsNaN(a) {
		name := params["ellps"]
		if name == "" {
			if d := params["datum"]; d == "NAD83" {
				name = "GRS80"
			} else {
				name = "WGS84"
			}
		}
		e, ok := ellipsoids[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown ellipsoid %q", ErrBadDefinition, name)
		}
		a, rf = e[0], e[1]
	}
	t.a = a
	switch {
	case !math.IsNaN(b):
		t.es = 1 - (b*b)/(a*a)
	case !math.IsNaN(rf) && rf != 0:
		f := 1 / rf
		t.es = 2*f - f*f
	default:
		t.es = 0
	}

	parseAngle := func(key string) float64 {
		v, ok := params[key]
		if !ok {
			return 0
		}
		d, _ := strconv.ParseFloat(v, 64)
		return d * math.Pi / 180
	}
	parseNum := func(key string, def float64) float64 {
		v, ok := params[key]
		if !ok {
			return def
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return def
		}
		return n
	}

	t.lon0 = parseAngle("lon_0")
	t.lat0 = parseAngle("lat_0")
	t.x0 = parseNum("x_0", 0)
	t.y0 = parseNum("y_0", 0)
	t.k0 = parseNum("k", parseNum("k_0", 1))

	switch projName {
	case "longlat", "latlong", "lonlat":
		// identity, degrees in and out
	case "merc":
	case "tmerc":
	case "utm":
		zone := parseNum("zone", 0)
		if zone < 1 || zone > 60 {
			return nil, fmt.Errorf("%w: utm zone %v out of range", ErrBadDefinition, zone)
		}
		t.proj = "tmerc"
		t.lon0 = (zone*6 - 183) * math.Pi / 180
		t.lat0 = 0
		t.k0 = 0.9996
		t.x0 = 500000
		if _, south := params["south"]; south {
			t.y0 = 10000000
		} else {
			t.y0 = 0
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProjection, projName)
	}

	t.m0 = t.meridianArc(t.lat0)
	return t, nil
}

// ToWGS84 converts projected coordinates into lon/lat degrees.
func (t *Transformer) ToWGS84(x, y float64) (lon, lat float64) {
	switch t.proj {
	case "longlat", "latlong", "lonlat":
		return x, y
	case "merc":
		return t.mercInverse(x, y)
	default:
		return t.tmercInverse(x, y)
	}
}

// FromWGS84 converts lon/lat degrees into projected coordinates. It is the
// exact inverse of ToWGS84 up to series truncation error.
func (t *Transformer) FromWGS84(lon, lat float64) (x, y float64) {
	switch t.proj {
	case "longlat", "latlong", "lonlat":
		return lon, lat
	case "merc":
		return t.mercForward(lon, lat)
	default:
		return t.tmercForward(lon, lat)
	}
}

// meridianArc returns the distance along the meridian from the equator to
// latitude phi (radians), per Snyder eq. 3-21.
func (t *Transformer) meridianArc(phi float64) float64 {
	es := t.es
	return t.a * ((1-es/4-3*es*es/64-5*es*es*es/256)*phi -
		(3*es/8+3*es*es/32+45*es*es*es/1024)*math.Sin(2*phi) +
		(15*es*es/256+45*es*es*es/1024)*math.Sin(4*phi) -
		(35*es*es*es/3072)*math.Sin(6*phi))
}

func (t *Transformer) tmercForward(lonDeg, latDeg float64) (x, y float64) {
	lam := lonDeg*math.Pi/180 - t.lon0
	phi := latDeg * math.Pi / 180

	es := t.es
	ep2 := es / (1 - es)
	sinPhi, cosPhi := math.Sincos(phi)
	n := t.a / math.Sqrt(1-es*sinPhi*sinPhi)
	tt := math.Tan(phi) * math.Tan(phi)
	c := ep2 * cosPhi * cosPhi
	al := cosPhi * lam
	m := t.meridianArc(phi)

	x = t.k0*n*(al+(1-tt+c)*al*al*al/6+
		(5-18*tt+tt*tt+72*c-58*ep2)*math.Pow(al, 5)/120) + t.x0
	y = t.k0*(m-t.m0+n*math.Tan(phi)*(al*al/2+
		(5-tt+9*c+4*c*c)*math.Pow(al, 4)/24+
		(61-58*tt+tt*tt+600*c-330*ep2)*math.Pow(al, 6)/720)) + t.y0
	return x, y
}

func (t *Transformer) tmercInverse(x, y float64) (lonDeg, latDeg float64) {
	es := t.es
	ep2 := es / (1 - es)
	m := t.m0 + (y-t.y0)/t.k0
	mu := m / (t.a * (1 - es/4 - 3*es*es/64 - 5*es*es*es/256))

	e1 := (1 - math.Sqrt(1-es)) / (1 + math.Sqrt(1-es))
	phi1 := mu + (3*e1/2-27*e1*e1*e1/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*math.Pow(e1, 4)/32)*math.Sin(4*mu) +
		(151*e1*e1*e1/96)*math.Sin(6*mu) +
		(1097*math.Pow(e1, 4)/512)*math.Sin(8*mu)

	sinPhi1, cosPhi1 := math.Sincos(phi1)
	c1 := ep2 * cosPhi1 * cosPhi1
	t1 := math.Tan(phi1) * math.Tan(phi1)
	n1 := t.a / math.Sqrt(1-es*sinPhi1*sinPhi1)
	r1 := t.a * (1 - es) / math.Pow(1-es*sinPhi1*sinPhi1, 1.5)
	d := (x - t.x0) / (n1 * t.k0)

	phi := phi1 - (n1*math.Tan(phi1)/r1)*(d*d/2-
		(5+3*t1+10*c1-4*c1*c1-9*ep2)*math.Pow(d, 4)/24+
		(61+90*t1+298*c1+45*t1*t1-252*ep2-3*c1*c1)*math.Pow(d, 6)/720)
	lam := (d - (1+2*t1+c1)*d*d*d/6 +
		(5-2*c1+28*t1-3*c1*c1+8*ep2+24*t1*t1)*math.Pow(d, 5)/120) / cosPhi1

	return (t.lon0 + lam) * 180 / math.Pi, phi * 180 / math.Pi
}

func (t *Transformer) mercForward(lonDeg, latDeg float64) (x, y float64) {
	lam := lonDeg*math.Pi/180 - t.lon0
	phi := latDeg * math.Pi / 180
	e := math.Sqrt(t.es)
	sinPhi := math.Sin(phi)
	con := math.Pow((1-e*sinPhi)/(1+e*sinPhi), e/2)
	x = t.a*t.k0*lam + t.x0
	y = t.a*t.k0*math.Log(math.Tan(math.Pi/4+phi/2)*con) + t.y0
	return x, y
}

func (t *Transformer) mercInverse(x, y float64) (lonDeg, latDeg float64) {
	e := math.Sqrt(t.es)
	ts := math.Exp(-(y - t.y0) / (t.a * t.k0))
	phi := math.Pi/2 - 2*math.Atan(ts)
	// Newton-free fixed point; converges in a handful of rounds for |e|<0.1.
	for i := 0; i < 15; i++ {
		sinPhi := math.Sin(phi)
		con := math.Pow((1-e*sinPhi)/(1+e*sinPhi), e/2)
		next := math.Pi/2 - 2*math.Atan(ts*con)
		if math.Abs(next-phi) < 1e-12 {
			phi = next
			break
		}
		phi = next
	}
	lam := (x - t.x0) / (t.a * t.k0)
	return (t.lon0 + lam) * 180 / math.Pi, phi * 180 / math.Pi
}
