// Package units holds the physical value types shared by all weather
// providers: temperatures, relative humidity ratios, coordinates and
// distances. Providers convert into these types at their boundary so the
// rest of the program never sees provider-native units.
package units

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

const absoluteZeroCelsius = -273.15

// Celsius is a temperature in degrees Celsius, the exporter's canonical
// temperature unit.
type Celsius float64

// Kelvin is a temperature in kelvins.
type Kelvin float64

// Fahrenheit is a temperature in degrees Fahrenheit.
type Fahrenheit float64

func (k Kelvin) ToCelsius() Celsius {
	return Celsius(float64(k) + absoluteZeroCelsius)
}

func (f Fahrenheit) ToCelsius() Celsius {
	return Celsius((float64(f) - 32.0) * 5.0 / 9.0)
}

// Ratio is a dimensionless fraction normalized to the interval [0, 1].
// Relative humidity is carried as a Ratio; upstream APIs report it in
// percent.
type Ratio float64

// RatioFromPercentage converts a percentage value (e.g. 55 for 55%) to a Ratio.
func RatioFromPercentage(v float64) Ratio {
	return Ratio(v / 100.0)
}

// RatioFromFraction wraps an already-normalized fraction.
func RatioFromFraction(v float64) Ratio {
	return Ratio(v)
}

// UnmarshalJSON reads a humidity value from an API response. Every JSON
// number is a percentage, including values at or below 1: a reported 1 is
// one percent, not full saturation.
func (r *Ratio) UnmarshalJSON(data []byte) error {
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("ratio: %w", err)
	}
	*r = RatioFromPercentage(v)
	return nil
}

// Coordinate is a geographic degree value (latitude or longitude).
type Coordinate float64

// coordEpsilon bounds coordinate equality at the 7th fractional digit,
// matching the rendered precision.
const coordEpsilon = 1e-7

// String renders the coordinate with exactly seven fractional digits, the
// precision used for metric labels.
func (c Coordinate) String() string {
	return strconv.FormatFloat(float64(c), 'f', 7, 64)
}

// Equal reports whether two coordinates agree within the rendered precision.
func (c Coordinate) Equal(other Coordinate) bool {
	return math.Abs(float64(c)-float64(other)) < coordEpsilon
}

// Coordinates is a latitude/longitude pair in degrees.
type Coordinates struct {
	Latitude  Coordinate
	Longitude Coordinate
}

// Meters is a distance in meters.
type Meters float64

// meanEarthRadius in meters (IUGG mean radius).
const meanEarthRadius = 6371008.8

// Haversine returns the great-circle distance between two points.
func Haversine(a, b Coordinates) Meters {
	lat1 := degToRad(float64(a.Latitude))
	lat2 := degToRad(float64(b.Latitude))
	dLat := degToRad(float64(b.Latitude) - float64(a.Latitude))
	dLon := degToRad(float64(b.Longitude) - float64(a.Longitude))

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return Meters(2 * meanEarthRadius * math.Asin(math.Sqrt(h)))
}

func degToRad(deg float64) float64 {
	return deg * math.Pi / 180.0
}
