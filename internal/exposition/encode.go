package exposition

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/weathermen/prometheus-weathermen/internal/provider"
)

const metricPrefix = "weather"

type family struct {
	name string
	help string
	unit string
	// value returns the sample value for a record, or false when the
	// record does not carry this measurement.
	value func(w *provider.Weather) (float64, bool)
	// always emits the family headers even without samples.
	always bool
}

var families = []family{
	{
		name: metricPrefix + "_temperature_celsius",
		help: "Temperature in degrees celsius",
		unit: "celsius",
		value: func(w *provider.Weather) (float64, bool) {
			return float64(w.Temperature), true
		},
		always: true,
	},
	{
		name: metricPrefix + "_relative_humidity_ratio",
		help: "Relative humidity as a ratio",
		unit: "ratio",
		value: func(w *provider.Weather) (float64, bool) {
			if w.RelativeHumidity == nil {
				return 0, false
			}
			return float64(*w.RelativeHumidity), true
		},
	},
	{
		name: metricPrefix + "_station_distance_meters",
		help: "Distance between the requested coordinates and the weather station in meters",
		unit: "meters",
		value: func(w *provider.Weather) (float64, bool) {
			if w.Distance == nil {
				return 0, false
			}
			return float64(*w.Distance), true
		},
	},
}

// Encode writes the records as exposition text. Families keep a fixed order;
// within a family, samples appear in record order. The temperature family's
// headers are written even when there are no records, the optional families
// only when at least one record carries the measurement. OpenMetrics output
// is the same document plus the # EOF trailer.
func Encode(w io.Writer, records []provider.Weather, version string, format Format) error {
	var b strings.Builder

	for _, fam := range families {
		type sample struct {
			labels string
			value  float64
		}
		var samples []sample
		for i := range records {
			v, ok := fam.value(&records[i])
			if !ok {
				continue
			}
			samples = append(samples, sample{labels: labelSet(&records[i], version), value: v})
		}
		if len(samples) == 0 && !fam.always {
			continue
		}

		fmt.Fprintf(&b, "# HELP %s %s\n", fam.name, fam.help)
		fmt.Fprintf(&b, "# TYPE %s gauge\n", fam.name)
		fmt.Fprintf(&b, "# UNIT %s %s\n", fam.name, fam.unit)
		for _, s := range samples {
			fmt.Fprintf(&b, "%s{%s} %s\n", fam.name, s.labels, formatValue(s.value))
		}
	}

	if format == FormatOpenMetrics {
		b.WriteString("# EOF\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// labelSet renders the fixed label order: version, source, location, city,
// latitude, longitude.
func labelSet(w *provider.Weather, version string) string {
	pairs := []struct {
		name  string
		value string
	}{
		{"version", version},
		{"source", w.Source},
		{"location", w.Location},
		{"city", w.City},
		{"latitude", w.Coordinates.Latitude.String()},
		{"longitude", w.Coordinates.Longitude.String()},
	}

	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, p.name+`="`+escapeLabelValue(p.value)+`"`)
	}
	return strings.Join(parts, ",")
}

func escapeLabelValue(v string) string {
	var b strings.Builder
	for _, r := range v {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
