// Package exposition renders weather records as Prometheus exposition text
// and negotiates between the classic text format and OpenMetrics based on
// the scraper's Accept header.
package exposition

// Format is the exposition wire format.
type Format int

const (
	// FormatPrometheus is the classic text format, version 0.0.4. It is
	// the default when the Accept header expresses no usable preference.
	FormatPrometheus Format = iota
	// FormatOpenMetrics is OpenMetrics 1.0.0.
	FormatOpenMetrics
)

func (f Format) String() string {
	if f == FormatOpenMetrics {
		return "openmetrics"
	}
	return "prometheus"
}

// ContentType returns the Content-Type header value for the format.
func (f Format) ContentType() string {
	if f == FormatOpenMetrics {
		return "application/openmetrics-text; charset=utf-8; version=1.0.0"
	}
	return "text/plain; charset=utf-8; version=0.0.4"
}
