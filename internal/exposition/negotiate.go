package exposition

import (
	"mime"
	"sort"
	"strconv"
	"strings"
)

// mediaRange is one entry of an Accept header. Q is nil when the entry
// carries no q parameter, which ranks above any explicit value.
type mediaRange struct {
	Type       string
	Sub        string
	Q          *float64
	ParamCount int // params other than q
}

// specificity ranks concrete types over partial wildcards over */*.
func (m *mediaRange) specificity() int {
	switch {
	case m.Type == "*":
		return 0
	case m.Sub == "*":
		return 1
	default:
		return 2
	}
}

var offers = []struct {
	typ    string
	sub    string
	format Format
}{
	{"application", "openmetrics-text", FormatOpenMetrics},
	{"text", "plain", FormatPrometheus},
}

// Negotiate picks the exposition format for an Accept header value. Entries
// are ranked by q absence, then q value, then specificity, then parameter
// count; the first entry matching a known media type wins. A wildcard
// subtype matches within its literal top-level type only, so */* matches
// nothing and falls through to the Prometheus default.
func Negotiate(accept string) Format {
	ranges := parseAccept(accept)
	sort.SliceStable(ranges, func(i, j int) bool {
		return higherPriority(&ranges[i], &ranges[j])
	})

	for i := range ranges {
		for _, offer := range offers {
			if matches(offer.typ, offer.sub, &ranges[i]) {
				return offer.format
			}
		}
	}
	return FormatPrometheus
}

func matches(offerType, offerSub string, r *mediaRange) bool {
	return r.Type == offerType && (r.Sub == offerSub || r.Sub == "*")
}

func higherPriority(a, b *mediaRange) bool {
	if (a.Q == nil) != (b.Q == nil) {
		return a.Q == nil
	}
	if a.Q != nil && *a.Q != *b.Q {
		return *a.Q > *b.Q
	}
	if a.specificity() != b.specificity() {
		return a.specificity() > b.specificity()
	}
	return a.ParamCount > b.ParamCount
}

func parseAccept(accept string) []mediaRange {
	var out []mediaRange
	for _, part := range strings.Split(accept, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		mediaType, params, err := mime.ParseMediaType(part)
		if err != nil {
			continue
		}
		typ, sub, ok := strings.Cut(mediaType, "/")
		if !ok {
			continue
		}

		r := mediaRange{Type: typ, Sub: sub, ParamCount: len(params)}
		if raw, ok := params["q"]; ok {
			r.ParamCount--
			q, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				continue
			}
			r.Q = &q
		}
		out = append(out, r)
	}
	return out
}
