package provider

import (
	"context"
	"errors"
	"time"
)

const nogoodnikSource = "local.nogoodnik"

// Nogoodnik fails every fetch. It exists to exercise the error path end to
// end: a configured provider that always errors must never take the scrape
// down with it.
type Nogoodnik struct {
	interval time.Duration
}

func NewNogoodnik(s Settings, _ Deps) *Nogoodnik {
	return &Nogoodnik{interval: s.RefreshInterval}
}

func (p *Nogoodnik) ID() string                     { return nogoodnikSource }
func (p *Nogoodnik) RefreshInterval() time.Duration { return p.interval }
func (p *Nogoodnik) CacheCardinality() int          { return 1 }

func (p *Nogoodnik) Fetch(ctx context.Context, req Request) (Weather, error) {
	return Weather{}, errors.New("this provider is no good and always fails")
}
