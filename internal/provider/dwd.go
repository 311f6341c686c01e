package provider

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"github.com/weathermen/prometheus-weathermen/internal/cache"
	"github.com/weathermen/prometheus-weathermen/internal/client"
	"github.com/weathermen/prometheus-weathermen/internal/units"
)

const (
	dwdSource  = "de.dwd"
	dwdBaseURL = "https://opendata.dwd.de/climate_environment/CDC/observations_germany/climate/10_minutes/air_temperature/now"

	// Format of the MESS_DATUM column, minute precision, UTC.
	dwdTimeLayout = "200601021504"
)

// DeutscherWetterdienst reads open data from the German weather service. Each
// fetch is two requests: the station catalog, then the ZIP of 10-minute
// measurements for the station closest to the requested coordinates. Both
// are cached, hence the cache cardinality of 2. No API key is needed.
type DeutscherWetterdienst struct {
	interval time.Duration
	baseURL  string
	client   *client.Client
	cache    *cache.HTTPCache
	logger   *zap.Logger
}

func NewDeutscherWetterdienst(s Settings, d Deps) *DeutscherWetterdienst {
	return &DeutscherWetterdienst{
		interval: s.RefreshInterval,
		baseURL:  dwdBaseURL,
		client:   d.Client,
		cache:    cache.NewHTTPCache(d.Store, s.RefreshInterval),
		logger:   d.Logger.With(zap.String("provider", dwdSource)),
	}
}

func (p *DeutscherWetterdienst) ID() string                     { return dwdSource }
func (p *DeutscherWetterdienst) RefreshInterval() time.Duration { return p.interval }
func (p *DeutscherWetterdienst) CacheCardinality() int          { return 2 }

type weatherStation struct {
	ID        string
	Name      string
	Latitude  units.Coordinate
	Longitude units.Coordinate
}

func (p *DeutscherWetterdienst) Fetch(ctx context.Context, req Request) (Weather, error) {
	catalog, err := p.client.FetchBody(ctx, p.cache, p.baseURL+"/zehn_now_tu_Beschreibung_Stationen.txt")
	if err != nil {
		return Weather{}, err
	}
	stations, err := parseStationCatalog(catalog)
	if err != nil {
		return Weather{}, err
	}

	station, err := closestStation(req.Coordinates, stations)
	if err != nil {
		return Weather{}, err
	}
	p.logger.Debug("selected closest station",
		zap.String("station_id", station.ID),
		zap.String("station_name", station.Name),
	)

	archive, err := p.client.FetchBody(ctx, p.cache,
		fmt.Sprintf("%s/10minutenwerte_TU_%s_now.zip", p.baseURL, station.ID))
	if err != nil {
		return Weather{}, err
	}
	csv, err := readMeasurementZip(archive)
	if err != nil {
		return Weather{}, err
	}
	measurement, err := latestMeasurement(csv)
	if err != nil {
		return Weather{}, err
	}
	p.logger.Debug("using latest measurement",
		zap.String("station_id", station.ID),
		zap.Time("measured_at", measurement.Time),
	)

	stationCoords := units.Coordinates{Latitude: station.Latitude, Longitude: station.Longitude}
	return Weather{
		Source:           dwdSource,
		Location:         req.Name,
		City:             station.Name,
		Coordinates:      stationCoords,
		Temperature:      measurement.Temperature,
		RelativeHumidity: ratioPtr(measurement.RelativeHumidity),
		Distance:         metersPtr(units.Haversine(req.Coordinates, stationCoords)),
	}, nil
}

// parseStationCatalog reads the fixed-width station list. The file is
// ISO-8859-15 encoded; station names may contain spaces, so columns are
// recovered from the header: six numeric columns lead, the trailing columns
// after Stationsname (Bundesland, sometimes Abgabe) are dropped, and
// whatever sits in between is the name.
func parseStationCatalog(raw []byte) ([]weatherStation, error) {
	decoded, err := io.ReadAll(charmap.ISO8859_15.NewDecoder().Reader(bytes.NewReader(raw)))
	if err != nil {
		return nil, fmt.Errorf("decode station catalog: %w", err)
	}

	lines := strings.Split(string(decoded), "\n")
	if len(lines) == 0 {
		return nil, errors.New("empty station catalog")
	}

	header := strings.Fields(lines[0])
	nameIdx := -1
	for i, col := range header {
		if col == "Stationsname" {
			nameIdx = i
			break
		}
	}
	if nameIdx != 6 {
		return nil, fmt.Errorf("unexpected station catalog header: %q", lines[0])
	}
	trailing := len(header) - nameIdx - 1

	var stations []weatherStation
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "-") {
			continue
		}
		tokens := strings.Fields(line)
		if len(tokens) < nameIdx+1+trailing {
			return nil, fmt.Errorf("malformed station catalog row: %q", line)
		}

		lat, err := strconv.ParseFloat(tokens[4], 64)
		if err != nil {
			return nil, fmt.Errorf("station latitude in row %q: %w", line, err)
		}
		lon, err := strconv.ParseFloat(tokens[5], 64)
		if err != nil {
			return nil, fmt.Errorf("station longitude in row %q: %w", line, err)
		}

		stations = append(stations, weatherStation{
			ID:        tokens[0],
			Name:      strings.Join(tokens[nameIdx:len(tokens)-trailing], " "),
			Latitude:  units.Coordinate(lat),
			Longitude: units.Coordinate(lon),
		})
	}
	return stations, nil
}

// closestStation picks the station nearest to coords by planar distance on
// the degree grid. Ties keep the earlier catalog entry.
func closestStation(coords units.Coordinates, stations []weatherStation) (*weatherStation, error) {
	if len(stations) == 0 {
		return nil, errors.New("no stations in catalog")
	}

	best := 0
	bestDist := stationDistSq(coords, &stations[0])
	for i := 1; i < len(stations); i++ {
		if d := stationDistSq(coords, &stations[i]); d < bestDist {
			best = i
			bestDist = d
		}
	}
	return &stations[best], nil
}

func stationDistSq(coords units.Coordinates, s *weatherStation) float64 {
	dLat := float64(coords.Latitude - s.Latitude)
	dLon := float64(coords.Longitude - s.Longitude)
	return dLat*dLat + dLon*dLon
}

// readMeasurementZip extracts the measurement CSV from the downloaded
// archive. The first file named produkt_zehn_now*.txt wins.
func readMeasurementZip(raw []byte) ([]byte, error) {
	archive, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("open measurement archive: %w", err)
	}

	for _, f := range archive.File {
		if !isMeasurementFile(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		defer rc.Close()
		body, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		return body, nil
	}
	return nil, errors.New("no measurement file in archive")
}

func isMeasurementFile(name string) bool {
	return strings.HasPrefix(name, "produkt_zehn_now") &&
		strings.HasSuffix(strings.ToLower(name), ".txt")
}

type measurement struct {
	StationID        string
	Time             time.Time
	Temperature      units.Celsius
	RelativeHumidity units.Ratio
}

// latestMeasurement parses the semicolon-separated measurement CSV and
// returns the last row, which carries the most recent observation.
func latestMeasurement(raw []byte) (*measurement, error) {
	lines := strings.Split(strings.ReplaceAll(string(raw), "\r\n", "\n"), "\n")
	if len(lines) < 2 {
		return nil, errors.New("empty measurement data")
	}

	cols := map[string]int{}
	for i, col := range strings.Split(lines[0], ";") {
		cols[strings.TrimSpace(col)] = i
	}
	for _, want := range []string{"STATIONS_ID", "MESS_DATUM", "TT_10", "RF_10"} {
		if _, ok := cols[want]; !ok {
			return nil, fmt.Errorf("measurement data missing column %s", want)
		}
	}

	var last string
	for i := len(lines) - 1; i > 0; i-- {
		if row := strings.TrimSpace(lines[i]); row != "" && !strings.HasPrefix(row, "eor") {
			last = row
			break
		}
	}
	if last == "" {
		return nil, errors.New("no measurement rows")
	}

	fields := strings.Split(last, ";")
	get := func(col string) (string, error) {
		idx := cols[col]
		if idx >= len(fields) {
			return "", fmt.Errorf("measurement row missing column %s: %q", col, last)
		}
		return strings.TrimSpace(fields[idx]), nil
	}

	id, err := get("STATIONS_ID")
	if err != nil {
		return nil, err
	}
	rawTime, err := get("MESS_DATUM")
	if err != nil {
		return nil, err
	}
	measuredAt, err := time.ParseInLocation(dwdTimeLayout, rawTime, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("measurement timestamp %q: %w", rawTime, err)
	}
	rawTemp, err := get("TT_10")
	if err != nil {
		return nil, err
	}
	temp, err := strconv.ParseFloat(rawTemp, 64)
	if err != nil {
		return nil, fmt.Errorf("temperature %q: %w", rawTemp, err)
	}
	rawHumidity, err := get("RF_10")
	if err != nil {
		return nil, err
	}
	humidity, err := strconv.ParseFloat(rawHumidity, 64)
	if err != nil {
		return nil, fmt.Errorf("relative humidity %q: %w", rawHumidity, err)
	}

	return &measurement{
		StationID:        id,
		Time:             measuredAt,
		Temperature:      units.Celsius(temp),
		RelativeHumidity: units.RatioFromPercentage(humidity),
	}, nil
}
