package flyto

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/tiiuae/drclink/internal/config"
)

// LoadPoints parses "<index> <lat> <lon>" lines. Blank lines and lines starting
// with '[' are skipped. Every point gets the given relative height.
func LoadPoints(r io.Reader, height float64) ([]Waypoint, error) {
	var points []Waypoint

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "[") {
			continue
		}

		fields := strings.Fields(text)
		if len(fields) < 3 {
			return nil, errors.Errorf("line %d: expected index, latitude and longitude", line)
		}
		lat, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, errors.WithMessagef(err, "line %d: latitude", line)
		}
		lon, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, errors.WithMessagef(err, "line %d: longitude", line)
		}
		points = append(points, Waypoint{Lat: lat, Lon: lon, Height: height})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

// LoadRoute returns the points of a configured route, reading its file if it has one.
func LoadRoute(route config.RouteConfig) ([]Waypoint, error) {
	if route.File == "" {
		points := make([]Waypoint, 0, len(route.Points))
		for _, p := range route.Points {
			h := p.Height
			if h == 0 {
				h = route.Height
			}
			points = append(points, Waypoint{Lat: p.Lat, Lon: p.Lon, Height: h})
		}
		return points, nil
	}

	f, err := os.Open(route.File)
	if err != nil {
		return nil, errors.WithMessagef(err, "Could not open route %s", route.Name)
	}
	defer f.Close()

	points, err := LoadPoints(f, route.Height)
	return points, errors.WithMessagef(err, "Could not parse route %s", route.Name)
}
