// Package geo is the dispatch engine's distance oracle: it builds and
// serves the whole-network stop-to-stop travel time matrix and the
// bearing-difference check used to reject sharp detours.
//
// All distances are measured in whole minutes. In production the matrix
// comes from a routing engine's precomputed table (see LoadFromCSV); for
// demos and tests NewMatrix derives it from Haversine great-circle
// distance at a configured average speed.
package geo

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/shiva/dispatch/internal/model"
)

const (
	// earthRadiusKm is the mean radius of Earth in kilometers.
	earthRadiusKm = 6371.0
)

// Matrix is a dense, stop-id-indexed travel time lookup. Built once at
// startup and read concurrently by every dispatch stage thereafter —
// never mutated after construction, so no locking is needed.
type Matrix struct {
	minutes map[int64]map[int64]int16
	size    int
}

// NewMatrix computes the travel time matrix for the given stops using
// great-circle distance at a constant average speed. A zero distance
// between distinct stops is promoted to one minute, since any transfer
// takes at least that long.
func NewMatrix(stops []model.Stop, cabSpeedKmph float64) *Matrix {
	m := &Matrix{
		minutes: make(map[int64]map[int64]int16, len(stops)),
		size:    len(stops),
	}
	for _, s := range stops {
		m.minutes[s.ID] = make(map[int64]int16, len(stops))
		m.minutes[s.ID][s.ID] = 0
	}
	for i := 0; i < len(stops); i++ {
		for j := i + 1; j < len(stops); j++ {
			d := haversineKm(stops[i].Lat, stops[i].Lon, stops[j].Lat, stops[j].Lon) * (60.0 / cabSpeedKmph)
			mins := int16(d)
			if mins == 0 {
				mins = 1
			}
			m.minutes[stops[i].ID][stops[j].ID] = mins
			m.minutes[stops[j].ID][stops[i].ID] = mins
		}
	}
	return m
}

// LoadFromCSV reads a precomputed travel time matrix: the first line is
// the integer stop count N, followed by N comma-separated rows of N
// int16 values each. Stop ids in the file are 0-based; they are offset
// by one to match the 1-based stop ids used throughout the schema.
// Returns an error rather than panicking — callers decide whether a
// load failure is fatal at startup.
func LoadFromCSV(path string, stopCount int) (*Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geo: open matrix file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	if !sc.Scan() {
		return nil, fmt.Errorf("geo: matrix file is empty")
	}
	size, err := strconv.Atoi(strings.TrimSpace(sc.Text()))
	if err != nil {
		return nil, fmt.Errorf("geo: matrix dimension: %w", err)
	}
	if size <= 0 {
		return nil, fmt.Errorf("geo: matrix dimension %d is not positive", size)
	}
	if size > stopCount {
		return nil, fmt.Errorf("geo: matrix dimension %d exceeds stop count %d", size, stopCount)
	}

	m := &Matrix{minutes: make(map[int64]map[int64]int16, size), size: size}
	for row := 0; row < size; row++ {
		if !sc.Scan() {
			return nil, fmt.Errorf("geo: matrix has fewer rows than declared: got %d, want %d", row, size)
		}
		fields := strings.Split(sc.Text(), ",")
		if len(fields) != size {
			return nil, fmt.Errorf("geo: row %d has %d columns, want %d", row, len(fields), size)
		}
		from := int64(row + 1)
		if m.minutes[from] == nil {
			m.minutes[from] = make(map[int64]int16, size)
		}
		for col, field := range fields {
			v, err := strconv.ParseInt(strings.TrimSpace(field), 10, 16)
			if err != nil {
				return nil, fmt.Errorf("geo: row %d col %d: %w", row, col, err)
			}
			m.minutes[from][int64(col+1)] = int16(v)
		}
	}
	if sc.Scan() {
		return nil, fmt.Errorf("geo: matrix file has more rows than declared dimension %d", size)
	}
	return m, nil
}

// Minutes returns the travel time in minutes between two stops. Unknown
// pairs return 0, which callers should treat as "no route known" rather
// than "adjacent" — the engine never queries stop ids outside the
// matrix it was built from.
func (m *Matrix) Minutes(from, to int64) int {
	row, ok := m.minutes[from]
	if !ok {
		return 0
	}
	return int(row[to])
}

// Size returns the number of stops the matrix was built for.
func (m *Matrix) Size() int {
	return m.size
}

// haversineKm returns the great-circle distance between two WGS-84
// points in kilometers.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := degToRad(lat2 - lat1)
	dLon := degToRad(lon2 - lon1)
	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(degToRad(lat1))*math.Cos(degToRad(lat2))*sinLon*sinLon
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

func degToRad(deg float64) float64 {
	return deg * (math.Pi / 180.0)
}

// BearingDiff returns the absolute angular difference between two
// compass bearings, normalized into [0, 180]. Used to reject detours
// that would send a cab sharply off its current heading.
func BearingDiff(a, b int16) float64 {
	r := math.Mod(float64(a)-float64(b), 360.0)
	if r < -180.0 {
		r += 360.0
	} else if r >= 180.0 {
		r -= 360.0
	}
	return math.Abs(r)
}
