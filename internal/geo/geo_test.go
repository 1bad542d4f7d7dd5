package geo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shiva/dispatch/internal/model"
)

func TestNewMatrix_SameStopIsZero(t *testing.T) {
	stops := []model.Stop{
		{ID: 1, Lat: 28.7041, Lon: 77.1025},
		{ID: 2, Lat: 28.5562, Lon: 77.0889},
	}
	m := NewMatrix(stops, 30.0)
	if got := m.Minutes(1, 1); got != 0 {
		t.Errorf("Minutes(1,1) = %d, want 0", got)
	}
}

func TestNewMatrix_ZeroDistancePromotedToOneMinute(t *testing.T) {
	stops := []model.Stop{
		{ID: 1, Lat: 28.70410, Lon: 77.10250},
		{ID: 2, Lat: 28.70411, Lon: 77.10251}, // a few centimeters away
	}
	m := NewMatrix(stops, 30.0)
	if got := m.Minutes(1, 2); got < 1 {
		t.Errorf("Minutes(1,2) = %d, want >= 1 (zero distance must be promoted)", got)
	}
}

func TestNewMatrix_Symmetric(t *testing.T) {
	stops := []model.Stop{
		{ID: 1, Lat: 28.7041, Lon: 77.1025},
		{ID: 2, Lat: 28.5562, Lon: 77.0889},
	}
	m := NewMatrix(stops, 30.0)
	if m.Minutes(1, 2) != m.Minutes(2, 1) {
		t.Errorf("matrix is not symmetric: %d vs %d", m.Minutes(1, 2), m.Minutes(2, 1))
	}
}

func TestNewMatrix_KnownDistance(t *testing.T) {
	// Connaught Place to IGI Airport (~16.5 km) at 30 km/h ~= 33 minutes.
	stops := []model.Stop{
		{ID: 1, Lat: 28.6315, Lon: 77.2167},
		{ID: 2, Lat: 28.5562, Lon: 77.0889},
	}
	m := NewMatrix(stops, 30.0)
	got := m.Minutes(1, 2)
	if got < 20 || got > 45 {
		t.Errorf("Minutes(CP, IGI) = %d, want between 20 and 45", got)
	}
}

func TestLoadFromCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "matrix.csv")
	content := "3\n0,5,9\n5,0,7\n9,7,0\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	m, err := LoadFromCSV(path, 3)
	if err != nil {
		t.Fatalf("LoadFromCSV: %v", err)
	}
	if m.Size() != 3 {
		t.Errorf("Size() = %d, want 3", m.Size())
	}
	// rows/cols are offset by one: file row 0 -> stop id 1.
	if got := m.Minutes(1, 2); got != 5 {
		t.Errorf("Minutes(1,2) = %d, want 5", got)
	}
	if got := m.Minutes(2, 3); got != 7 {
		t.Errorf("Minutes(2,3) = %d, want 7", got)
	}
}

func TestLoadFromCSV_DimensionExceedsStopCount(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "matrix.csv")
	content := "2\n0,1\n1,0\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := LoadFromCSV(path, 1); err == nil {
		t.Fatal("expected error when matrix dimension exceeds stop count")
	}
}

func TestLoadFromCSV_MalformedRow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "matrix.csv")
	content := "2\n0,1\n1\n" // second row missing a column
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := LoadFromCSV(path, 2); err == nil {
		t.Fatal("expected error on malformed row")
	}
}

func TestBearingDiff(t *testing.T) {
	cases := []struct {
		a, b int16
		want float64
	}{
		{0, 0, 0},
		{10, 350, 20},
		{350, 10, 20},
		{0, 180, 180},
		{90, 270, 180},
		{45, 90, 45},
	}
	for _, c := range cases {
		got := BearingDiff(c.a, c.b)
		if got != c.want {
			t.Errorf("BearingDiff(%d, %d) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}
