// Package geo is the read-only city reference used for registration
// autocomplete, city validation and dashboard map markers.
package geo

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	dbfs "github.com/garnizeh/iisa/db"
	"github.com/garnizeh/iisa/pkg/models"
)

type cityRow struct {
	EnglishName string  `json:"english_name"`
	Long        float64 `json:"long"`
	Latt        float64 `json:"latt"`
}

// Lookup holds the city list. It is immutable after Load.
type Lookup struct {
	cities []models.City
	byName map[string]int
}

// Load parses a JSON array of {english_name, long, latt} rows. Names are
// trimmed; rows with an empty name are skipped and duplicates keep the first.
func Load(r io.Reader) (*Lookup, error) {
	var rows []cityRow
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode cities: %w", err)
	}
	l := &Lookup{
		cities: make([]models.City, 0, len(rows)),
		byName: make(map[string]int, len(rows)),
	}
	for _, row := range rows {
		name := strings.TrimSpace(row.EnglishName)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, dup := l.byName[key]; dup {
			continue
		}
		l.byName[key] = len(l.cities)
		l.cities = append(l.cities, models.City{Name: name, Long: row.Long, Latt: row.Latt})
	}
	return l, nil
}

// LoadDefault loads the bundled city list.
func LoadDefault() (*Lookup, error) {
	f, err := dbfs.SeedFiles.Open("seed/cities.json")
	if err != nil {
		return nil, fmt.Errorf("open bundled cities: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// All returns a copy of the full list in file order.
func (l *Lookup) All() []models.City {
	out := make([]models.City, len(l.cities))
	copy(out, l.cities)
	return out
}

// Filter returns the cities whose name contains substr, ignoring case.
// An empty or blank substr matches everything.
func (l *Lookup) Filter(substr string) []models.City {
	q := strings.ToLower(strings.TrimSpace(substr))
	if q == "" {
		return l.All()
	}
	out := []models.City{}
	for _, c := range l.cities {
		if strings.Contains(strings.ToLower(c.Name), q) {
			out = append(out, c)
		}
	}
	return out
}

// Contains reports whether name is a known city, ignoring case.
func (l *Lookup) Contains(name string) bool {
	_, ok := l.byName[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

func (l *Lookup) Find(name string) (models.City, bool) {
	i, ok := l.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return models.City{}, false
	}
	return l.cities[i], true
}

// Markers resolves city names to map points, skipping unknown names and
// repeats.
func (l *Lookup) Markers(names []string) []models.City {
	seen := make(map[int]bool, len(names))
	out := []models.City{}
	for _, n := range names {
		i, ok := l.byName[strings.ToLower(strings.TrimSpace(n))]
		if !ok || seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, l.cities[i])
	}
	return out
}
