package candidates

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/garnizeh/iisa/pkg/models"
)

// DashboardStats derives the dashboard aggregates from current state.
func (s *Store) DashboardStats() models.DashboardStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return computeStats(s.candidates, s.visits, s.window)
}

func computeStats(list []models.Candidate, visits models.VisitStats, window time.Duration) models.DashboardStats {
	st := models.DashboardStats{
		TotalCandidates: len(list),
		TotalVisits:     visits.TotalVisits,
		AgeBreakdown:    []models.AgeCount{},
	}
	if visits.TotalVisits > 0 {
		st.RegistrationRate = float64(visits.Registrations) / float64(visits.TotalVisits) * 100
	}

	byAge := make(map[int]int)
	edited := 0
	for _, c := range list {
		byAge[c.Age]++
		if c.LastEditDate != nil {
			d := c.LastEditDate.Sub(c.SubmissionDate)
			if d >= 0 && d <= window {
				edited++
			}
		}
	}
	for age, n := range byAge {
		st.AgeBreakdown = append(st.AgeBreakdown, models.AgeCount{Age: age, Count: n})
	}
	sort.Slice(st.AgeBreakdown, func(i, j int) bool { return st.AgeBreakdown[i].Age < st.AgeBreakdown[j].Age })

	total := len(list)
	if total == 0 {
		total = 1
	}
	notEdited := len(list) - edited
	st.EditedWithinWindow = round1(float64(edited) / float64(total) * 100)
	st.NotEditedWithinWindow = round1(float64(notEdited) / float64(total) * 100)
	return st
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Filter narrows the dashboard list. Zero values disable a criterion.
type Filter struct {
	// Term matches name or email, case-insensitively.
	Term   string
	City   string
	MinAge int
	MaxAge int
}

// Search returns the candidates matching f in insertion order.
func (s *Store) Search(f Filter) []models.Candidate {
	term := strings.ToLower(strings.TrimSpace(f.Term))
	city := strings.TrimSpace(f.City)

	out := []models.Candidate{}
	for _, c := range s.Candidates() {
		if term != "" &&
			!strings.Contains(strings.ToLower(c.FullName), term) &&
			!strings.Contains(strings.ToLower(c.Email), term) {
			continue
		}
		if city != "" && !strings.EqualFold(c.City, city) {
			continue
		}
		if f.MinAge > 0 && c.Age < f.MinAge {
			continue
		}
		if f.MaxAge > 0 && c.Age > f.MaxAge {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Cities lists the distinct candidate cities, sorted.
func (s *Store) Cities() []string {
	s.mu.RLock()
	seen := make(map[string]bool)
	out := []string{}
	for _, c := range s.candidates {
		if c.City == "" || seen[c.City] {
			continue
		}
		seen[c.City] = true
		out = append(out, c.City)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}
