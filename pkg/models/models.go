package models

import "time"

// Domain models shared by the store, the HTTP layer and the CLI. JSON names
// match the persisted record format in the key-value store.

type Candidate struct {
	ID                  string     `json:"id"`
	FullName            string     `json:"fullName"`
	Email               string     `json:"email"`
	PhoneNumber         string     `json:"phoneNumber"`
	Age                 int        `json:"age"`
	City                string     `json:"city"`
	Hobbies             string     `json:"hobbies"`
	WhyPerfectCandidate string     `json:"whyPerfectCandidate"`
	ProfileImage        string     `json:"profileImage,omitempty"`
	SubmissionDate      time.Time  `json:"submissionDate"`
	LastEditDate        *time.Time `json:"lastEditDate,omitempty"`
	CanEdit             bool       `json:"canEdit"`
}

type VisitStats struct {
	TotalVisits   int `json:"totalVisits"`
	Registrations int `json:"registrations"`
}

type AgeCount struct {
	Age   int `json:"age"`
	Count int `json:"count"`
}

type DashboardStats struct {
	TotalCandidates       int        `json:"totalCandidates"`
	TotalVisits           int        `json:"totalVisits"`
	RegistrationRate      float64    `json:"registrationRate"`
	AgeBreakdown          []AgeCount `json:"ageBreakdown"`
	EditedWithinWindow    float64    `json:"editedWithinWindow"`
	NotEditedWithinWindow float64    `json:"notEditedWithinWindow"`
}

type City struct {
	Name string  `json:"name"`
	Long float64 `json:"long"`
	Latt float64 `json:"latt"`
}

// Session is the persisted login state of the dashboard gate.
type Session struct {
	LoggedIn    bool    `json:"loggedIn"`
	CurrentUser *string `json:"currentUser,omitempty"`
}
