// Package characters implements the Character data model and the S9
// extraction-merge rule (spec §3, §4.3-S9): combining an AI text pass
// and a visual understanding-service pass into one persisted roster
// per series id.
package characters

import "time"

// Role is a character's narrative function.
type Role string

const (
	RoleProtagonist Role = "protagonist"
	RoleAntagonist  Role = "antagonist"
	RoleSupporting  Role = "supporting"
	RoleMinor       Role = "minor"
)

// Source identifies which extraction pass contributed an appearance or
// a character record.
type Source string

const (
	SourceAI       Source = "ai"
	SourceVisual   Source = "visual"
	SourceDatabase Source = "database"
)

// Appearance is one interval a character is present in a source video.
type Appearance struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
	Source     Source  `json:"source"`
}

// Character is the persisted character record (spec §3 Character).
type Character struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Aliases          []string     `json:"aliases"`
	Description      string       `json:"description"`
	Role             Role         `json:"role"`
	VisualTraits     []string     `json:"visual_traits"`
	Confidence       float64      `json:"confidence"`
	FirstAppearance  float64      `json:"first_appearance"`
	Appearances      []Appearance `json:"appearances"`
	SourceVideoNo     int          `json:"source_video_no"`
}

// Set is a series' persisted character roster, keyed by series id with
// a bounded TTL (spec §3: "Persisted per series_id with a bounded
// TTL").
type Set struct {
	SeriesID   string       `json:"series_id"`
	Characters []Character  `json:"characters"`
	UpdatedAt  time.Time    `json:"updated_at"`
}
