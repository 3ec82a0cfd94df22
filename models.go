package main

import (
	"encoding/json"
	"time"
)

// Preference profile shapes. Exactly one of the two is present per user,
// discriminated by Type.
const (
	PreferencesStructured     = "structured"
	PreferencesConversational = "conversational"
)

// PreferenceProfile is a user's lifestyle preference capture, either as the
// fixed structured questionnaire or as a free-text onboarding conversation
// reduced to semantic tags.
type PreferenceProfile struct {
	Type string `json:"type"`

	// Structured shape
	CleanlinessLevel string `json:"cleanlinessLevel,omitempty"`
	SocialStyle      string `json:"socialStyle,omitempty"`
	SleepSchedule    string `json:"sleepSchedule,omitempty"`
	PetPreference    string `json:"petPreference,omitempty"`
	NoiseLevel       string `json:"noiseLevel,omitempty"`
	Guests           string `json:"guests,omitempty"`

	// Conversational shape
	Summary      string   `json:"summary,omitempty"`
	SemanticTags []string `json:"semanticTags,omitempty"`
}

// Tags flattens either shape into the plain string set the compatibility
// scorer works with. Structured attributes become "name: value" pairs,
// skipping anything left unanswered.
func (p *PreferenceProfile) Tags() []string {
	if p == nil {
		return nil
	}
	if p.Type == PreferencesConversational {
		return p.SemanticTags
	}

	attrs := []struct{ name, value string }{
		{"cleanlinessLevel", p.CleanlinessLevel},
		{"socialStyle", p.SocialStyle},
		{"sleepSchedule", p.SleepSchedule},
		{"petPreference", p.PetPreference},
		{"noiseLevel", p.NoiseLevel},
		{"guests", p.Guests},
	}
	tags := make([]string, 0, len(attrs))
	for _, a := range attrs {
		if a.value != "" {
			tags = append(tags, a.name+": "+a.value)
		}
	}
	return tags
}

// UserProfile is the persisted profile row.
type UserProfile struct {
	UserID             int
	DisplayName        string
	Age                int
	ProfilePictureFile string
	Preferences        *PreferenceProfile
	PreferredLocation  *GeoPoint
	SearchRadiusKm     float64
	IsComplete         bool
}

// RoomSize holds room dimensions in feet / square feet.
type RoomSize struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Area   float64 `json:"area"`
}

// Listing is a room listing owned by a lister. Location is optional; a
// listing without coordinates still shows up but cannot be distance-scored.
type Listing struct {
	ID           int       `json:"id"`
	OwnerID      int       `json:"owner_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Rent         float64   `json:"rent"`
	RoomType     string    `json:"room_type"`
	Amenities    []string  `json:"amenities"`
	Location     *GeoPoint `json:"location,omitempty"`
	LocationName string    `json:"location_name,omitempty"`
	RoomSize     *RoomSize `json:"room_size,omitempty"`
	NoiseLevel   int       `json:"noise_level"`
	LightLevel   int       `json:"light_level"`
	CreatedAt    time.Time `json:"created_at"`
}

// MatchResult is the per-listing outcome of a scoring pass. It is derived,
// never persisted, and recomputed wholesale whenever the viewer's profile,
// location or the candidate set changes.
type MatchResult struct {
	Compatibility int     `json:"compatibility"`
	DistanceKm    float64 `json:"distance"`
	CombinedScore int     `json:"combinedScore"`
	WithinRadius  bool    `json:"withinRadius"`
}

func marshalOrNull(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
