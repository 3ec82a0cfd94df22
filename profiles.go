package main

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

func loadProfile(db *sql.DB, userID int) (*UserProfile, error) {
	row := db.QueryRow(`
		SELECT user_id, display_name, age, profile_picture_file,
		       preferences, preferred_lat, preferred_lng, search_radius_km, is_complete
		FROM profiles
		WHERE user_id = $1
	`, userID)
	profile, err := scanProfileRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return profile, err
}

// PUT/POST /me/profile - upsert the viewer's profile. Saving a preference
// profile of either shape marks the profile complete, which gates the
// matching feed.
func meProfileUpdateHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}

		type ProfileRequest struct {
			DisplayName       string             `json:"display_name"`
			Age               int                `json:"age"`
			Preferences       *PreferenceProfile `json:"preferences"`
			PreferredLocation json.RawMessage    `json:"preferred_location"`
			SearchRadiusKm    float64            `json:"search_radius_km"`
		}
		var req ProfileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if req.Preferences != nil &&
			req.Preferences.Type != PreferencesStructured &&
			req.Preferences.Type != PreferencesConversational {
			writeError(w, http.StatusBadRequest, "invalid_preference_type")
			return
		}

		userID := r.Context().Value(userIDKey).(int)

		// Normalize the location once at the boundary; anything invalid
		// is stored as "no location".
		var lat, lng interface{}
		if point := normalizeGeoPoint(req.PreferredLocation); point != nil {
			lat, lng = point.Lat, point.Lng
		}

		radius := req.SearchRadiusKm
		if radius <= 0 {
			radius = searchRadiusDefaultKm
		}

		var preferencesJSON interface{}
		isComplete := false
		if req.Preferences != nil {
			preferencesJSON = marshalOrNull(req.Preferences)
			isComplete = true
		}

		_, err := db.Exec(`
			INSERT INTO profiles (
				user_id, display_name, age, preferences,
				preferred_lat, preferred_lng, search_radius_km, is_complete
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (user_id) DO UPDATE SET
				display_name = EXCLUDED.display_name,
				age = EXCLUDED.age,
				preferences = COALESCE(EXCLUDED.preferences, profiles.preferences),
				preferred_lat = EXCLUDED.preferred_lat,
				preferred_lng = EXCLUDED.preferred_lng,
				search_radius_km = EXCLUDED.search_radius_km,
				is_complete = profiles.is_complete OR EXCLUDED.is_complete
		`, userID, req.DisplayName, req.Age, preferencesJSON, lat, lng, radius, isComplete)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "profile_save_error")
			logger.Error("saving profile", zap.Int("user_id", userID), zap.Error(err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// GET /me/profile
func meProfileHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			meProfileUpdateHandler(db).ServeHTTP(w, r)
			return
		}
		userID := r.Context().Value(userIDKey).(int)

		profile, err := loadProfile(db, userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		if profile == nil {
			writeError(w, http.StatusNotFound, "profile_not_found")
			return
		}

		resp := map[string]interface{}{
			"id":               profile.UserID,
			"display_name":     profile.DisplayName,
			"age":              profile.Age,
			"profile_picture":  profile.ProfilePictureFile,
			"search_radius_km": profile.SearchRadiusKm,
			"is_complete":      profile.IsComplete,
		}
		if profile.Preferences != nil {
			resp["preferences"] = profile.Preferences
		}
		if profile.PreferredLocation != nil {
			resp["preferred_location"] = profile.PreferredLocation
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

// GET /users/{id} - public card shown next to listings and in chat.
func userHandler(db *sql.DB, presence *PresenceStore) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 2 || parts[0] != "users" {
			http.NotFound(w, r)
			return
		}
		userID, err := strconv.Atoi(parts[1])
		if err != nil {
			http.NotFound(w, r)
			return
		}

		profile, err := loadProfile(db, userID)
		if err != nil || profile == nil {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}

		displayName := profile.DisplayName
		if displayName == "" {
			displayName = "User " + strconv.Itoa(userID)
		}
		picture := profile.ProfilePictureFile
		if picture == "" {
			picture = "avatar_placeholder.png"
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":              userID,
			"display_name":    displayName,
			"age":             profile.Age,
			"profile_picture": picture,
			"is_online":       presence.IsOnline(r.Context(), userID),
		})
	})
}
