package main

import (
	"database/sql"
	"net/http"

	"go.uber.org/zap"
)

// GET /matches?view=matched|all
//
// Scores every open listing against the viewer and returns the ranked feed.
// "matched" (the default) applies the score threshold and radius filter;
// "all" returns everything scored, unfiltered.
func matchesHandler(db *sql.DB, scorer compatibilityScorer, distance distanceEstimator) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}

		userID := r.Context().Value(userIDKey).(int)

		viewer, err := loadProfile(db, userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "profile_query_error")
			logger.Error("loading viewer profile", zap.Int("user_id", userID), zap.Error(err))
			return
		}
		if viewer == nil || !viewer.IsComplete || viewer.Preferences == nil {
			writeError(w, http.StatusForbidden, "incomplete_profile")
			return
		}

		candidates, err := candidateListings(db, userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "listing_query_error")
			logger.Error("loading candidate listings", zap.Int("user_id", userID), zap.Error(err))
			return
		}

		// A loader per request: the scoring fan-out batches the owner
		// profile reads into one query without caching across requests.
		matchmaker := NewMatchmaker(NewProfileLoader(db), scorer, distance, logger)
		results := matchmaker.BuildMatches(r.Context(), MatchRequest{
			ViewerTags:     viewer.Preferences.Tags(),
			ViewerLocation: viewer.PreferredLocation,
			SearchRadiusKm: viewer.SearchRadiusKm,
			Candidates:     candidates,
		})

		var ranked []RankedListing
		if r.URL.Query().Get("view") == "all" {
			ranked = AllView(candidates, results)
		} else {
			ranked = MatchedView(candidates, results, viewer.PreferredLocation != nil)
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{"matches": ranked})
	})
}

// candidateListings returns every listing not owned by the viewer.
func candidateListings(db *sql.DB, viewerID int) ([]Listing, error) {
	rows, err := db.Query(`
		SELECT id, owner_id, title, description, rent, room_type, amenities,
		       lat, lng, location_name, room_size, noise_level, light_level, created_at
		FROM listings
		WHERE owner_id <> $1
		ORDER BY created_at DESC
	`, viewerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}
