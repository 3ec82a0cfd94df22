package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/graph-gophers/dataloader/v7"
)

// ProfileLoader batches profile lookups so a scoring pass over N listings
// issues one IN query for the distinct owner ids instead of N point reads.
// A fresh loader per request keeps results request-scoped (no cross-request
// caching of profiles).
type ProfileLoader struct {
	loader *dataloader.Loader[int, *UserProfile]
}

func NewProfileLoader(db *sql.DB) *ProfileLoader {
	return &ProfileLoader{
		loader: dataloader.NewBatchedLoader(
			profileBatchFn(db),
			dataloader.WithWait[int, *UserProfile](16*time.Millisecond),
		),
	}
}

// ProfileByUserID resolves one profile through the batch. A user without a
// profile row yields (nil, nil): missing profiles are tolerated, not errors.
func (l *ProfileLoader) ProfileByUserID(ctx context.Context, userID int) (*UserProfile, error) {
	return l.loader.Load(ctx, userID)()
}

func profileBatchFn(db *sql.DB) dataloader.BatchFunc[int, *UserProfile] {
	return func(ctx context.Context, keys []int) []*dataloader.Result[*UserProfile] {
		results := make([]*dataloader.Result[*UserProfile], len(keys))
		keyIndex := make(map[int]int, len(keys))
		for i, key := range keys {
			keyIndex[key] = i
			results[i] = &dataloader.Result[*UserProfile]{}
		}
		if len(keys) == 0 {
			return results
		}

		placeholders := make([]string, len(keys))
		args := make([]interface{}, len(keys))
		for i, key := range keys {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args[i] = key
		}

		query := fmt.Sprintf(`
			SELECT user_id, display_name, age, profile_picture_file,
			       preferences, preferred_lat, preferred_lng, search_radius_km, is_complete
			FROM profiles
			WHERE user_id IN (%s)
		`, strings.Join(placeholders, ", "))

		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			for i := range results {
				results[i].Error = err
			}
			return results
		}
		defer rows.Close()

		for rows.Next() {
			profile, err := scanProfileRow(rows)
			if err != nil {
				for i := range results {
					if results[i].Data == nil && results[i].Error == nil {
						results[i].Error = err
					}
				}
				return results
			}
			if idx, ok := keyIndex[profile.UserID]; ok {
				results[idx].Data = profile
			}
		}

		// A cursor failure mid-iteration must not read as "no profile".
		if err := rows.Err(); err != nil {
			for i := range results {
				if results[i].Data == nil && results[i].Error == nil {
					results[i].Error = err
				}
			}
		}

		return results
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfileRow(rows rowScanner) (*UserProfile, error) {
	var p UserProfile
	var age sql.NullInt64
	var picture sql.NullString
	var preferencesRaw []byte
	var lat, lng, radius sql.NullFloat64
	var isComplete sql.NullBool

	if err := rows.Scan(
		&p.UserID, &p.DisplayName, &age, &picture,
		&preferencesRaw, &lat, &lng, &radius, &isComplete,
	); err != nil {
		return nil, err
	}

	if age.Valid {
		p.Age = int(age.Int64)
	}
	if picture.Valid {
		p.ProfilePictureFile = picture.String
	}
	if len(preferencesRaw) > 0 {
		var prefs PreferenceProfile
		if json.Unmarshal(preferencesRaw, &prefs) == nil && prefs.Type != "" {
			p.Preferences = &prefs
		}
	}
	if lat.Valid && lng.Valid {
		point := GeoPoint{Lat: lat.Float64, Lng: lng.Float64}
		if point.valid() {
			p.PreferredLocation = &point
		}
	}
	if radius.Valid && radius.Float64 > 0 {
		p.SearchRadiusKm = radius.Float64
	} else {
		p.SearchRadiusKm = searchRadiusDefaultKm
	}
	p.IsComplete = isComplete.Valid && isComplete.Bool

	return &p, nil
}
