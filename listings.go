package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const metersToFeet = 3.28084

// Point3D is a corner of a room as captured by the AR measurement flow,
// in meters relative to an arbitrary origin.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func dist3D(a, b Point3D) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// roomSizeFromCorners turns four corner points into feet-based dimensions.
// The corners arrive in walk order, so opposite sides should be near-equal;
// taking the max of each opposing pair absorbs measurement jitter.
func roomSizeFromCorners(corners []Point3D) (*RoomSize, error) {
	if len(corners) != 4 {
		return nil, errors.New("exactly four corner points required")
	}

	sides := make([]float64, 4)
	for i := range corners {
		sides[i] = dist3D(corners[i], corners[(i+1)%4])
	}

	length := math.Max(sides[0], sides[2]) * metersToFeet
	width := math.Max(sides[1], sides[3]) * metersToFeet
	return &RoomSize{
		Length: length,
		Width:  width,
		Area:   length * width,
	}, nil
}

type listingRequest struct {
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Rent         float64         `json:"rent"`
	RoomType     string          `json:"room_type"`
	Amenities    []string        `json:"amenities"`
	Location     json.RawMessage `json:"location"`
	LocationName string          `json:"location_name"`
	CornerPoints []Point3D       `json:"corner_points"`
	RoomSize     *RoomSize       `json:"room_size"`
	NoiseLevel   int             `json:"noise_level"`
	LightLevel   int             `json:"light_level"`
}

// listingsHandler serves the /listings collection: POST creates, GET lists.
func listingsHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			createListing(db, w, r)
		case http.MethodGet:
			listListings(db, w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
		}
	})
}

func createListing(db *sql.DB, w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDKey).(int)

	var req listingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "missing_title")
		return
	}
	if req.Rent < 0 {
		writeError(w, http.StatusBadRequest, "invalid_rent")
		return
	}

	location := normalizeGeoPoint(req.Location)
	if len(req.Location) > 0 && string(req.Location) != "null" && location == nil {
		writeError(w, http.StatusBadRequest, "invalid_location")
		return
	}

	// Prefer a server-side derivation from raw corner points over a
	// client-computed size.
	roomSize := req.RoomSize
	if len(req.CornerPoints) > 0 {
		derived, err := roomSizeFromCorners(req.CornerPoints)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_corner_points")
			return
		}
		roomSize = derived
	}

	var lat, lng interface{}
	if location != nil {
		lat, lng = location.Lat, location.Lng
	}

	var id int
	var createdAt time.Time
	err := db.QueryRow(`
		INSERT INTO listings
			(owner_id, title, description, rent, room_type, amenities,
			 lat, lng, location_name, room_size, noise_level, light_level)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id, created_at
	`, userID, req.Title, req.Description, req.Rent, req.RoomType,
		pq.Array(req.Amenities), lat, lng, req.LocationName,
		marshalOrNull(roomSize), req.NoiseLevel, req.LightLevel).Scan(&id, &createdAt)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing_create_error")
		logger.Error("creating listing", zap.Int("user_id", userID), zap.Error(err))
		return
	}

	writeJSON(w, http.StatusCreated, Listing{
		ID:           id,
		OwnerID:      userID,
		Title:        req.Title,
		Description:  req.Description,
		Rent:         req.Rent,
		RoomType:     req.RoomType,
		Amenities:    req.Amenities,
		Location:     location,
		LocationName: req.LocationName,
		RoomSize:     roomSize,
		NoiseLevel:   req.NoiseLevel,
		LightLevel:   req.LightLevel,
		CreatedAt:    createdAt,
	})
}

func listListings(db *sql.DB, w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDKey).(int)

	query := `
		SELECT id, owner_id, title, description, rent, room_type, amenities,
		       lat, lng, location_name, room_size, noise_level, light_level, created_at
		FROM listings
	`
	var args []interface{}
	if r.URL.Query().Get("mine") == "true" {
		query += ` WHERE owner_id = $1`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := db.Query(query, args...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing_query_error")
		logger.Error("listing listings", zap.Error(err))
		return
	}
	defer rows.Close()

	listings := []Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "listing_scan_error")
			logger.Error("scanning listing row", zap.Error(err))
			return
		}
		listings = append(listings, *l)
	}

	writeJSON(w, http.StatusOK, listings)
}

// listingDispatcher routes /listings/{id} and nested resources.
func listingDispatcher(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) < 2 || parts[0] != "listings" {
			http.NotFound(w, r)
			return
		}

		listingID, err := strconv.Atoi(parts[1])
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_listing_id")
			return
		}

		switch {
		case len(parts) == 2:
			switch r.Method {
			case http.MethodGet:
				getListing(db, w, r, listingID)
			case http.MethodDelete:
				deleteListing(db, w, r, listingID)
			default:
				writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			}
		case len(parts) == 3 && parts[2] == "inquiries":
			handleListingInquiry(db, w, r, listingID)
		default:
			http.NotFound(w, r)
		}
	})
}

func getListing(db *sql.DB, w http.ResponseWriter, r *http.Request, listingID int) {
	row := db.QueryRow(`
		SELECT id, owner_id, title, description, rent, room_type, amenities,
		       lat, lng, location_name, room_size, noise_level, light_level, created_at
		FROM listings
		WHERE id = $1
	`, listingID)

	l, err := scanListing(row)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "listing_not_found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing_query_error")
		logger.Error("fetching listing", zap.Int("listing_id", listingID), zap.Error(err))
		return
	}

	writeJSON(w, http.StatusOK, l)
}

func deleteListing(db *sql.DB, w http.ResponseWriter, r *http.Request, listingID int) {
	userID := r.Context().Value(userIDKey).(int)

	res, err := db.Exec(`DELETE FROM listings WHERE id = $1 AND owner_id = $2`, listingID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing_delete_error")
		logger.Error("deleting listing", zap.Int("listing_id", listingID), zap.Error(err))
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		writeError(w, http.StatusNotFound, "listing_not_found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// scanListing reads one listing row from either *sql.Row or *sql.Rows.
func scanListing(row rowScanner) (*Listing, error) {
	var l Listing
	var lat, lng sql.NullFloat64
	var locationName sql.NullString
	var roomSizeRaw []byte

	err := row.Scan(&l.ID, &l.OwnerID, &l.Title, &l.Description, &l.Rent,
		&l.RoomType, pq.Array(&l.Amenities), &lat, &lng, &locationName,
		&roomSizeRaw, &l.NoiseLevel, &l.LightLevel, &l.CreatedAt)
	if err != nil {
		return nil, err
	}

	if lat.Valid && lng.Valid {
		p := GeoPoint{Lat: lat.Float64, Lng: lng.Float64}
		if p.valid() {
			l.Location = &p
		}
	}
	l.LocationName = locationName.String
	if len(roomSizeRaw) > 0 {
		var rs RoomSize
		if json.Unmarshal(roomSizeRaw, &rs) == nil {
			l.RoomSize = &rs
		}
	}
	if l.Amenities == nil {
		l.Amenities = []string{}
	}
	return &l, nil
}
