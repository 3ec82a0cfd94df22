package main

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Listing inquiries connect a seeker to a listing's owner.
//
// STATE MACHINE
// create: seeker opens a pending inquiry on a listing.
// accept (owner): pending -> accepted. An accepted inquiry unlocks chat
//                 between seeker and owner for that listing.
// decline (owner): pending -> declined.
// withdraw (seeker): pending -> withdrawn.
// Terminal states never transition again; repeat calls are idempotent.

type Inquiry struct {
	ID        int       `json:"id"`
	ListingID int       `json:"listing_id"`
	SeekerID  int       `json:"seeker_id"`
	OwnerID   int       `json:"owner_id"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// handleListingInquiry serves /listings/{id}/inquiries, already routed and
// authenticated by listingDispatcher.
func handleListingInquiry(db *sql.DB, w http.ResponseWriter, r *http.Request, listingID int) {
	switch r.Method {
	case http.MethodPost:
		createInquiry(db, w, r, listingID)
	case http.MethodGet:
		listInquiriesForListing(db, w, r, listingID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "invalid_method")
	}
}

func createInquiry(db *sql.DB, w http.ResponseWriter, r *http.Request, listingID int) {
	me := r.Context().Value(userIDKey).(int)

	var req struct {
		Message string `json:"message"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	var ownerID int
	if err := db.QueryRow(`SELECT owner_id FROM listings WHERE id = $1`, listingID).Scan(&ownerID); err != nil {
		if err == sql.ErrNoRows {
			writeError(w, http.StatusNotFound, "listing_not_found")
		} else {
			writeError(w, http.StatusInternalServerError, "db_error")
			logger.Error("looking up listing owner", zap.Int("listing_id", listingID), zap.Error(err))
		}
		return
	}
	if ownerID == me {
		writeError(w, http.StatusBadRequest, "own_listing")
		return
	}

	var resp Inquiry
	wroteErr := false

	err := withTx(r.Context(), db, func(tx *sql.Tx) error {
		existing, err := loadInquiryForUpdate(tx, listingID, me)
		if err != nil {
			return err
		}
		if existing != nil {
			switch existing.Status {
			case "pending", "accepted":
				// Idempotent: the open inquiry is the answer.
				resp = *existing
				return nil
			default:
				// declined or withdrawn is terminal for this pair
				writeError(w, http.StatusConflict, "invalid_state")
				wroteErr = true
				return nil
			}
		}

		err = tx.QueryRow(`
			INSERT INTO inquiries (listing_id, seeker_id, owner_id, status, message)
			VALUES ($1, $2, $3, 'pending', $4)
			RETURNING id, created_at
		`, listingID, me, ownerID, req.Message).Scan(&resp.ID, &resp.CreatedAt)
		if err != nil {
			return err
		}
		resp.ListingID = listingID
		resp.SeekerID = me
		resp.OwnerID = ownerID
		resp.Status = "pending"
		resp.Message = req.Message
		return nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		logger.Error("creating inquiry", zap.Int("listing_id", listingID), zap.Error(err))
		return
	}
	if wroteErr {
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// GET /listings/{id}/inquiries - owner-only view of inquiries on a listing.
func listInquiriesForListing(db *sql.DB, w http.ResponseWriter, r *http.Request, listingID int) {
	me := r.Context().Value(userIDKey).(int)

	var ownerID int
	if err := db.QueryRow(`SELECT owner_id FROM listings WHERE id = $1`, listingID).Scan(&ownerID); err != nil {
		writeError(w, http.StatusNotFound, "listing_not_found")
		return
	}
	if ownerID != me {
		writeError(w, http.StatusForbidden, "not_owner")
		return
	}

	rows, err := db.Query(`
		SELECT id, listing_id, seeker_id, owner_id, status, message, created_at
		FROM inquiries
		WHERE listing_id = $1
		ORDER BY created_at DESC, id DESC
	`, listingID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		logger.Error("listing inquiries", zap.Int("listing_id", listingID), zap.Error(err))
		return
	}
	defer rows.Close()

	out := []Inquiry{}
	for rows.Next() {
		var q Inquiry
		var msg sql.NullString
		if err := rows.Scan(&q.ID, &q.ListingID, &q.SeekerID, &q.OwnerID, &q.Status, &msg, &q.CreatedAt); err == nil {
			q.Message = msg.String
			out = append(out, q)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /inquiries - everything the viewer is party to, both sides.
func inquiriesHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		me := r.Context().Value(userIDKey).(int)

		rows, err := db.Query(`
			SELECT id, listing_id, seeker_id, owner_id, status, message, created_at
			FROM inquiries
			WHERE seeker_id = $1 OR owner_id = $1
			ORDER BY created_at DESC, id DESC
		`, me)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			logger.Error("listing user inquiries", zap.Int("user_id", me), zap.Error(err))
			return
		}
		defer rows.Close()

		out := []Inquiry{}
		for rows.Next() {
			var q Inquiry
			var msg sql.NullString
			if err := rows.Scan(&q.ID, &q.ListingID, &q.SeekerID, &q.OwnerID, &q.Status, &msg, &q.CreatedAt); err == nil {
				q.Message = msg.String
				out = append(out, q)
			}
		}
		writeJSON(w, http.StatusOK, out)
	})
}

// inquiryActionsRouter dispatches POST /inquiries/{id}/(accept|decline|withdraw).
func inquiryActionsRouter(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 3 || parts[0] != "inquiries" {
			http.NotFound(w, r)
			return
		}
		inquiryID, err := strconv.Atoi(parts[1])
		if err != nil {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}

		switch parts[2] {
		case "accept":
			transitionInquiry(db, w, r, inquiryID, "accepted", roleOwner)
		case "decline":
			transitionInquiry(db, w, r, inquiryID, "declined", roleOwner)
		case "withdraw":
			transitionInquiry(db, w, r, inquiryID, "withdrawn", roleSeeker)
		default:
			http.NotFound(w, r)
		}
	})
}

type inquiryRole int

const (
	roleOwner inquiryRole = iota
	roleSeeker
)

// transitionInquiry moves a pending inquiry to a terminal state, enforcing
// which party may perform the move. Re-applying the same terminal state is
// idempotent; any other transition is a conflict.
func transitionInquiry(db *sql.DB, w http.ResponseWriter, r *http.Request, inquiryID int, target string, actor inquiryRole) {
	me := r.Context().Value(userIDKey).(int)

	var resp struct {
		State string `json:"state"`
	}
	wroteErr := false

	err := withTx(r.Context(), db, func(tx *sql.Tx) error {
		var seekerID, ownerID int
		var status string
		err := tx.QueryRow(`
			SELECT seeker_id, owner_id, status
			FROM inquiries
			WHERE id = $1
			FOR UPDATE
		`, inquiryID).Scan(&seekerID, &ownerID, &status)
		if err == sql.ErrNoRows {
			writeError(w, http.StatusNotFound, "not_found")
			wroteErr = true
			return nil
		}
		if err != nil {
			return err
		}

		allowed := ownerID
		if actor == roleSeeker {
			allowed = seekerID
		}
		if me != allowed {
			// Hide inquiries the viewer is not party to entirely.
			if me != seekerID && me != ownerID {
				writeError(w, http.StatusNotFound, "not_found")
			} else {
				writeError(w, http.StatusForbidden, "wrong_party")
			}
			wroteErr = true
			return nil
		}

		switch status {
		case "pending":
			if _, err := tx.Exec(`UPDATE inquiries SET status = $1 WHERE id = $2`, target, inquiryID); err != nil {
				return err
			}
			resp.State = target
			return nil
		case target:
			resp.State = target
			return nil
		default:
			writeError(w, http.StatusConflict, "invalid_state")
			wroteErr = true
			return nil
		}
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		logger.Error("inquiry transition", zap.Int("inquiry_id", inquiryID), zap.String("target", target), zap.Error(err))
		return
	}
	if wroteErr {
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// loadInquiryForUpdate row-locks the inquiry between one seeker and one
// listing, if any. Returns nil without error when no row exists.
func loadInquiryForUpdate(tx *sql.Tx, listingID, seekerID int) (*Inquiry, error) {
	var q Inquiry
	var msg sql.NullString
	err := tx.QueryRow(`
		SELECT id, listing_id, seeker_id, owner_id, status, message, created_at
		FROM inquiries
		WHERE listing_id = $1 AND seeker_id = $2
		FOR UPDATE
	`, listingID, seekerID).Scan(&q.ID, &q.ListingID, &q.SeekerID, &q.OwnerID, &q.Status, &msg, &q.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	q.Message = msg.String
	return &q, nil
}

// inquiryAccepted reports whether users a and b share an accepted inquiry,
// optionally scoped to one listing (0 means any listing). Chat gating uses
// this in both directions.
func inquiryAccepted(db *sql.DB, a, b, listingID int) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM inquiries
			WHERE status = 'accepted'
			  AND ((seeker_id = $1 AND owner_id = $2) OR (seeker_id = $2 AND owner_id = $1))
	`
	args := []interface{}{a, b}
	if listingID != 0 {
		query += ` AND listing_id = $3`
		args = append(args, listingID)
	}
	query += `)`

	var ok bool
	err := db.QueryRow(query, args...).Scan(&ok)
	return ok, err
}
