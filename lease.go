package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Agreement drafting. Once an inquiry is accepted, either party can ask for
// a draft agreement: a Lease Agreement for a private room, a Roommate
// Agreement when the room is shared with the owner.

const documentsDir = "./uploads/documents"

type Document struct {
	ID        string    `json:"id"`
	InquiryID int       `json:"inquiry_id"`
	Kind      string    `json:"kind"` // "lease_agreement" | "roommate_agreement"
	CreatedAt time.Time `json:"created_at"`
}

// POST /leases  body: {"inquiry_id": 7, "terms": {...}}
func createLeaseHandler(db *sql.DB, generator textGenerator) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		me := r.Context().Value(userIDKey).(int)

		var req struct {
			InquiryID int               `json:"inquiry_id"`
			Terms     map[string]string `json:"terms"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.InquiryID <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}

		var seekerID, ownerID, listingID int
		var status string
		err := db.QueryRow(`
			SELECT seeker_id, owner_id, listing_id, status
			FROM inquiries WHERE id = $1
		`, req.InquiryID).Scan(&seekerID, &ownerID, &listingID, &status)
		if err == sql.ErrNoRows {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			logger.Error("loading inquiry for lease", zap.Int("inquiry_id", req.InquiryID), zap.Error(err))
			return
		}
		if me != seekerID && me != ownerID {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		if status != "accepted" {
			writeError(w, http.StatusConflict, "inquiry_not_accepted")
			return
		}

		var title, roomType string
		var rent float64
		if err := db.QueryRow(`
			SELECT title, room_type, rent FROM listings WHERE id = $1
		`, listingID).Scan(&title, &roomType, &rent); err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			logger.Error("loading listing for lease", zap.Int("listing_id", listingID), zap.Error(err))
			return
		}

		kind := "lease_agreement"
		if strings.EqualFold(roomType, "shared") {
			kind = "roommate_agreement"
		}

		body := draftAgreement(r.Context(), generator, kind, title, rent, req.Terms)

		docID := uuid.NewString()
		if err := os.MkdirAll(documentsDir, 0o755); err != nil {
			writeError(w, http.StatusInternalServerError, "document_write_error")
			return
		}
		path := filepath.Join(documentsDir, docID+".txt")
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			writeError(w, http.StatusInternalServerError, "document_write_error")
			logger.Error("writing agreement document", zap.String("path", path), zap.Error(err))
			return
		}

		var createdAt time.Time
		err = db.QueryRow(`
			INSERT INTO documents (id, inquiry_id, kind, file_path)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at
		`, docID, req.InquiryID, kind, path).Scan(&createdAt)
		if err != nil {
			_ = os.Remove(path)
			writeError(w, http.StatusInternalServerError, "db_error")
			logger.Error("recording agreement document", zap.String("document_id", docID), zap.Error(err))
			return
		}

		writeJSON(w, http.StatusCreated, Document{
			ID:        docID,
			InquiryID: req.InquiryID,
			Kind:      kind,
			CreatedAt: createdAt,
		})
	})
}

// GET /leases/{id} - download the drafted agreement. Only inquiry parties
// may fetch it.
func getLeaseHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		me := r.Context().Value(userIDKey).(int)

		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 2 || parts[0] != "leases" {
			http.NotFound(w, r)
			return
		}
		docID := parts[1]
		if _, err := uuid.Parse(docID); err != nil {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}

		var path string
		var seekerID, ownerID int
		err := db.QueryRow(`
			SELECT d.file_path, i.seeker_id, i.owner_id
			FROM documents d
			JOIN inquiries i ON i.id = d.inquiry_id
			WHERE d.id = $1
		`, docID).Scan(&path, &seekerID, &ownerID)
		if err == sql.ErrNoRows {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		if me != seekerID && me != ownerID {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		http.ServeFile(w, r, path)
	})
}

func draftAgreement(ctx context.Context, generator textGenerator, kind, listingTitle string, rent float64, terms map[string]string) string {
	kindName := "Lease Agreement"
	if kind == "roommate_agreement" {
		kindName = "Roommate Agreement"
	}

	var termLines strings.Builder
	for k, v := range terms {
		fmt.Fprintf(&termLines, "- %s: %s\n", k, v)
	}

	prompt := fmt.Sprintf(`Draft a plain-text %s for a room rental. Listing: %q. Monthly rent: %.2f.
Agreed terms:
%s
Write clear numbered sections covering rent, deposit, duration, house rules, shared responsibilities and termination. Do not include placeholders for legal review; keep the language plain and readable.`,
		kindName, listingTitle, rent, termLines.String())

	if generator != nil {
		if body, err := generator.GenerateContent(ctx, prompt); err == nil && strings.TrimSpace(body) != "" {
			return body
		} else if err != nil {
			logger.Debug("agreement drafting failed", zap.Error(err))
		}
	}

	// Fallback: a minimal skeleton the parties can fill in by hand.
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nListing: %s\nMonthly rent: %.2f\n\nTerms:\n%s\n", kindName, listingTitle, rent, termLines.String())
	b.WriteString("1. Rent is due on the first of each month.\n")
	b.WriteString("2. The deposit is returned within 30 days of move-out, less documented damages.\n")
	b.WriteString("3. Either party may terminate with 30 days written notice.\n")
	return b.String()
}
