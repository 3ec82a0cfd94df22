package main

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const avatarRoot = "./uploads/avatars"

// POST /me/avatar (multipart form, field "file"), DELETE /me/avatar.
func myAvatarHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		me := r.Context().Value(userIDKey).(int)

		if r.Method == http.MethodDelete {
			if err := removeAvatar(db, me); err != nil {
				writeError(w, http.StatusInternalServerError, "remove_failed")
				logger.Error("removing avatar", zap.Int("user_id", me), zap.Error(err))
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}

		// ~3MB cap
		r.Body = http.MaxBytesReader(w, r.Body, 3<<20)
		if err := r.ParseMultipartForm(4 << 20); err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "file_too_large_or_missing")
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing_file")
			return
		}
		defer f.Close()

		// Sniff the MIME type from the first bytes, not the extension.
		head := make([]byte, 512)
		n, _ := f.Read(head)
		if http.DetectContentType(head[:n]) != "image/jpeg" {
			writeError(w, http.StatusBadRequest, "only_jpeg_allowed")
			return
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			writeError(w, http.StatusInternalServerError, "seek_failed")
			return
		}

		if err := os.MkdirAll(avatarRoot, 0o755); err != nil {
			writeError(w, http.StatusInternalServerError, "mkdir_failed")
			return
		}

		filename := fmt.Sprintf("%d.jpg", me)
		dst := filepath.Join(avatarRoot, filename)
		tmp := dst + ".tmp"

		out, err := os.Create(tmp)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "save_failed")
			return
		}
		if _, err := io.Copy(out, f); err != nil {
			out.Close()
			writeError(w, http.StatusInternalServerError, "save_failed")
			return
		}
		out.Close()
		if err := os.Rename(tmp, dst); err != nil {
			writeError(w, http.StatusInternalServerError, "save_failed")
			return
		}

		res, err := db.Exec(`
			UPDATE profiles
			SET profile_picture_file = $1 WHERE user_id = $2
		`, filename, me)
		if err != nil {
			// Leave the file in place, surface the DB failure.
			writeError(w, http.StatusInternalServerError, "db_update_failed")
			logger.Error("saving avatar filename", zap.Int("user_id", me), zap.Error(err))
			return
		}
		if aff, _ := res.RowsAffected(); aff == 0 {
			_ = os.Remove(dst)
			writeError(w, http.StatusConflict, "profile_not_initialized")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
}

// GET /avatars/{id}
// Listings and profile cards are public within the app, so any authenticated
// user may fetch any avatar. Missing or broken files fall back to the
// placeholder.
func getUserAvatarHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}

		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 2 || parts[0] != "avatars" {
			http.NotFound(w, r)
			return
		}
		targetID, err := strconv.Atoi(parts[1])
		if err != nil {
			http.NotFound(w, r)
			return
		}

		path := filepath.Join(avatarRoot, "avatar_placeholder.png")
		contentType := "image/png"

		if filename, err := getProfilePictureFilename(db, targetID); err == nil {
			custom := filepath.Join(avatarRoot, filepath.Base(filename))
			if _, err := os.Stat(custom); err == nil {
				path = custom
				contentType = "image/jpeg"
				if strings.HasSuffix(filename, ".png") {
					contentType = "image/png"
				}
			}
		}

		if _, err := os.Stat(path); err != nil {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", contentType)
		// Light cache; the frontend busts it with ?ts=timestamp.
		w.Header().Set("Cache-Control", "private, max-age=3600")
		http.ServeFile(w, r, path)
	})
}

func getProfilePictureFilename(db *sql.DB, userID int) (string, error) {
	var fn sql.NullString
	err := db.QueryRow(`SELECT profile_picture_file FROM profiles WHERE user_id = $1`, userID).Scan(&fn)
	if err != nil {
		return "", err
	}
	if !fn.Valid || strings.TrimSpace(fn.String) == "" {
		return "", errors.New("no_picture")
	}
	return fn.String, nil
}

func removeAvatar(db *sql.DB, userID int) error {
	filename, err := getProfilePictureFilename(db, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("reading current avatar filename: %w", err)
	}
	if filename != "" {
		// Basename only so a stored "../x" can never escape the root.
		fullPath := filepath.Join(avatarRoot, filepath.Base(filename))
		if rmErr := os.Remove(fullPath); rmErr != nil && !os.IsNotExist(rmErr) {
			return fmt.Errorf("removing avatar file %q: %w", fullPath, rmErr)
		}
	}

	if _, err := db.Exec(`UPDATE profiles SET profile_picture_file = NULL WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clearing avatar path: %w", err)
	}
	return nil
}
