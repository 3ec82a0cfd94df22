package main

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// ChatPeerSummary is one sidebar row: the peer, the latest activity and the
// unread badge.
type ChatPeerSummary struct {
	UserID         int        `json:"userId"`
	UserName       string     `json:"userName"`
	ProfilePicture *string    `json:"profilePicture,omitempty"`
	LastMessageAt  *time.Time `json:"lastMessageAt,omitempty"`
	UnreadMessages int        `json:"unreadMessages"`
	IsOnline       bool       `json:"isOnline,omitempty"`
}

// GET /chats/summary
// One row per peer with an accepted inquiry: name, picture, latest message
// timestamp and unread count, ordered by recency.
func chatSummaryHandler(db *sql.DB, presence *PresenceStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := getUserIDFromBearer(r)
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		// CTEs:
		// 1) peers = everyone sharing an accepted inquiry with me
		// 2) chat_pairs = the chat row for that peer, if any messages exist
		// 3) unreads = messages from that peer not yet read by me
		const q = `
WITH peers AS (
  SELECT DISTINCT CASE WHEN i.seeker_id = $1 THEN i.owner_id ELSE i.seeker_id END AS peer_id
  FROM inquiries i
  WHERE i.status = 'accepted' AND (i.seeker_id = $1 OR i.owner_id = $1)
),
chat_pairs AS (
  SELECT pe.peer_id,
         ch.id AS chat_id,
         ch.last_message_at
  FROM peers pe
  LEFT JOIN chats ch
    ON ch.user1_id = LEAST($1::int, pe.peer_id)
   AND ch.user2_id = GREATEST($1::int, pe.peer_id)
),
unreads AS (
  SELECT cp.peer_id,
         COALESCE(SUM(CASE WHEN m.is_read = FALSE AND m.sender_id = cp.peer_id THEN 1 ELSE 0 END), 0) AS unread_count
  FROM chat_pairs cp
  LEFT JOIN messages m ON m.chat_id = cp.chat_id
  GROUP BY cp.peer_id
)
SELECT
  u.id AS user_id,
  COALESCE(p.display_name, CONCAT('User ', u.id::text)) AS display_name,
  p.profile_picture_file,
  cp.last_message_at,
  COALESCE(uR.unread_count, 0) AS unread_count
FROM peers pe
JOIN users u            ON u.id = pe.peer_id
LEFT JOIN profiles p    ON p.user_id = u.id
LEFT JOIN chat_pairs cp ON cp.peer_id = pe.peer_id
LEFT JOIN unreads uR    ON uR.peer_id = pe.peer_id
ORDER BY COALESCE(cp.last_message_at, to_timestamp(0)) DESC, u.id ASC
;`

		rows, err := db.Query(q, userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "chat_summary_error")
			logger.Error("querying chat summary", zap.Int("user_id", userID), zap.Error(err))
			return
		}
		defer rows.Close()

		summaries := make([]ChatPeerSummary, 0, 32)
		for rows.Next() {
			var s ChatPeerSummary
			if err := rows.Scan(&s.UserID, &s.UserName, &s.ProfilePicture, &s.LastMessageAt, &s.UnreadMessages); err != nil {
				writeError(w, http.StatusInternalServerError, "chat_summary_error")
				logger.Error("scanning chat summary row", zap.Error(err))
				return
			}
			s.IsOnline = presence.IsOnline(r.Context(), s.UserID)
			summaries = append(summaries, s)
		}
		if err := rows.Err(); err != nil {
			writeError(w, http.StatusInternalServerError, "chat_summary_error")
			return
		}

		writeJSON(w, http.StatusOK, summaries)
	}
}

// POST /chats/read?peer_id=123
// Frontend ack that the active chat's messages have been seen.
func chatsMarkReadHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		userID, ok := getUserIDFromBearer(r)
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		peerID, err := strconv.Atoi(r.URL.Query().Get("peer_id"))
		if err != nil || peerID <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_peer_id")
			return
		}

		var chatID int
		err = db.QueryRow(`
			SELECT id
			FROM chats
			WHERE user1_id = LEAST($1::int, $2::int)
			  AND user2_id = GREATEST($1::int, $2::int)
			LIMIT 1
		`, userID, peerID).Scan(&chatID)
		if err == sql.ErrNoRows {
			// No chat, nothing to mark.
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}

		_, _ = db.Exec(`
			UPDATE messages
			SET is_read = TRUE
			WHERE chat_id = $1 AND sender_id = $2 AND is_read IS FALSE
		`, chatID, peerID)

		_, _ = db.Exec(`
			UPDATE chats c
			SET unread_for_user1 = CASE WHEN $1 = c.user1_id THEN FALSE ELSE unread_for_user1 END,
			    unread_for_user2 = CASE WHEN $1 = c.user2_id THEN FALSE ELSE unread_for_user2 END
			WHERE c.id = $2
		`, userID, chatID)

		w.WriteHeader(http.StatusNoContent)
	}
}
