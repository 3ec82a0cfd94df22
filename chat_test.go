package main

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func chatHistoryRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "sender_id", "content", "created_at"}).
		AddRow(int64(2), 2, "does the room get morning light?", now).
		AddRow(int64(1), 1, "hi, still available?", now.Add(-time.Minute))
}

func TestGetChatMessagesReadMarking(t *testing.T) {
	t.Run("opening the history marks the peer's messages read", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("sqlmock: %v", err)
		}
		defer db.Close()

		mock.ExpectQuery(`SELECT id\s+FROM chats`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
		mock.ExpectQuery(`SELECT id, sender_id, content, created_at`).
			WillReturnRows(chatHistoryRows(time.Now()))
		mock.ExpectExec(`UPDATE messages`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE chats`).WillReturnResult(sqlmock.NewResult(0, 1))

		msgs, err := getChatMessages(db, 1, 2, 50, nil, true)
		if err != nil {
			t.Fatalf("getChatMessages: %v", err)
		}
		if len(msgs) != 2 {
			t.Errorf("got %d messages, want 2", len(msgs))
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unread bookkeeping was skipped: %v", err)
		}
	})

	t.Run("a read-only fetch leaves the unread state untouched", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("sqlmock: %v", err)
		}
		defer db.Close()

		mock.ExpectQuery(`SELECT id\s+FROM chats`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
		mock.ExpectQuery(`SELECT id, sender_id, content, created_at`).
			WillReturnRows(chatHistoryRows(time.Now()))
		// These must stay unmet: a background fetch never marks anything.
		mock.ExpectExec(`UPDATE messages`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE chats`).WillReturnResult(sqlmock.NewResult(0, 1))

		msgs, err := getChatMessages(db, 1, 2, 50, nil, false)
		if err != nil {
			t.Fatalf("getChatMessages: %v", err)
		}
		if len(msgs) != 2 {
			t.Errorf("got %d messages, want 2", len(msgs))
		}
		if err := mock.ExpectationsWereMet(); err == nil {
			t.Error("read-only fetch issued the read-marking updates")
		}
	})

	t.Run("no chat row yields an empty history", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("sqlmock: %v", err)
		}
		defer db.Close()

		mock.ExpectQuery(`SELECT id\s+FROM chats`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		msgs, err := getChatMessages(db, 1, 2, 50, nil, true)
		if err != nil {
			t.Fatalf("getChatMessages: %v", err)
		}
		if len(msgs) != 0 {
			t.Errorf("got %d messages, want 0", len(msgs))
		}
	})
}
