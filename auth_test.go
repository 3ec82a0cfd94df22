package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func init() {
	// Tests sign and verify with a fixed secret.
	jwtSecret = []byte("test_secret")
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := issueToken(42)
	if err != nil {
		t.Fatalf("issueToken: %v", err)
	}

	id, ok := parseUserIDFromJWT(token)
	if !ok {
		t.Fatal("token did not parse")
	}
	if id != 42 {
		t.Errorf("user id = %d, want 42", id)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 42,
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})
	signed, err := token.SignedString(jwtSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, ok := parseUserIDFromJWT(signed); ok {
		t.Error("expired token should not parse")
	}
}

func TestParseUserIDRejectsGarbage(t *testing.T) {
	for _, tok := range []string{"", "not.a.jwt", "aaaa.bbbb.cccc"} {
		if _, ok := parseUserIDFromJWT(tok); ok {
			t.Errorf("token %q should not parse", tok)
		}
	}
}

func TestAuthenticateMiddleware(t *testing.T) {
	handler := authenticate(func(w http.ResponseWriter, r *http.Request) {
		id := r.Context().Value(userIDKey).(int)
		if id != 42 {
			t.Errorf("context user id = %d, want 42", id)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("valid bearer token", func(t *testing.T) {
		token, _ := issueToken(42)
		req := httptest.NewRequest(http.MethodGet, "/me/profile", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		handler(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", rec.Code)
		}
	})

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me/profile", nil)
		rec := httptest.NewRecorder()

		handler(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me/profile", nil)
		req.Header.Set("Authorization", "Token abcdef")
		rec := httptest.NewRecorder()

		handler(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})
}

func TestGetUserIDFromRequestQueryFallback(t *testing.T) {
	token, _ := issueToken(7)

	req := httptest.NewRequest(http.MethodGet, "/ws/chat?token="+token, nil)
	id, ok := getUserIDFromRequest(req)
	if !ok || id != 7 {
		t.Errorf("got (%d, %v), want (7, true)", id, ok)
	}

	req = httptest.NewRequest(http.MethodGet, "/ws/chat", nil)
	if _, ok := getUserIDFromRequest(req); ok {
		t.Error("request without credentials should not resolve")
	}
}
