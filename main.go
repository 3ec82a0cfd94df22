package main

import (
	"context"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/roomatch/backend/gemini"
)

// Package-level logger; main swaps the no-op default for the real one.
// Tests run against the no-op without any setup.
var logger = zap.NewNop()

func main() {
	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}

	logger = newLogger(cfg.LogLevel, cfg.Environment)
	defer logger.Sync()

	jwtSecret = []byte(cfg.JWTSecret)
	if cfg.DefaultSearchRadiusKm > 0 {
		searchRadiusDefaultKm = cfg.DefaultSearchRadiusKm
	}

	initDB(cfg.DatabaseURL, logger)

	presence := NewPresenceStore(cfg.RedisAddr)
	defer presence.Close()

	// Both the compatibility scorer and the assistant features share one
	// Gemini client. Without an API key they all degrade to their
	// deterministic fallbacks instead of failing requests.
	var generator textGenerator
	if g, err := gemini.NewGenerator(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel); err != nil {
		logger.Warn("gemini unavailable, assistant features degraded", zap.Error(err))
	} else {
		generator = g
		logger.Info("gemini client ready", zap.String("model", g.Model()))
	}

	scorer := NewCompatibilityScorer(generator, logger)
	routes := NewRouteClient(cfg.RoutingAPIURL, cfg.RoutingAPIKey, logger)

	_ = os.MkdirAll(avatarRoot, 0o755)
	_ = os.MkdirAll(documentsDir, 0o755)

	mux := http.NewServeMux()

	// Auth & profile
	mux.Handle("/register", registerHandler(db))
	mux.Handle("/login", loginHandler(db))
	mux.Handle("/me/profile", meProfileHandler(db))
	mux.Handle("/me/ping", mePingHandler(presence)) // POST
	mux.Handle("/me/avatar", myAvatarHandler(db))   // POST & DELETE
	mux.Handle("/users/", userHandler(db, presence))
	mux.Handle("/avatars/", getUserAvatarHandler(db)) // GET /avatars/{id}

	// Conversational onboarding
	mux.Handle("/onboarding/chat", onboardingChatHandler(generator))
	mux.Handle("/onboarding/preferences", onboardingPreferencesHandler(db, generator))

	// Listings & the match feed
	mux.Handle("/listings", listingsHandler(db))
	mux.Handle("/listings/", listingDispatcher(db)) // /listings/{id}, /listings/{id}/inquiries
	mux.Handle("/matches", matchesHandler(db, scorer, routes))

	// Inquiries
	mux.Handle("/inquiries", inquiriesHandler(db))
	mux.Handle("/inquiries/", inquiryActionsRouter(db)) // POST /inquiries/{id}/(accept|decline|withdraw)

	// Chat
	mux.Handle("/ws/chat", wsChatHandler(db))
	mux.Handle("/chats/", getChatHistoryHandler(db))
	mux.Handle("/chats/summary", chatSummaryHandler(db, presence)) // GET
	mux.Handle("/chats/read", chatsMarkReadHandler(db))            // POST /chats/read?peer_id=123
	mux.Handle("/chats/coach", chatCoachHandler(db, generator))    // POST /chats/coach?peer_id=123

	// Agreements
	mux.Handle("/leases", createLeaseHandler(db, generator))
	mux.Handle("/leases/", getLeaseHandler(db)) // GET /leases/{id}

	// Health check endpoint for Docker
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	logger.Info("starting backend", zap.String("addr", cfg.ListenAddr))
	if err := http.ListenAndServe(cfg.ListenAddr, withCORS(cfg.CORSOrigins, mux)); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
