package main

import (
	"context"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Scoring constants. The 50 km soft falloff of the distance score and the
// viewer-configurable hard radius are deliberately independent knobs.
const (
	distanceFalloffKm     = 50.0
	compatibilityWeight   = 0.7
	distanceScoreWeight   = 0.3
	matchedViewMinScore   = 40
	defaultSearchRadiusKm = 10.0
)

// searchRadiusDefaultKm is the radius applied wherever a profile carries
// none. Startup may override it from configuration; everything that needs
// the fallback reads this, not the constant.
var searchRadiusDefaultKm = float64(defaultSearchRadiusKm)

// profileSource resolves a listing owner's preference profile. A nil
// profile with nil error means "owner has no profile yet".
type profileSource interface {
	ProfileByUserID(ctx context.Context, userID int) (*UserProfile, error)
}

type compatibilityScorer interface {
	Score(ctx context.Context, viewerTags, candidateTags []string) int
}

type distanceEstimator interface {
	DistanceKm(ctx context.Context, origin, dest GeoPoint) float64
}

// MatchRequest carries everything one scoring pass needs. There is no
// hidden shared state: the viewer's profile, location and radius travel as
// explicit arguments.
type MatchRequest struct {
	ViewerTags     []string
	ViewerLocation *GeoPoint
	SearchRadiusKm float64
	Candidates     []Listing
}

// Matchmaker combines a compatibility score and a distance into a single
// ranked score per listing.
type Matchmaker struct {
	profiles profileSource
	scorer   compatibilityScorer
	distance distanceEstimator
	logger   *zap.Logger
}

func NewMatchmaker(profiles profileSource, scorer compatibilityScorer, distance distanceEstimator, logger *zap.Logger) *Matchmaker {
	return &Matchmaker{
		profiles: profiles,
		scorer:   scorer,
		distance: distance,
		logger:   logger,
	}
}

// BuildMatches scores every candidate concurrently and returns a MatchResult
// per listing id. A failure on one candidate (missing profile, scorer
// error) degrades that candidate to its safe defaults and never aborts the
// batch: the per-candidate work has no error path by construction.
func (m *Matchmaker) BuildMatches(ctx context.Context, req MatchRequest) map[int]MatchResult {
	radius := req.SearchRadiusKm
	if radius <= 0 {
		radius = searchRadiusDefaultKm
	}

	results := make(map[int]MatchResult, len(req.Candidates))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, candidate := range req.Candidates {
		wg.Add(1)
		go func(listing Listing) {
			defer wg.Done()
			result := m.scoreCandidate(ctx, req.ViewerTags, req.ViewerLocation, radius, listing)
			mu.Lock()
			results[listing.ID] = result
			mu.Unlock()
		}(candidate)
	}
	wg.Wait()

	return results
}

func (m *Matchmaker) scoreCandidate(ctx context.Context, viewerTags []string, viewerLocation *GeoPoint, radiusKm float64, listing Listing) MatchResult {
	compatibility := 0
	ownerProfile, err := m.profiles.ProfileByUserID(ctx, listing.OwnerID)
	if err != nil {
		m.logger.Debug("owner profile unavailable",
			zap.Int("listing_id", listing.ID),
			zap.Int("owner_id", listing.OwnerID),
			zap.Error(err))
	} else if ownerProfile != nil && ownerProfile.Preferences != nil {
		compatibility = clampScore(m.scorer.Score(ctx, viewerTags, ownerProfile.Preferences.Tags()))
	}

	distanceKm := float64(distanceUnknownKm)
	distanceScore := 0.0
	if viewerLocation != nil && listing.Location != nil {
		distanceKm = m.distance.DistanceKm(ctx, *viewerLocation, *listing.Location)
		distanceScore = distanceScoreFor(distanceKm)
	}

	combined := int(math.Round(float64(compatibility)*compatibilityWeight + distanceScore*distanceScoreWeight))

	return MatchResult{
		Compatibility: compatibility,
		DistanceKm:    distanceKm,
		CombinedScore: combined,
		WithinRadius:  distanceKm <= radiusKm,
	}
}

// distanceScoreFor maps a distance onto 0-100: 100 at 0 km, linearly down
// to 0 at the 50 km falloff and beyond. The sentinel distance lands far
// past the falloff and scores 0 like any other remote candidate.
func distanceScoreFor(distanceKm float64) float64 {
	return math.Max(0, (distanceFalloffKm-distanceKm)/distanceFalloffKm*100)
}

// RankedListing pairs a listing with its computed match result for the feed.
type RankedListing struct {
	Listing Listing     `json:"listing"`
	Match   MatchResult `json:"match"`
}

// MatchedView keeps candidates with a combined score of at least 40 and,
// when the viewer has a usable location, within the search radius. Sorted
// descending by combined score; ties keep candidate order.
func MatchedView(candidates []Listing, results map[int]MatchResult, viewerHasLocation bool) []RankedListing {
	ranked := make([]RankedListing, 0, len(candidates))
	for _, listing := range candidates {
		match, ok := results[listing.ID]
		if !ok || match.CombinedScore < matchedViewMinScore {
			continue
		}
		if viewerHasLocation && !match.WithinRadius {
			continue
		}
		ranked = append(ranked, RankedListing{Listing: listing, Match: match})
	}
	sortRanked(ranked)
	return ranked
}

// AllView returns every candidate unfiltered, sorted the same way.
func AllView(candidates []Listing, results map[int]MatchResult) []RankedListing {
	ranked := make([]RankedListing, 0, len(candidates))
	for _, listing := range candidates {
		ranked = append(ranked, RankedListing{Listing: listing, Match: results[listing.ID]})
	}
	sortRanked(ranked)
	return ranked
}

func sortRanked(ranked []RankedListing) {
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Match.CombinedScore > ranked[j].Match.CombinedScore
	})
}
