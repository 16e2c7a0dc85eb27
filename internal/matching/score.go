// Package matching implements the compatibility scoring between a lead and
// a candidate handler or company. All functions are pure; scoring reads
// only the inputs it is handed and touches no external state.
package matching

import (
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	// scoreVersion tracks the scoring model for debugging and analysis.
	// Bump this when changing scoring logic significantly.
	ScoreVersion = "2026-v1"

	// Reputation factor weights. Rating history carries the most signal;
	// responsiveness and conversion split the rest.
	ratingWeight       = 0.4
	responseTimeWeight = 0.3
	conversionWeight   = 0.3

	// Response-time tiers, in minutes.
	responseTierFast = 60
	responseTierSlow = 240

	responseScoreUnknown = 0.5
	responseScoreFast    = 1.0
	responseScoreMedium  = 0.5
	responseScoreSlow    = 0.1

	// Context scoring.
	contextBase          = 0.5
	urgencyBoostUrgent   = 0.3
	urgencyBoostHigh     = 0.15
	urgencyPenaltyLow    = -0.1
	featuredBoost        = 0.2
	ratingCountHighBar   = 50
	ratingCountMediumBar = 20
	ratingCountHighBoost = 0.2
	ratingCountMedBoost  = 0.1

	// Company-level combined score weights.
	companyCategoryWeight   = 0.3
	bestMemberWeight        = 0.2
	companyReputationWeight = 0.3
	companyContextWeight    = 0.2

	// Handler-level score weights. The category gate below zeroes the
	// whole score for a handler who does not serve the lead's category,
	// so a no-match company falls back to its director.
	handlerCategoryWeight   = 0.5
	handlerReputationWeight = 0.3
	handlerContextWeight    = 0.2
)

// Reputation carries the read-only reputation metrics of a candidate.
type Reputation struct {
	RatingAvg          float64  // 0-5 scale
	RatingCount        int
	AvgResponseMinutes *float64 // nil when the candidate has no response history
	ConversionRate     float64  // 0-100 scale
}

// Candidate is a handler or a company as the scoring engine sees it.
type Candidate struct {
	CategoryIDs []uuid.UUID
	Reputation  Reputation
}

// LeadContext carries the lead- and company-level context signals.
type LeadContext struct {
	CategoryID         uuid.UUID
	Urgency            string
	CompanyFeatured    bool
	CompanyRatingCount int
}

// CategoryMatch returns 1.0 when the lead's category is in the candidate's
// declared set, 0.0 otherwise. No partial or fuzzy credit.
func CategoryMatch(categoryIDs []uuid.UUID, leadCategory uuid.UUID) float64 {
	if lo.Contains(categoryIDs, leadCategory) {
		return 1.0
	}
	return 0.0
}

// ReputationScore computes the weighted reputation of a candidate on a 0-1
// scale: normalized rating x 0.4, response-time tier x 0.3, conversion
// rate x 0.3.
func ReputationScore(rep Reputation) float64 {
	rating := clamp01(rep.RatingAvg / 5.0)
	conversion := clamp01(rep.ConversionRate / 100.0)
	return rating*ratingWeight + responseTimeScore(rep.AvgResponseMinutes)*responseTimeWeight + conversion*conversionWeight
}

func responseTimeScore(avgMinutes *float64) float64 {
	switch {
	case avgMinutes == nil:
		return responseScoreUnknown
	case *avgMinutes <= responseTierFast:
		return responseScoreFast
	case *avgMinutes <= responseTierSlow:
		return responseScoreMedium
	default:
		return responseScoreSlow
	}
}

// ContextScore computes the lead-context score: base 0.5 adjusted by
// urgency, featured placement, and rating volume, clamped to [0,1].
func ContextScore(lead LeadContext) float64 {
	score := contextBase

	switch lead.Urgency {
	case "urgent":
		score += urgencyBoostUrgent
	case "high":
		score += urgencyBoostHigh
	case "low":
		score += urgencyPenaltyLow
	}

	if lead.CompanyFeatured {
		score += featuredBoost
	}

	if lead.CompanyRatingCount > ratingCountHighBar {
		score += ratingCountHighBoost
	} else if lead.CompanyRatingCount > ratingCountMediumBar {
		score += ratingCountMedBoost
	}

	return clamp01(score)
}

// HandlerScore scores one handler for one lead. A handler who does not
// serve the lead's category scores zero outright, so the allocator's
// strictly-positive filter excludes them and the director fallback kicks in.
func HandlerScore(handler Candidate, lead LeadContext) float64 {
	categoryMatch := CategoryMatch(handler.CategoryIDs, lead.CategoryID)
	if categoryMatch == 0 {
		return 0
	}
	return categoryMatch*handlerCategoryWeight +
		ReputationScore(handler.Reputation)*handlerReputationWeight +
		ContextScore(lead)*handlerContextWeight
}

// CombinedScore computes the company-level decision score:
// categoryMatch(company) x 0.3 + categoryMatch(best team member) x 0.2 +
// reputation(company) x 0.3 + context x 0.2.
func CombinedScore(company Candidate, teamMembers []Candidate, lead LeadContext) float64 {
	bestMemberMatch := 0.0
	for _, member := range teamMembers {
		if match := CategoryMatch(member.CategoryIDs, lead.CategoryID); match > bestMemberMatch {
			bestMemberMatch = match
		}
	}

	return CategoryMatch(company.CategoryIDs, lead.CategoryID)*companyCategoryWeight +
		bestMemberMatch*bestMemberWeight +
		ReputationScore(company.Reputation)*companyReputationWeight +
		ContextScore(lead)*companyContextWeight
}

func clamp01(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
