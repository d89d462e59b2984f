// Package session owns the simulated user account: login, tier, credits
// and the most-recent-first task history.
package session

import (
	"fmt"

	apperrors "atsbeaters/internal/errors"
	"atsbeaters/internal/results"
)

// Tier is a subscription level
type Tier string

const (
	TierFree    Tier = "free"
	TierPro     Tier = "pro"
	TierPackage Tier = "package"
)

// Credits granted at signup and on upgrade
const (
	SignupCredits  = 1
	ProCredits     = 999
	PackageCredits = 9999
)

// DefaultName is used when login supplies no name
const DefaultName = "Career Pro"

// ParseTier validates a tier name
func ParseTier(s string) (Tier, error) {
	switch t := Tier(s); t {
	case TierFree, TierPro, TierPackage:
		return t, nil
	}
	return "", apperrors.NewValidationError(apperrors.ErrCodeInvalidTier,
		fmt.Sprintf("unknown tier %q (expected free, pro or package)", s), nil)
}

// User is the persisted account record
type User struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Name     string         `json:"name"`
	Tier     Tier           `json:"tier"`
	Credits  int            `json:"credits"`
	History  []HistoryEntry `json:"history"`
	JoinedAt int64          `json:"joinedAt"`
}

// Gated reports whether the user must upgrade before running a task
func (u *User) Gated() bool {
	return u != nil && u.Tier == TierFree && u.Credits <= 0
}

// Find returns the history entry with id
func (u *User) Find(id string) (HistoryEntry, bool) {
	for _, h := range u.History {
		if h.ID == id {
			return h, true
		}
	}
	return HistoryEntry{}, false
}

// HistoryEntry is one saved task run. Entries are never modified.
type HistoryEntry struct {
	ID        string           `json:"id"`
	Type      string           `json:"type"`
	Input     string           `json:"input"`
	Result    results.Envelope `json:"result"`
	Timestamp int64            `json:"timestamp"`
}

// Plan is one pricing tier as shown on the pricing screen
type Plan struct {
	Tier     Tier     `json:"tier"`
	Title    string   `json:"title"`
	Price    string   `json:"price"`
	Features []string `json:"features"`
	Popular  bool     `json:"popular,omitempty"`
}

// PricingPlans lists the plans in display order
func PricingPlans() []Plan {
	return []Plan{
		{Tier: TierFree, Title: "Free Tier", Price: "$0", Features: []string{"1 Audit/mo", "Basic Suggestions", "Email Alerts"}},
		{Tier: TierPro, Title: "Pro Pack", Price: "$12", Features: []string{"Unlimited Audits", "Full Rewrites", "Keyword Insights", "PDF Exports"}, Popular: true},
		{Tier: TierPackage, Title: "Career Suite", Price: "$24", Features: []string{"Everything in Pro", "Cover Letter Gen", "Photo AI Edit", "Direct Support"}},
	}
}
