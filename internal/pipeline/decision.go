// Package pipeline is the decision orchestrator: it turns upcoming
// fixtures, league baselines and team ratings into per-market bet/skip
// decisions with a full audit trail, plus the prediction rows settlement
// later resolves.
package pipeline

import (
	"github.com/shopspring/decimal"
)

// Decision actions and rationale codes. Reason codes are machine-readable
// so skips can be aggregated downstream.
const (
	ActionBet  = "BET"
	ActionSkip = "SKIP"

	ReasonNoOdds             = "no_odds"
	ReasonNoCandidateInRange = "no_candidate_in_range"
	ReasonBelowThreshold     = "ev_below_threshold"
)

// Payload kind tags. Every audit payload carries exactly one of these so
// consumers never probe for keys.
const (
	Kind1X2    = "1X2"
	KindTotals = "TOTAL"
	KindInfo   = "INFO"
)

// ProbTriple is the serialized 1X2 probability set.
type ProbTriple struct {
	Home decimal.Decimal `json:"home"`
	Draw decimal.Decimal `json:"draw"`
	Away decimal.Decimal `json:"away"`
}

// Candidate is one scored selection inside a decision payload, ranked by
// expected value.
type Candidate struct {
	Selection   string           `json:"selection"`
	Probability decimal.Decimal  `json:"probability"`
	Odd         *decimal.Decimal `json:"odd,omitempty"`
	EV          *decimal.Decimal `json:"ev,omitempty"`
}

// OneXTwoPayload is the audit record for the 1X2 market.
type OneXTwoPayload struct {
	Kind          string           `json:"kind"`
	Source        string           `json:"source"`
	Probabilities ProbTriple       `json:"probabilities"`
	Candidates    []Candidate      `json:"candidates"` // top 3 by EV
	Action        string           `json:"action"`
	Selection     string           `json:"selection"`
	Odd           *decimal.Decimal `json:"odd,omitempty"`
	EV            *decimal.Decimal `json:"ev,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	SignalScore   decimal.Decimal  `json:"signal_score"`
	EVThreshold   decimal.Decimal  `json:"ev_threshold"`
}

// TotalsPayload is the audit record for the over/under 2.5 market.
type TotalsPayload struct {
	Kind        string           `json:"kind"`
	Source      string           `json:"source"`
	OverProb    decimal.Decimal  `json:"over_prob"`
	UnderProb   decimal.Decimal  `json:"under_prob"`
	Candidates  []Candidate      `json:"candidates"`
	Action      string           `json:"action"`
	Selection   string           `json:"selection"`
	Odd         *decimal.Decimal `json:"odd,omitempty"`
	EV          *decimal.Decimal `json:"ev,omitempty"`
	Reason      string           `json:"reason,omitempty"`
	EVThreshold decimal.Decimal  `json:"ev_threshold"`
}

// InfoPayload is the audit record for derived info markets that never
// produce a bet (alternate totals lines, both-teams-to-score).
type InfoPayload struct {
	Kind          string                     `json:"kind"`
	Market        string                     `json:"market"`
	Probabilities map[string]decimal.Decimal `json:"probabilities"`
}

// Features is the snapshot of every input a prediction used, persisted
// alongside the row so settlements and calibration can replay it.
type Features struct {
	LambdaHome    decimal.Decimal `json:"lambda_home"`
	LambdaAway    decimal.Decimal `json:"lambda_away"`
	EloHome       decimal.Decimal `json:"elo_home"`
	EloAway       decimal.Decimal `json:"elo_away"`
	EloFactor     decimal.Decimal `json:"elo_factor"`
	AvgHomeGoals  decimal.Decimal `json:"avg_home_goals"`
	AvgAwayGoals  decimal.Decimal `json:"avg_away_goals"`
	Rho           decimal.Decimal `json:"rho"`
	Alpha         decimal.Decimal `json:"alpha"`
	Probabilities ProbTriple      `json:"probabilities"`
	InjuriesHome  int             `json:"injuries_home"`
	InjuriesAway  int             `json:"injuries_away"`
	StandingsGap  int             `json:"standings_gap"`
	SignalScore   decimal.Decimal `json:"signal_score"`
	Source        string          `json:"source"`
}
