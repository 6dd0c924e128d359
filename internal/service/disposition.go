// internal/service/disposition.go
package service

import "challenge-orchestrator/internal/models"

// DispositionInput is everything the decision table may consult when the
// provider's mapped status is ambiguous.
type DispositionInput struct {
	TransactionStatus        models.TransactionStatus
	TransactionStatusReason  models.TransactionStatusReason
	ChallengeCancelIndicator string
	IsMOTO                   bool
}

type dispositionRule struct {
	Name    string
	Matches func(in DispositionInput) bool
	Outcome models.ChallengeStatus
}

// dispositionTable resolves ambiguous provider dispositions from the raw
// status/reason/cancel-indicator codes. First matching rule wins. The
// fail-closed TSR10 rule and the fail-open tail are legacy policy; keep them
// as table rows, not inline conditionals.
var dispositionTable = []dispositionRule{
	{
		Name: "rejected",
		Matches: func(in DispositionInput) bool {
			switch in.TransactionStatus {
			case models.TransStatusCancelledByACS, models.TransStatusFullyRejected, models.TransStatusRejected:
				return true
			}
			return false
		},
		Outcome: models.ChallengeStatusFailed,
	},
	{
		Name: "not-authenticated-hard-fail",
		Matches: func(in DispositionInput) bool {
			return in.TransactionStatus == models.TransStatusNotAuthenticated &&
				in.TransactionStatusReason == models.ReasonCardAuthFailed
		},
		Outcome: models.ChallengeStatusFailed,
	},
	{
		Name: "challenge-request-timed-out",
		Matches: func(in DispositionInput) bool {
			if in.TransactionStatus != models.TransStatusNotAuthenticated {
				return false
			}
			return in.ChallengeCancelIndicator == models.TransactionCReqTimedOut ||
				in.ChallengeCancelIndicator == models.TransactionTimedOut
		},
		Outcome: models.ChallengeStatusTimedOut,
	},
	{
		Name: "cancelled-by-user",
		Matches: func(in DispositionInput) bool {
			if in.TransactionStatus != models.TransStatusNotAuthenticated {
				return false
			}
			switch in.ChallengeCancelIndicator {
			case models.CancelledByCardHolder, models.CancelledByRequestor, models.TransactionAbandoned:
				return true
			}
			return false
		},
		Outcome: models.ChallengeStatusCancelled,
	},
	{
		Name: "not-authenticated-timed-out",
		Matches: func(in DispositionInput) bool {
			return in.TransactionStatus == models.TransStatusNotAuthenticated &&
				in.ChallengeCancelIndicator == "" &&
				in.TransactionStatusReason == models.ReasonTimedOut
		},
		Outcome: models.ChallengeStatusTimedOut,
	},
	{
		// Cancel indicators TransactionError and Unknown do not demote the
		// outcome; anything else was handled by an earlier row.
		Name: "not-authenticated-lenient",
		Matches: func(in DispositionInput) bool {
			return in.TransactionStatus == models.TransStatusNotAuthenticated
		},
		Outcome: models.ChallengeStatusSucceeded,
	},
	{
		Name: "authenticated-moto",
		Matches: func(in DispositionInput) bool {
			return in.IsMOTO &&
				(in.TransactionStatus == models.TransStatusAuthenticated ||
					in.TransactionStatus == models.TransStatusAttempted)
		},
		Outcome: models.ChallengeStatusByPassed,
	},
	{
		Name: "authenticated",
		Matches: func(in DispositionInput) bool {
			return in.TransactionStatus == models.TransStatusAuthenticated ||
				in.TransactionStatus == models.TransStatusAttempted
		},
		Outcome: models.ChallengeStatusSucceeded,
	},
}

// ResolveDisposition maps an ambiguous provider disposition to a terminal
// status. When no table row matches (status U, C, or absent), the
// AmbiguousStatusHeuristic toggle decides between the historical fail-open
// answer and a hard failure.
func ResolveDisposition(in DispositionInput, toggles Toggles) (models.ChallengeStatus, string) {
	for _, rule := range dispositionTable {
		if rule.Matches(in) {
			return rule.Outcome, rule.Name
		}
	}
	if toggles.AmbiguousStatusHeuristic {
		return models.ChallengeStatusSucceeded, "ambiguous-fail-open"
	}
	return models.ChallengeStatusFailed, "ambiguous-fail-closed"
}
