// internal/service/integrity.go
package service

import (
	"strings"

	"go.uber.org/zap"

	"challenge-orchestrator/internal/metrics"
	"challenge-orchestrator/internal/models"
)

// amountVarianceBand is how far the session amount may drift from the pretax
// or posttax amount before a completed challenge no longer plausibly covers
// the transaction.
const amountVarianceBand = 0.3

// TransactionIntegrityVerifier is the anti-replay check: it binds a completed
// challenge to the transaction it is presented to authorize. Checks run in
// order; the first failure wins.
type TransactionIntegrityVerifier struct {
	toggles Toggles
	logger  *zap.Logger
}

func NewTransactionIntegrityVerifier(toggles Toggles, logger *zap.Logger) *TransactionIntegrityVerifier {
	return &TransactionIntegrityVerifier{toggles: toggles, logger: logger}
}

// Verify cross-checks a stored session against the caller-supplied
// transaction context. A mismatch is data, not an error.
func (v *TransactionIntegrityVerifier) Verify(session *models.PaymentSession, txn *models.TransactionContext) models.VerificationResult {
	result := v.verify(session, txn)
	metrics.VerificationResults.WithLabelValues(string(result)).Inc()
	return result
}

func (v *TransactionIntegrityVerifier) verify(session *models.PaymentSession, txn *models.TransactionContext) models.VerificationResult {
	// Zero-amount sessions (token redemptions) legitimately carry no
	// currency to compare.
	currencyVerified := session.Amount == 0 ||
		strings.EqualFold(session.Currency, txn.Currency)

	preTaxLower, preTaxUpper := varianceBand(txn.Pretax)
	postTaxLower, postTaxUpper := varianceBand(txn.Posttax)
	preTaxVerified := session.Amount >= preTaxLower && session.Amount <= preTaxUpper
	postTaxVerified := session.Amount >= postTaxLower && session.Amount <= postTaxUpper

	advisory := v.verifyAdvisoryFields(session, txn)

	if !currencyVerified {
		return models.VerificationCurrencyMismatch
	}
	// Both amounts zero means token redemption: amount checks do not apply.
	// Otherwise either band is sufficient.
	amountApplies := txn.Pretax != 0 || txn.Posttax != 0
	if amountApplies && !(preTaxVerified || postTaxVerified) {
		return models.VerificationAmountMismatch
	}
	if v.toggles.StrictContextChecks && !advisory {
		return models.VerificationAmountMismatch
	}
	return models.VerificationSuccess
}

// verifyAdvisoryFields checks the exact-match fields. They are logged when
// mismatched but block only under StrictContextChecks.
func (v *TransactionIntegrityVerifier) verifyAdvisoryFields(session *models.PaymentSession, txn *models.TransactionContext) bool {
	partnerVerified := strings.EqualFold(session.Partner, txn.Partner)
	countryVerified := strings.EqualFold(session.Country, txn.Country)
	preOrderVerified := session.HasPreOrder == txn.HasPreOrder
	motoVerified := session.IsMOTO == txn.IsMOTO
	scenarioVerified := strings.EqualFold(string(session.ChallengeScenario), string(txn.ChallengeScenario))
	purchaseOrderVerified := session.PurchaseOrderID == txn.PurchaseOrderID

	ok := partnerVerified && countryVerified && preOrderVerified &&
		motoVerified && scenarioVerified && purchaseOrderVerified
	if !ok {
		v.logger.Info("advisory transaction context mismatch",
			zap.String("session_id", session.ID),
			zap.Bool("partner", partnerVerified),
			zap.Bool("country", countryVerified),
			zap.Bool("has_preorder", preOrderVerified),
			zap.Bool("is_moto", motoVerified),
			zap.Bool("challenge_scenario", scenarioVerified),
			zap.Bool("purchase_order", purchaseOrderVerified))
	}
	return ok
}

func varianceBand(amount float64) (lower, upper float64) {
	return amount * (1 - amountVarianceBand), amount * (1 + amountVarianceBand)
}
