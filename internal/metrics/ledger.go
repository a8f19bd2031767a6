package metrics

// QuotaDecision records the outcome of a TryConsume call.
func QuotaDecision(feature, plan string, allowed bool, reason string) {
	outcome := "allowed"
	if !allowed {
		outcome = reason
	}
	QuotaDecisions.WithLabelValues(feature, plan, outcome).Inc()
}

// StoreRetried records one retry of a transient store failure.
func StoreRetried(op string) {
	StoreRetries.WithLabelValues(op).Inc()
}

// PlanChanged records a SetPlan. Source is "webhook", "admin" or "signup".
func PlanChanged(plan, source string) {
	PlanChanges.WithLabelValues(plan, source).Inc()
}

// ChargedWithoutRecord records a consumed unit whose ledger append failed.
func ChargedWithoutRecord(feature string) {
	ChargedNotSaved.WithLabelValues(feature).Inc()
}

// LedgerAppended records an Append outcome.
func LedgerAppended(kind string, inserted bool, err error) {
	result := "inserted"
	switch {
	case err != nil:
		result = "error"
	case !inserted:
		result = "duplicate"
	}
	LedgerAppends.WithLabelValues(kind, result).Inc()
}

// LedgerFinalized records a Finalize outcome.
func LedgerFinalized(result string) {
	LedgerFinalizes.WithLabelValues(result).Inc()
}

// DraftOperation records a draft store call.
func DraftOperation(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	DraftOperations.WithLabelValues(op, result).Inc()
}

// AICall records one generation request.
func AICall(task string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	AIAPICalls.WithLabelValues(task, status).Inc()
}

// AITokens records token usage and estimated cost.
func AITokens(input, output int, costCents float64) {
	AITokensTotal.WithLabelValues("input").Add(float64(input))
	AITokensTotal.WithLabelValues("output").Add(float64(output))
	AICostCentsTotal.Add(costCents)
}
