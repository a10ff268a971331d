package apikeys

import "codeberg.org/pdgen/server/internal/plans"

var planLimits = map[plans.Plan]PlanLimits{
	plans.Free: {
		Limits:       Limits{RequestsPerMonth: 100, RequestsPerMinute: 10},
		MaxBatchSize: 5,
	},
	plans.Starter: {
		Limits:       Limits{RequestsPerMonth: 1000, RequestsPerMinute: 30},
		MaxBatchSize: 10,
	},
	plans.Professional: {
		Limits:       Limits{RequestsPerMonth: 10000, RequestsPerMinute: 60},
		MaxBatchSize: 25,
	},
	plans.Enterprise: {
		Limits:       Limits{RequestsPerMonth: 100000, RequestsPerMinute: 120},
		MaxBatchSize: 100,
	},
}

// returns the limits for a plan, falling back to the free tier
func LimitsFor(p plans.Plan) PlanLimits {
	return planLimits[plans.OrFree(p)]
}

// largest number of products one request may carry
func MaxBatchSize(p plans.Plan) int {
	return LimitsFor(p).MaxBatchSize
}

// fills unset limits from the free tier. there is no unlimited value for API
// keys: a zero or negative limit never means "no cap".
func effectiveLimits(l Limits) Limits {
	free := planLimits[plans.Free].Limits

	if l.RequestsPerMonth <= 0 {
		l.RequestsPerMonth = free.RequestsPerMonth
	}

	if l.RequestsPerMinute <= 0 {
		l.RequestsPerMinute = free.RequestsPerMinute
	}

	return l
}
