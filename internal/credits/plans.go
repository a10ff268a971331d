package credits

import "codeberg.org/pdgen/server/internal/plans"

// credits granted at the start of every cycle
var creditSeeds = map[plans.Plan]Amounts{
	plans.Free:         {Descriptions: 10, Images: 5, Videos: 0, Bulk: 0},
	plans.Starter:      {Descriptions: 100, Images: 50, Videos: 5, Bulk: 10},
	plans.Professional: {Descriptions: 500, Images: 200, Videos: 20, Bulk: 50},
	plans.Enterprise:   {Descriptions: plans.Unlimited, Images: 1000, Videos: 100, Bulk: plans.Unlimited},
}

// monthly operation caps enforced by the ledger
var monthlyCaps = map[plans.Plan]Amounts{
	plans.Free:         {Descriptions: 50, Images: 10, Videos: 0, Bulk: 1},
	plans.Starter:      {Descriptions: 500, Images: 100, Videos: 10, Bulk: 10},
	plans.Professional: {Descriptions: 2000, Images: 500, Videos: 50, Bulk: 50},
	plans.Enterprise:   {Descriptions: plans.Unlimited, Images: plans.Unlimited, Videos: plans.Unlimited, Bulk: plans.Unlimited},
}

// returns the credits seeded for a plan; unknown plans get free-tier credits
func SeedFor(p plans.Plan) Amounts {
	return creditSeeds[plans.OrFree(p)]
}

// returns the monthly caps for a plan; unknown plans get free-tier caps
func CapsFor(p plans.Plan) Amounts {
	return monthlyCaps[plans.OrFree(p)]
}
