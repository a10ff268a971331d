package plans

import (
	"fmt"
	"strings"
)

// subscription tier shared by API key accounts and end users
type Plan string

const (
	Free         Plan = "free"
	Starter      Plan = "starter"
	Professional Plan = "professional"
	Enterprise   Plan = "enterprise"
)

// All lists the tiers from cheapest to most expensive.
var All = []Plan{Free, Starter, Professional, Enterprise}

// sentinel cap meaning no limit is enforced (credit and ledger tables only)
const Unlimited = -1

// parses a plan name, case-insensitively. "pro" and "business" are accepted
// aliases used by the billing provider's product names.
func Parse(s string) (Plan, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "free":
		return Free, nil
	case "starter":
		return Starter, nil
	case "professional", "pro":
		return Professional, nil
	case "enterprise", "business":
		return Enterprise, nil
	}

	return "", fmt.Errorf("unknown plan %q", s)
}

// returns the plan, or Free when the value is not a known tier
func OrFree(p Plan) Plan {
	if p.Valid() {
		return p
	}

	return Free
}

func (p Plan) Valid() bool {
	switch p {
	case Free, Starter, Professional, Enterprise:
		return true
	}

	return false
}

func (p Plan) String() string {
	return string(p)
}
