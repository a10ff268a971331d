package ratelimit

import (
	"fmt"
	"time"

	"codeberg.org/pdgen/server/internal/config"
)

// name of the policy applied to endpoints without their own entry
const DefaultEndpoint = "default"

// request-velocity limit for one endpoint
type Policy struct {
	Window  time.Duration
	Max     int
	Message string
}

// maps endpoint paths to policies; always holds a DefaultEndpoint entry
type Policies map[string]Policy

// returns the built-in policy table
func DefaultPolicies() Policies {
	return Policies{
		DefaultEndpoint: {
			Window:  time.Minute,
			Max:     30,
			Message: "Too many requests, please try again later.",
		},
		"/api/bulk-generate": {
			Window:  time.Minute,
			Max:     5,
			Message: "Too many bulk generation requests. Please wait before submitting another batch.",
		},
		"/api/generate-image": {
			Window:  time.Minute,
			Max:     10,
			Message: "Too many image generation requests, please slow down.",
		},
		"/api/generate-video": {
			Window:  5 * time.Minute,
			Max:     3,
			Message: "Video generation is limited to 3 requests every 5 minutes.",
		},
		"/api/auth/login": {
			Window:  15 * time.Minute,
			Max:     5,
			Message: "Too many login attempts, please try again in 15 minutes.",
		},
		"/api/auth/register": {
			Window:  time.Hour,
			Max:     3,
			Message: "Too many accounts created from this address, please try again later.",
		},
		"/api/create-checkout-session": {
			Window:  time.Minute,
			Max:     10,
			Message: "Too many checkout attempts, please try again shortly.",
		},
	}
}

// returns the endpoint's policy, or the default policy when it has none
func (p Policies) Lookup(endpoint string) Policy {
	if policy, ok := p[endpoint]; ok {
		return policy
	}

	return p[DefaultEndpoint]
}

// the largest window in the table, used to size the sweep horizon
func (p Policies) LongestWindow() time.Duration {
	var longest time.Duration

	for _, policy := range p {
		if policy.Window > longest {
			longest = policy.Window
		}
	}

	return longest
}

// returns a copy of the table with file overrides applied
func (p Policies) WithOverrides(overrides []config.PolicyOverride) (Policies, error) {
	out := make(Policies, len(p)+len(overrides))
	for endpoint, policy := range p {
		out[endpoint] = policy
	}

	for _, o := range overrides {
		window, err := time.ParseDuration(o.Window)
		if err != nil {
			return nil, fmt.Errorf("policy %q: invalid window: %w", o.Endpoint, err)
		}

		message := o.Message
		if message == "" {
			message = out[DefaultEndpoint].Message
		}

		out[o.Endpoint] = Policy{Window: window, Max: o.Max, Message: message}
	}

	return out, nil
}
