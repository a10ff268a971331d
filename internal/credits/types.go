package credits

import (
	"errors"
	"fmt"
	"time"
)

// billable generation resource
type Resource string

const (
	Descriptions Resource = "descriptions"
	Images       Resource = "images"
	Videos       Resource = "videos"
	Bulk         Resource = "bulk"
)

// Resources lists every billable resource in display order.
var Resources = []Resource{Descriptions, Images, Videos, Bulk}

var (
	// wrapped by *InsufficientCreditsError
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrUnknownResource     = errors.New("unknown resource type")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrCorruptBalance      = errors.New("stored credit balance is corrupt")
)

// returned when a balance cannot cover a deduction
type InsufficientCreditsError struct {
	Resource  Resource
	Needed    int
	Available int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient %s credits: need %d, have %d", e.Resource, e.Needed, e.Available)
}

func (e *InsufficientCreditsError) Unwrap() error {
	return ErrInsufficientCredits
}

// per-resource quantities; -1 means unlimited
type Amounts struct {
	Descriptions int `json:"descriptions"`
	Images       int `json:"images"`
	Videos       int `json:"videos"`
	Bulk         int `json:"bulk"`
}

func (a Amounts) Get(r Resource) int {
	switch r {
	case Descriptions:
		return a.Descriptions
	case Images:
		return a.Images
	case Videos:
		return a.Videos
	case Bulk:
		return a.Bulk
	}

	return 0
}

func (a *Amounts) set(r Resource, n int) {
	switch r {
	case Descriptions:
		a.Descriptions = n
	case Images:
		a.Images = n
	case Videos:
		a.Videos = n
	case Bulk:
		a.Bulk = n
	}
}

// a user's current credit balance
type Balance struct {
	Amounts
	ResetDate time.Time `json:"resetDate"`
}

// one resource deduction within a multi-resource operation
type Charge struct {
	Resource Resource
	Amount   int
}

// outcome of a monthly ledger check
type UsageResult struct {
	Allowed   bool
	Remaining int
	Limit     int
	Used      int

	// month the operation was counted in, passed back to Release
	Period string
}

// usage recorded for a single UTC day
type DailyUsage struct {
	Date string `json:"date"`
	Amounts
}

func (r Resource) Valid() bool {
	switch r {
	case Descriptions, Images, Videos, Bulk:
		return true
	}

	return false
}
