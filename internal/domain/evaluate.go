package domain

// QuotaAction selects whether an entitlement check consumes quota.
type QuotaAction string

const (
	ActionCheck     QuotaAction = "check"
	ActionIncrement QuotaAction = "increment"
)

// Valid reports whether a is a known action.
func (a QuotaAction) Valid() bool {
	return a == ActionCheck || a == ActionIncrement
}

// Evaluation is the outcome of evaluating usage against a limit.
// Used and Remaining describe the state before any increment is applied.
type Evaluation struct {
	Allowed   bool
	Used      int
	Limit     int
	Remaining int
	// NewUsage is the counter value to persist when the action is an
	// allowed increment. It equals Used otherwise.
	NewUsage int
}

// Evaluate decides whether action is permitted for a counter at current
// usage under limit. It performs no I/O.
func Evaluate(current, limit int, action QuotaAction) Evaluation {
	e := Evaluation{
		Used:      current,
		Limit:     limit,
		Remaining: remaining(current, limit),
		NewUsage:  current,
	}
	if limit == Unlimited {
		e.Allowed = true
		if action == ActionIncrement {
			e.NewUsage = current + 1
		}
		return e
	}
	if action == ActionIncrement {
		next := current + 1
		e.Allowed = next <= limit
		if e.Allowed {
			e.NewUsage = next
		}
		return e
	}
	e.Allowed = current < limit
	return e
}

func remaining(used, limit int) int {
	if limit == Unlimited {
		return Unlimited
	}
	if r := limit - used; r > 0 {
		return r
	}
	return 0
}
