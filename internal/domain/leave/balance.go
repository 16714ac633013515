package leave

import "fmt"

type BalanceError struct {
	Available float64
	Requested int
	Shortfall float64
}

func (e *BalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: %g days available, %d requested", e.Available, e.Requested)
}

// Available is total + carry forward - used - pending.
func (b LeaveBalance) Available() float64 {
	return b.TotalDays + b.CarryForwardDays - b.UsedDays - b.PendingDays
}

func (b LeaveBalance) Summary() BalanceSummary {
	return BalanceSummary{LeaveBalance: b, AvailableDays: b.Available()}
}

// ValidateBalance reports whether requestedDays fit in the balance. A missing
// balance record means nothing is available yet.
func ValidateBalance(requestedDays int, balance *LeaveBalance) error {
	available := 0.0
	if balance != nil {
		available = balance.Available()
	}
	if available >= float64(requestedDays) {
		return nil
	}
	return &BalanceError{
		Available: available,
		Requested: requestedDays,
		Shortfall: float64(requestedDays) - available,
	}
}

// FindBalance returns the balance for the leave type and year, or nil.
func FindBalance(balances []LeaveBalance, leaveTypeID string, year int) *LeaveBalance {
	for i := range balances {
		b := balances[i]
		if b.LeaveTypeID != leaveTypeID {
			continue
		}
		if b.Year != 0 && b.Year != year {
			continue
		}
		return &b
	}
	return nil
}

func FindLeaveType(types []LeaveType, id string) *LeaveType {
	for i := range types {
		if types[i].ID == id {
			lt := types[i]
			return &lt
		}
	}
	return nil
}
