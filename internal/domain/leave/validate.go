package leave

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DefaultContactPattern is a country-code prefix followed by a ten digit number.
const DefaultContactPattern = `^\+[0-9]{1,3}[ -]?[0-9]{10}$`

type Validator struct {
	ContactPattern *regexp.Regexp
	Now            func() time.Time
}

func NewValidator(contactPattern string) (*Validator, error) {
	if strings.TrimSpace(contactPattern) == "" {
		contactPattern = DefaultContactPattern
	}
	re, err := regexp.Compile(contactPattern)
	if err != nil {
		return nil, fmt.Errorf("compile contact pattern: %w", err)
	}
	return &Validator{ContactPattern: re, Now: time.Now}, nil
}

func (v *Validator) now() time.Time {
	if v.Now == nil {
		return time.Now()
	}
	return v.Now()
}

// Validate runs the draft through every local rule in a fixed order and stops
// at the first failure. On success it returns the working days to submit.
func (v *Validator) Validate(form DraftRequest, leaveType *LeaveType, balance *LeaveBalance, holidays HolidaySet) (int, error) {
	if leaveType == nil {
		return 0, &ValidationError{Code: CodeLeaveTypeRequired, Message: "Please select a leave type."}
	}
	if strings.TrimSpace(form.Reason) == "" {
		return 0, &ValidationError{Code: CodeReasonRequired, Message: "Please enter a reason for your leave."}
	}
	contact := strings.TrimSpace(form.ContactNumber)
	if contact == "" {
		return 0, &ValidationError{Code: CodeContactRequired, Message: "Please enter a contact number."}
	}
	if v.ContactPattern != nil && !v.ContactPattern.MatchString(contact) {
		return 0, &ValidationError{Code: CodeContactInvalid, Message: "Please enter a valid contact number including the country code."}
	}
	if leaveType.RequiresDocumentation && len(form.Documents) == 0 {
		return 0, &ValidationError{Code: CodeDocumentRequired, Message: fmt.Sprintf("%s requires supporting documentation.", leaveType.Name)}
	}
	if form.StartDate.IsZero() || form.EndDate.IsZero() {
		return 0, &ValidationError{Code: CodeInvalidDates, Message: "Please select both a start and an end date."}
	}
	if form.EndDate.Before(form.StartDate) {
		return 0, &ValidationError{Code: CodeInvalidDates, Message: "End date must be on or after the start date."}
	}

	days := CountWorkingDays(form.StartDate, form.EndDate, holidays)
	if days == 0 {
		return 0, &ValidationError{Code: CodeNoWorkingDays, Message: "The selected dates include only weekends or holidays."}
	}
	if leaveType.MaxConsecutiveDays > 0 && days > leaveType.MaxConsecutiveDays {
		return 0, &ValidationError{
			Code:    CodeMaxDaysExceeded,
			Message: fmt.Sprintf("%s allows at most %d consecutive days; you selected %d.", leaveType.Name, leaveType.MaxConsecutiveDays, days),
		}
	}
	if err := ValidateNotice(v.now(), form.StartDate, leaveType.NoticePeriodDays); err != nil {
		var nerr *NoticeError
		errors.As(err, &nerr)
		return 0, &ValidationError{
			Code:    CodeNoticePeriod,
			Message: fmt.Sprintf("%s requires %d business days notice. The earliest start date is %s.", leaveType.Name, leaveType.NoticePeriodDays, nerr.EarliestAllowed.Format("Jan 2, 2006")),
			Err:     err,
		}
	}
	if err := ValidateBalance(days, balance); err != nil {
		var berr *BalanceError
		errors.As(err, &berr)
		return 0, &ValidationError{
			Code:    CodeInsufficientBalance,
			Message: fmt.Sprintf("Insufficient balance: %g days available, %d requested.", berr.Available, days),
			Err:     err,
		}
	}
	return days, nil
}
