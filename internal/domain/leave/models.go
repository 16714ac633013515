package leave

import (
	"encoding/json"
	"strings"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusEscalated Status = "escalated"
)

const dateLayout = "2006-01-02"

// Date is a calendar day without a time component, always held at UTC midnight.
// It travels over the wire as yyyy-MM-dd.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf drops the clock part of t, keeping the calendar day in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate accepts yyyy-MM-dd or RFC3339.
func ParseDate(value string) (Date, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Date{}, nil
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return DateOf(parsed), nil
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return Date{}, err
	}
	return DateOf(parsed), nil
}

func (d Date) AddDays(n int) Date {
	return Date{d.Time.AddDate(0, 0, n)}
}

func (d Date) Before(other Date) bool { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool  { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool  { return d.Time.Equal(other.Time) }

func (d Date) IsWeekend() bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = Date{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

type LeaveType struct {
	ID                    string  `json:"id"`
	Name                  string  `json:"name"`
	Code                  string  `json:"code,omitempty"`
	IsPaid                bool    `json:"is_paid"`
	RequiresDocumentation bool    `json:"requires_documentation"`
	MaxConsecutiveDays    int     `json:"max_consecutive_days"`
	NoticePeriodDays      int     `json:"notice_period_days"`
	MinServiceDays        int     `json:"min_service_days"`
	DefaultDays           float64 `json:"default_days"`
	CarryForwardLimit     float64 `json:"carry_forward_limit"`
}

// LeaveBalance is the server's view of one (user, leave type, year) entitlement.
type LeaveBalance struct {
	LeaveTypeID      string  `json:"leave_type_id"`
	LeaveTypeName    string  `json:"leave_type_name,omitempty"`
	Year             int     `json:"year"`
	TotalDays        float64 `json:"total_days"`
	UsedDays         float64 `json:"used_days"`
	PendingDays      float64 `json:"pending_days"`
	CarryForwardDays float64 `json:"carry_forward_days"`
}

type BalanceSummary struct {
	LeaveBalance
	AvailableDays float64 `json:"available_days"`
}

type Document struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type ApprovalStep struct {
	Level        string    `json:"level"`
	LevelOrder   int       `json:"level_order"`
	ApproverID   string    `json:"approver_id,omitempty"`
	ApproverName string    `json:"approver_name,omitempty"`
	Decision     string    `json:"decision"`
	Comment      string    `json:"comment,omitempty"`
	DecidedAt    time.Time `json:"decided_at"`
}

type LeaveRequest struct {
	ID                string         `json:"id"`
	LeaveTypeID       string         `json:"leave_type_id"`
	LeaveTypeName     string         `json:"leave_type_name,omitempty"`
	StartDate         Date           `json:"start_date"`
	EndDate           Date           `json:"end_date"`
	DaysRequested     int            `json:"days_requested"`
	Reason            string         `json:"reason"`
	ContactNumber     string         `json:"contact_number,omitempty"`
	Documents         []Document     `json:"documents,omitempty"`
	Status            Status         `json:"status"`
	RejectionReason   string         `json:"rejection_reason,omitempty"`
	CurrentLevel      string         `json:"current_level,omitempty"`
	CurrentLevelOrder int            `json:"current_level_order,omitempty"`
	ApprovalHistory   []ApprovalStep `json:"approval_history,omitempty"`
	BalanceSnapshot   *LeaveBalance  `json:"balance_snapshot,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

type Holiday struct {
	Date Date   `json:"date"`
	Name string `json:"name"`
}

type CalendarEntry struct {
	RequestID     string `json:"request_id"`
	EmployeeID    string `json:"employee_id"`
	EmployeeName  string `json:"employee_name"`
	LeaveTypeName string `json:"leave_type_name"`
	StartDate     Date   `json:"start_date"`
	EndDate       Date   `json:"end_date"`
	Status        Status `json:"status"`
}

// DraftRequest holds the locally entered form values before submission.
type DraftRequest struct {
	LeaveTypeID   string     `json:"leave_type_id"`
	StartDate     Date       `json:"start_date"`
	EndDate       Date       `json:"end_date"`
	Reason        string     `json:"reason"`
	ContactNumber string     `json:"contact_number"`
	Documents     []Document `json:"documents,omitempty"`
}

// SubmitPayload is the body of POST /api/leave/request.
type SubmitPayload struct {
	LeaveTypeID   string     `json:"leave_type_id"`
	StartDate     Date       `json:"start_date"`
	EndDate       Date       `json:"end_date"`
	DaysRequested int        `json:"days_requested"`
	Reason        string     `json:"reason"`
	ContactNumber string     `json:"contact_number"`
	Documents     []Document `json:"documents"`
}

func NewSubmitPayload(form DraftRequest, days int) SubmitPayload {
	docs := form.Documents
	if docs == nil {
		docs = []Document{}
	}
	return SubmitPayload{
		LeaveTypeID:   form.LeaveTypeID,
		StartDate:     form.StartDate,
		EndDate:       form.EndDate,
		DaysRequested: days,
		Reason:        strings.TrimSpace(form.Reason),
		ContactNumber: strings.TrimSpace(form.ContactNumber),
		Documents:     docs,
	}
}
