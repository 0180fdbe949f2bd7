package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// TripStatus is the lifecycle status of a trip plan
type TripStatus string

const (
	TripDraft     TripStatus = "draft"
	TripSubmitted TripStatus = "submitted"
	TripApproved  TripStatus = "approved"
	TripRejected  TripStatus = "rejected"
	TripCompleted TripStatus = "completed"
)

// ExpenseCategory groups planned and actual spend
type ExpenseCategory string

const (
	CategoryAirfare         ExpenseCategory = "airfare"
	CategoryLodging         ExpenseCategory = "lodging"
	CategoryGroundTransport ExpenseCategory = "ground_transport"
	CategoryMeals           ExpenseCategory = "meals"
	CategoryConferenceFees  ExpenseCategory = "conference_fees"
	CategoryOther           ExpenseCategory = "other"
)

// ValidCategory reports whether c is a known expense category
func ValidCategory(c ExpenseCategory) bool {
	switch c {
	case CategoryAirfare, CategoryLodging, CategoryGroundTransport,
		CategoryMeals, CategoryConferenceFees, CategoryOther:
		return true
	}
	return false
}

// TripPlan is a trip request checked by the structural validator.
// PolicyVersion names the ruleset that produced ValidationResults.
type TripPlan struct {
	TripID            string                              `json:"trip_id"`
	TravelerName      string                              `json:"traveler_name"`
	Destination       string                              `json:"destination"`
	DepartureDate     time.Time                           `json:"departure_date"`
	ReturnDate        time.Time                           `json:"return_date"`
	BookedOn          time.Time                           `json:"booked_on"`
	Purpose           string                              `json:"purpose"`
	EstimatedCost     decimal.Decimal                     `json:"estimated_cost"`
	Status            TripStatus                          `json:"status"`
	ExpenseBreakdown  map[ExpenseCategory]decimal.Decimal `json:"expense_breakdown,omitempty"`
	ValidationResults []PolicyResult                      `json:"validation_results,omitempty"`
	PolicyVersion     string                              `json:"policy_version,omitempty"`
	ApprovalHistory   []ApprovalEvent                     `json:"approval_history,omitempty"`
}

// DurationDays counts travel days inclusive of departure and return
func (p TripPlan) DurationDays() int {
	return DaysBetween(p.DepartureDate, p.ReturnDate) + 1
}

// Validate rejects plans the validator cannot reason about
func (p TripPlan) Validate() error {
	if p.TripID == "" {
		return &ValidationError{Field: "trip_id", Reason: "is required"}
	}
	if p.DepartureDate.IsZero() || p.ReturnDate.IsZero() {
		return &ValidationError{Field: "departure_date", Reason: "departure and return dates are required"}
	}
	if p.ReturnDate.Before(p.DepartureDate) {
		return &ValidationError{Field: "return_date", Reason: "return date precedes departure date"}
	}
	if p.EstimatedCost.IsNegative() {
		return &ValidationError{Field: "estimated_cost", Reason: "must not be negative"}
	}
	return nil
}

// ThirdPartyPayment is an entry paid by someone other than the traveler
type ThirdPartyPayment struct {
	Description string `json:"description"`
	Itemized    bool   `json:"itemized"`
}

// TripContext carries the inputs of the policy-lite rules. Every field is
// optional; rules skip when their inputs are missing.
type TripContext struct {
	TripID                  string              `json:"trip_id,omitempty"`
	BookingDate             *time.Time          `json:"booking_date,omitempty"`
	DepartureDate           *time.Time          `json:"departure_date,omitempty"`
	ReturnDate              *time.Time          `json:"return_date,omitempty"`
	SelectedFare            *decimal.Decimal    `json:"selected_fare,omitempty"`
	LowestFare              *decimal.Decimal    `json:"lowest_fare,omitempty"`
	CabinClass              *string             `json:"cabin_class,omitempty"`
	FlightDurationHours     *float64            `json:"flight_duration_hours,omitempty"`
	FareEvidenceAttached    *bool               `json:"fare_evidence_attached,omitempty"`
	DrivingCost             *decimal.Decimal    `json:"driving_cost,omitempty"`
	FlightCost              *decimal.Decimal    `json:"flight_cost,omitempty"`
	ComparableHotels        []decimal.Decimal   `json:"comparable_hotels,omitempty"`
	DistanceFromOfficeMiles *float64            `json:"distance_from_office_miles,omitempty"`
	OvernightStay           *bool               `json:"overnight_stay,omitempty"`
	MealsProvided           *bool               `json:"meals_provided,omitempty"`
	MealPerDiemRequested    *bool               `json:"meal_per_diem_requested,omitempty"`
	Expenses                []ExpenseItem       `json:"expenses,omitempty"`
	ThirdPartyPayments      []ThirdPartyPayment `json:"third_party_payments,omitempty"`
}

// ExpenseItem is a single expense line
type ExpenseItem struct {
	Category                  ExpenseCategory `json:"category"`
	Description               string          `json:"description"`
	Vendor                    string          `json:"vendor,omitempty"`
	Amount                    decimal.Decimal `json:"amount"`
	ExpenseDate               time.Time       `json:"expense_date"`
	ReceiptAttached           bool            `json:"receipt_attached"`
	ThirdPartyPaid            bool            `json:"third_party_paid,omitempty"`
	ThirdPartyPaidExplanation string          `json:"third_party_paid_explanation,omitempty"`
}

// Validate checks amount and third-party explanation constraints
func (e ExpenseItem) Validate() error {
	if !ValidCategory(e.Category) {
		return &ValidationError{Field: "category", Reason: "unknown expense category " + string(e.Category)}
	}
	if e.Amount.IsNegative() {
		return &ValidationError{Field: "amount", Reason: "must not be negative"}
	}
	if e.ThirdPartyPaid && e.ThirdPartyPaidExplanation == "" {
		return &ValidationError{Field: "third_party_paid_explanation", Reason: "required when a third party paid"}
	}
	return nil
}

// ReimbursableAmount excludes third-party paid expenses
func (e ExpenseItem) ReimbursableAmount() decimal.Decimal {
	if e.ThirdPartyPaid {
		return decimal.Zero
	}
	return e.Amount
}

// ExpenseReport groups expenses submitted for reimbursement
type ExpenseReport struct {
	ReportID     string        `json:"report_id"`
	TripID       string        `json:"trip_id"`
	TravelerName string        `json:"traveler_name"`
	CostCenter   string        `json:"cost_center,omitempty"`
	Expenses     []ExpenseItem `json:"expenses"`
}

// TotalAmount sums reimbursable amounts
func (r ExpenseReport) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, e := range r.Expenses {
		total = total.Add(e.ReimbursableAmount())
	}
	return total
}

// DaysBetween counts calendar days from a to b, ignoring time of day
func DaysBetween(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
