package client

import "time"

// Role identifies the account type a user authenticated as.
type Role string

const (
	RoleWorker  Role = "worker"
	RoleCompany Role = "company"
	RoleAgency  Role = "agency"
	RoleAdmin   Role = "admin"
)

// User is the authenticated account returned by the auth endpoints.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the result of a successful login or registration.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user,omitempty"`
}

// ApplicationStatus is the lifecycle state of a shift application.
type ApplicationStatus string

const (
	ApplicationPending   ApplicationStatus = "pending"
	ApplicationAccepted  ApplicationStatus = "accepted"
	ApplicationRejected  ApplicationStatus = "rejected"
	ApplicationWithdrawn ApplicationStatus = "withdrawn"
)

// CanTransitionTo reports whether the status transition is valid. Only
// pending applications move; every other status is terminal.
func (s ApplicationStatus) CanTransitionTo(next ApplicationStatus) bool {
	if s != ApplicationPending {
		return false
	}
	switch next {
	case ApplicationAccepted, ApplicationRejected, ApplicationWithdrawn:
		return true
	}
	return false
}

// Application is a worker's application to a shift.
type Application struct {
	ID            string            `json:"id"`
	ShiftID       string            `json:"shift_id"`
	ApplicantID   string            `json:"applicant_id"`
	ApplicantName string            `json:"applicant_name,omitempty"`
	Status        ApplicationStatus `json:"status"`
	AppliedAt     time.Time         `json:"applied_at"`
}

// Shift is a posted work shift. StartTime and EndTime are wall-clock "HH:MM"
// strings; an end time numerically before the start time means the shift
// crosses midnight. HourlyRate is in cents.
type Shift struct {
	ID         string    `json:"id"`
	CompanyID  string    `json:"company_id"`
	Title      string    `json:"title"`
	Position   string    `json:"position"`
	Date       string    `json:"date"`
	StartTime  string    `json:"start_time"`
	EndTime    string    `json:"end_time"`
	HourlyRate int64     `json:"hourly_rate"`
	Location   string    `json:"location,omitempty"`
	Status     string    `json:"status,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateShiftRequest is the payload for posting a new shift.
type CreateShiftRequest struct {
	Title      string `json:"title"`
	Position   string `json:"position"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	HourlyRate int64  `json:"hourly_rate"`
	Location   string `json:"location,omitempty"`
}

// MarketplaceFilter narrows the marketplace shift listing.
type MarketplaceFilter struct {
	Position string
	Date     string
}

// Wallet is the company wallet balance snapshot. Amounts are in cents.
type Wallet struct {
	Balance  int64  `json:"balance"`
	Reserved int64  `json:"reserved"`
	Currency string `json:"currency"`
}

// Available returns the spendable balance after active reservations.
func (w Wallet) Available() int64 {
	return w.Balance - w.Reserved
}

// ReservationStatus is the lifecycle state of a fund reservation.
const (
	ReservationPending  = "pending"
	ReservationConsumed = "consumed"
	ReservationReleased = "released"
)

// Reservation is a hold on wallet funds against a shift.
type Reservation struct {
	ID        string    `json:"id"`
	ShiftID   string    `json:"shift_id"`
	Amount    int64     `json:"amount"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// WalletTransaction is one entry in the wallet ledger.
type WalletTransaction struct {
	ID           string    `json:"id"`
	TxType       string    `json:"tx_type"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
	ReferenceID  string    `json:"reference_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Invoice is a billing document issued to a company.
type Invoice struct {
	ID        string    `json:"id"`
	Number    string    `json:"number"`
	AmountDue int64     `json:"amount_due"`
	Status    string    `json:"status"`
	IssuedAt  time.Time `json:"issued_at"`
	DueAt     time.Time `json:"due_at"`
}
