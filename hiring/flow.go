// Package hiring orchestrates the company-side worker acceptance flow: a
// client-driven two-step sequence that reserves wallet funds and then
// transitions the application to accepted. The two steps are not atomic; the
// flow's job is to classify exactly what committed when they diverge.
package hiring

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pentedigital/extrashifty/client"
)

// State is the position of one acceptance attempt in its state machine.
type State int

const (
	StateIdle State = iota
	StateReservingFunds
	StateFundsReserved
	StateUpdatingStatus
	StateAccepted
	StateInsufficientFunds
	StateReservationFailed
	StatePartialFailure
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReservingFunds:
		return "reserving_funds"
	case StateFundsReserved:
		return "funds_reserved"
	case StateUpdatingStatus:
		return "updating_status"
	case StateAccepted:
		return "accepted"
	case StateInsufficientFunds:
		return "insufficient_funds"
	case StateReservationFailed:
		return "reservation_failed"
	case StatePartialFailure:
		return "partial_failure"
	}
	return "unknown"
}

// Terminal reports whether the state ends the flow.
func (s State) Terminal() bool {
	switch s {
	case StateAccepted, StateInsufficientFunds, StateReservationFailed, StatePartialFailure:
		return true
	}
	return false
}

// Result is the terminal outcome of one acceptance attempt.
type Result struct {
	State          State
	ReservedAmount int64
	Reservation    *client.Reservation
	Application    *client.Application
	Err            error
}

// Message returns the user-facing text for the outcome. The partial-failure
// text must say that funds were reserved and direct the user to support: the
// user is never told an operation fully succeeded when only half of it did.
func (r Result) Message() string {
	switch r.State {
	case StateAccepted:
		name := "the worker"
		if r.Application != nil && r.Application.ApplicantName != "" {
			name = r.Application.ApplicantName
		}
		return fmt.Sprintf("Accepted %s. %d reserved for this shift.", name, r.ReservedAmount)
	case StateInsufficientFunds:
		return "Insufficient funds for this shift. Please top up your wallet."
	case StateReservationFailed:
		return "Could not accept the application. Nothing was charged; please try again."
	case StatePartialFailure:
		return "Funds were reserved but the application could not be updated. Please contact support."
	}
	return ""
}

// Flow runs acceptance attempts against the API.
type Flow struct {
	api    *client.Client
	logger *zap.Logger
}

// NewFlow creates an acceptance flow. A nil logger is replaced with a nop.
func NewFlow(api *client.Client, logger *zap.Logger) *Flow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flow{api: api, logger: logger}
}

// Accept runs the two-phase acceptance for a pending application.
//
// Step 1 reserves the shift cost from the company wallet; step 2 transitions
// the application to accepted. Step 2 is never issued before step 1 resolves
// successfully. When step 1 succeeds and step 2 fails, the outcome is
// StatePartialFailure: funds are held server-side and no automatic retry or
// compensation is attempted here. Reconciliation belongs to the backend's
// reservation expiry or to support staff.
//
// Before any network call, the currently known wallet balance is checked
// against the computed shift cost; a shortfall short-circuits to
// StateInsufficientFunds without touching the reservation endpoint. The
// check is advisory only; the backend remains authoritative.
func (f *Flow) Accept(ctx context.Context, app client.Application, shift client.Shift) Result {
	result := f.accept(ctx, app, shift)
	client.ObserveAcceptOutcome(result.State.String())
	return result
}

func (f *Flow) accept(ctx context.Context, app client.Application, shift client.Shift) Result {
	if !app.Status.CanTransitionTo(client.ApplicationAccepted) {
		return Result{
			State: StateReservationFailed,
			Err:   fmt.Errorf("application %s is %s, not pending", app.ID, app.Status),
		}
	}

	cost, err := ShiftCost(shift)
	if err != nil {
		return Result{State: StateReservationFailed, Err: err}
	}

	// Advisory balance precheck. An unreadable wallet falls through to the
	// reservation call, which is authoritative.
	if wallet, walletErr := f.api.Wallet().Get(ctx); walletErr == nil {
		if available := wallet.Available(); available < cost {
			f.logger.Info("accept short-circuited on balance",
				zap.String("application_id", app.ID),
				zap.Int64("cost", cost),
				zap.Int64("available", available))
			return Result{
				State: StateInsufficientFunds,
				Err: &client.InsufficientFundsError{
					Required:  cost,
					Available: available,
					Shortfall: cost - available,
				},
			}
		}
	}

	f.logger.Debug("reserving funds",
		zap.String("shift_id", shift.ID),
		zap.Int64("amount", cost))

	reservation, err := f.api.Wallet().ReserveFunds(ctx, shift.ID, cost)
	if err != nil {
		if errors.Is(err, client.ErrInsufficientFunds) {
			return Result{State: StateInsufficientFunds, Err: err}
		}
		// Nothing committed: step 2 was never attempted.
		return Result{State: StateReservationFailed, Err: fmt.Errorf("reserve funds: %w", err)}
	}

	updated, err := f.api.Applications().UpdateStatus(ctx, app.ID, client.ApplicationAccepted)
	if err != nil {
		// Funds are held but the application did not move. This divergence
		// is a dead end for the flow; it must be reported, not retried.
		f.logger.Error("funds reserved but status update failed",
			zap.String("application_id", app.ID),
			zap.String("reservation_id", reservation.ID),
			zap.Int64("amount", cost),
			zap.Error(err))
		return Result{
			State:          StatePartialFailure,
			ReservedAmount: cost,
			Reservation:    reservation,
			Err:            fmt.Errorf("funds reserved but application not updated: %w", err),
		}
	}

	f.logger.Info("application accepted",
		zap.String("application_id", app.ID),
		zap.Int64("reserved", cost))

	return Result{
		State:          StateAccepted,
		ReservedAmount: cost,
		Reservation:    reservation,
		Application:    updated,
	}
}

// Reject transitions a pending application to rejected. This is a single
// independent call with no funds interaction; on failure the caller simply
// retries.
func (f *Flow) Reject(ctx context.Context, app client.Application) (*client.Application, error) {
	if !app.Status.CanTransitionTo(client.ApplicationRejected) {
		return nil, fmt.Errorf("application %s is %s, not pending", app.ID, app.Status)
	}
	return f.api.Applications().UpdateStatus(ctx, app.ID, client.ApplicationRejected)
}
