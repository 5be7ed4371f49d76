package client

import (
	"context"
	"fmt"
	"net/http"
)

// WalletAPI handles the company wallet: balance, fund reservations, top-ups
// and the transaction ledger.
type WalletAPI struct {
	client *Client
}

type reserveFundsRequest struct {
	ShiftID string `json:"shift_id"`
	Amount  int64  `json:"amount"`
}

type topUpRequest struct {
	Amount int64 `json:"amount"`
}

// Get returns the current wallet snapshot.
func (w *WalletAPI) Get(ctx context.Context) (*Wallet, error) {
	var wallet Wallet
	if err := w.client.getCached(ctx, "/company/wallet", &wallet); err != nil {
		return nil, err
	}
	return &wallet, nil
}

// ReserveFunds places a hold on wallet funds for a shift. A 402 response is
// returned as *InsufficientFundsError carrying the shortfall details.
func (w *WalletAPI) ReserveFunds(ctx context.Context, shiftID string, amount int64) (*Reservation, error) {
	var reservation Reservation
	path := fmt.Sprintf("/company/shifts/%s/reservations", shiftID)
	req := reserveFundsRequest{ShiftID: shiftID, Amount: amount}
	if err := w.client.do(ctx, http.MethodPost, path, req, &reservation); err != nil {
		return nil, err
	}
	w.client.cache.invalidate("/company/wallet")
	return &reservation, nil
}

// TopUp adds funds to the wallet.
func (w *WalletAPI) TopUp(ctx context.Context, amount int64) (*Wallet, error) {
	var wallet Wallet
	if err := w.client.do(ctx, http.MethodPost, "/company/wallet/topup", topUpRequest{Amount: amount}, &wallet); err != nil {
		return nil, err
	}
	w.client.cache.invalidate("/company/wallet")
	return &wallet, nil
}

// Transactions returns the wallet ledger, newest first.
func (w *WalletAPI) Transactions(ctx context.Context) ([]WalletTransaction, error) {
	var txns []WalletTransaction
	if err := w.client.getCached(ctx, "/company/wallet/transactions", &txns); err != nil {
		return nil, err
	}
	return txns, nil
}
