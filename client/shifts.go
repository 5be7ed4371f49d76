package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// ShiftsAPI handles shift postings on the company side and the marketplace
// on the worker side.
type ShiftsAPI struct {
	client *Client
}

// Create posts a new shift for the authenticated company.
func (s *ShiftsAPI) Create(ctx context.Context, req CreateShiftRequest) (*Shift, error) {
	var shift Shift
	if err := s.client.do(ctx, http.MethodPost, "/company/shifts", req, &shift); err != nil {
		return nil, err
	}
	s.client.cache.invalidate("/company/shifts")
	return &shift, nil
}

// List returns the authenticated company's shifts.
func (s *ShiftsAPI) List(ctx context.Context) ([]Shift, error) {
	var shifts []Shift
	if err := s.client.getCached(ctx, "/company/shifts", &shifts); err != nil {
		return nil, err
	}
	return shifts, nil
}

// Marketplace returns open shifts visible to the authenticated worker.
func (s *ShiftsAPI) Marketplace(ctx context.Context, filter MarketplaceFilter) ([]Shift, error) {
	path := "/shifts/marketplace"
	query := url.Values{}
	if filter.Position != "" {
		query.Set("position", filter.Position)
	}
	if filter.Date != "" {
		query.Set("date", filter.Date)
	}
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var shifts []Shift
	if err := s.client.getCached(ctx, path, &shifts); err != nil {
		return nil, err
	}
	return shifts, nil
}

// Apply submits the authenticated worker's application to a shift.
func (s *ShiftsAPI) Apply(ctx context.Context, shiftID string) (*Application, error) {
	var app Application
	path := fmt.Sprintf("/shifts/%s/applications", shiftID)
	if err := s.client.do(ctx, http.MethodPost, path, nil, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// Withdraw removes the worker's application from a shift.
func (s *ShiftsAPI) Withdraw(ctx context.Context, shiftID, applicationID string) error {
	path := fmt.Sprintf("/shifts/%s/applications/%s", shiftID, applicationID)
	return s.client.do(ctx, http.MethodDelete, path, nil, nil)
}
