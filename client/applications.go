package client

import (
	"context"
	"fmt"
	"net/http"
)

// ApplicationsAPI handles application listing and status transitions.
type ApplicationsAPI struct {
	client *Client
}

type updateStatusRequest struct {
	Status ApplicationStatus `json:"status"`
}

// ListForShift returns the applications submitted to one of the company's
// shifts.
func (a *ApplicationsAPI) ListForShift(ctx context.Context, shiftID string) ([]Application, error) {
	var apps []Application
	path := fmt.Sprintf("/company/shifts/%s/applicants", shiftID)
	if err := a.client.getCached(ctx, path, &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

// UpdateStatus transitions an application to the given status. The backend
// is authoritative; no client-side validation is applied here so server
// errors surface unchanged.
func (a *ApplicationsAPI) UpdateStatus(ctx context.Context, applicationID string, status ApplicationStatus) (*Application, error) {
	var updated Application
	path := fmt.Sprintf("/applications/%s", applicationID)
	if err := a.client.do(ctx, http.MethodPatch, path, updateStatusRequest{Status: status}, &updated); err != nil {
		return nil, err
	}
	a.client.cache.invalidate("/company/shifts")
	return &updated, nil
}
