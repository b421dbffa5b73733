package service

import "tripdesk/internal/models"

// Caller is the authenticated principal of a request.
type Caller struct {
	UserID         int64
	Role           models.Role
	SalesPartnerID *int64
	DealerID       *int64
}

func (c Caller) IsAdmin() bool {
	return c.Role == models.RoleAdmin
}

// owns reports whether the caller may act on a reservation.
func (c Caller) owns(r *models.Reservation) bool {
	if c.IsAdmin() {
		return true
	}
	if r.CreatedBy != nil && *r.CreatedBy == c.UserID {
		return true
	}
	if r.SalesPartnerID != nil && c.SalesPartnerID != nil && *r.SalesPartnerID == *c.SalesPartnerID {
		return true
	}
	return false
}
