package domain

// Caller identifies the authenticated principal performing an operation.
type Caller struct {
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
}

// CanAccess reports whether the caller acts on behalf of the organization.
func (c Caller) CanAccess(organizationID string) bool {
	return c.OrganizationID != "" && c.OrganizationID == organizationID
}
