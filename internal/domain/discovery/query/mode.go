package query

// SortMode selects the primary ranking criterion.
type SortMode string

// Sort mode constants.
const (
	// Mixed puts the requester and priority candidates first, then ranks by
	// distance when a center is given, otherwise by recency.
	Mixed    SortMode = "mixed"
	Distance SortMode = "distance"
	Recency  SortMode = "recency"
)

// IsValid checks if the mode is one of the supported values.
func (m SortMode) IsValid() bool {
	return m == Mixed || m == Distance || m == Recency
}

// Role is the requester's privilege level.
type Role string

// Role constants.
const (
	RoleNormal   Role = "normal"
	RoleElevated Role = "elevated"
)

// ParseRole maps unknown or empty roles to RoleNormal.
func ParseRole(s string) Role {
	if Role(s) == RoleElevated {
		return RoleElevated
	}
	return RoleNormal
}

// Requester identifies who is asking.
type Requester struct {
	ID   string
	Role Role
}

// Elevated reports whether privilege-gated filters are honored.
func (r Requester) Elevated() bool { return r.Role == RoleElevated }
