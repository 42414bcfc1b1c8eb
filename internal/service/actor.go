package service

type Role string

const (
	RoleShopper   Role = "shopper"
	RoleTraveler  Role = "traveler"
	RoleScheduler Role = "scheduler"
)

func (r Role) Valid() bool {
	switch r {
	case RoleShopper, RoleTraveler, RoleScheduler:
		return true
	}
	return false
}

// Actor is the authenticated caller of an engine operation.
type Actor struct {
	UID  string
	Role Role
}

func (a Actor) require(role Role) error {
	if a.UID == "" {
		return forbidden("authentication required")
	}
	if a.Role != role {
		return forbidden("requires role " + string(role))
	}
	return nil
}
