package domain

// Role is the acting user's role
type Role string

const (
	RoleWorker     Role = "worker"
	RoleSupervisor Role = "supervisor"
	RoleManager    Role = "manager"
	RoleAdmin      Role = "admin"
)

// RoleValues returns every known role
func RoleValues() []string {
	return []string{string(RoleWorker), string(RoleSupervisor), string(RoleManager), string(RoleAdmin)}
}

// IsSupervisory reports whether the role may run manager-only operations
func (r Role) IsSupervisory() bool {
	switch r {
	case RoleSupervisor, RoleManager, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsValid reports whether r is a known role
func (r Role) IsValid() bool {
	return r == RoleWorker || r.IsSupervisory()
}

// Actor identifies who requested an operation
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// RequireSupervisor fails with ErrForbidden unless the actor holds a supervisory role
func (a Actor) RequireSupervisor() error {
	if a.ID == "" || !a.Role.IsSupervisory() {
		return ErrForbidden
	}
	return nil
}

// CanActFor reports whether the actor may act on work owned by workerID
func (a Actor) CanActFor(workerID string) bool {
	return a.ID != "" && (a.ID == workerID || a.Role.IsSupervisory())
}
