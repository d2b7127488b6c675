// Package registry tracks who is subscribed to which regions, whether they
// want notifications, and who may run administrative commands.
package registry

import "errors"

// Role is a subscriber's privilege level. The super-admin is fixed by process
// configuration; admin is granted and revoked only by the super-admin.
type Role string

const (
	RoleRegular    Role = "regular"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super-admin"
)

// Subscriber is one chat user known to the bot. IDs are assigned by the
// transport.
type Subscriber struct {
	ID      int64    `json:"id"`
	Regions []string `json:"regions"`
	Notify  bool     `json:"notify"`
	Role    Role     `json:"role"`
}

// Sentinel errors returned by registry operations.
var (
	// ErrNotFound means the subscriber id has never registered.
	ErrNotFound = errors.New("subscriber not found")
	// ErrPermissionDenied means the actor lacks the role the operation
	// requires. No state changes when it is returned.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrAlreadyPrivileged means a grant targeted someone whose role already
	// covers admin (including the super-admin). No-op.
	ErrAlreadyPrivileged = errors.New("already privileged")
	// ErrUnknownRegion means a subscription referenced a region id outside
	// the configured table.
	ErrUnknownRegion = errors.New("unknown region")
)
