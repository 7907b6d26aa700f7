package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// Event names delivered to subscribers.
const (
	EventStatusUpdate = "status_update"
	EventNewTask      = "new_task"
)

// UserChannel is the private subscriber key of a user.
func UserChannel(userID uuid.UUID) string {
	return fmt.Sprintf("user:%s", userID)
}

// RoleChannel is the shared subscriber key of a reviewer role.
func RoleChannel(role Role) string {
	return fmt.Sprintf("role:%s", role)
}

// QueueRoleFor returns the role whose work queue an order enters in status s.
func QueueRoleFor(s Status) (Role, bool) {
	switch s {
	case StatusAwaitingCS1Verification:
		return RoleCS1, true
	case StatusAwaitingCS2Processing:
		return RoleCS2, true
	}
	return "", false
}
