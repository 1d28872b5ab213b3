package core

import "fmt"

// ErrNotFound is returned when reference validation fails within transactional helpers.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ErrPermission is returned when the acting role is not allowed to perform an operation.
type ErrPermission struct {
	Operation string
	Role      Role
}

func (e ErrPermission) Error() string {
	return fmt.Sprintf("role %s may not %s", e.Role, e.Operation)
}
