package api

import "time"

type Role string

const (
	InternalRole Role = "INTERNAL"
	AdminRole    Role = "ADMIN"
	EditorRole   Role = "EDITOR"
	ViewerRole   Role = "VIEWER"
)

func GetRole(s string) Role {
	switch Role(s) {
	case InternalRole, AdminRole, EditorRole, ViewerRole:
		return Role(s)
	default:
		return ViewerRole
	}
}

type PutRoleBindingRequest struct {
	UserID string `json:"userId" validate:"required"`
	Role   Role   `json:"role" validate:"required"`
}

type RoleBinding struct {
	UserID     string    `json:"userId"`
	Role       Role      `json:"role"`
	AssignedAt time.Time `json:"assignedAt"`
}
