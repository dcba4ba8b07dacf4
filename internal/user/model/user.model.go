package model

import "time"

const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
)

type Profile struct {
	Address   string    `json:"address"`
	Role      string    `json:"role"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SetRoleRequest struct {
	Role string `json:"role"`
}
