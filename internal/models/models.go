package models

import (
	"encoding/json"
	"time"
)

type Organization struct {
	OrganizationID string            `json:"organization_id"`
	Name           string            `json:"name"`
	Settings       map[string]string `json:"settings,omitempty"`
	Active         bool              `json:"active"`
	CreatedAt      time.Time         `json:"created_at"`
}

type QueueSetting struct {
	OrganizationID     string     `json:"organization_id"`
	CustomerType       string     `json:"customer_type"`
	Prefix             string     `json:"prefix"`
	CurrentNumber      int        `json:"current_number"`
	MaxNumber          int        `json:"max_number"`
	ResetDaily         bool       `json:"reset_daily"`
	ResetTime          string     `json:"reset_time,omitempty"`
	LastResetAt        *time.Time `json:"last_reset_at,omitempty"`
	Active             bool       `json:"active"`
	PriorityMultiplier float64    `json:"priority_multiplier"`
}

type Counter struct {
	CounterID       string  `json:"counter_id"`
	OrganizationID  string  `json:"organization_id"`
	Name            string  `json:"name"`
	AssignedStaffID *string `json:"assigned_staff_id,omitempty"`
	Active          bool    `json:"active"`
}

type User struct {
	UserID         string    `json:"user_id"`
	OrganizationID string    `json:"organization_id"`
	Email          string    `json:"email"`
	Role           string    `json:"role"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

const (
	RoleStaff      = "staff"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

func ValidRole(role string) bool {
	switch role {
	case RoleStaff, RoleAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

type SystemLog struct {
	LogID          string          `json:"log_id"`
	OrganizationID string          `json:"organization_id"`
	ActorID        string          `json:"actor_id,omitempty"`
	Action         string          `json:"action"`
	EntityType     string          `json:"entity_type"`
	EntityID       string          `json:"entity_id,omitempty"`
	Details        json.RawMessage `json:"details,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}
