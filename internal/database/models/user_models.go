package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	EmploymentActive     = "active"
	EmploymentOnLeave    = "on_leave"
	EmploymentTerminated = "terminated"
)

func ValidEmploymentStatus(s string) bool {
	switch s {
	case EmploymentActive, EmploymentOnLeave, EmploymentTerminated:
		return true
	}
	return false
}

type Profile struct {
	Base
	Email            string     `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash     string     `gorm:"not null" json:"-"`
	FirstName        string     `gorm:"not null" json:"first_name"`
	LastName         string     `gorm:"not null" json:"last_name"`
	Phone            *string    `json:"phone,omitempty"`
	Role             string     `gorm:"index;not null" json:"role"`
	Department       string     `gorm:"index" json:"department"`
	EmploymentStatus string     `gorm:"index;not null;default:active" json:"employment_status"`
	CommissionTierID *uuid.UUID `gorm:"type:uuid" json:"commission_tier_id,omitempty"`
	LastLogin        *time.Time `json:"last_login,omitempty"`
}

func (p Profile) FullName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}
