package models

import (
	"time"

	"github.com/google/uuid"
)

type Subcontractor struct {
	Base
	CompanyName        string     `gorm:"index;not null" json:"company_name"`
	ContactName        string     `json:"contact_name"`
	Email              string     `json:"email"`
	Phone              string     `json:"phone"`
	Trade              string     `gorm:"index" json:"trade"`
	InsuranceExpiresAt *time.Time `json:"insurance_expires_at,omitempty"`
	Status             string     `gorm:"index;not null" json:"status"`
	Notes              *string    `gorm:"type:text" json:"notes,omitempty"`
}

type Vendor struct {
	Base
	CompanyName   string  `gorm:"index;not null" json:"company_name"`
	ContactName   string  `json:"contact_name"`
	Email         string  `json:"email"`
	Phone         string  `json:"phone"`
	Category      string  `gorm:"index" json:"category"`
	AccountNumber string  `json:"account_number"`
	Status        string  `gorm:"index;not null" json:"status"`
	Notes         *string `gorm:"type:text" json:"notes,omitempty"`
}

type Prospect struct {
	Base
	Name          string     `gorm:"index;not null" json:"name"`
	ContactName   string     `json:"contact_name"`
	Email         string     `json:"email"`
	Phone         string     `json:"phone"`
	Source        string     `json:"source"`
	AssignedRepID *uuid.UUID `gorm:"type:uuid;index" json:"assigned_rep_id,omitempty"`
	Status        string     `gorm:"index;not null" json:"status"`
	Notes         *string    `gorm:"type:text" json:"notes,omitempty"`
}

type TrainingMaterial struct {
	Base
	Title         string      `gorm:"not null" json:"title"`
	Category      string      `gorm:"index" json:"category"`
	Description   string      `gorm:"type:text" json:"description"`
	ResourceURL   string      `gorm:"not null" json:"resource_url"`
	Kind          string      `gorm:"not null" json:"kind"`
	RequiredRoles StringArray `gorm:"type:jsonb" json:"required_roles"`
	IsPublished   bool        `gorm:"default:false" json:"is_published"`
	CreatedBy     uuid.UUID   `gorm:"type:uuid" json:"created_by"`
}

// VisibleTo reports whether role may see the material. An empty role list
// means everyone.
func (m TrainingMaterial) VisibleTo(role string) bool {
	return len(m.RequiredRoles) == 0 || m.RequiredRoles.Contains(role)
}

const (
	SubcontractorPending  = "pending"
	SubcontractorApproved = "approved"
	SubcontractorInactive = "inactive"
	SubcontractorDoNotUse = "do_not_use"
)

const (
	VendorActive   = "active"
	VendorInactive = "inactive"
)

const (
	ProspectNew       = "new"
	ProspectContacted = "contacted"
	ProspectQualified = "qualified"
	ProspectConverted = "converted"
	ProspectLost      = "lost"
)

func ValidTrainingKind(k string) bool {
	switch k {
	case "document", "video", "link":
		return true
	}
	return false
}
