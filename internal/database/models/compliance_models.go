package models

import (
	"time"

	"github.com/google/uuid"
)

type SOPDocument struct {
	Base
	Number        string      `gorm:"uniqueIndex;not null" json:"number"`
	Title         string      `gorm:"not null" json:"title"`
	Version       int         `gorm:"not null;default:1" json:"version"`
	Summary       string      `gorm:"type:text" json:"summary"`
	BodyURL       string      `json:"body_url"`
	RequiredRoles StringArray `gorm:"type:jsonb" json:"required_roles"`
	IsActive      bool        `gorm:"default:true" json:"is_active"`
}

// RequiredFor reports whether role must acknowledge the document. An empty
// role list means everyone.
func (s SOPDocument) RequiredFor(role string) bool {
	return s.IsActive && (len(s.RequiredRoles) == 0 || s.RequiredRoles.Contains(role))
}

type SOPAcknowledgment struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_sop_ack;not null" json:"user_id"`
	SOPNumber      string    `gorm:"uniqueIndex:idx_sop_ack;not null" json:"sop_number"`
	Version        int       `gorm:"uniqueIndex:idx_sop_ack;not null" json:"version"`
	AcknowledgedAt time.Time `gorm:"not null" json:"acknowledged_at"`
}

const (
	HoldActive   = "active"
	HoldResolved = "resolved"
)

const (
	ActionCommissionPayment = "commission_payment"
	ActionInvoicing         = "invoicing"
	ActionScheduling        = "scheduling"
)

type ComplianceHold struct {
	Base
	UserID                  *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"`
	JobNumber               *string    `gorm:"index" json:"job_number,omitempty"`
	Reason                  string     `gorm:"type:text;not null" json:"reason"`
	BlocksCommissionPayment bool       `gorm:"not null;default:false" json:"blocks_commission_payment"`
	BlocksInvoicing         bool       `gorm:"not null;default:false" json:"blocks_invoicing"`
	BlocksScheduling        bool       `gorm:"not null;default:false" json:"blocks_scheduling"`
	Status                  string     `gorm:"index;not null" json:"status"`
	PlacedBy                uuid.UUID  `gorm:"type:uuid;not null" json:"placed_by"`
	ResolvedBy              *uuid.UUID `gorm:"type:uuid" json:"resolved_by,omitempty"`
	ResolvedAt              *time.Time `json:"resolved_at,omitempty"`
	ResolutionNote          *string    `gorm:"type:text" json:"resolution_note,omitempty"`
}

// Blocks reports whether an active hold stops action.
func (h ComplianceHold) Blocks(action string) bool {
	if h.Status != HoldActive {
		return false
	}
	switch action {
	case ActionCommissionPayment:
		return h.BlocksCommissionPayment
	case ActionInvoicing:
		return h.BlocksInvoicing
	case ActionScheduling:
		return h.BlocksScheduling
	}
	return false
}

const (
	ViolationOpen     = "open"
	ViolationResolved = "resolved"
)

func ValidSeverity(s string) bool {
	switch s {
	case "low", "medium", "high":
		return true
	}
	return false
}

type ComplianceViolation struct {
	Base
	UserID      uuid.UUID  `gorm:"type:uuid;index;not null" json:"user_id"`
	SOPNumber   *string    `json:"sop_number,omitempty"`
	JobNumber   *string    `json:"job_number,omitempty"`
	Description string     `gorm:"type:text;not null" json:"description"`
	Severity    string     `gorm:"not null" json:"severity"`
	Status      string     `gorm:"index;not null" json:"status"`
	HoldID      *uuid.UUID `gorm:"type:uuid" json:"hold_id,omitempty"`
	ReportedBy  uuid.UUID  `gorm:"type:uuid;not null" json:"reported_by"`
	ResolvedBy  *uuid.UUID `gorm:"type:uuid" json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}
