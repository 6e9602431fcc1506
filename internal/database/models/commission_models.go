package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CommissionTier struct {
	Base
	Name             string          `gorm:"uniqueIndex;not null" json:"name"`
	Level            int             `gorm:"uniqueIndex;not null" json:"level"`
	OPPercents       DecimalArray    `gorm:"type:jsonb;not null" json:"op_percents"`
	ProfitSplits     DecimalArray    `gorm:"type:jsonb;not null" json:"profit_splits"`
	MinMarginPercent decimal.Decimal `gorm:"type:decimal(7,4);not null" json:"min_margin_percent"`
	IsActive         bool            `gorm:"default:true" json:"is_active"`
}

type CommissionDocument struct {
	Base
	RepID        uuid.UUID `gorm:"type:uuid;index;not null" json:"rep_id"`
	JobName      string    `gorm:"not null" json:"job_name"`
	JobNumber    string    `gorm:"index" json:"job_number"`
	CustomerName string    `json:"customer_name"`

	GrossContractTotal decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"gross_contract_total"`
	OPPercent          decimal.Decimal `gorm:"type:decimal(7,4);not null" json:"op_percent"`
	Materials          decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"materials"`
	Labor              decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"labor"`
	Permits            decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"permits"`
	Dumpster           decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"dumpster"`
	Supplements        decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"supplements"`
	OtherExpenses      decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"other_expenses"`
	CommissionRate     decimal.Decimal `gorm:"type:decimal(7,4);not null" json:"commission_rate"`
	AdvanceTotal       decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"advance_total"`

	OPAmount         decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"op_amount"`
	NetContractTotal decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"net_contract_total"`
	TotalExpenses    decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"total_expenses"`
	NetProfit        decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"net_profit"`
	RepCommission    decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"rep_commission"`
	CompanyProfit    decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"company_profit"`
	BalanceDueRep    decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"balance_due_rep"`
	MarginPercent    decimal.Decimal `gorm:"type:decimal(9,2);not null" json:"margin_percent"`
	TierDrops        int             `gorm:"not null;default:0" json:"tier_drops"`
	EffectiveTierID  *uuid.UUID      `gorm:"type:uuid" json:"effective_tier_id,omitempty"`

	Status      string     `gorm:"index;not null" json:"status"`
	ReviewedBy  *uuid.UUID `gorm:"type:uuid" json:"reviewed_by,omitempty"`
	ReviewNotes *string    `gorm:"type:text" json:"review_notes,omitempty"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
	Notes       *string    `gorm:"type:text" json:"notes,omitempty"`
}

type CommissionSubmission struct {
	Base
	RepID            uuid.UUID       `gorm:"type:uuid;index;not null" json:"rep_id"`
	DocumentID       *uuid.UUID      `gorm:"type:uuid;index" json:"document_id,omitempty"`
	JobName          string          `gorm:"not null" json:"job_name"`
	JobNumber        string          `gorm:"index" json:"job_number"`
	CustomerName     string          `json:"customer_name"`
	ContractAmount   decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"contract_amount"`
	CommissionAmount decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"commission_amount"`
	Status           string          `gorm:"index;not null" json:"status"`

	ApprovedBy           *uuid.UUID       `gorm:"type:uuid" json:"approved_by,omitempty"`
	AccountingApprovedBy *uuid.UUID       `gorm:"type:uuid" json:"accounting_approved_by,omitempty"`
	PaidBy               *uuid.UUID       `gorm:"type:uuid" json:"paid_by,omitempty"`
	DrawApplied          decimal.Decimal  `gorm:"type:decimal(18,2);not null" json:"draw_applied"`
	NetPayout            *decimal.Decimal `gorm:"type:decimal(18,2)" json:"net_payout,omitempty"`
	PaidAt               *time.Time       `json:"paid_at,omitempty"`
	PaymentReference     *string          `json:"payment_reference,omitempty"`
	Notes                *string          `gorm:"type:text" json:"notes,omitempty"`
}

// CommissionStatusEvent is an append-only record of one status change.
type CommissionStatusEvent struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	EntityType string    `gorm:"index:idx_status_event_entity;not null" json:"entity_type"`
	EntityID   uuid.UUID `gorm:"type:uuid;index:idx_status_event_entity;not null" json:"entity_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `gorm:"not null" json:"to_status"`
	ActorID    uuid.UUID `gorm:"type:uuid;not null" json:"actor_id"`
	Note       *string   `gorm:"type:text" json:"note,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

const (
	DrawOutstanding = "outstanding"
	DrawSettled     = "settled"
)

type Draw struct {
	Base
	RepID            uuid.UUID       `gorm:"type:uuid;index;not null" json:"rep_id"`
	Amount           decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	RemainingBalance decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"remaining_balance"`
	Reason           string          `gorm:"type:text" json:"reason"`
	Status           string          `gorm:"index;not null" json:"status"`
	IssuedBy         uuid.UUID       `gorm:"type:uuid;not null" json:"issued_by"`
	IssuedAt         time.Time       `gorm:"not null" json:"issued_at"`

	Applications []DrawApplication `gorm:"foreignKey:DrawID" json:"applications,omitempty"`
}

type DrawApplication struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	DrawID       uuid.UUID       `gorm:"type:uuid;index;not null" json:"draw_id"`
	SubmissionID uuid.UUID       `gorm:"type:uuid;index;not null" json:"submission_id"`
	Amount       decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}
