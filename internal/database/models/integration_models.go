package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CRMJob struct {
	Base
	ExternalID     string          `gorm:"uniqueIndex;not null" json:"external_id"`
	JobNumber      string          `gorm:"index" json:"job_number"`
	JobName        string          `json:"job_name"`
	CustomerName   string          `json:"customer_name"`
	Status         string          `gorm:"index" json:"status"`
	ContractAmount decimal.Decimal `gorm:"type:decimal(18,2)" json:"contract_amount"`
	SalesRepEmail  string          `gorm:"index" json:"sales_rep_email"`
	ModifiedAt     *time.Time      `json:"modified_at,omitempty"`
	Payload        string          `gorm:"type:jsonb" json:"-"`
	SyncedAt       time.Time       `gorm:"not null" json:"synced_at"`
}

const (
	EmailQueued = "queued"
	EmailSent   = "sent"
	EmailFailed = "failed"
)

type EmailLog struct {
	Base
	Template   string  `gorm:"index;not null" json:"template"`
	Recipients string  `gorm:"type:text;not null" json:"recipients"`
	Subject    string  `gorm:"not null" json:"subject"`
	Status     string  `gorm:"index;not null" json:"status"`
	Attempts   int     `gorm:"not null" json:"attempts"`
	ProviderID *string `json:"provider_id,omitempty"`
	Error      *string `gorm:"type:text" json:"error,omitempty"`
}
