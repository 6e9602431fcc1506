package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Base is embedded by every table: a UUID key assigned on create plus
// timestamps.
type Base struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	newID(&b.ID)
	return nil
}

// StringArray is a JSON-encoded text column.
type StringArray []string

func (a *StringArray) Scan(value interface{}) error {
	raw, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("failed to scan StringArray: %w", err)
	}
	if raw == nil {
		*a = []string{}
		return nil
	}
	return json.Unmarshal(raw, a)
}

func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(a))
	return string(b), err
}

func (a StringArray) Contains(s string) bool {
	for _, v := range a {
		if v == s {
			return true
		}
	}
	return false
}

// DecimalArray is a JSON-encoded array of decimal strings.
type DecimalArray []decimal.Decimal

func (a *DecimalArray) Scan(value interface{}) error {
	raw, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("failed to scan DecimalArray: %w", err)
	}
	if raw == nil {
		*a = []decimal.Decimal{}
		return nil
	}
	return json.Unmarshal(raw, (*[]decimal.Decimal)(a))
}

func (a DecimalArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]decimal.Decimal(a))
	return string(b), err
}

func jsonBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported type %T", value)
	}
}

func newID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (e *CommissionStatusEvent) BeforeCreate(tx *gorm.DB) error {
	newID(&e.ID)
	return nil
}

func (a *DrawApplication) BeforeCreate(tx *gorm.DB) error {
	newID(&a.ID)
	return nil
}

func (a *SOPAcknowledgment) BeforeCreate(tx *gorm.DB) error {
	newID(&a.ID)
	return nil
}
