package repo

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// LeadText mirrors the lead_texts table read and written by PostgresMessageRepo.
type LeadText struct {
	ID              string  `gorm:"type:uuid;primaryKey"`
	OrgID           string  `gorm:"not null;index:idx_lead_texts_dispatch,priority:1"`
	LeadID          *string `gorm:"type:uuid;index"`
	Number          string  `gorm:"type:varchar(20);not null"`
	FromNumber      string  `gorm:"type:varchar(20);not null"`
	Message         string  `gorm:"type:text;not null"`
	Direction       string  `gorm:"type:varchar(10);not null;index:idx_lead_texts_dispatch,priority:2"`
	Status          string  `gorm:"type:varchar(10);not null;index:idx_lead_texts_dispatch,priority:3"`
	TelnyxMessageID *string `gorm:"type:varchar(64)"`
	Error           *string `gorm:"type:text"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (LeadText) TableName() string { return "lead_texts" }

type Lead struct {
	ID            string  `gorm:"type:uuid;primaryKey"`
	OrgID         string  `gorm:"not null;index"`
	Phone         string  `gorm:"type:varchar(20);not null;index"`
	OptIn         *bool   `gorm:"column:opt_in"`
	MessageStatus *string `gorm:"type:varchar(10)"`
}

func (Lead) TableName() string { return "leads" }

type LeadTextPrompt struct {
	OrgID        string  `gorm:"primaryKey"`
	ReplyMessage *string `gorm:"type:text"`
}

func (LeadTextPrompt) TableName() string { return "lead_text_prompt" }

// OpenGorm wraps an existing pgx-backed *sql.DB so migrations share its pool.
func OpenGorm(db *sql.DB) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
}

func Migrate(ctx context.Context, gdb *gorm.DB) error {
	return gdb.WithContext(ctx).AutoMigrate(&LeadText{}, &Lead{}, &LeadTextPrompt{})
}
