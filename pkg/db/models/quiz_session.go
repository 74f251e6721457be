package models

import (
	"errors"
	"time"
)

// QuizSession is one shopper's run through a storefront quiz.
type QuizSession struct {
	ID          string     `gorm:"column:id;type:text;primaryKey"`
	ShopID      string     `gorm:"column:shop_id;type:text;not null;index:idx_quiz_sessions_shop_started,priority:1"`
	QuizID      string     `gorm:"column:quiz_id;type:text;not null"`
	StartedAt   time.Time  `gorm:"column:started_at;not null;index:idx_quiz_sessions_shop_started,priority:2"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
	Completed   bool       `gorm:"column:completed;not null;default:false"`
	CustomerID  *string    `gorm:"column:customer_id;type:text"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (QuizSession) TableName() string { return "quiz_sessions" }

// HasCustomer reports whether a non-empty customer reference is recorded.
func (s QuizSession) HasCustomer() bool {
	return s.CustomerID != nil && *s.CustomerID != ""
}

// Validate enforces the completion invariants.
func (s QuizSession) Validate() error {
	if s.Completed != (s.CompletedAt != nil) {
		return errors.New("completed flag and completed_at disagree")
	}
	if s.CompletedAt != nil && s.CompletedAt.Before(s.StartedAt) {
		return errors.New("completed_at precedes started_at")
	}
	return nil
}
