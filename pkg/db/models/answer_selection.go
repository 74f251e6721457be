package models

import "time"

// AnswerSelection records the answer picked for one question of a session.
type AnswerSelection struct {
	SessionID  string    `gorm:"column:session_id;type:text;primaryKey"`
	QuestionID string    `gorm:"column:question_id;type:text;primaryKey"`
	AnswerID   string    `gorm:"column:answer_id;type:text;not null"`
	SelectedAt time.Time `gorm:"column:selected_at;not null"`
}

func (AnswerSelection) TableName() string { return "quiz_answer_selections" }
