package models

import "time"

// DeadLetter is an event that could not be processed after all retries.
type DeadLetter struct {
	ID         uint       `gorm:"primaryKey" json:"id" yaml:"id"`
	EventID    string     `gorm:"size:36;index" json:"event_id" yaml:"event_id"`
	EventType  string     `gorm:"size:64;not null" json:"event_type" yaml:"event_type"`
	Key        string     `gorm:"size:128" json:"key" yaml:"key"`
	Payload    string     `gorm:"type:text;not null" json:"payload" yaml:"payload"`
	Error      string     `gorm:"type:text" json:"error" yaml:"error"`
	Attempts   int        `json:"attempts" yaml:"attempts"`
	CreatedAt  time.Time  `json:"created_at" yaml:"created_at"`
	ReplayedAt *time.Time `json:"replayed_at,omitempty" yaml:"replayed_at,omitempty"`
}

// TableName specifies the table name for GORM
func (DeadLetter) TableName() string {
	return "dead_letters"
}
