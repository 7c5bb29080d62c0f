package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Job is a posting the portal already holds; the analysis pipeline reads it
// for target-job context and retrieves similar postings by embedding when the
// caller gives no target.
type Job struct {
	ID           uuid.UUID       `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Title        string          `gorm:"type:varchar(255)" json:"title"`
	Company      string          `gorm:"type:varchar(255)" json:"company"`
	Description  string          `gorm:"type:text" json:"description"`
	Requirements string          `gorm:"type:text" json:"requirements"`
	Embedding    pgvector.Vector `gorm:"type:vector(3072)" json:"-"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (j *Job) TableName() string {
	return "jobs"
}
