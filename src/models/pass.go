package models

import (
	"hallpass/src/types"
	"time"
)

type Pass struct {
	ID                string           `gorm:"primaryKey;type:uuid" json:"id"`
	Type              types.PassType   `gorm:"size:16;not null" json:"type"`
	StartTime         time.Time        `gorm:"not null;index" json:"startTime"`
	ReturnTime        *time.Time       `json:"returnTime"`
	ExpiresAt         time.Time        `gorm:"not null;index" json:"expiresAt"`
	Reason            string           `gorm:"not null" json:"reason"`
	Status            types.PassStatus `gorm:"size:16;not null;index" json:"status"`
	RejectReason      *string          `json:"rejectReason,omitempty"`
	StudentID         string           `gorm:"size:64;not null;index" json:"studentId"`
	TeacherID         string           `gorm:"size:64;not null;index" json:"teacherId"`
	VerificationToken string           `gorm:"size:64;not null;uniqueIndex" json:"-"`
	DecidedAt         *time.Time       `json:"decidedAt,omitempty"`
	CreatedAt         time.Time        `json:"createdAt"`
	UpdatedAt         time.Time        `json:"updatedAt"`
}

// Expired reports whether an approved pass is past its window at now.
func (p *Pass) Expired(now time.Time) bool {
	return p.Status == types.PASS_APPROVED && now.After(p.ExpiresAt)
}

// PassStatusChange is one row of a pass's append-only status history.
type PassStatusChange struct {
	ID      uint             `gorm:"primarykey" json:"-"`
	PassID  string           `gorm:"type:uuid;not null;index" json:"passId"`
	From    types.PassStatus `gorm:"size:16" json:"from"`
	To      types.PassStatus `gorm:"size:16;not null" json:"to"`
	ActorID string           `gorm:"size:64;not null" json:"actorId"`
	Reason  *string          `json:"reason,omitempty"`
	At      time.Time        `gorm:"not null;index" json:"at"`
}
