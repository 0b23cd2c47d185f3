package types

import "time"

type JSONB map[string]any

type PassType string

const (
	PASS_EARLY_LEAVE PassType = "EARLY_LEAVE"
	PASS_OUTING      PassType = "OUTING"
)

func (t PassType) Valid() bool {
	return t == PASS_EARLY_LEAVE || t == PASS_OUTING
}

type PassStatus string

const (
	PASS_PENDING  PassStatus = "PENDING"
	PASS_APPROVED PassStatus = "APPROVED"
	PASS_REJECTED PassStatus = "REJECTED"
	PASS_EXPIRED  PassStatus = "EXPIRED"
)

// VERDICT_INVALID is reported by verification for unknown passes and bad hashes alike.
const VERDICT_INVALID = "INVALID"

// SYSTEM_ACTOR is recorded in the status history for transitions no user requested.
const SYSTEM_ACTOR = "system"

type PassEventType string

const (
	PASS_EVENT_CREATED  PassEventType = "pass.created"
	PASS_EVENT_APPROVED PassEventType = "pass.approved"
	PASS_EVENT_REJECTED PassEventType = "pass.rejected"
	PASS_EVENT_EXPIRED  PassEventType = "pass.expired"
)

type CreatePassRequestBody struct {
	Type       string  `json:"type" binding:"required,passtype"`
	StartTime  string  `json:"startTime" binding:"required,isotime"`
	// ReturnTime is checked by the service, and only for outings.
	ReturnTime *string `json:"returnTime"`
	Reason     string  `json:"reason" binding:"required"`
	TeacherID  string  `json:"teacherId" binding:"required"`
}

type VerifyPassRequestBody struct {
	ID   string `json:"id" binding:"required"`
	Hash string `json:"hash" binding:"required"`
}

type RejectPassRequestBody struct {
	Reason string `json:"reason" binding:"required"`
}

type PassRequestParams struct {
	ID string `uri:"id" binding:"required,uuid"`
}

type APIResponsePassUser struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type APIResponsePass struct {
	ID           string              `json:"id"`
	Type         PassType            `json:"type"`
	StartTime    time.Time           `json:"startTime"`
	ReturnTime   *time.Time          `json:"returnTime"`
	ExpiresAt    time.Time           `json:"expiresAt"`
	Status       PassStatus          `json:"status"`
	Reason       string              `json:"reason"`
	RejectReason *string             `json:"rejectReason,omitempty"`
	Student      APIResponsePassUser `json:"student"`
	Teacher      APIResponsePassUser `json:"teacher"`
	QRCode       string              `json:"qrCode,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
	DecidedAt    *time.Time          `json:"decidedAt,omitempty"`
}

type APIResponseDecision struct {
	Pass    APIResponsePass `json:"pass"`
	Applied bool            `json:"applied"`
}

type APIResponseVerify struct {
	IsValid bool   `json:"isValid"`
	Status  string `json:"status"`
}
