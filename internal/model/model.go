// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Plan is a named quota tier.
type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// Valid reports whether p is a known plan.
func (p Plan) Valid() bool { return p == PlanFree || p == PlanPro }

// User is an account as seen by the usage ledger. ID is the opaque subject issued by the identity provider.
type User struct {
	ID                 string
	Email              string
	FullName           string
	AvatarURL          string
	Plan               Plan
	UsageCurrentPeriod uint32 // transfers completed this period
	UsageLimit         uint32 // max transfers per period
	StorageUsed        uint64 // bytes charged this period
	StorageLimit       uint64 // max bytes per period
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// TransferStatus is the lifecycle state of a transfer.
type TransferStatus string

const (
	StatusPending    TransferStatus = "pending"
	StatusProcessing TransferStatus = "processing"
	StatusCompleted  TransferStatus = "completed"
	StatusExpired    TransferStatus = "expired"
)

// Terminal reports whether no further mutation is allowed in this state.
func (s TransferStatus) Terminal() bool { return s == StatusCompleted || s == StatusExpired }

// Valid reports whether s is a known status.
func (s TransferStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusExpired:
		return true
	}
	return false
}

// WritableStatuses are the states from which progress and completion are allowed.
var WritableStatuses = []TransferStatus{StatusPending, StatusProcessing}

// Transfer is a multi-recipient file transfer owned by the user that created it.
type Transfer struct {
	ID              uuid.UUID
	OwnerID         string
	SenderEmail     string
	RecipientEmails []string
	Title           string
	Status          TransferStatus
	FileCount       uint32
	DeclaredSize    uint64 // size announced at creation
	TotalSize       uint64 // bytes accumulated through recorded progress
	ExpiresAt       time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Expired reports whether the transfer is past its expiry at now, regardless of the stored status.
func (t *Transfer) Expired(now time.Time) bool {
	return t.Status == StatusExpired || !now.Before(t.ExpiresAt)
}

// Writable reports whether progress or completion may still be applied at now.
func (t *Transfer) Writable(now time.Time) bool {
	return !t.Status.Terminal() && !t.Expired(now)
}

// EffectiveStatus folds the passive expiry condition into the stored status.
func (t *Transfer) EffectiveStatus(now time.Time) TransferStatus {
	if !t.Status.Terminal() && t.Expired(now) {
		return StatusExpired
	}
	return t.Status
}

// BillableSize is what completion charges: the larger of the declared and the recorded size.
func (t *Transfer) BillableSize() uint64 {
	if t.TotalSize > t.DeclaredSize {
		return t.TotalSize
	}
	return t.DeclaredSize
}

// Progress is an increment request for a transfer, guarded by an upper bound on the resulting total.
type Progress struct {
	Files        uint32
	Bytes        uint64
	MaxTotalSize uint64    // checked under the row lock that guards the increment
	Now          time.Time // expiry reference
}

// Charge is the usage recorded for a completed transfer. TransferID is the idempotency key.
type Charge struct {
	TransferID uuid.UUID
	UserID     string
	Transfers  uint32
	Bytes      uint64
}

// UploadLocation is a derived object-store path paired with a time-boxed write credential.
type UploadLocation struct {
	Path      string
	URL       string
	ExpiresAt time.Time
}
