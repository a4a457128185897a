// Package transferv1 declares the kelp.transfers.v1 gRPC API: message types, the service descriptor,
// a JSON codec and a typed client.
package transferv1

import "time"

// User is the caller's ledger entry.
type User struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	FullName           string    `json:"full_name,omitempty"`
	AvatarURL          string    `json:"avatar_url,omitempty"`
	Plan               string    `json:"plan"`
	UsageCurrentPeriod uint32    `json:"usage_current_period"`
	UsageLimit         uint32    `json:"usage_limit"`
	StorageUsed        uint64    `json:"storage_used"`
	StorageLimit       uint64    `json:"storage_limit"`
	CreatedAt          time.Time `json:"created_at"`
}

// Transfer is a transfer as seen by its owner.
type Transfer struct {
	ID              string    `json:"id"`
	SenderEmail     string    `json:"sender_email"`
	RecipientEmails []string  `json:"recipient_emails"`
	Title           string    `json:"title"`
	Status          string    `json:"status"`
	FileCount       uint32    `json:"file_count"`
	DeclaredSize    uint64    `json:"declared_size"`
	TotalSize       uint64    `json:"total_size"`
	ExpiresAt       time.Time `json:"expires_at"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type RegisterUserRequest struct {
	Email     string `json:"email"`
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type GetUsageRequest struct{}

// CreateTransferRequest registers a transfer. An empty ID lets the server generate one.
type CreateTransferRequest struct {
	ID              string    `json:"id,omitempty"`
	SenderEmail     string    `json:"sender_email"`
	RecipientEmails []string  `json:"recipient_emails"`
	Title           string    `json:"title"`
	TotalSize       uint64    `json:"total_size"`
	ExpiresAt       time.Time `json:"expires_at"`
}

type CreateTransferResponse struct {
	ID string `json:"id"`
}

type GetTransferRequest struct {
	ID string `json:"id"`
}

type AuthorizeChunkUploadRequest struct {
	TransferID string `json:"transfer_id"`
	FileID     string `json:"file_id"`
	ChunkIndex uint32 `json:"chunk_index"`
	ChunkSize  uint64 `json:"chunk_size"`
}

// UploadLocation is a pre-signed PUT for one chunk.
type UploadLocation struct {
	Path      string    `json:"path"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type RecordChunkProgressRequest struct {
	TransferID string `json:"transfer_id"`
	Files      uint32 `json:"files"`
	Bytes      uint64 `json:"bytes"`
}

type CompleteTransferRequest struct {
	TransferID string `json:"transfer_id"`
}

type ReconcileChargeRequest struct {
	TransferID string `json:"transfer_id"`
}

type ReconcileChargeResponse struct {
	Charged bool `json:"charged"`
}
