// Package convert maps between API messages and domain models.
package convert

import (
	"fmt"

	u "github.com/gofrs/uuid/v5"

	api "github.com/kelpcommercial/kelp-transfers/internal/api/transferv1"
	"github.com/kelpcommercial/kelp-transfers/internal/errs"
	model "github.com/kelpcommercial/kelp-transfers/internal/model"
	"github.com/kelpcommercial/kelp-transfers/internal/service"
)

// ParseID parses a transfer id; malformed or empty ids are ErrInvalidArgument.
func ParseID(s string) (u.UUID, error) {
	id, err := u.FromString(s)
	if err != nil || id == u.Nil {
		return u.Nil, fmt.Errorf("%w: bad transfer id %q", errs.ErrInvalidArgument, s)
	}
	return id, nil
}

// ToAPIUser converts a ledger entry.
func ToAPIUser(m *model.User) *api.User {
	if m == nil {
		return nil
	}
	return &api.User{
		ID:                 m.ID,
		Email:              m.Email,
		FullName:           m.FullName,
		AvatarURL:          m.AvatarURL,
		Plan:               string(m.Plan),
		UsageCurrentPeriod: m.UsageCurrentPeriod,
		UsageLimit:         m.UsageLimit,
		StorageUsed:        m.StorageUsed,
		StorageLimit:       m.StorageLimit,
		CreatedAt:          m.CreatedAt,
	}
}

// ToAPITransfer converts a transfer. The owner id is not exposed.
func ToAPITransfer(m *model.Transfer) *api.Transfer {
	if m == nil {
		return nil
	}
	return &api.Transfer{
		ID:              m.ID.String(),
		SenderEmail:     m.SenderEmail,
		RecipientEmails: append([]string(nil), m.RecipientEmails...),
		Title:           m.Title,
		Status:          string(m.Status),
		FileCount:       m.FileCount,
		DeclaredSize:    m.DeclaredSize,
		TotalSize:       m.TotalSize,
		ExpiresAt:       m.ExpiresAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// ToAPIUploadLocation converts an issued upload location.
func ToAPIUploadLocation(m model.UploadLocation) *api.UploadLocation {
	return &api.UploadLocation{Path: m.Path, URL: m.URL, ExpiresAt: m.ExpiresAt}
}

// FromAPICreateTransfer converts a create request into service input.
func FromAPICreateTransfer(in *api.CreateTransferRequest) (service.CreateTransferInput, error) {
	if in == nil {
		return service.CreateTransferInput{}, fmt.Errorf("%w: nil request", errs.ErrInvalidArgument)
	}
	var id u.UUID
	if in.ID != "" {
		var err error
		if id, err = ParseID(in.ID); err != nil {
			return service.CreateTransferInput{}, err
		}
	}
	return service.CreateTransferInput{
		ID:              id,
		SenderEmail:     in.SenderEmail,
		RecipientEmails: append([]string(nil), in.RecipientEmails...),
		Title:           in.Title,
		TotalSize:       in.TotalSize,
		ExpiresAt:       in.ExpiresAt,
	}, nil
}
