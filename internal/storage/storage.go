// Package storage derives object-store paths for transfer chunks and issues time-boxed upload URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/kelpcommercial/kelp-transfers/internal/errs"
	"github.com/kelpcommercial/kelp-transfers/internal/model"
)

// MaxURLTTL is the longest validity S3-compatible providers accept for a pre-signed URL.
const MaxURLTTL = 7 * 24 * time.Hour

// Presigner signs a PUT for a single object key. Implementations never upload anything themselves.
type Presigner interface {
	PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// LocationIssuer turns a chunk path into an upload location.
type LocationIssuer interface {
	Issue(ctx context.Context, path string, ttl time.Duration) (model.UploadLocation, error)
}

// ChunkPath returns the object key of one chunk. The file id is path-escaped so distinct
// (transfer, file, chunk) triples never share a key.
func ChunkPath(transferID uuid.UUID, fileID string, chunkIndex uint32) string {
	return "transfers/" + transferID.String() + "/" + url.PathEscape(fileID) +
		"/chunk-" + strconv.FormatUint(uint64(chunkIndex), 10)
}

// Issuer implements LocationIssuer over a Presigner. Provider failures are not retried.
type Issuer struct {
	presigner Presigner
	now       func() time.Time
}

// NewIssuer constructs an Issuer.
func NewIssuer(p Presigner) *Issuer { return &Issuer{presigner: p, now: time.Now} }

// Issue signs a PUT for path valid for ttl.
func (i *Issuer) Issue(ctx context.Context, path string, ttl time.Duration) (model.UploadLocation, error) {
	if path == "" {
		return model.UploadLocation{}, fmt.Errorf("%w: empty object path", errs.ErrInvalidArgument)
	}
	if ttl <= 0 || ttl > MaxURLTTL {
		return model.UploadLocation{}, fmt.Errorf("%w: url ttl %s out of range", errs.ErrInvalidArgument, ttl)
	}
	issuedAt := i.now()
	u, err := i.presigner.PresignPut(ctx, path, ttl)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return model.UploadLocation{}, err
		}
		return model.UploadLocation{}, fmt.Errorf("%w: %w", errs.ErrStorageUnavailable, err)
	}
	return model.UploadLocation{Path: path, URL: u, ExpiresAt: issuedAt.Add(ttl)}, nil
}
