package storage

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/kelpcommercial/kelp-transfers/internal/errs"
)

type stubPresigner struct {
	url  string
	err  error
	keys []string
}

func (s *stubPresigner) PresignPut(_ context.Context, key string, _ time.Duration) (string, error) {
	s.keys = append(s.keys, key)
	return s.url, s.err
}

func TestChunkPath(t *testing.T) {
	id := uuid.FromStringOrNil("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	require.Equal(t, "transfers/6ba7b810-9dad-11d1-80b4-00c04fd430c8/report.pdf/chunk-0", ChunkPath(id, "report.pdf", 0))
	require.Equal(t, "transfers/6ba7b810-9dad-11d1-80b4-00c04fd430c8/f1/chunk-4294967295", ChunkPath(id, "f1", ^uint32(0)))
}

func TestChunkPath_Injective(t *testing.T) {
	a := uuid.Must(uuid.NewV4())
	b := uuid.Must(uuid.NewV4())
	seen := map[string]struct{}{}
	for _, tid := range []uuid.UUID{a, b} {
		for _, fid := range []string{"f", "f/chunk-1", "f%2F", "g h", "f/"} {
			for idx := uint32(0); idx < 3; idx++ {
				p := ChunkPath(tid, fid, idx)
				_, dup := seen[p]
				require.False(t, dup, "duplicate path %s", p)
				seen[p] = struct{}{}
			}
		}
	}
}

func TestIssuer_Issue(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	p := &stubPresigner{url: "https://store.example/put?sig=1"}
	is := NewIssuer(p)
	is.now = func() time.Time { return now }

	loc, err := is.Issue(context.Background(), "transfers/x/f/chunk-0", time.Hour)
	require.NoError(t, err)
	require.Equal(t, "transfers/x/f/chunk-0", loc.Path)
	require.Equal(t, p.url, loc.URL)
	require.Equal(t, now.Add(time.Hour), loc.ExpiresAt)
}

func TestIssuer_ProviderFailure(t *testing.T) {
	p := &stubPresigner{err: errors.New("endpoint unreachable")}
	_, err := NewIssuer(p).Issue(context.Background(), "k", time.Minute)
	require.ErrorIs(t, err, errs.ErrStorageUnavailable)
	require.Len(t, p.keys, 1, "no retry")
}

func TestIssuer_BadArguments(t *testing.T) {
	p := &stubPresigner{url: "u"}
	is := NewIssuer(p)
	_, err := is.Issue(context.Background(), "", time.Minute)
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
	_, err = is.Issue(context.Background(), "k", 0)
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
	_, err = is.Issue(context.Background(), "k", MaxURLTTL+time.Second)
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
	require.Empty(t, p.keys)
}

func TestS3Presigner_Offline(t *testing.T) {
	cfg := aws.Config{
		Region:      "us-east-1",
		Credentials: credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", ""),
	}
	p := NewS3PresignerFromConfig(cfg, "http://localhost:9000", "kelp")

	raw, err := p.PresignPut(context.Background(), "transfers/abc/f1/chunk-2", 15*time.Minute)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "localhost:9000", u.Host)
	require.Equal(t, "/kelp/transfers/abc/f1/chunk-2", u.Path)
	require.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
	require.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}

func TestMinioPresigner_Offline(t *testing.T) {
	p, err := NewMinioPresigner(S3Config{
		Endpoint:  "http://localhost:9000",
		Bucket:    "kelp",
		AccessKey: "minio",
		SecretKey: "minio123",
	})
	require.NoError(t, err)

	raw, err := p.PresignPut(context.Background(), "transfers/abc/f1/chunk-0", time.Hour)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "http", u.Scheme)
	require.True(t, strings.HasSuffix(u.Path, "/kelp/transfers/abc/f1/chunk-0"), u.Path)
	require.Equal(t, "3600", u.Query().Get("X-Amz-Expires"))
}

func TestMinioPresigner_Incomplete(t *testing.T) {
	_, err := NewMinioPresigner(S3Config{Bucket: "kelp"})
	require.Error(t, err)
}

func TestNormaliseEndpoint(t *testing.T) {
	h, secure, err := normaliseEndpoint("https://s3.wasabisys.com")
	require.NoError(t, err)
	require.Equal(t, "s3.wasabisys.com", h)
	require.True(t, secure)

	h, secure, err = normaliseEndpoint("minio:9000")
	require.NoError(t, err)
	require.Equal(t, "minio:9000", h)
	require.False(t, secure)

	_, _, err = normaliseEndpoint("http://")
	require.Error(t, err)
}
