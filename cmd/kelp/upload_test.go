package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"google.golang.org/grpc"

	api "github.com/kelpcommercial/kelp-transfers/internal/api/transferv1"
)

type fakeChunkAPI struct {
	base      string
	authErr   error
	authorize []*api.AuthorizeChunkUploadRequest
	progress  []*api.RecordChunkProgressRequest
	total     uint64
}

func (f *fakeChunkAPI) AuthorizeChunkUpload(_ context.Context, in *api.AuthorizeChunkUploadRequest, _ ...grpc.CallOption) (*api.UploadLocation, error) {
	if f.authErr != nil {
		return nil, f.authErr
	}
	f.authorize = append(f.authorize, in)
	return &api.UploadLocation{URL: f.base + "/put/" + in.FileID}, nil
}

func (f *fakeChunkAPI) RecordChunkProgress(_ context.Context, in *api.RecordChunkProgressRequest, _ ...grpc.CallOption) (*api.Transfer, error) {
	f.progress = append(f.progress, in)
	f.total += in.Bytes
	return &api.Transfer{ID: in.TransferID, Status: "processing", TotalSize: f.total}, nil
}

type store struct {
	mu     sync.Mutex
	chunks [][]byte
	status int
}

func (s *store) handler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	b, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != 0 {
		w.WriteHeader(s.status)
		return
	}
	s.chunks = append(s.chunks, b)
}

func newUploader(t *testing.T, chunk uint64) (*uploader, *fakeChunkAPI, *store) {
	t.Helper()
	st := &store{}
	srv := httptest.NewServer(http.HandlerFunc(st.handler))
	t.Cleanup(srv.Close)
	fa := &fakeChunkAPI{base: srv.URL}
	return &uploader{api: fa, http: srv.Client(), chunkSize: chunk}, fa, st
}

func Test_upload_SplitsIntoChunks(t *testing.T) {
	t.Parallel()
	up, fa, st := newUploader(t, 4)

	res, err := up.upload(context.Background(), "tid", "f.bin", strings.NewReader("abcdefghij"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.Chunks != 3 || res.Bytes != 10 || res.Transfer.TotalSize != 10 {
		t.Fatalf("result: %+v", res)
	}
	if got := bytes.Join(st.chunks, nil); string(got) != "abcdefghij" {
		t.Fatalf("stored %q", got)
	}
	for i, a := range fa.authorize {
		if a.ChunkIndex != uint32(i) || a.FileID != "f.bin" || a.TransferID != "tid" {
			t.Fatalf("authorize[%d]=%+v", i, a)
		}
	}
	if fa.authorize[2].ChunkSize != 2 {
		t.Fatalf("last chunk size %d", fa.authorize[2].ChunkSize)
	}
	var files uint32
	for _, p := range fa.progress {
		files += p.Files
	}
	if files != 1 || fa.progress[len(fa.progress)-1].Files != 1 {
		t.Fatalf("the file must be counted once, on the last chunk: %+v", fa.progress)
	}
}

func Test_upload_ExactMultiple(t *testing.T) {
	t.Parallel()
	up, fa, _ := newUploader(t, 4)

	res, err := up.upload(context.Background(), "tid", "f", strings.NewReader("abcdefgh"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.Chunks != 2 || len(fa.progress) != 2 || fa.progress[1].Files != 1 {
		t.Fatalf("result=%+v progress=%+v", res, fa.progress)
	}
}

func Test_upload_EmptyFile(t *testing.T) {
	t.Parallel()
	up, fa, st := newUploader(t, 4)

	res, err := up.upload(context.Background(), "tid", "f", strings.NewReader(""))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.Chunks != 0 || len(fa.authorize) != 0 || len(st.chunks) != 0 {
		t.Fatalf("empty file must not upload chunks: %+v", res)
	}
	if len(fa.progress) != 1 || fa.progress[0].Files != 1 || fa.progress[0].Bytes != 0 {
		t.Fatalf("empty file still counts: %+v", fa.progress)
	}
}

func Test_upload_StoreRejects(t *testing.T) {
	t.Parallel()
	up, fa, st := newUploader(t, 4)
	st.status = http.StatusForbidden

	_, err := up.upload(context.Background(), "tid", "f", strings.NewReader("abc"))
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("want 403 error, got %v", err)
	}
	if len(fa.progress) != 0 {
		t.Fatalf("progress must not be recorded for a failed PUT")
	}
}

func Test_upload_AuthorizeDenied(t *testing.T) {
	t.Parallel()
	up, fa, st := newUploader(t, 4)
	fa.authErr = errors.New("quota exceeded")

	_, err := up.upload(context.Background(), "tid", "f", strings.NewReader("abc"))
	if err == nil || !strings.Contains(err.Error(), "authorize chunk 0") {
		t.Fatalf("want authorize error, got %v", err)
	}
	if len(st.chunks) != 0 {
		t.Fatalf("nothing must be stored")
	}
}

func Test_upload_ZeroChunkSize(t *testing.T) {
	t.Parallel()
	up := &uploader{chunkSize: 0}
	if _, err := up.upload(context.Background(), "t", "f", strings.NewReader("x")); err == nil {
		t.Fatalf("zero chunk size must fail")
	}
}
