package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"google.golang.org/grpc"

	api "github.com/kelpcommercial/kelp-transfers/internal/api/transferv1"
)

// chunkAPI is the part of the client the uploader needs.
type chunkAPI interface {
	AuthorizeChunkUpload(ctx context.Context, in *api.AuthorizeChunkUploadRequest, opts ...grpc.CallOption) (*api.UploadLocation, error)
	RecordChunkProgress(ctx context.Context, in *api.RecordChunkProgressRequest, opts ...grpc.CallOption) (*api.Transfer, error)
}

// uploader pushes one file chunk by chunk: authorize, PUT to the signed URL, record progress.
type uploader struct {
	api       chunkAPI
	http      *http.Client
	chunkSize uint64
}

type uploadResult struct {
	Chunks   uint32        `json:"chunks"`
	Bytes    uint64        `json:"bytes"`
	Transfer *api.Transfer `json:"transfer"`
}

func (u *uploader) upload(ctx context.Context, transferID, fileID string, r io.Reader) (*uploadResult, error) {
	if u.chunkSize == 0 {
		return nil, errors.New("chunk size must be positive")
	}
	br := bufio.NewReader(r)
	buf := make([]byte, u.chunkSize)
	res := &uploadResult{}
	for idx := uint32(0); ; idx++ {
		n, err := io.ReadFull(br, buf)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return res, err
		}
		if n == 0 && idx > 0 {
			break
		}
		_, peekErr := br.Peek(1)
		last := errors.Is(peekErr, io.EOF)

		if n > 0 {
			loc, err := u.api.AuthorizeChunkUpload(ctx, &api.AuthorizeChunkUploadRequest{
				TransferID: transferID, FileID: fileID, ChunkIndex: idx, ChunkSize: uint64(n),
			})
			if err != nil {
				return res, fmt.Errorf("authorize chunk %d: %w", idx, err)
			}
			if err := u.put(ctx, loc.URL, buf[:n]); err != nil {
				return res, fmt.Errorf("upload chunk %d: %w", idx, err)
			}
			res.Chunks++
		}

		var files uint32
		if last {
			files = 1
		}
		t, err := u.api.RecordChunkProgress(ctx, &api.RecordChunkProgressRequest{
			TransferID: transferID, Files: files, Bytes: uint64(n),
		})
		if err != nil {
			return res, fmt.Errorf("record chunk %d: %w", idx, err)
		}
		res.Bytes += uint64(n)
		res.Transfer = t
		if last {
			break
		}
	}
	return res, nil
}

func (u *uploader) put(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.ContentLength = int64(len(body))
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := u.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("object store returned %s", resp.Status)
	}
	return nil
}

// cmdUpload uploads a local file into an existing transfer.
func cmdUpload(args []string, addr, caPath string, insecure bool) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	id := fs.String("id", "", "transfer id (uuid)")
	path := fs.String("path", "", "local file")
	fileID := fs.String("file", "", "file id (default: base name of -path)")
	chunk := fs.String("chunk-size", "8MiB", "chunk size")
	timeout := fs.Duration("timeout", 30*time.Minute, "overall timeout")
	_ = fs.Parse(args)
	if *id == "" || *path == "" {
		fmt.Fprintln(os.Stderr, "need -id and -path")
		os.Exit(2)
	}
	if *fileID == "" {
		*fileID = filepath.Base(*path)
	}
	size, err := parseSize(*chunk)
	if err != nil {
		fail(err)
	}

	f, err := os.Open(*path)
	if err != nil {
		fail(err)
	}
	defer f.Close()

	token, err := loadToken()
	if err != nil {
		fail(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	cc, cli, err := dial(ctx, addr, caPath, insecure, token)
	if err != nil {
		fail(err)
	}
	defer cc.Close()

	up := &uploader{api: cli, http: &http.Client{Timeout: 10 * time.Minute}, chunkSize: size}
	res, err := up.upload(ctx, *id, *fileID, f)
	if err != nil {
		fail(err)
	}
	printJSON(res)
}
