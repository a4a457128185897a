package transferv1

import (
	"context"

	"google.golang.org/grpc"
)

// Client calls the Transfers service using the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a connection.
func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RegisterUser(ctx context.Context, in *RegisterUserRequest, opts ...grpc.CallOption) (*User, error) {
	return invoke[User](ctx, c.cc, RegisterUserMethod, in, opts)
}

func (c *Client) GetUsage(ctx context.Context, in *GetUsageRequest, opts ...grpc.CallOption) (*User, error) {
	return invoke[User](ctx, c.cc, GetUsageMethod, in, opts)
}

func (c *Client) CreateTransfer(ctx context.Context, in *CreateTransferRequest, opts ...grpc.CallOption) (*CreateTransferResponse, error) {
	return invoke[CreateTransferResponse](ctx, c.cc, CreateTransferMethod, in, opts)
}

func (c *Client) GetTransfer(ctx context.Context, in *GetTransferRequest, opts ...grpc.CallOption) (*Transfer, error) {
	return invoke[Transfer](ctx, c.cc, GetTransferMethod, in, opts)
}

func (c *Client) AuthorizeChunkUpload(ctx context.Context, in *AuthorizeChunkUploadRequest, opts ...grpc.CallOption) (*UploadLocation, error) {
	return invoke[UploadLocation](ctx, c.cc, AuthorizeChunkUploadMethod, in, opts)
}

func (c *Client) RecordChunkProgress(ctx context.Context, in *RecordChunkProgressRequest, opts ...grpc.CallOption) (*Transfer, error) {
	return invoke[Transfer](ctx, c.cc, RecordChunkProgressMethod, in, opts)
}

func (c *Client) CompleteTransfer(ctx context.Context, in *CompleteTransferRequest, opts ...grpc.CallOption) (*Transfer, error) {
	return invoke[Transfer](ctx, c.cc, CompleteTransferMethod, in, opts)
}

func (c *Client) ReconcileCharge(ctx context.Context, in *ReconcileChargeRequest, opts ...grpc.CallOption) (*ReconcileChargeResponse, error) {
	return invoke[ReconcileChargeResponse](ctx, c.cc, ReconcileChargeMethod, in, opts)
}
