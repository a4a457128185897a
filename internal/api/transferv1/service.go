package transferv1

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "kelp.transfers.v1.Transfers"

// Full method names.
const (
	RegisterUserMethod         = "/" + ServiceName + "/RegisterUser"
	GetUsageMethod             = "/" + ServiceName + "/GetUsage"
	CreateTransferMethod       = "/" + ServiceName + "/CreateTransfer"
	GetTransferMethod          = "/" + ServiceName + "/GetTransfer"
	AuthorizeChunkUploadMethod = "/" + ServiceName + "/AuthorizeChunkUpload"
	RecordChunkProgressMethod  = "/" + ServiceName + "/RecordChunkProgress"
	CompleteTransferMethod     = "/" + ServiceName + "/CompleteTransfer"
	ReconcileChargeMethod      = "/" + ServiceName + "/ReconcileCharge"
)

// TransfersServer is the server API. Plan changes are not part of it; they go through cmd/set-plan.
type TransfersServer interface {
	RegisterUser(context.Context, *RegisterUserRequest) (*User, error)
	GetUsage(context.Context, *GetUsageRequest) (*User, error)
	CreateTransfer(context.Context, *CreateTransferRequest) (*CreateTransferResponse, error)
	GetTransfer(context.Context, *GetTransferRequest) (*Transfer, error)
	AuthorizeChunkUpload(context.Context, *AuthorizeChunkUploadRequest) (*UploadLocation, error)
	RecordChunkProgress(context.Context, *RecordChunkProgressRequest) (*Transfer, error)
	CompleteTransfer(context.Context, *CompleteTransferRequest) (*Transfer, error)
	ReconcileCharge(context.Context, *ReconcileChargeRequest) (*ReconcileChargeResponse, error)
}

func unary[Req, Resp any](name string, call func(TransfersServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	full := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(TransfersServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(TransfersServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes the Transfers service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TransfersServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("RegisterUser", TransfersServer.RegisterUser),
		unary("GetUsage", TransfersServer.GetUsage),
		unary("CreateTransfer", TransfersServer.CreateTransfer),
		unary("GetTransfer", TransfersServer.GetTransfer),
		unary("AuthorizeChunkUpload", TransfersServer.AuthorizeChunkUpload),
		unary("RecordChunkProgress", TransfersServer.RecordChunkProgress),
		unary("CompleteTransfer", TransfersServer.CompleteTransfer),
		unary("ReconcileCharge", TransfersServer.ReconcileCharge),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "kelp/transfers/v1",
}

// RegisterTransfersServer registers srv on s.
func RegisterTransfersServer(s grpc.ServiceRegistrar, srv TransfersServer) {
	s.RegisterService(&ServiceDesc, srv)
}
