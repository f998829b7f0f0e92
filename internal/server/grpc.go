package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joseph-ayodele/document-processor/internal/common"
	"github.com/joseph-ayodele/document-processor/internal/entity"
)

const DocumentServiceName = "docprocessor.v1.DocumentService"

// DocumentService is what the transports need from the scheduler.
type DocumentService interface {
	QueueDocumentForProcessing(ctx context.Context, id uuid.UUID) error
	ResubmitDocument(ctx context.Context, id uuid.UUID) error
	GetDocument(ctx context.Context, id uuid.UUID) (*entity.Document, error)
	DeleteDocument(ctx context.Context, id uuid.UUID) error
	RecoverStranded(ctx context.Context) (int, error)
	CleanupStuckDocuments(ctx context.Context, timeout time.Duration) (int, error)
}

// DocumentServiceServer is the gRPC surface. Messages are protobuf
// well-known types: document ids travel as StringValue, documents as Struct.
type DocumentServiceServer interface {
	QueueDocument(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	ResubmitDocument(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	GetDocument(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	DeleteDocument(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	RecoverStranded(context.Context, *emptypb.Empty) (*wrapperspb.Int64Value, error)
	CleanupStuckDocuments(context.Context, *durationpb.Duration) (*wrapperspb.Int64Value, error)
}

type DocumentServer struct {
	svc    DocumentService
	logger *slog.Logger
}

func NewDocumentServer(svc DocumentService, logger *slog.Logger) *DocumentServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentServer{svc: svc, logger: logger}
}

func (s *DocumentServer) QueueDocument(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	id, err := parseDocumentID(req.GetValue())
	if err != nil {
		return nil, grpcError(err)
	}
	if err := s.svc.QueueDocumentForProcessing(ctx, id); err != nil {
		s.logger.Warn("grpc.queue_document.failed", "document_id", id, "error", err)
		return nil, grpcError(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *DocumentServer) ResubmitDocument(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	id, err := parseDocumentID(req.GetValue())
	if err != nil {
		return nil, grpcError(err)
	}
	if err := s.svc.ResubmitDocument(ctx, id); err != nil {
		s.logger.Warn("grpc.resubmit_document.failed", "document_id", id, "error", err)
		return nil, grpcError(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *DocumentServer) GetDocument(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	id, err := parseDocumentID(req.GetValue())
	if err != nil {
		return nil, grpcError(err)
	}
	doc, err := s.svc.GetDocument(ctx, id)
	if err != nil {
		return nil, grpcError(err)
	}
	out, err := structpb.NewStruct(documentFields(doc))
	if err != nil {
		s.logger.Error("grpc.get_document.encode_failed", "document_id", id, "error", err)
		return nil, common.InternalError("encode document")
	}
	return out, nil
}

func (s *DocumentServer) DeleteDocument(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	id, err := parseDocumentID(req.GetValue())
	if err != nil {
		return nil, grpcError(err)
	}
	if err := s.svc.DeleteDocument(ctx, id); err != nil {
		return nil, grpcError(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *DocumentServer) RecoverStranded(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.Int64Value, error) {
	n, err := s.svc.RecoverStranded(ctx)
	if err != nil {
		s.logger.Error("grpc.recover_stranded.failed", "error", err)
		return nil, grpcError(err)
	}
	return wrapperspb.Int64(int64(n)), nil
}

// CleanupStuckDocuments takes the stuck timeout; a missing or zero duration
// means the configured default.
func (s *DocumentServer) CleanupStuckDocuments(ctx context.Context, req *durationpb.Duration) (*wrapperspb.Int64Value, error) {
	var timeout time.Duration
	if req != nil {
		if err := req.CheckValid(); err != nil {
			return nil, common.InvalidArgumentErrorf("timeout: %v", err)
		}
		timeout = req.AsDuration()
	}
	if timeout < 0 {
		return nil, common.InvalidArgumentError("timeout must not be negative")
	}
	n, err := s.svc.CleanupStuckDocuments(ctx, timeout)
	if err != nil {
		s.logger.Error("grpc.cleanup_stuck.failed", "error", err)
		return nil, grpcError(err)
	}
	return wrapperspb.Int64(int64(n)), nil
}

func parseDocumentID(raw string) (uuid.UUID, error) {
	if err := common.ValidateDocumentID(raw); err != nil {
		return uuid.Nil, err
	}
	return uuid.MustParse(raw), nil
}

// RegisterDocumentServiceServer attaches srv to a gRPC server.
func RegisterDocumentServiceServer(r grpc.ServiceRegistrar, srv DocumentServiceServer) {
	r.RegisterService(&documentServiceDesc, srv)
}

var documentServiceDesc = grpc.ServiceDesc{
	ServiceName: DocumentServiceName,
	HandlerType: (*DocumentServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("QueueDocument", func(srv DocumentServiceServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
			return srv.QueueDocument(ctx, in)
		}),
		unary("ResubmitDocument", func(srv DocumentServiceServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
			return srv.ResubmitDocument(ctx, in)
		}),
		unary("GetDocument", func(srv DocumentServiceServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
			return srv.GetDocument(ctx, in)
		}),
		unary("DeleteDocument", func(srv DocumentServiceServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
			return srv.DeleteDocument(ctx, in)
		}),
		unary("RecoverStranded", func(srv DocumentServiceServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return srv.RecoverStranded(ctx, in)
		}),
		unary("CleanupStuckDocuments", func(srv DocumentServiceServer, ctx context.Context, in *durationpb.Duration) (any, error) {
			return srv.CleanupStuckDocuments(ctx, in)
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: documentServiceFile,
}

func unary[Req any](method string, call func(DocumentServiceServer, context.Context, *Req) (any, error)) grpc.MethodDesc {
	fullMethod := "/" + DocumentServiceName + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(DocumentServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(DocumentServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// DocumentServiceClient calls DocumentService over a client connection.
type DocumentServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewDocumentServiceClient(cc grpc.ClientConnInterface) *DocumentServiceClient {
	return &DocumentServiceClient{cc: cc}
}

func (c *DocumentServiceClient) QueueDocument(ctx context.Context, id string, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, "/"+DocumentServiceName+"/QueueDocument", wrapperspb.String(id), new(emptypb.Empty), opts...)
}

func (c *DocumentServiceClient) ResubmitDocument(ctx context.Context, id string, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, "/"+DocumentServiceName+"/ResubmitDocument", wrapperspb.String(id), new(emptypb.Empty), opts...)
}

func (c *DocumentServiceClient) GetDocument(ctx context.Context, id string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+DocumentServiceName+"/GetDocument", wrapperspb.String(id), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DocumentServiceClient) DeleteDocument(ctx context.Context, id string, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, "/"+DocumentServiceName+"/DeleteDocument", wrapperspb.String(id), new(emptypb.Empty), opts...)
}

func (c *DocumentServiceClient) RecoverStranded(ctx context.Context, opts ...grpc.CallOption) (int64, error) {
	out := new(wrapperspb.Int64Value)
	if err := c.cc.Invoke(ctx, "/"+DocumentServiceName+"/RecoverStranded", new(emptypb.Empty), out, opts...); err != nil {
		return 0, err
	}
	return out.GetValue(), nil
}

func (c *DocumentServiceClient) CleanupStuckDocuments(ctx context.Context, timeout time.Duration, opts ...grpc.CallOption) (int64, error) {
	out := new(wrapperspb.Int64Value)
	if err := c.cc.Invoke(ctx, "/"+DocumentServiceName+"/CleanupStuckDocuments", durationpb.New(timeout), out, opts...); err != nil {
		return 0, err
	}
	return out.GetValue(), nil
}
