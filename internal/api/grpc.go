package api

import (
	"context"
	"errors"

	"github.com/hashicorp/go-hclog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/heysubinoy/asyncstore/pkg/kv"
)

// StorageServiceName is the fully qualified gRPC service name.
const StorageServiceName = "asyncstore.v1.Storage"

// StorageServer is the server API for the asyncstore.v1.Storage service.
// Messages are protobuf well-known types; see convert.go for their shapes.
type StorageServer interface {
	GetItem(context.Context, *wrapperspb.StringValue) (*structpb.Value, error)
	SetItem(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	RemoveItem(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	Clear(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	GetAllKeys(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	Length(context.Context, *emptypb.Empty) (*wrapperspb.Int64Value, error)
	MergeItem(context.Context, *structpb.Struct) (*structpb.Value, error)
	MultiGet(context.Context, *structpb.ListValue) (*structpb.ListValue, error)
	MultiSet(context.Context, *structpb.ListValue) (*emptypb.Empty, error)
	MultiMerge(context.Context, *structpb.ListValue) (*structpb.ListValue, error)
	MultiRemove(context.Context, *structpb.ListValue) (*emptypb.Empty, error)
}

func unaryMethod[Req, Resp proto.Message](name string, newReq func() Req, call func(StorageServer, context.Context, Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(StorageServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + StorageServiceName + "/" + name,
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(StorageServer), ctx, req.(Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func newString() *wrapperspb.StringValue { return new(wrapperspb.StringValue) }
func newStruct() *structpb.Struct        { return new(structpb.Struct) }
func newList() *structpb.ListValue       { return new(structpb.ListValue) }
func newEmpty() *emptypb.Empty           { return new(emptypb.Empty) }

// StorageServiceDesc is the grpc.ServiceDesc for the asyncstore.v1.Storage service.
var StorageServiceDesc = grpc.ServiceDesc{
	ServiceName: StorageServiceName,
	HandlerType: (*StorageServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("GetItem", newString, StorageServer.GetItem),
		unaryMethod("SetItem", newStruct, StorageServer.SetItem),
		unaryMethod("RemoveItem", newString, StorageServer.RemoveItem),
		unaryMethod("Clear", newEmpty, StorageServer.Clear),
		unaryMethod("GetAllKeys", newEmpty, StorageServer.GetAllKeys),
		unaryMethod("Length", newEmpty, StorageServer.Length),
		unaryMethod("MergeItem", newStruct, StorageServer.MergeItem),
		unaryMethod("MultiGet", newList, StorageServer.MultiGet),
		unaryMethod("MultiSet", newList, StorageServer.MultiSet),
		unaryMethod("MultiMerge", newList, StorageServer.MultiMerge),
		unaryMethod("MultiRemove", newList, StorageServer.MultiRemove),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "asyncstore/v1/storage.proto",
}

// RegisterStorageServer registers srv on s.
func RegisterStorageServer(s grpc.ServiceRegistrar, srv StorageServer) {
	s.RegisterService(&StorageServiceDesc, srv)
}

// GRPCServer implements StorageServer.
// It wraps a kv.Storage and exposes it over gRPC.
type GRPCServer struct {
	Storage *kv.Storage
	Logger  hclog.Logger
}

// Compile-time check to ensure GRPCServer implements StorageServer.
var _ StorageServer = (*GRPCServer)(nil)

// NewGRPCServer creates a new gRPC server with the given storage.
func NewGRPCServer(storage *kv.Storage, logger hclog.Logger) *GRPCServer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &GRPCServer{
		Storage: storage,
		Logger:  logger,
	}
}

func (s *GRPCServer) toStatus(method string, err error) error {
	switch {
	case errors.Is(err, kv.ErrInvalidKey):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}
	s.Logger.Error("storage operation failed", "method", method, "error", err)
	return status.Error(codes.Internal, "storage operation failed")
}

func invalid(err error) error {
	return status.Error(codes.InvalidArgument, err.Error())
}

// GetItem retrieves a value by key; null when absent.
func (s *GRPCServer) GetItem(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Value, error) {
	item, err := s.Storage.GetItem(req.GetValue()).Await(ctx)
	if err != nil {
		return nil, s.toStatus("GetItem", err)
	}
	return itemToValue(item), nil
}

// SetItem stores a key-value pair.
func (s *GRPCServer) SetItem(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	p, err := structToPair(req)
	if err != nil {
		return nil, invalid(err)
	}
	if _, err := s.Storage.SetItem(p.Key, p.Value).Await(ctx); err != nil {
		return nil, s.toStatus("SetItem", err)
	}
	return &emptypb.Empty{}, nil
}

// RemoveItem removes a key from the store.
func (s *GRPCServer) RemoveItem(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if _, err := s.Storage.RemoveItem(req.GetValue()).Await(ctx); err != nil {
		return nil, s.toStatus("RemoveItem", err)
	}
	return &emptypb.Empty{}, nil
}

// Clear removes every key.
func (s *GRPCServer) Clear(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if _, err := s.Storage.Clear().Await(ctx); err != nil {
		return nil, s.toStatus("Clear", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *GRPCServer) GetAllKeys(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	keys, err := s.Storage.GetAllKeys().Await(ctx)
	if err != nil {
		return nil, s.toStatus("GetAllKeys", err)
	}
	return stringsToList(keys), nil
}

func (s *GRPCServer) Length(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.Int64Value, error) {
	n, err := s.Storage.Length().Await(ctx)
	if err != nil {
		return nil, s.toStatus("Length", err)
	}
	return wrapperspb.Int64(int64(n)), nil
}

// MergeItem merges into an existing JSON value; null when the merge fails.
func (s *GRPCServer) MergeItem(ctx context.Context, req *structpb.Struct) (*structpb.Value, error) {
	p, err := structToPair(req)
	if err != nil {
		return nil, invalid(err)
	}
	item, err := s.Storage.MergeItem(p.Key, p.Value).Await(ctx)
	if err != nil {
		return nil, s.toStatus("MergeItem", err)
	}
	return itemToValue(item), nil
}

func (s *GRPCServer) MultiGet(ctx context.Context, req *structpb.ListValue) (*structpb.ListValue, error) {
	keys, err := listToStrings(req)
	if err != nil {
		return nil, invalid(err)
	}
	items, err := s.Storage.MultiGet(keys).Await(ctx)
	if err != nil {
		return nil, s.toStatus("MultiGet", err)
	}
	return itemsToList(items), nil
}

func (s *GRPCServer) MultiSet(ctx context.Context, req *structpb.ListValue) (*emptypb.Empty, error) {
	pairs, err := listToPairs(req)
	if err != nil {
		return nil, invalid(err)
	}
	if _, err := s.Storage.MultiSet(pairs).Await(ctx); err != nil {
		return nil, s.toStatus("MultiSet", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *GRPCServer) MultiMerge(ctx context.Context, req *structpb.ListValue) (*structpb.ListValue, error) {
	pairs, err := listToPairs(req)
	if err != nil {
		return nil, invalid(err)
	}
	items, err := s.Storage.MultiMerge(pairs).Await(ctx)
	if err != nil {
		return nil, s.toStatus("MultiMerge", err)
	}
	return itemsToList(items), nil
}

func (s *GRPCServer) MultiRemove(ctx context.Context, req *structpb.ListValue) (*emptypb.Empty, error) {
	keys, err := listToStrings(req)
	if err != nil {
		return nil, invalid(err)
	}
	if _, err := s.Storage.MultiRemove(keys).Await(ctx); err != nil {
		return nil, s.toStatus("MultiRemove", err)
	}
	return &emptypb.Empty{}, nil
}
