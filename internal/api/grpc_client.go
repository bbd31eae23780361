package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/heysubinoy/asyncstore/pkg/kv"
)

// StorageClient calls the asyncstore.v1.Storage service and converts the
// wire messages back into kv types.
type StorageClient struct {
	cc grpc.ClientConnInterface
}

// NewStorageClient creates a client on an existing connection.
func NewStorageClient(cc grpc.ClientConnInterface) *StorageClient {
	return &StorageClient{cc: cc}
}

func (c *StorageClient) invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, "/"+StorageServiceName+"/"+method, in, out, opts...)
}

func (c *StorageClient) GetItem(ctx context.Context, key string, opts ...grpc.CallOption) (kv.Item, error) {
	out := new(structpb.Value)
	if err := c.invoke(ctx, "GetItem", wrapperspb.String(key), out, opts...); err != nil {
		return kv.Absent, err
	}
	return valueToItem(out)
}

func (c *StorageClient) SetItem(ctx context.Context, key, value string, opts ...grpc.CallOption) error {
	return c.invoke(ctx, "SetItem", pairToStruct(kv.Pair{Key: key, Value: value}), new(emptypb.Empty), opts...)
}

func (c *StorageClient) RemoveItem(ctx context.Context, key string, opts ...grpc.CallOption) error {
	return c.invoke(ctx, "RemoveItem", wrapperspb.String(key), new(emptypb.Empty), opts...)
}

func (c *StorageClient) Clear(ctx context.Context, opts ...grpc.CallOption) error {
	return c.invoke(ctx, "Clear", &emptypb.Empty{}, new(emptypb.Empty), opts...)
}

func (c *StorageClient) GetAllKeys(ctx context.Context, opts ...grpc.CallOption) ([]string, error) {
	out := new(structpb.ListValue)
	if err := c.invoke(ctx, "GetAllKeys", &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return listToStrings(out)
}

func (c *StorageClient) Length(ctx context.Context, opts ...grpc.CallOption) (int, error) {
	out := new(wrapperspb.Int64Value)
	if err := c.invoke(ctx, "Length", &emptypb.Empty{}, out, opts...); err != nil {
		return 0, err
	}
	return int(out.GetValue()), nil
}

func (c *StorageClient) MergeItem(ctx context.Context, key, value string, opts ...grpc.CallOption) (kv.Item, error) {
	out := new(structpb.Value)
	if err := c.invoke(ctx, "MergeItem", pairToStruct(kv.Pair{Key: key, Value: value}), out, opts...); err != nil {
		return kv.Absent, err
	}
	return valueToItem(out)
}

func (c *StorageClient) MultiGet(ctx context.Context, keys []string, opts ...grpc.CallOption) ([]kv.Item, error) {
	out := new(structpb.ListValue)
	if err := c.invoke(ctx, "MultiGet", stringsToList(keys), out, opts...); err != nil {
		return nil, err
	}
	return listToItems(out)
}

func (c *StorageClient) MultiSet(ctx context.Context, pairs []kv.Pair, opts ...grpc.CallOption) error {
	return c.invoke(ctx, "MultiSet", pairsToList(pairs), new(emptypb.Empty), opts...)
}

func (c *StorageClient) MultiMerge(ctx context.Context, pairs []kv.Pair, opts ...grpc.CallOption) ([]kv.Item, error) {
	out := new(structpb.ListValue)
	if err := c.invoke(ctx, "MultiMerge", pairsToList(pairs), out, opts...); err != nil {
		return nil, err
	}
	return listToItems(out)
}

func (c *StorageClient) MultiRemove(ctx context.Context, keys []string, opts ...grpc.CallOption) error {
	return c.invoke(ctx, "MultiRemove", stringsToList(keys), new(emptypb.Empty), opts...)
}
