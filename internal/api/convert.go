package api

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/heysubinoy/asyncstore/pkg/kv"
)

// Wire shapes, all protobuf well-known types:
//   - item: Value holding a string, or null for the absent marker
//   - pair: Struct {"key": string, "value": string}
//   - batches: ListValue of strings, pairs or items

func itemToValue(item kv.Item) *structpb.Value {
	if !item.Found {
		return structpb.NewNullValue()
	}
	return structpb.NewStringValue(item.Value)
}

func valueToItem(v *structpb.Value) (kv.Item, error) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_NullValue, nil:
		return kv.Absent, nil
	case *structpb.Value_StringValue:
		return kv.Present(k.StringValue), nil
	}
	return kv.Absent, fmt.Errorf("item must be a string or null, got %T", v.GetKind())
}

func itemsToList(items []kv.Item) *structpb.ListValue {
	list := &structpb.ListValue{Values: make([]*structpb.Value, len(items))}
	for i, item := range items {
		list.Values[i] = itemToValue(item)
	}
	return list
}

func listToItems(list *structpb.ListValue) ([]kv.Item, error) {
	items := make([]kv.Item, len(list.GetValues()))
	for i, v := range list.GetValues() {
		item, err := valueToItem(v)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		items[i] = item
	}
	return items, nil
}

func stringsToList(ss []string) *structpb.ListValue {
	list := &structpb.ListValue{Values: make([]*structpb.Value, len(ss))}
	for i, s := range ss {
		list.Values[i] = structpb.NewStringValue(s)
	}
	return list
}

func listToStrings(list *structpb.ListValue) ([]string, error) {
	ss := make([]string, len(list.GetValues()))
	for i, v := range list.GetValues() {
		s, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("element %d must be a string", i)
		}
		ss[i] = s.StringValue
	}
	return ss, nil
}

func pairToStruct(p kv.Pair) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"key":   structpb.NewStringValue(p.Key),
		"value": structpb.NewStringValue(p.Value),
	}}
}

func structToPair(s *structpb.Struct) (kv.Pair, error) {
	key, ok := s.GetFields()["key"].GetKind().(*structpb.Value_StringValue)
	if !ok {
		return kv.Pair{}, fmt.Errorf("pair key must be a string")
	}
	value, ok := s.GetFields()["value"].GetKind().(*structpb.Value_StringValue)
	if !ok {
		return kv.Pair{}, fmt.Errorf("pair value must be a string")
	}
	return kv.Pair{Key: key.StringValue, Value: value.StringValue}, nil
}

func pairsToList(pairs []kv.Pair) *structpb.ListValue {
	list := &structpb.ListValue{Values: make([]*structpb.Value, len(pairs))}
	for i, p := range pairs {
		list.Values[i] = structpb.NewStructValue(pairToStruct(p))
	}
	return list
}

func listToPairs(list *structpb.ListValue) ([]kv.Pair, error) {
	pairs := make([]kv.Pair, len(list.GetValues()))
	for i, v := range list.GetValues() {
		s, ok := v.GetKind().(*structpb.Value_StructValue)
		if !ok {
			return nil, fmt.Errorf("pair %d must be an object", i)
		}
		p, err := structToPair(s.StructValue)
		if err != nil {
			return nil, fmt.Errorf("pair %d: %w", i, err)
		}
		pairs[i] = p
	}
	return pairs, nil
}
