package repositories

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Records are stored as protobuf-encoded structpb.Struct values so the badger
// inspector can decode any of them without generated types.

func marshalRecord(fields map[string]any) ([]byte, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("building record: %w", err)
	}
	data, err := proto.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal failed: %w", err)
	}
	return data, nil
}

func unmarshalRecord(data []byte) (*structpb.Struct, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal failed: %w", err)
	}
	return &s, nil
}

// DecodeRecord turns a stored value back into a plain map, used by the inspector.
func DecodeRecord(data []byte) (map[string]any, error) {
	s, err := unmarshalRecord(data)
	if err != nil {
		return nil, err
	}
	return s.AsMap(), nil
}

func stringField(s *structpb.Struct, name string) string {
	return s.GetFields()[name].GetStringValue()
}

func stringsField(s *structpb.Struct, name string) []string {
	values := s.GetFields()[name].GetListValue().GetValues()
	res := make([]string, 0, len(values))
	for _, v := range values {
		res = append(res, v.GetStringValue())
	}
	return res
}

func timeValue(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func timeField(s *structpb.Struct, name string) (time.Time, error) {
	raw := stringField(s, name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("field %s: %w", name, err)
	}
	return t.UTC(), nil
}

// anySlice converts to the []any structpb expects for list values.
func anySlice[T ~string](in []T) []any {
	res := make([]any, 0, len(in))
	for _, v := range in {
		res = append(res, string(v))
	}
	return res
}
