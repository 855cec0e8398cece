package admin

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/relayq/relayq/internal/serialization"
)

// ExportSnapshot serializes ShowQueue + ShowProcess + ShowLength into a
// protobuf-framed envelope using the teacher's format-tagged Serializer,
// for operators who pull periodic binary snapshots rather than parsing
// the JSON ShowLogs/ShowQueue surfaces. Additive tooling; does not replace
// the JSON-based admin contract spec.md requires.
func (a *Admin) ExportSnapshot(ctx context.Context, host string) ([]byte, error) {
	groups, err := a.ShowQueue(ctx)
	if err != nil {
		return nil, fmt.Errorf("export snapshot: show queue: %w", err)
	}

	processes, err := a.ShowProcess(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("export snapshot: show process: %w", err)
	}

	lengths := make(map[string]interface{}, len(groups))
	for _, group := range groups {
		n, err := a.ShowLength(ctx, group)
		if err != nil {
			return nil, fmt.Errorf("export snapshot: show length %s: %w", group, err)
		}
		lengths[group] = float64(n)
	}

	processFields := make(map[string]interface{}, len(processes))
	for k, v := range processes {
		processFields[k] = v
	}

	snapshot, err := structpb.NewStruct(map[string]interface{}{
		"host":    host,
		"queue":   toAnySlice(groups),
		"process": processFields,
		"lengths": lengths,
	})
	if err != nil {
		return nil, fmt.Errorf("export snapshot: build struct: %w", err)
	}

	s := serialization.NewProtobufSerializer()
	return s.Marshal(snapshot)
}

// ImportSnapshot decodes a binary snapshot produced by ExportSnapshot, for
// operators verifying or replaying a previously captured snapshot (e.g.
// diffing two pulls offline) without hand-rolling the framing themselves.
func (a *Admin) ImportSnapshot(data []byte) (*structpb.Struct, error) {
	s := serialization.NewProtobufSerializer()
	if !s.IsProtobuf(data) {
		return nil, fmt.Errorf("import snapshot: not protobuf-framed")
	}

	var decoded structpb.Struct
	if err := s.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("import snapshot: %w", err)
	}
	return &decoded, nil
}

func toAnySlice(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
