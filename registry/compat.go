package registry

import (
	"fmt"
	"sync"

	"github.com/maxpert/regnode/encoding"
	"github.com/rs/zerolog/log"
)

// InstanceKind is the converter kind for instance records
const InstanceKind = "instance"

var compatOnce sync.Once

// RegisterCompatConverters registers converters for older instance layouts.
// Safe to call any number of times.
func RegisterCompatConverters() {
	compatOnce.Do(func() {
		if encoding.RegisterConverter(InstanceKind, v1InstanceConverter{}, encoding.PriorityVeryHigh) {
			log.Debug().Str("kind", InstanceKind).Msg("Registered v1 instance converter")
		}
	})
}

// v1InstanceConverter reads the flat v1 layout:
// {instanceId, app, hostName, dataCenterInfo: {name} | name, status, metadata}
type v1InstanceConverter struct{}

func (v1InstanceConverter) Name() string { return "v1-instance" }

func (v1InstanceConverter) CanConvert(raw map[string]interface{}) bool {
	_, ok := raw["instanceId"]
	return ok
}

func (v1InstanceConverter) Convert(raw map[string]interface{}) (map[string]interface{}, error) {
	id, ok := raw["instanceId"].(string)
	if !ok {
		return nil, fmt.Errorf("instanceId is %T, want string", raw["instanceId"])
	}

	out := map[string]interface{}{
		"id":     id,
		"app":    stringField(raw, "app"),
		"host":   stringField(raw, "hostName"),
		"status": stringField(raw, "status"),
	}
	if out["status"] == "" {
		out["status"] = string(StatusUnknown)
	}

	switch dc := raw["dataCenterInfo"].(type) {
	case map[string]interface{}:
		out["datacenter"] = map[string]interface{}{"name": stringField(dc, "name")}
	case string:
		out["datacenter"] = map[string]interface{}{"name": dc}
	default:
		out["datacenter"] = map[string]interface{}{"name": string(DataCenterMyOwn)}
	}

	if md, ok := raw["metadata"].(map[string]interface{}); ok {
		out["metadata"] = md
	}
	return out, nil
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

// EncodeInstances encodes a snapshot for peer transfer
func EncodeInstances(instances []InstanceInfo) ([]byte, error) {
	return encoding.MarshalCompressed(instances)
}

// DecodeInstances decodes a peer snapshot, converting older record layouts
func DecodeInstances(data []byte) ([]InstanceInfo, error) {
	var records []map[string]interface{}
	if err := encoding.UnmarshalCompressed(data, &records); err != nil {
		return nil, err
	}

	out := make([]InstanceInfo, 0, len(records))
	for i, rec := range records {
		converted, err := encoding.Convert(InstanceKind, rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}

		raw, err := encoding.Marshal(converted)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		var inst InstanceInfo
		if err := encoding.Unmarshal(raw, &inst); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, inst)
	}
	return out, nil
}
