package encoding

import (
	"fmt"
	"sort"
	"sync"
)

// Converter priorities. Higher runs first.
const (
	PriorityNormal   = 0
	PriorityHigh     = 1000
	PriorityVeryHigh = 10000
)

// Converter rewrites a decoded record of some older layout into the current one.
type Converter interface {
	// Name identifies the converter; registering the same name twice is a no-op
	Name() string
	// CanConvert reports whether raw is in the layout this converter handles
	CanConvert(raw map[string]interface{}) bool
	Convert(raw map[string]interface{}) (map[string]interface{}, error)
}

type registeredConverter struct {
	conv     Converter
	priority int
}

var (
	convertersMu sync.RWMutex
	converters   = make(map[string][]registeredConverter)
)

// RegisterConverter adds conv for records of the given kind.
// Returns false if a converter with the same name is already registered.
func RegisterConverter(kind string, conv Converter, priority int) bool {
	convertersMu.Lock()
	defer convertersMu.Unlock()

	for _, rc := range converters[kind] {
		if rc.conv.Name() == conv.Name() {
			return false
		}
	}

	list := append(converters[kind], registeredConverter{conv: conv, priority: priority})
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].priority > list[j].priority
	})
	converters[kind] = list
	return true
}

// Converters returns the names of converters registered for kind, in priority order
func Converters(kind string) []string {
	convertersMu.RLock()
	defer convertersMu.RUnlock()

	names := make([]string, 0, len(converters[kind]))
	for _, rc := range converters[kind] {
		names = append(names, rc.conv.Name())
	}
	return names
}

// Convert applies the first matching converter for kind.
// Records no converter claims are returned unchanged.
func Convert(kind string, raw map[string]interface{}) (map[string]interface{}, error) {
	convertersMu.RLock()
	list := converters[kind]
	convertersMu.RUnlock()

	for _, rc := range list {
		if !rc.conv.CanConvert(raw) {
			continue
		}
		out, err := rc.conv.Convert(raw)
		if err != nil {
			return nil, fmt.Errorf("converter %s: %w", rc.conv.Name(), err)
		}
		return out, nil
	}
	return raw, nil
}
