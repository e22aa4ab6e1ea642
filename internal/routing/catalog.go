package routing

import (
	_ "embed"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed transport_types.yaml
var transportTypesYAML []byte

// TransportTypeInfo describes a public transport type.
type TransportTypeInfo struct {
	Name string `yaml:"name" json:"name"`
	Icon string `yaml:"icon" json:"icon"`
}

var (
	catalogOnce sync.Once
	catalog     map[string]TransportTypeInfo
	catalogErr  error
)

func loadCatalog() (map[string]TransportTypeInfo, error) {
	catalogOnce.Do(func() {
		var m map[string]TransportTypeInfo
		if err := yaml.Unmarshal(transportTypesYAML, &m); err != nil {
			catalogErr = fmt.Errorf("routing: catalog: unmarshal transport types: %w", err)
			return
		}
		catalog = m
	})
	return catalog, catalogErr
}

// TransportTypes returns the known transport type identifiers, sorted.
func TransportTypes() []string {
	m, err := loadCatalog()
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// LookupTransportType returns the catalog entry for id.
func LookupTransportType(id string) (TransportTypeInfo, bool) {
	m, err := loadCatalog()
	if err != nil {
		return TransportTypeInfo{}, false
	}
	info, ok := m[id]
	return info, ok
}

// transportName returns the display name of id, or id itself when unknown.
func transportName(id string) string {
	if info, ok := LookupTransportType(id); ok {
		return info.Name
	}
	return id
}

// transportIcon returns the icon of id, falling back to the bus icon.
func transportIcon(id string) string {
	if info, ok := LookupTransportType(id); ok {
		return info.Icon
	}
	return "🚌"
}

// KnownTransportTypes filters types down to those present in the catalog,
// preserving order.
func KnownTransportTypes(types []string) []string {
	var out []string
	for _, t := range types {
		if _, ok := LookupTransportType(t); ok {
			out = append(out, t)
		}
	}
	return out
}
