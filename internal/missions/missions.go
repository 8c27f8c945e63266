// Package missions holds the static reference catalog of Copernicus
// Sentinel missions: descriptions, sensors, revisit times, and the OData
// collection each mission maps to.
package missions

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed missions.yaml
var missionsYAML []byte

// ErrUnknownMission is returned when a mission name is not in the registry.
var ErrUnknownMission = errors.New("unknown mission")

// Mission describes one Copernicus mission.
type Mission struct {
	Key          string   `yaml:"key" json:"key"`
	Name         string   `yaml:"name" json:"name"`
	Collection   string   `yaml:"collection" json:"collection"`
	Description  string   `yaml:"description" json:"description"`
	LaunchDate   string   `yaml:"launch_date" json:"launch_date"`
	Operational  bool     `yaml:"operational" json:"operational"`
	Optical      bool     `yaml:"optical" json:"optical"`
	Applications []string `yaml:"applications" json:"applications"`
	Sensors      []string `yaml:"sensors" json:"sensors"`
	Resolution   string   `yaml:"resolution" json:"resolution"`
	RevisitTime  string   `yaml:"revisit_time" json:"revisit_time"`
	DataAccess   string   `yaml:"data_access" json:"data_access"`
}

// SupportsCloudCover reports whether cloud cover metadata applies to this
// mission. Radar and atmospheric missions carry no cloudCover attribute.
func (m Mission) SupportsCloudCover() bool {
	return m.Optical
}

var registry = mustLoad()

func mustLoad() map[string]Mission {
	var doc struct {
		Missions []Mission `yaml:"missions"`
	}
	if err := yaml.Unmarshal(missionsYAML, &doc); err != nil {
		panic(fmt.Sprintf("missions: invalid embedded registry: %v", err))
	}
	if len(doc.Missions) == 0 {
		panic("missions: embedded registry is empty")
	}

	reg := make(map[string]Mission, len(doc.Missions))
	for _, m := range doc.Missions {
		reg[m.Key] = m
	}
	return reg
}

// Get returns the mission for a (case-insensitive) mission key such as
// "sentinel-2". Unknown keys return ErrUnknownMission naming the valid keys.
func Get(name string) (Mission, error) {
	m, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Mission{}, fmt.Errorf("%w %q (known missions: %s)",
			ErrUnknownMission, name, strings.Join(Keys(), ", "))
	}
	return m, nil
}

// Collection returns the OData collection name for a mission key.
func Collection(name string) (string, error) {
	m, err := Get(name)
	if err != nil {
		return "", err
	}
	return m.Collection, nil
}

// Keys returns the sorted mission keys.
func Keys() []string {
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// All returns every mission, sorted by key.
func All() []Mission {
	all := make([]Mission, 0, len(registry))
	for _, k := range Keys() {
		all = append(all, registry[k])
	}
	return all
}
