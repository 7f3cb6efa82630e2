package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/unifi-declarative/unifid/pkg/util"
)

// document is the on-disk YAML shape. Segments are keyed by VLAN tag,
// matching the controller's view of networks as a keyed collection.
type document struct {
	HardwareProfile string              `yaml:"hardware_profile"`
	VLANs           map[string]*Segment `yaml:"vlans"`
	Firewall        []*FirewallRule     `yaml:"firewall,omitempty"`
}

// Load reads and parses the desired-state document from path. The result
// is immutable; schema and constraint checking is the validator's job,
// the loader only enforces document coherence (parseable YAML, map keys
// consistent with vlan_id fields).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading desired state: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Parse parses a desired-state document from raw YAML.
func Parse(data []byte) (*Config, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrInvalidConfig, err)
	}

	segments := make([]*Segment, 0, len(doc.VLANs))
	for key, seg := range doc.VLANs {
		if seg == nil {
			return nil, fmt.Errorf("%w: vlan %q has no body", util.ErrInvalidConfig, key)
		}
		tag, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%w: vlan key %q is not a VLAN tag", util.ErrInvalidConfig, key)
		}
		switch {
		case seg.VLAN == 0:
			seg.VLAN = tag
		case seg.VLAN != tag:
			return nil, fmt.Errorf("%w: vlan key %q does not match vlan_id %d", util.ErrInvalidConfig, key, seg.VLAN)
		}
		segments = append(segments, seg)
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i].VLAN < segments[j].VLAN })

	return &Config{
		HardwareProfile: doc.HardwareProfile,
		Segments:        segments,
		Rules:           doc.Firewall,
	}, nil
}
