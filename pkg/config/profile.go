package config

import (
	"fmt"
	"sort"
	"strings"
)

// HardwareProfile describes a gateway class and its ceiling on manageable
// segments. Ceilings live in a lookup so new profiles can be added without
// touching validation logic.
type HardwareProfile struct {
	Name        string
	MaxSegments int
	Description string
}

// builtinProfiles mirrors the vendor-documented limits. The USG-3P routes
// in software beyond 4 networks and starts dropping provisioning silently,
// hence the low ceiling.
var builtinProfiles = map[string]HardwareProfile{
	"usg3p":   {Name: "usg3p", MaxSegments: 4, Description: "UniFi Security Gateway 3P"},
	"uxg-pro": {Name: "uxg-pro", MaxSegments: 32, Description: "UniFi Next-Gen Gateway Pro"},
	"udm-se":  {Name: "udm-se", MaxSegments: 32, Description: "Dream Machine Special Edition"},
	"udm-pro": {Name: "udm-pro", MaxSegments: 32, Description: "Dream Machine Pro"},
}

// LookupProfile resolves a hardware profile by name (case-insensitive).
// An unknown name returns an error listing the supported profiles.
func LookupProfile(name string) (HardwareProfile, error) {
	p, ok := builtinProfiles[strings.ToLower(name)]
	if !ok {
		return HardwareProfile{}, fmt.Errorf("unknown hardware profile %q (supported: %s)",
			name, strings.Join(ProfileNames(), ", "))
	}
	return p, nil
}

// ProfileNames returns the known profile names, sorted.
func ProfileNames() []string {
	names := make([]string, 0, len(builtinProfiles))
	for name := range builtinProfiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterProfile adds or overrides a hardware profile. Intended for
// deployments with gateway classes not in the builtin table.
func RegisterProfile(p HardwareProfile) {
	builtinProfiles[strings.ToLower(p.Name)] = p
}
