package verify

import (
	"sort"

	"github.com/snowball-c3/c3-scripts/internal/inventory"
)

// Project targets.
const (
	TargetWeb       = "web"
	TargetMobile    = "mobile"
	TargetUniversal = "universal"
)

var formFieldComponents = []string{"Input", "Label"}

// mandatoryTable maps a project target to the components required per platform.
var mandatoryTable = map[string]map[string][]string{
	TargetWeb:       {"web": formFieldComponents},
	TargetMobile:    {"mobile": formFieldComponents},
	TargetUniversal: {"web": formFieldComponents, "mobile": formFieldComponents},
}

// MandatoryModules returns the components a project with the given target
// must provide, keyed by platform. An unknown target requires nothing. The
// result is a copy and may be modified by the caller.
func MandatoryModules(target string) map[string][]string {
	row := mandatoryTable[target]
	out := make(map[string][]string, len(row))

	for platform, comps := range row {
		out[platform] = append([]string(nil), comps...)
	}

	return out
}

// CheckMandatory verifies every (platform, component) pair of required is
// present in inv. Pairs are visited in sorted order; announce is called for
// each present pair and the first absent pair is returned as an error.
func CheckMandatory(required map[string][]string, inv inventory.Map, announce func(platform, component string)) error {
	platforms := make([]string, 0, len(required))
	for p := range required {
		platforms = append(platforms, p)
	}

	sort.Strings(platforms)

	for _, platform := range platforms {
		for _, component := range required[platform] {
			if !inv.Has(platform, component) {
				return &MandatoryModuleMissingError{Platform: platform, Component: component}
			}

			if announce != nil {
				announce(platform, component)
			}
		}
	}

	return nil
}
