// Package pattern implements the Pattern Prober (component G): generating
// path candidates by combining configured API versions and resource names
// into a small set of common URL shapes.
package pattern

import (
	"fmt"
	"sort"
)

// Generate produces the Cartesian product of versions and resources across
// five template families, deduped and sorted, matching generate_patterns:
//
//	/api/v{version}/{resource}
//	/v{version}/{resource}
//	/{resource}
//	/{resource}/1
//	/api/{resource}
func Generate(versions []int, resources []string) []string {
	set := map[string]struct{}{}
	for _, res := range resources {
		set[fmt.Sprintf("/%s", res)] = struct{}{}
		set[fmt.Sprintf("/%s/1", res)] = struct{}{}
		set[fmt.Sprintf("/api/%s", res)] = struct{}{}
		for _, v := range versions {
			set[fmt.Sprintf("/api/v%d/%s", v, res)] = struct{}{}
			set[fmt.Sprintf("/v%d/%s", v, res)] = struct{}{}
		}
	}
	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
