package emissions

import (
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// CompareModelVersions orders model version strings by semantic version.
// Strings that do not parse, "unknown" included, sort before any real version
// and among themselves lexically.
func CompareModelVersions(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	switch {
	case errA != nil && errB != nil:
		return strings.Compare(a, b)
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	default:
		return va.Compare(vb)
	}
}

// sortedVersions returns the distinct keys of set, lowest version first.
func sortedVersions(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	slices.SortFunc(out, CompareModelVersions)
	return out
}

// LatestEstimate picks the estimate with the highest model version, breaking
// ties by the most recent update. It returns nil for an empty slice.
func LatestEstimate(estimates []Estimate) *Estimate {
	if len(estimates) == 0 {
		return nil
	}
	best := estimates[0]
	for _, e := range estimates[1:] {
		c := CompareModelVersions(e.ModelVersion, best.ModelVersion)
		if c > 0 || (c == 0 && e.UpdatedAt.After(best.UpdatedAt)) {
			best = e
		}
	}
	return &best
}
