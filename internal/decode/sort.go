package decode

import (
	"slices"
	"strconv"
)

// sortedCodes orders value-label keys numerically when both keys are numbers
// and lexically otherwise.
func sortedCodes(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		fa, errA := strconv.ParseFloat(a, 64)
		fb, errB := strconv.ParseFloat(b, 64)
		switch {
		case errA == nil && errB == nil:
			if fa < fb {
				return -1
			}
			if fa > fb {
				return 1
			}
			return 0
		case errA == nil:
			return -1
		case errB == nil:
			return 1
		}
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	})
	return keys
}
