package survey

import "strings"

// DefaultPlaceholderMarker marks a group/placeholder column by name.
const DefaultPlaceholderMarker = "_question"

// OptionLink ties an option column to the placeholder question it belongs to.
type OptionLink struct {
	ParentQuestion string
	CoreQuestion   string
	Option         string
}

// LinkOptions associates option columns with placeholder questions.
//
// For each placeholder ph (in declared order) the core name is ph with the
// marker removed. Columns strictly after ph are linked to it while they
// contain the core name; the run ends at the first placeholder or the first
// column that does not contain the core. Since every run stops at the next
// placeholder, groups never overlap.
//
// A placeholder named exactly the marker has an empty core, which every
// column contains: it links the whole run up to the next placeholder.
func LinkOptions(columns []string, isPlaceholder func(string) bool, marker string) map[string]OptionLink {
	links := make(map[string]OptionLink)

	placeholder := make([]bool, len(columns))
	for i, c := range columns {
		placeholder[i] = isPlaceholder(c)
	}

	for i, ph := range columns {
		if !placeholder[i] {
			continue
		}
		core := ph
		if marker != "" {
			core = strings.ReplaceAll(ph, marker, "")
		}

		for j := i + 1; j < len(columns); j++ {
			c := columns[j]
			if placeholder[j] || !strings.Contains(c, core) {
				break
			}
			links[c] = OptionLink{
				ParentQuestion: ph,
				CoreQuestion:   core,
				Option:         strings.ReplaceAll(c, core, ""),
			}
		}
	}
	return links
}
