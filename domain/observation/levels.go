package observation

import (
	"sort"

	"nh3flux/domain/core"
)

func sortRecords(ds Dataset) {
	sort.SliceStable(ds, func(i, j int) bool {
		return ds[i].Timestamp.Before(ds[j].Timestamp)
	})
}

// sortLabels orders categorical labels with the "0" reference level first and
// numeric labels in numeric order ahead of any non-numeric ones.
func sortLabels(labels []string) {
	sort.Slice(labels, func(i, j int) bool {
		ni, iOK := labelOrdinal(labels[i])
		nj, jOK := labelOrdinal(labels[j])
		switch {
		case iOK && jOK:
			return ni < nj
		case iOK:
			return true
		case jOK:
			return false
		default:
			return labels[i] < labels[j]
		}
	})
}

func labelOrdinal(s string) (int, bool) {
	n := 0
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

func eventLevels(ds Dataset) []core.EventID {
	seen := make(map[string]bool)
	var labels []string
	for _, r := range ds {
		if !seen[string(r.EventID)] {
			seen[string(r.EventID)] = true
			labels = append(labels, string(r.EventID))
		}
	}
	sortLabels(labels)
	out := make([]core.EventID, len(labels))
	for i, l := range labels {
		out[i] = core.EventID(l)
	}
	return out
}

func phaseLevels(ds Dataset) []core.PhaseID {
	seen := make(map[string]bool)
	var labels []string
	for _, r := range ds {
		if !seen[string(r.PhaseID)] {
			seen[string(r.PhaseID)] = true
			labels = append(labels, string(r.PhaseID))
		}
	}
	sortLabels(labels)
	out := make([]core.PhaseID, len(labels))
	for i, l := range labels {
		out[i] = core.PhaseID(l)
	}
	return out
}
