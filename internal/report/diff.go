package report

import (
	"sort"

	"github.com/websearchtool/sitecrawl/internal/model"
)

// Diff compares the URLs one domain yielded in two runs.
type Diff struct {
	Domain   string `json:"domain"`
	OldRunID string `json:"old_run_id"`
	NewRunID string `json:"new_run_id"`

	// Added are URLs present only in the newer run.
	Added []string `json:"added"`

	// Removed are URLs present only in the older run.
	Removed []string `json:"removed"`

	// Moved are URLs found in both runs at different depths.
	Moved []DepthChange `json:"moved,omitempty"`

	// Unchanged counts URLs found in both runs at the same depth.
	Unchanged int `json:"unchanged"`
}

// DepthChange records a URL whose depth differs between runs.
type DepthChange struct {
	URL      string `json:"url"`
	OldDepth int    `json:"old_depth"`
	NewDepth int    `json:"new_depth"`
}

// NewDiff compares older with newer. All slices are sorted by URL.
func NewDiff(domain, oldRunID, newRunID string, older, newer model.DepthMap) *Diff {
	oldDepth := depthIndex(older)
	newDepth := depthIndex(newer)

	d := &Diff{
		Domain:   domain,
		OldRunID: oldRunID,
		NewRunID: newRunID,
		Added:    []string{},
		Removed:  []string{},
	}
	for u, nd := range newDepth {
		od, ok := oldDepth[u]
		switch {
		case !ok:
			d.Added = append(d.Added, u)
		case od != nd:
			d.Moved = append(d.Moved, DepthChange{URL: u, OldDepth: od, NewDepth: nd})
		default:
			d.Unchanged++
		}
	}
	for u := range oldDepth {
		if _, ok := newDepth[u]; !ok {
			d.Removed = append(d.Removed, u)
		}
	}

	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	sort.Slice(d.Moved, func(i, j int) bool { return d.Moved[i].URL < d.Moved[j].URL })
	return d
}

// HasChanges reports whether the runs differ at all.
func (d *Diff) HasChanges() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0 || len(d.Moved) > 0
}

// depthIndex maps every URL to the shallowest depth it was found at.
func depthIndex(m model.DepthMap) map[string]int {
	out := make(map[string]int, m.Total())
	for _, depth := range m.Depths() {
		for u := range m[depth] {
			if _, seen := out[u]; !seen {
				out[u] = depth
			}
		}
	}
	return out
}
