package model

import (
	"encoding/json"
	"sort"
)

// URLSet is a set of normalized URLs.
// It marshals to a sorted JSON array so reports are stable across runs.
type URLSet map[string]struct{}

// NewURLSet returns a set containing urls.
func NewURLSet(urls ...string) URLSet {
	s := make(URLSet, len(urls))
	for _, u := range urls {
		s.Add(u)
	}
	return s
}

// Add inserts u into the set.
func (s URLSet) Add(u string) {
	s[u] = struct{}{}
}

// Has reports whether u is in the set.
func (s URLSet) Has(u string) bool {
	_, ok := s[u]
	return ok
}

// Len returns the number of URLs in the set.
func (s URLSet) Len() int {
	return len(s)
}

// Sorted returns the URLs in lexical order.
func (s URLSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for u := range s {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s URLSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes a JSON array of URLs.
func (s *URLSet) UnmarshalJSON(data []byte) error {
	var urls []string
	if err := json.Unmarshal(data, &urls); err != nil {
		return err
	}
	*s = NewURLSet(urls...)
	return nil
}

// DepthMap maps a crawl depth to the URLs successfully fetched at that depth.
// A URL appears at most once across all depths of one domain.
type DepthMap map[int]URLSet

// Add records u at depth d.
func (m DepthMap) Add(d int, u string) {
	set, ok := m[d]
	if !ok {
		set = make(URLSet)
		m[d] = set
	}
	set.Add(u)
}

// Depths returns the recorded depths in ascending order.
func (m DepthMap) Depths() []int {
	depths := make([]int, 0, len(m))
	for d := range m {
		depths = append(depths, d)
	}
	sort.Ints(depths)
	return depths
}

// Total returns the number of URLs across all depths.
func (m DepthMap) Total() int {
	n := 0
	for _, set := range m {
		n += set.Len()
	}
	return n
}

// URLs returns every URL in the map, sorted.
func (m DepthMap) URLs() []string {
	all := make(URLSet, m.Total())
	for _, set := range m {
		for u := range set {
			all.Add(u)
		}
	}
	return all.Sorted()
}

// DiscoveredMap is the result of a crawl run: domain -> depth -> URLs.
type DiscoveredMap map[string]DepthMap

// Domains returns the domain keys in lexical order.
func (m DiscoveredMap) Domains() []string {
	domains := make([]string, 0, len(m))
	for d := range m {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains
}

// Total returns the number of URLs across all domains.
func (m DiscoveredMap) Total() int {
	n := 0
	for _, dm := range m {
		n += dm.Total()
	}
	return n
}
