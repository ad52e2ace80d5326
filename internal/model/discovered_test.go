package model

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestURLSet(t *testing.T) {
	t.Parallel()

	t.Run("add and has", func(t *testing.T) {
		t.Parallel()
		s := NewURLSet("https://a.test/", "https://a.test/")
		s.Add("https://a.test/x")
		if s.Len() != 2 {
			t.Errorf("Len() = %d, want 2", s.Len())
		}
		if !s.Has("https://a.test/x") || s.Has("https://a.test/y") {
			t.Error("unexpected membership")
		}
	})

	t.Run("marshals as sorted array", func(t *testing.T) {
		t.Parallel()
		data, err := json.Marshal(NewURLSet("https://a.test/z", "https://a.test/a"))
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != `["https://a.test/a","https://a.test/z"]` {
			t.Errorf("got %s", data)
		}
	})

	t.Run("unmarshal rejects objects", func(t *testing.T) {
		t.Parallel()
		var s URLSet
		if err := json.Unmarshal([]byte(`{"a":1}`), &s); err == nil {
			t.Error("expected error")
		}
	})
}

func TestDepthMap(t *testing.T) {
	t.Parallel()

	m := make(DepthMap)
	m.Add(2, "https://a.test/c")
	m.Add(0, "https://a.test/")
	m.Add(1, "https://a.test/b")
	m.Add(1, "https://a.test/a")

	if got := m.Depths(); !reflect.DeepEqual(got, []int{0, 1, 2}) {
		t.Errorf("Depths() = %v", got)
	}
	if m.Total() != 4 {
		t.Errorf("Total() = %d, want 4", m.Total())
	}
	want := []string{"https://a.test/", "https://a.test/a", "https://a.test/b", "https://a.test/c"}
	if got := m.URLs(); !reflect.DeepEqual(got, want) {
		t.Errorf("URLs() = %v", got)
	}

	t.Run("json keys are depths", func(t *testing.T) {
		t.Parallel()
		data, err := json.Marshal(m)
		if err != nil {
			t.Fatal(err)
		}
		var back DepthMap
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatal(err)
		}
		if !back[1].Has("https://a.test/a") || back.Total() != 4 {
			t.Errorf("decoded %v from %s", back, data)
		}
	})
}

func TestDiscoveredMap(t *testing.T) {
	t.Parallel()

	m := DiscoveredMap{
		"b.test": DepthMap{0: NewURLSet("https://b.test/")},
		"a.test": DepthMap{0: NewURLSet("https://a.test/"), 1: NewURLSet("https://a.test/x")},
		"c.test": DepthMap{},
	}

	if got := m.Domains(); !reflect.DeepEqual(got, []string{"a.test", "b.test", "c.test"}) {
		t.Errorf("Domains() = %v", got)
	}
	if m.Total() != 3 {
		t.Errorf("Total() = %d, want 3", m.Total())
	}
}
