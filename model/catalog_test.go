package model

import (
	"os"
	"path/filepath"
	"testing"
)

const catalogYAML = `stations:
  - id: kexp
    name: KEXP 90.3 FM
    url: https://kexp.example/kexp160.mp3
    tags: indie,alternative
    country: The United States Of America
  - id: wfmu
    name: WFMU
    url: http://wfmu.example/wfmu.pls
    url_resolved: http://wfmu.example/wfmu.mp3
    tags: freeform
  - id: broken
    name: No Stream
  - id: kexp
    name: Duplicate KEXP
    url: https://dup.example/stream
`

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stations.yaml")
	if err := os.WriteFile(path, []byte(catalogYAML), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}

	if c.Len() != 2 {
		t.Fatalf("expected 2 stations, got %d", c.Len())
	}

	s, ok := c.Find("kexp")
	if !ok {
		t.Fatal("expected to find kexp")
	}
	if s.Name != "KEXP 90.3 FM" {
		t.Errorf("duplicate id replaced first entry: %q", s.Name)
	}

	if _, ok := c.Find("broken"); ok {
		t.Error("station without stream url should be dropped")
	}

	if all := c.All(); len(all) < 2 || all[1].ID != "wfmu" {
		t.Errorf("expected wfmu second in file order, got %+v", all)
	}
}

func TestLoadCatalog_Missing(t *testing.T) {
	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestCatalog_Search(t *testing.T) {
	c := NewCatalog([]Station{
		{ID: "a", Name: "Jazz FM", URL: "http://a", Country: "Germany"},
		{ID: "b", Name: "Rock Radio", URL: "http://b", Tags: "rock,classic"},
		{ID: "c", Name: "Talk", URL: "http://c", Country: "United States"},
	})

	if got := c.Search("ROCK"); len(got) != 1 || got[0].ID != "b" {
		t.Errorf("search by name/tag: got %+v", got)
	}
	if got := c.Search("united"); len(got) != 1 || got[0].ID != "c" {
		t.Errorf("search by country: got %+v", got)
	}
	if got := c.Search(" "); len(got) != 3 {
		t.Errorf("empty query should return all, got %d", len(got))
	}
}

func TestCatalog_Merge(t *testing.T) {
	c := NewCatalog([]Station{{ID: "kexp", Name: "KEXP", URL: "http://kexp.example/stream"}})

	merged := c.Merge([]Station{
		{ID: "kexp", Name: "KEXP duplicate", URL: "http://other.example/stream"},
		{Name: "No id", URL: "http://noid.example/stream"},
		{ID: "silent", Name: "No stream"},
	})

	if len(merged) != 2 {
		t.Fatalf("expected two playable stations, got %+v", merged)
	}
	if merged[0].Name != "KEXP" {
		t.Errorf("a known id should return the existing entry, got %q", merged[0].Name)
	}
	if merged[1].ID != "http://noid.example/stream" {
		t.Errorf("expected the stream url as id, got %q", merged[1].ID)
	}

	if _, ok := c.Find(merged[1].ID); !ok {
		t.Error("merged station should be playable by id")
	}
	if c.Len() != 2 {
		t.Errorf("expected two stations, got %d", c.Len())
	}
}
