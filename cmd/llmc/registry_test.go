package main

import "testing"

func TestRepoRegistryFindAndRemove(t *testing.T) {
	reg := &repoRegistry{Repos: []repoEntry{{Path: "/a"}, {Path: "/b"}}}

	if _, ok := reg.find("/a"); !ok {
		t.Fatal("expected to find /a")
	}
	if _, ok := reg.find("/missing"); ok {
		t.Fatal("expected /missing to be absent")
	}

	reg.remove("/a")
	if _, ok := reg.find("/a"); ok {
		t.Fatal("expected /a to be removed")
	}
	if _, ok := reg.find("/b"); !ok {
		t.Fatal("expected /b to survive removal of /a")
	}
}

func TestSaveLoadRegistryRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	reg := &repoRegistry{Repos: []repoEntry{{Path: "/repo/one"}}}
	if err := saveRegistry(reg); err != nil {
		t.Fatalf("saveRegistry: %v", err)
	}

	loaded, err := loadRegistry()
	if err != nil {
		t.Fatalf("loadRegistry: %v", err)
	}
	if len(loaded.Repos) != 1 || loaded.Repos[0].Path != "/repo/one" {
		t.Fatalf("got %+v, want one repo at /repo/one", loaded.Repos)
	}
}

func TestLoadRegistryMissingFileReturnsEmpty(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	reg, err := loadRegistry()
	if err != nil {
		t.Fatalf("loadRegistry: %v", err)
	}
	if len(reg.Repos) != 0 {
		t.Fatalf("expected empty registry, got %+v", reg.Repos)
	}
}
