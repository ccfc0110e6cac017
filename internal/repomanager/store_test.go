package repomanager

import (
	"path/filepath"
	"testing"
	"time"
)

func TestStore_UpsertAndList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")
	store, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore() error: %v", err)
	}
	defer store.Close()

	now := time.Now().Truncate(time.Second)
	rec := RepoRecord{
		ID:         "abc123",
		URL:        "https://example.com/repo.git",
		NormURL:    "https://example.com/repo",
		DiskPath:   "/data/repos/abc123",
		State:      StateReady,
		CreatedAt:  now,
		LastAccess: now,
		LastFetch:  now,
	}

	if err := store.Upsert(rec); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	records, err := store.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("List() returned %d records, want 1", len(records))
	}
	got := records[0]
	if got.ID != rec.ID || got.URL != rec.URL || got.State != StateReady {
		t.Errorf("List() = %+v, want ID/URL/State matching %+v", got, rec)
	}
	if !got.LastAccess.Equal(now) {
		t.Errorf("LastAccess = %v, want %v", got.LastAccess, now)
	}
}

func TestStore_UpsertOverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")
	store, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore() error: %v", err)
	}
	defer store.Close()

	base := RepoRecord{
		ID:        "abc123",
		URL:       "https://example.com/repo.git",
		NormURL:   "https://example.com/repo",
		DiskPath:  "/data/repos/abc123",
		State:     StatePending,
		CreatedAt: time.Now(),
	}
	if err := store.Upsert(base); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	base.State = StateReady
	base.LastFetch = time.Now()
	if err := store.Upsert(base); err != nil {
		t.Fatalf("Upsert() (update) error: %v", err)
	}

	records, err := store.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("List() returned %d records, want 1 after re-upsert", len(records))
	}
	if records[0].State != StateReady {
		t.Errorf("State = %v, want StateReady after update", records[0].State)
	}
}

func TestStore_Delete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")
	store, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore() error: %v", err)
	}
	defer store.Close()

	rec := RepoRecord{ID: "abc123", URL: "u", NormURL: "u", DiskPath: "p", State: StatePending, CreatedAt: time.Now()}
	if err := store.Upsert(rec); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}
	if err := store.Delete(rec.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	records, err := store.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("List() returned %d records after delete, want 0", len(records))
	}
}

func TestRepoManager_PersistsAcrossRestart(t *testing.T) {
	dataDir := t.TempDir()
	storePath := filepath.Join(t.TempDir(), "registry.db")

	cfg := testConfig(t)
	cfg.DataDir = dataDir
	cfg.StorePath = storePath

	rm, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	id, err := rm.AddRepo("https://example.com/repo.git")
	if err != nil {
		t.Fatalf("AddRepo() error: %v", err)
	}
	rm.ForceStateForTest(id, StateReady)
	rm.mu.RLock()
	managed := rm.repos[id]
	rm.mu.RUnlock()
	managed.mu.Lock()
	rm.persist(managed)
	managed.mu.Unlock()

	rm.Close()

	cfg2 := testConfig(t)
	cfg2.DataDir = dataDir
	cfg2.StorePath = storePath
	rm2, err := New(cfg2)
	if err != nil {
		t.Fatalf("New() (reload) error: %v", err)
	}
	defer rm2.Close()

	infos := rm2.List()
	found := false
	for _, info := range infos {
		if info.ID == id {
			found = true
		}
	}
	if !found {
		t.Errorf("List() after restart = %+v, want repo %s present", infos, id)
	}
}
