package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func setupTestStorage(t *testing.T) (*Storage, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "crosslock-storage-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	store, err := New(&Config{DataDir: tmpDir})
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("failed to create storage: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}

	return store, cleanup
}

func TestNew(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "crosslock-storage-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	store, err := New(&Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	dbPath := filepath.Join(tmpDir, DatabaseFile)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	if store.Path() != dbPath {
		t.Errorf("Path() = %s, want %s", store.Path(), dbPath)
	}
	if store.DB() == nil {
		t.Error("DB() returned nil")
	}
}

func TestNewWithTildeExpansion(t *testing.T) {
	home, _ := os.UserHomeDir()
	expanded := expandPath("~/.test")
	expected := filepath.Join(home, ".test")

	if expanded != expected {
		t.Errorf("expandPath(~/.test) = %s, want %s", expanded, expected)
	}
	if got := expandPath("/var/lib/crosslock"); got != "/var/lib/crosslock" {
		t.Errorf("expandPath(absolute) = %s", got)
	}
}

func TestStorageSchema(t *testing.T) {
	store, cleanup := setupTestStorage(t)
	defer cleanup()

	tables := []string{"swaps", "swap_legs", "secrets", "submissions", "swap_events", "auctions", "settings"}
	for _, table := range tables {
		var name string
		err := store.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestReopenKeepsData(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "crosslock-storage-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	store, err := New(&Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := store.SaveSwap(testSwapRecord("swap-1")); err != nil {
		t.Fatalf("SaveSwap() error = %v", err)
	}
	store.Close()

	store, err = New(&Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer store.Close()

	if _, err := store.GetSwap("swap-1"); err != nil {
		t.Errorf("GetSwap() after reopen error = %v", err)
	}
}

func TestSettings(t *testing.T) {
	store, cleanup := setupTestStorage(t)
	defer cleanup()

	if _, err := store.GetSetting(SettingNetwork); !errors.Is(err, ErrSettingNotFound) {
		t.Errorf("GetSetting(missing) error = %v, want %v", err, ErrSettingNotFound)
	}

	if err := store.SetSetting(SettingNetwork, "testnet"); err != nil {
		t.Fatalf("SetSetting() error = %v", err)
	}
	if err := store.SetSetting(SettingNetwork, "mainnet"); err != nil {
		t.Fatalf("SetSetting() overwrite error = %v", err)
	}
	got, err := store.GetSetting(SettingNetwork)
	if err != nil {
		t.Fatalf("GetSetting() error = %v", err)
	}
	if got != "mainnet" {
		t.Errorf("GetSetting() = %q, want mainnet", got)
	}
}

func TestEnsureSetting(t *testing.T) {
	store, cleanup := setupTestStorage(t)
	defer cleanup()

	if err := store.EnsureSetting(SettingRelayer, "0xabc"); err != nil {
		t.Fatalf("EnsureSetting() first use error = %v", err)
	}
	if err := store.EnsureSetting(SettingRelayer, "0xabc"); err != nil {
		t.Errorf("EnsureSetting() same value error = %v", err)
	}
	if err := store.EnsureSetting(SettingRelayer, "0xdef"); err == nil {
		t.Error("EnsureSetting() with a different value should fail")
	}
}
