package audit

import (
	"testing"
)

func TestInMemoryRepository_HashChain(t *testing.T) {
	repo := NewInMemoryRepository()

	log1, err := repo.LogAccess(LogEntry{
		Identity:   "alice@example.com",
		EntityType: "asset",
		EntityID:   "hash-1",
		Action:     "list_asset",
		Outcome:    OutcomeSuccess,
	})
	if err != nil {
		t.Fatalf("LogAccess() error = %v", err)
	}

	// First entry should have empty previous hash
	if log1.PreviousHash != "" {
		t.Errorf("first log entry PreviousHash = %q, want empty string", log1.PreviousHash)
	}

	log2, err := repo.LogAccess(LogEntry{
		Identity:   "bob@example.com",
		EntityType: "asset",
		EntityID:   "hash-1",
		Action:     "buy_asset",
		Outcome:    OutcomeSuccess,
	})
	if err != nil {
		t.Fatalf("LogAccess() error = %v", err)
	}
	if log2.PreviousHash == "" {
		t.Error("second log entry should have non-empty PreviousHash")
	}

	log3, err := repo.LogAccess(LogEntry{
		Identity:   "bob@example.com",
		EntityType: "training",
		EntityID:   "vault-1-data.csv",
		Action:     "run_training",
		Outcome:    OutcomeSuccess,
	})
	if err != nil {
		t.Fatalf("LogAccess() error = %v", err)
	}
	if log3.PreviousHash == "" {
		t.Error("third log entry should have non-empty PreviousHash")
	}
	if log3.PreviousHash == log2.PreviousHash {
		t.Error("third log entry PreviousHash should differ from second's")
	}
}

func TestInMemoryRepository_GetLastHash(t *testing.T) {
	repo := NewInMemoryRepository()

	hash, err := repo.GetLastHash()
	if err != nil {
		t.Fatalf("GetLastHash() error = %v", err)
	}
	if hash != "" {
		t.Errorf("GetLastHash() on empty repo = %q, want empty string", hash)
	}

	_, err = repo.LogAccess(LogEntry{
		Identity:   "alice@example.com",
		EntityType: "asset",
		EntityID:   "hash-1",
		Action:     "list_asset",
	})
	if err != nil {
		t.Fatalf("LogAccess() error = %v", err)
	}

	hash, err = repo.GetLastHash()
	if err != nil {
		t.Fatalf("GetLastHash() error = %v", err)
	}
	if hash == "" {
		t.Error("GetLastHash() should return non-empty hash after logging")
	}

	_, err = repo.LogAccess(LogEntry{
		Identity:   "bob@example.com",
		EntityType: "asset",
		EntityID:   "hash-1",
		Action:     "buy_asset",
	})
	if err != nil {
		t.Fatalf("LogAccess() error = %v", err)
	}

	hash2, err := repo.GetLastHash()
	if err != nil {
		t.Fatalf("GetLastHash() error = %v", err)
	}
	if hash2 == hash {
		t.Error("GetLastHash() should return different hash after new entry")
	}
}

func TestInMemoryRepository_VerifyHashChain(t *testing.T) {
	repo := NewInMemoryRepository()

	// Empty chain is valid
	valid, err := repo.VerifyHashChain()
	if err != nil {
		t.Fatalf("VerifyHashChain() error = %v", err)
	}
	if !valid {
		t.Error("VerifyHashChain() on empty repo should be valid")
	}

	entries := []LogEntry{
		{Identity: "alice@example.com", EntityType: "asset", EntityID: "hash-1", Action: "list_asset"},
		{Identity: "bob@example.com", EntityType: "asset", EntityID: "hash-1", Action: "buy_asset"},
		{Identity: "bob@example.com", EntityType: "asset", EntityID: "hash-1", Action: "download_asset"},
		{Identity: "carol@example.com", EntityType: "training", EntityID: "vault-2-x.csv", Action: "run_training"},
	}
	for _, entry := range entries {
		if _, err := repo.LogAccess(entry); err != nil {
			t.Fatalf("LogAccess() error = %v", err)
		}
	}

	valid, err = repo.VerifyHashChain()
	if err != nil {
		t.Fatalf("VerifyHashChain() error = %v", err)
	}
	if !valid {
		t.Error("VerifyHashChain() should be valid for untampered chain")
	}
}

func TestInMemoryRepository_VerifyHashChain_TamperedData(t *testing.T) {
	repo := NewInMemoryRepository()

	log1, err := repo.LogAccess(LogEntry{
		Identity:   "alice@example.com",
		EntityType: "asset",
		EntityID:   "hash-1",
		Action:     "list_asset",
	})
	if err != nil {
		t.Fatalf("LogAccess() error = %v", err)
	}

	_, err = repo.LogAccess(LogEntry{
		Identity:   "bob@example.com",
		EntityType: "asset",
		EntityID:   "hash-1",
		Action:     "buy_asset",
	})
	if err != nil {
		t.Fatalf("LogAccess() error = %v", err)
	}

	// Tamper with the first entry's action
	repo.mu.Lock()
	repo.logs[log1.ID].Action = "download_asset"
	repo.mu.Unlock()

	valid, err := repo.VerifyHashChain()
	if err != nil {
		t.Fatalf("VerifyHashChain() error = %v", err)
	}
	if valid {
		t.Error("VerifyHashChain() should be invalid for tampered data")
	}
}

func TestInMemoryRepository_OutcomeField(t *testing.T) {
	repo := NewInMemoryRepository()

	log1, err := repo.LogAccess(LogEntry{
		Identity:   "alice@example.com",
		EntityType: "asset",
		EntityID:   "hash-1",
		Action:     "buy_asset",
		Outcome:    OutcomeFailure,
	})
	if err != nil {
		t.Fatalf("LogAccess() error = %v", err)
	}
	if log1.Outcome != OutcomeFailure {
		t.Errorf("Outcome = %q, want %q", log1.Outcome, OutcomeFailure)
	}

	// Empty outcome defaults to success
	log2, err := repo.LogAccess(LogEntry{
		Identity:   "alice@example.com",
		EntityType: "asset",
		EntityID:   "hash-1",
		Action:     "buy_asset",
	})
	if err != nil {
		t.Fatalf("LogAccess() error = %v", err)
	}
	if log2.Outcome != OutcomeSuccess {
		t.Errorf("Outcome = %q, want %q (default)", log2.Outcome, OutcomeSuccess)
	}
}
