package storage

import (
	"errors"
	"testing"
	"time"
)

func enqueueTestSubmission(t *testing.T, store *Storage, chain string, action SubmissionAction, payload *SubmissionPayload) *Submission {
	t.Helper()
	sub := &Submission{
		SwapID:   "swap-1",
		Chain:    chain,
		Action:   action,
		LegRole:  LegRoleMaker,
		EscrowID: 3,
		Deadline: 5000,
	}
	if err := store.EnqueueSubmission(sub, payload); err != nil {
		t.Fatalf("EnqueueSubmission() error = %v", err)
	}
	return sub
}

func TestEnqueueSubmission(t *testing.T) {
	store, cleanup := setupTestStorage(t)
	defer cleanup()

	sub := enqueueTestSubmission(t, store, "sepolia", ActionWithdraw, &SubmissionPayload{Secret: "0xbeef"})
	if sub.SubmissionID == "" {
		t.Fatal("SubmissionID not assigned")
	}
	if sub.Status != SubmissionStatusPending {
		t.Errorf("Status = %s, want pending", sub.Status)
	}

	got, err := store.GetSubmission(sub.SubmissionID)
	if err != nil {
		t.Fatalf("GetSubmission() error = %v", err)
	}
	if got.Action != ActionWithdraw || got.LegRole != LegRoleMaker || got.EscrowID != 3 {
		t.Errorf("got action=%s role=%s escrow=%d", got.Action, got.LegRole, got.EscrowID)
	}
	payload, err := got.DecodePayload()
	if err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if payload.Secret != "0xbeef" {
		t.Errorf("payload secret = %q, want 0xbeef", payload.Secret)
	}

	if _, err := store.GetSubmission("missing"); !errors.Is(err, ErrSubmissionNotFound) {
		t.Errorf("GetSubmission(missing) error = %v, want %v", err, ErrSubmissionNotFound)
	}
}

func TestPendingSubmissionsArePerChain(t *testing.T) {
	store, cleanup := setupTestStorage(t)
	defer cleanup()

	enqueueTestSubmission(t, store, "sepolia", ActionAssignTaker, &SubmissionPayload{Taker: "0xabc"})
	enqueueTestSubmission(t, store, "local", ActionWithdraw, nil)
	enqueueTestSubmission(t, store, "local", ActionCancel, nil)

	now := time.Now().Unix()
	evm, err := store.GetPendingSubmissions("sepolia", now)
	if err != nil {
		t.Fatalf("GetPendingSubmissions() error = %v", err)
	}
	if len(evm) != 1 {
		t.Errorf("sepolia pending = %d, want 1", len(evm))
	}
	local, err := store.GetPendingSubmissions("local", now)
	if err != nil {
		t.Fatalf("GetPendingSubmissions() error = %v", err)
	}
	if len(local) != 2 {
		t.Errorf("local pending = %d, want 2", len(local))
	}
}

func TestSubmissionRetryAndCompletion(t *testing.T) {
	store, cleanup := setupTestStorage(t)
	defer cleanup()

	sub := enqueueTestSubmission(t, store, "local", ActionWithdraw, nil)
	now := time.Now().Unix()

	if err := store.MarkSubmissionAttempt(sub.SubmissionID); err != nil {
		t.Fatalf("MarkSubmissionAttempt() error = %v", err)
	}
	if err := store.ScheduleRetry(sub.SubmissionID, now+600, "rpc timeout"); err != nil {
		t.Fatalf("ScheduleRetry() error = %v", err)
	}

	due, err := store.GetPendingSubmissions("local", now)
	if err != nil {
		t.Fatalf("GetPendingSubmissions() error = %v", err)
	}
	if len(due) != 0 {
		t.Errorf("submission due before its retry time")
	}
	due, err = store.GetPendingSubmissions("local", now+600)
	if err != nil {
		t.Fatalf("GetPendingSubmissions() error = %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("submission not due at its retry time")
	}
	if due[0].RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", due[0].RetryCount)
	}
	if due[0].ErrorMessage != "rpc timeout" {
		t.Errorf("ErrorMessage = %q, want rpc timeout", due[0].ErrorMessage)
	}

	active, err := store.HasActiveSubmission("swap-1", LegRoleMaker, ActionWithdraw)
	if err != nil {
		t.Fatalf("HasActiveSubmission() error = %v", err)
	}
	if !active {
		t.Error("HasActiveSubmission() = false for a pending submission")
	}

	if err := store.MarkSubmissionDone(sub.SubmissionID); err != nil {
		t.Fatalf("MarkSubmissionDone() error = %v", err)
	}
	got, err := store.GetSubmission(sub.SubmissionID)
	if err != nil {
		t.Fatalf("GetSubmission() error = %v", err)
	}
	if got.Status != SubmissionStatusDone || got.CompletedAt == nil {
		t.Errorf("status = %s completed_at = %v", got.Status, got.CompletedAt)
	}
	// Completion keeps the last error for the audit trail.
	if got.ErrorMessage != "rpc timeout" {
		t.Errorf("ErrorMessage = %q after completion", got.ErrorMessage)
	}

	due, err = store.GetPendingSubmissions("local", now+600)
	if err != nil {
		t.Fatalf("GetPendingSubmissions() error = %v", err)
	}
	if len(due) != 0 {
		t.Error("done submission still pending")
	}
}

func TestSubmissionExpiredAndFailed(t *testing.T) {
	store, cleanup := setupTestStorage(t)
	defer cleanup()

	expired := enqueueTestSubmission(t, store, "local", ActionWithdraw, nil)
	failed := enqueueTestSubmission(t, store, "local", ActionAssignTaker, nil)

	if err := store.MarkSubmissionExpired(expired.SubmissionID, "deadline passed"); err != nil {
		t.Fatalf("MarkSubmissionExpired() error = %v", err)
	}
	if err := store.MarkSubmissionFailed(failed.SubmissionID, "unauthorized"); err != nil {
		t.Fatalf("MarkSubmissionFailed() error = %v", err)
	}
	if err := store.MarkSubmissionDone("missing"); !errors.Is(err, ErrSubmissionNotFound) {
		t.Errorf("MarkSubmissionDone(missing) error = %v, want %v", err, ErrSubmissionNotFound)
	}

	active, err := store.HasActiveSubmission("swap-1", LegRoleMaker, ActionWithdraw)
	if err != nil {
		t.Fatalf("HasActiveSubmission() error = %v", err)
	}
	if active {
		t.Error("expired submission counted as active")
	}

	stats, err := store.GetSubmissionStats()
	if err != nil {
		t.Fatalf("GetSubmissionStats() error = %v", err)
	}
	if stats[SubmissionStatusExpired] != 1 || stats[SubmissionStatusFailed] != 1 {
		t.Errorf("stats = %v", stats)
	}

	subs, err := store.GetSubmissionsForSwap("swap-1")
	if err != nil {
		t.Fatalf("GetSubmissionsForSwap() error = %v", err)
	}
	if len(subs) != 2 || subs[0].SubmissionID != expired.SubmissionID {
		t.Errorf("GetSubmissionsForSwap() returned %d submissions in wrong order", len(subs))
	}

	removed, err := store.CleanupOldSubmissions(time.Now().Unix() + 1)
	if err != nil {
		t.Fatalf("CleanupOldSubmissions() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("CleanupOldSubmissions() removed %d, want 2", removed)
	}
}

func TestSubmissionPastDeadline(t *testing.T) {
	tests := []struct {
		deadline int64
		now      int64
		want     bool
	}{
		{0, 1 << 40, false},
		{100, 99, false},
		{100, 100, true},
		{100, 101, true},
	}
	for _, tt := range tests {
		sub := &Submission{Deadline: tt.deadline}
		if got := sub.PastDeadline(tt.now); got != tt.want {
			t.Errorf("PastDeadline(deadline=%d, now=%d) = %v, want %v", tt.deadline, tt.now, got, tt.want)
		}
	}
}
