package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestDedupStoreClaimsOnce(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewDedupStore(newClient(mr), time.Minute)

	seen, err := store.Claim(context.Background(), "tenant-1", "wamid-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if seen {
		t.Fatalf("expected first claim to be fresh")
	}
	if !mr.Exists("quiz:dedup:tenant-1:wamid-1") {
		t.Fatalf("expected dedup key to be set")
	}

	seen, err = store.Claim(context.Background(), "tenant-1", "wamid-1")
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if !seen {
		t.Fatalf("expected replay to be reported as seen")
	}

	// Another tenant uses the same provider message id without colliding.
	seen, err = store.Claim(context.Background(), "tenant-2", "wamid-1")
	if err != nil {
		t.Fatalf("other tenant claim: %v", err)
	}
	if seen {
		t.Fatalf("expected other tenant's claim to be fresh")
	}
}

func TestDedupStoreReleaseReopensClaim(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewDedupStore(newClient(mr), time.Hour)

	if _, err := store.Claim(context.Background(), "tenant-1", "wamid-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.Release(context.Background(), "tenant-1", "wamid-1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if mr.Exists("quiz:dedup:tenant-1:wamid-1") {
		t.Fatalf("expected the claim key to be deleted")
	}

	// The id can be claimed again long before the original TTL would expire.
	seen, err := store.Claim(context.Background(), "tenant-1", "wamid-1")
	if err != nil {
		t.Fatalf("claim after release: %v", err)
	}
	if seen {
		t.Fatalf("expected a released id to be claimable again")
	}

	// Releasing an id that was never claimed is a quiet no-op.
	if err := store.Release(context.Background(), "tenant-1", "wamid-404"); err != nil {
		t.Fatalf("release unknown id: %v", err)
	}
}

func TestDedupStoreClaimExpires(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewDedupStore(newClient(mr), time.Minute)

	if _, err := store.Claim(context.Background(), "tenant-1", "wamid-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	seen, err := store.Claim(context.Background(), "tenant-1", "wamid-1")
	if err != nil {
		t.Fatalf("claim after expiry: %v", err)
	}
	if seen {
		t.Fatalf("expected claim to expire with the TTL")
	}
}
