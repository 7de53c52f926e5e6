package dedup_test

import (
	"context"
	"testing"
	"time"

	"snapsync/internal/config"
	"snapsync/internal/dedup"
	"snapsync/internal/queue"
	"snapsync/internal/testsupport"
)

func insertItem(t *testing.T, store *queue.Store, path, contentHash string, dhash uint64, size int64, width, height int) *queue.Item {
	t.Helper()
	item, err := store.NewItem(context.Background(), &queue.Item{
		SourcePath:  path,
		FileName:    path,
		SizeBytes:   size,
		MimeType:    "image/jpeg",
		ContentHash: contentHash,
		DHash:       dhash,
		PHash:       dhash,
		Width:       width,
		Height:      height,
		CaptureTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("NewItem failed: %v", err)
	}
	return item
}

func newIndex(t *testing.T, store *queue.Store, policy string) *dedup.Index {
	t.Helper()
	cfg := config.Default().Dedup
	cfg.Policy = policy
	idx := dedup.NewIndex(store, cfg)
	if err := idx.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	return idx
}

func TestIdenticalPhotosGroupWithOneRepresentative(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	idx := newIndex(t, store, dedup.PolicySkip)

	// Same content hash, different file sizes; the largest should win.
	a := insertItem(t, store, "/photos/a.jpg", "same-hash", 0, 1000, 640, 480)
	b := insertItem(t, store, "/photos/b.jpg", "same-hash", 0, 3000, 640, 480)
	c := insertItem(t, store, "/photos/c.jpg", "same-hash", 0, 2000, 640, 480)

	for _, item := range []*queue.Item{a, b, c} {
		if _, err := idx.Evaluate(ctx, item); err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
	}

	groups, err := store.ListGroups(ctx)
	if err != nil {
		t.Fatalf("ListGroups failed: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if groups[0].RepresentativeID == nil || *groups[0].RepresentativeID != b.ID {
		t.Fatalf("expected largest file %d as representative, got %v", b.ID, groups[0].RepresentativeID)
	}

	for _, id := range []int64{a.ID, b.ID, c.ID} {
		item, _ := store.GetByID(ctx, id)
		wantExcluded := id != b.ID
		if item.ExcludedFromUpload != wantExcluded {
			t.Errorf("item %d excluded = %v, want %v", id, item.ExcludedFromUpload, wantExcluded)
		}
	}
}

func TestReviewPolicyFlagsInsteadOfExcluding(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	idx := newIndex(t, store, dedup.PolicyReview)

	a := insertItem(t, store, "/photos/a.jpg", "same-hash", 0, 2000, 640, 480)
	b := insertItem(t, store, "/photos/b.jpg", "same-hash", 0, 1000, 640, 480)

	for _, item := range []*queue.Item{a, b} {
		if _, err := idx.Evaluate(ctx, item); err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
	}

	dup, _ := store.GetByID(ctx, b.ID)
	if dup.ExcludedFromUpload {
		t.Fatal("review policy should not exclude duplicates")
	}
	if !dup.NeedsReview {
		t.Fatal("review policy should flag duplicates for review")
	}
	if dup.ReviewReason == "" {
		t.Fatal("expected a review reason naming the representative")
	}
}

func TestDistinctPhotosStayUngrouped(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	idx := newIndex(t, store, dedup.PolicySkip)

	a := insertItem(t, store, "/photos/a.jpg", "hash-a", 0x0, 1000, 640, 480)
	// All 64 bits differ in both hashes: maximum distance.
	b := insertItem(t, store, "/photos/b.jpg", "hash-b", 0xFFFFFFFFFFFFFFFF, 1000, 640, 480)

	for _, item := range []*queue.Item{a, b} {
		res, err := idx.Evaluate(ctx, item)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if res.ExactDuplicate || res.NearDuplicate {
			t.Fatalf("expected no match for item %d: %#v", item.ID, res)
		}
	}

	groups, err := store.ListGroups(ctx)
	if err != nil {
		t.Fatalf("ListGroups failed: %v", err)
	}
	if len(groups) != 0 {
		t.Fatalf("expected no groups, got %d", len(groups))
	}
}

func TestNearDuplicateWithinThresholdGroups(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	idx := newIndex(t, store, dedup.PolicySkip)

	// 8 differing bits in each hash: distance 0.125, inside the 0.15 near
	// threshold but outside the 0.05 duplicate threshold.
	a := insertItem(t, store, "/photos/a.jpg", "hash-a", 0x00, 1000, 640, 480)
	b := insertItem(t, store, "/photos/b.jpg", "hash-b", 0xFF, 1000, 640, 480)

	if _, err := idx.Evaluate(ctx, a); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	res, err := idx.Evaluate(ctx, b)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res.ExactDuplicate {
		t.Fatal("expected near duplicate, not exact")
	}
	if !res.NearDuplicate {
		t.Fatal("expected near duplicate match")
	}
	if res.GroupID == nil {
		t.Fatal("expected group assignment")
	}
}

func TestNearThresholdBoundaryIsInclusive(t *testing.T) {
	ctx := context.Background()

	// 0.25 is exactly representable, so distance == threshold compares
	// without float noise: 16 differing bits per hash is 16/64 = 0.25.
	newBoundaryIndex := func(t *testing.T, store *queue.Store) *dedup.Index {
		t.Helper()
		cfg := config.Default().Dedup
		cfg.Policy = dedup.PolicySkip
		cfg.NearThreshold = 0.25
		idx := dedup.NewIndex(store, cfg)
		if err := idx.Rebuild(ctx); err != nil {
			t.Fatalf("Rebuild failed: %v", err)
		}
		return idx
	}

	t.Run("at threshold groups", func(t *testing.T) {
		cfg := testsupport.NewConfig(t)
		store := testsupport.MustOpenStore(t, cfg)
		idx := newBoundaryIndex(t, store)

		a := insertItem(t, store, "/photos/a.jpg", "hash-a", 0x0, 1000, 640, 480)
		b := insertItem(t, store, "/photos/b.jpg", "hash-b", 0xFFFF, 1000, 640, 480)

		if _, err := idx.Evaluate(ctx, a); err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		res, err := idx.Evaluate(ctx, b)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if !res.NearDuplicate {
			t.Fatal("expected a match at exactly the near threshold")
		}
		if res.GroupID == nil {
			t.Fatal("expected group assignment at the threshold")
		}
	})

	t.Run("just above threshold stays ungrouped", func(t *testing.T) {
		cfg := testsupport.NewConfig(t)
		store := testsupport.MustOpenStore(t, cfg)
		idx := newBoundaryIndex(t, store)

		// 17 differing bits per hash: 17/64 = 0.265625, one bit past the cutoff.
		a := insertItem(t, store, "/photos/a.jpg", "hash-a", 0x0, 1000, 640, 480)
		c := insertItem(t, store, "/photos/c.jpg", "hash-c", 0x1FFFF, 1000, 640, 480)

		if _, err := idx.Evaluate(ctx, a); err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		res, err := idx.Evaluate(ctx, c)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if res.ExactDuplicate || res.NearDuplicate {
			t.Fatalf("expected no match one bit past the threshold: %#v", res)
		}
		groups, err := store.ListGroups(ctx)
		if err != nil {
			t.Fatalf("ListGroups failed: %v", err)
		}
		if len(groups) != 0 {
			t.Fatalf("expected no groups, got %d", len(groups))
		}
	})
}

func TestBridgingPhotoMergesGroups(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	idx := newIndex(t, store, dedup.PolicySkip)

	// Two pairs of exact duplicates 16 bits apart per hash (distance 0.25,
	// past the near threshold, so they form separate groups). A bridge 8
	// bits from each cluster (distance 0.125) should merge them.
	x1 := insertItem(t, store, "/photos/x1.jpg", "hash-x", 0x0000, 1000, 640, 480)
	x2 := insertItem(t, store, "/photos/x2.jpg", "hash-x", 0x0000, 1000, 640, 480)
	y1 := insertItem(t, store, "/photos/y1.jpg", "hash-y", 0xFFFF, 1000, 640, 480)
	y2 := insertItem(t, store, "/photos/y2.jpg", "hash-y", 0xFFFF, 1000, 640, 480)

	for _, item := range []*queue.Item{x1, x2, y1, y2} {
		if _, err := idx.Evaluate(ctx, item); err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
	}

	groups, err := store.ListGroups(ctx)
	if err != nil {
		t.Fatalf("ListGroups failed: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups before bridging, got %d", len(groups))
	}

	// 0x00FF is 8 bits from 0x0000 and 8 bits from 0xFFFF.
	bridge := insertItem(t, store, "/photos/bridge.jpg", "hash-bridge", 0x00FF, 1000, 640, 480)
	res, err := idx.Evaluate(ctx, bridge)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res.GroupID == nil {
		t.Fatal("expected bridge to join a group")
	}

	groups, err = store.ListGroups(ctx)
	if err != nil {
		t.Fatalf("ListGroups failed: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group after merge, got %d", len(groups))
	}
	members, err := store.GroupMembers(ctx, *res.GroupID)
	if err != nil {
		t.Fatalf("GroupMembers failed: %v", err)
	}
	if len(members) != 5 {
		t.Fatalf("expected 5 members after merge, got %d", len(members))
	}
}

func TestRebuildRestoresIndexFromStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	idx := newIndex(t, store, dedup.PolicySkip)
	a := insertItem(t, store, "/photos/a.jpg", "hash-a", 0x0, 1000, 640, 480)
	if _, err := idx.Evaluate(ctx, a); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	// A fresh index, as after a daemon restart, must still catch the dup.
	restarted := newIndex(t, store, dedup.PolicySkip)
	if restarted.Size() != 1 {
		t.Fatalf("expected 1 entry after rebuild, got %d", restarted.Size())
	}

	dup := insertItem(t, store, "/photos/a-copy.jpg", "hash-a", 0x0, 500, 640, 480)
	res, err := restarted.Evaluate(ctx, dup)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !res.ExactDuplicate {
		t.Fatal("expected rebuilt index to detect the duplicate")
	}
	if !res.Excluded {
		t.Fatal("expected smaller copy to be excluded")
	}
}
