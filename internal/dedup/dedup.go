// Package dedup groups queued photos that are the same picture and decides
// which copy gets uploaded.
//
// Every fingerprinted item lives in an in-memory index rebuilt from the
// store at startup. A new photo is compared against the whole index: exact
// matches (same content hash, or perceptual distance at or below the
// duplicate threshold) and near matches (distance at or below the near
// threshold) pull it into a duplicate group. One member per group, the
// representative, stays uploadable; the rest are excluded or flagged for
// review depending on policy.
package dedup

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"snapsync/internal/config"
	"snapsync/internal/hashing"
	"snapsync/internal/queue"
	"snapsync/internal/services"
)

// Policy names for non-representative group members.
const (
	PolicySkip   = "skip"
	PolicyReview = "review"
)

// Result describes what deduplication decided about one photo.
type Result struct {
	ExactDuplicate   bool
	NearDuplicate    bool
	GroupID          *int64
	RepresentativeID int64
	Excluded         bool
	NeedsReview      bool
	MatchedIDs       []int64
}

type entry struct {
	itemID      int64
	contentHash string
	fp          hashing.Fingerprint
	groupID     *int64
}

// Index is the in-memory fingerprint index plus the persistence wiring that
// keeps duplicate groups in the store consistent with it.
type Index struct {
	mu      sync.Mutex
	store   *queue.Store
	cfg     config.Dedup
	entries []entry
}

// NewIndex builds an empty index; call Rebuild before evaluating.
func NewIndex(store *queue.Store, cfg config.Dedup) *Index {
	return &Index{store: store, cfg: cfg}
}

// Rebuild reloads the index from every fingerprinted item in the store.
// Purged items drop out here: the engine deliberately forgets fingerprints
// whose rows are gone.
func (x *Index) Rebuild(ctx context.Context) error {
	items, err := x.store.FingerprintedItems(ctx)
	if err != nil {
		return services.Wrap(services.ErrPersistence, "dedup", "rebuild", "load fingerprints", err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries = x.entries[:0]
	for _, item := range items {
		x.entries = append(x.entries, entryFromItem(item))
	}
	return nil
}

// Size reports how many fingerprints the index holds.
func (x *Index) Size() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.entries)
}

// Evaluate compares a freshly inserted item against the index, persists any
// group membership and exclusion changes, and adds the item to the index.
func (x *Index) Evaluate(ctx context.Context, item *queue.Item) (*Result, error) {
	if item == nil || item.ContentHash == "" {
		return nil, services.Wrap(services.ErrValidation, "dedup", "evaluate", "item has no fingerprint", nil)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	fp := fingerprintOf(item)
	result := &Result{RepresentativeID: item.ID}

	var matched []*entry
	for i := range x.entries {
		e := &x.entries[i]
		if e.itemID == item.ID {
			continue
		}
		if e.contentHash == item.ContentHash {
			result.ExactDuplicate = true
			matched = append(matched, e)
			continue
		}
		d := hashing.Distance(fp, e.fp, x.cfg.DHashWeight, x.cfg.PHashWeight)
		if d <= x.cfg.DuplicateThreshold {
			result.ExactDuplicate = true
			matched = append(matched, e)
		} else if d <= x.cfg.NearThreshold {
			result.NearDuplicate = true
			matched = append(matched, e)
		}
	}

	if len(matched) == 0 {
		x.entries = append(x.entries, entryFromItem(item))
		return result, nil
	}

	for _, e := range matched {
		result.MatchedIDs = append(result.MatchedIDs, e.itemID)
	}

	basis := queue.BasisPerceptual
	if result.ExactDuplicate {
		basis = queue.BasisContentHash
	}
	groupID, err := x.placeInGroupLocked(ctx, item, matched, basis)
	if err != nil {
		return nil, err
	}
	result.GroupID = &groupID

	representative, err := x.electRepresentativeLocked(ctx, groupID)
	if err != nil {
		return nil, err
	}
	result.RepresentativeID = representative

	members, err := x.store.GroupMembers(ctx, groupID)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "dedup", "evaluate", "load group members", err)
	}
	for _, member := range members {
		excluded, needsReview, reason := x.dispositionFor(member.ID, representative)
		if member.Status == queue.StatusCompleted {
			// Already uploaded; flipping flags would only confuse reporting.
			continue
		}
		if err := x.store.SetExclusion(ctx, member.ID, excluded, needsReview, reason); err != nil {
			return nil, services.Wrap(services.ErrPersistence, "dedup", "evaluate", "apply exclusion", err)
		}
		if member.ID == item.ID {
			result.Excluded = excluded
			result.NeedsReview = needsReview
		}
	}

	x.entries = append(x.entries, entry{
		itemID:      item.ID,
		contentHash: item.ContentHash,
		fp:          fp,
		groupID:     &groupID,
	})
	return result, nil
}

// placeInGroupLocked attaches the item to the group implied by its matches,
// creating a new group when the matches were loose, and merging when the
// matches span several existing groups.
func (x *Index) placeInGroupLocked(ctx context.Context, item *queue.Item, matched []*entry, basis string) (int64, error) {
	groupIDs := make(map[int64]struct{})
	for _, e := range matched {
		if e.groupID != nil {
			groupIDs[*e.groupID] = struct{}{}
		}
	}

	var groupID int64
	switch len(groupIDs) {
	case 0:
		group, err := x.store.CreateGroup(ctx, basis)
		if err != nil {
			return 0, services.Wrap(services.ErrPersistence, "dedup", "group", "create group", err)
		}
		groupID = group.ID
	case 1:
		for id := range groupIDs {
			groupID = id
		}
	default:
		ids := make([]int64, 0, len(groupIDs))
		for id := range groupIDs {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		groupID = ids[0]
		if err := x.store.MergeGroups(ctx, groupID, ids[1:]...); err != nil {
			return 0, services.Wrap(services.ErrPersistence, "dedup", "group", "merge groups", err)
		}
		for i := range x.entries {
			e := &x.entries[i]
			if e.groupID == nil {
				continue
			}
			for _, merged := range ids[1:] {
				if *e.groupID == merged {
					gid := groupID
					e.groupID = &gid
				}
			}
		}
	}

	if err := x.store.AssignToGroup(ctx, item.ID, groupID); err != nil {
		return 0, services.Wrap(services.ErrPersistence, "dedup", "group", "assign item", err)
	}
	for _, e := range matched {
		if e.groupID == nil {
			if err := x.store.AssignToGroup(ctx, e.itemID, groupID); err != nil {
				return 0, services.Wrap(services.ErrPersistence, "dedup", "group", "assign matched item", err)
			}
			gid := groupID
			e.groupID = &gid
		}
	}
	return groupID, nil
}

// electRepresentativeLocked picks the member to upload: largest file first,
// then highest resolution, then earliest capture, then lowest id. The total
// order makes the choice deterministic across restarts.
func (x *Index) electRepresentativeLocked(ctx context.Context, groupID int64) (int64, error) {
	members, err := x.store.GroupMembers(ctx, groupID)
	if err != nil {
		return 0, services.Wrap(services.ErrPersistence, "dedup", "representative", "load members", err)
	}
	if len(members) == 0 {
		return 0, services.Wrap(services.ErrPersistence, "dedup", "representative", fmt.Sprintf("group %d has no members", groupID), nil)
	}

	best := members[0]
	for _, candidate := range members[1:] {
		if representativeLess(candidate, best) {
			best = candidate
		}
	}
	if err := x.store.SetRepresentative(ctx, groupID, best.ID); err != nil {
		return 0, services.Wrap(services.ErrPersistence, "dedup", "representative", "persist choice", err)
	}
	return best.ID, nil
}

func representativeLess(a, b *queue.Item) bool {
	if a.SizeBytes != b.SizeBytes {
		return a.SizeBytes > b.SizeBytes
	}
	if ap, bp := a.PixelCount(), b.PixelCount(); ap != bp {
		return ap > bp
	}
	if !a.CaptureTime.Equal(b.CaptureTime) {
		return a.CaptureTime.Before(b.CaptureTime)
	}
	return a.ID < b.ID
}

func (x *Index) dispositionFor(memberID, representativeID int64) (excluded, needsReview bool, reason string) {
	if memberID == representativeID {
		return false, false, ""
	}
	reason = fmt.Sprintf("duplicate of item %d", representativeID)
	if x.cfg.Policy == PolicyReview {
		return false, true, reason
	}
	return true, false, reason
}

func fingerprintOf(item *queue.Item) hashing.Fingerprint {
	return hashing.Fingerprint{
		ContentHash: item.ContentHash,
		DHash:       item.DHash,
		PHash:       item.PHash,
		Width:       item.Width,
		Height:      item.Height,
	}
}

func entryFromItem(item *queue.Item) entry {
	e := entry{
		itemID:      item.ID,
		contentHash: item.ContentHash,
		fp:          fingerprintOf(item),
	}
	if item.GroupID != nil {
		gid := *item.GroupID
		e.groupID = &gid
	}
	return e
}
