package store

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/basin-systems/gobasin/gobasin"
)

// MemStore is a map-backed SequenceStore for synthetic graphs and tests.
// Populate it with AddPage / SetLinks, then treat it as read-only.
type MemStore struct {
	tag   string
	pages map[gobasin.PageID]gobasin.Page
	seqs  map[gobasin.PageID][]gobasin.PageID
}

func NewMemStore(snapshotTag string) *MemStore {
	return &MemStore{
		tag:   snapshotTag,
		pages: make(map[gobasin.PageID]gobasin.Page),
		seqs:  make(map[gobasin.PageID][]gobasin.PageID),
	}
}

// AddPage inserts an identity record with namespace 0 and no redirect flag.
func (ms *MemStore) AddPage(id gobasin.PageID, title string) *MemStore {
	ms.pages[id] = gobasin.Page{ID: id, Title: title}
	return ms
}

// SetLinks assigns id's ordered link sequence.
func (ms *MemStore) SetLinks(id gobasin.PageID, targets ...gobasin.PageID) *MemStore {
	ms.seqs[id] = targets
	return ms
}

func (ms *MemStore) Snapshot() gobasin.SnapshotInfo {
	return gobasin.SnapshotInfo{
		Tag:       ms.tag,
		PageCount: int64(len(ms.pages)),
		SeqCount:  int64(len(ms.seqs)),
	}
}

func (ms *MemStore) HasPage(id gobasin.PageID) (bool, error) {
	_, ok := ms.pages[id]
	return ok, nil
}

func (ms *MemStore) PageInfo(id gobasin.PageID) (gobasin.Page, error) {
	p, ok := ms.pages[id]
	if !ok {
		return gobasin.Page{ID: id}, errors.Wrapf(gobasin.ErrPageNotFound, "page %d", id)
	}
	return p, nil
}

func (ms *MemStore) OutDegree(id gobasin.PageID) (int, error) {
	return len(ms.seqs[id]), nil
}

func (ms *MemStore) Links(id gobasin.PageID) ([]gobasin.PageID, error) {
	return ms.seqs[id], nil
}

func (ms *MemStore) ScanPages(ctx context.Context, fn func(gobasin.Page) error) error {
	for _, id := range ms.sortedPageIDs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ms.pages[id]); err != nil {
			return err
		}
	}
	return nil
}

func (ms *MemStore) ScanSequences(ctx context.Context, fn func(id gobasin.PageID, links []gobasin.PageID) error) error {
	ids := make([]gobasin.PageID, 0, len(ms.seqs))
	for id := range ms.seqs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(id, ms.seqs[id]); err != nil {
			return err
		}
	}
	return nil
}

func (ms *MemStore) Close() error { return nil }

func (ms *MemStore) sortedPageIDs() []gobasin.PageID {
	ids := make([]gobasin.PageID, 0, len(ms.pages))
	for id := range ms.pages {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
