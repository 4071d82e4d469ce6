// Package rindex materializes the reverse-adjacency index for one
// fixed rule N: every edge p -> q of f_N recorded under q, so basin
// mapping can stream "predecessors of q" without re-deriving edges
// from the raw link sequences.
package rindex

import (
	"bytes"
	"context"
	"encoding/binary"
	"runtime"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/plan-systems/klog"

	"github.com/basin-systems/gobasin/gobasin"
)

/***

Index database format:

	gStateKey => rule, mode, snapshot tag, edge count, dangling count

	'e', target (be32), pred (be32) => nil

Fixed-width big-endian ids make every target's predecessor set one
contiguous, ascending prefix range.

***/

var (
	gStateKey   = []byte{0x00, 0x00, 0x01}
	gEdgePrefix = []byte{'e'}
)

const kDefaultLogEvery = 1 << 20

// Index is the on-disk (or in-memory) badger reverse index for one rule.
type Index struct {
	db    *badger.DB
	state indexState
}

type indexState struct {
	Rule     gobasin.NRule
	Mode     gobasin.EvalMode
	Snapshot string
	Edges    int64
	Dangling int64
}

// Materialize builds (or reopens) the reverse index for rule n over
// the given store.  Reopening an already-built index validates that
// its rule, evaluation mode and snapshot match and skips the build:
// the index is built once per (N, mode) and queried many times.
func Materialize(ctx context.Context, st gobasin.SequenceStore, n gobasin.NRule, opts gobasin.IndexOpts) (*Index, error) {
	if n < 1 {
		return nil, errors.Wrapf(gobasin.ErrBadRule, "n=%d", n)
	}

	ix, existed, err := open(opts)
	if err != nil {
		return nil, err
	}

	snapshot := st.Snapshot().Tag
	if existed {
		if err = ix.validate(n, opts.Mode, snapshot); err != nil {
			ix.Close()
			return nil, err
		}
		return ix, nil
	}

	ix.state = indexState{
		Rule:     n,
		Mode:     opts.Mode,
		Snapshot: snapshot,
	}
	if err = ix.build(ctx, st, opts); err != nil {
		ix.Close()
		return nil, err
	}
	return ix, nil
}

// Open opens an existing index read-only and validates it against the
// expected rule, the evaluation mode in opts, and the snapshot.
func Open(opts gobasin.IndexOpts, n gobasin.NRule, snapshot string) (*Index, error) {
	opts.ReadOnly = true
	ix, existed, err := open(opts)
	if err != nil {
		return nil, err
	}
	if !existed {
		ix.Close()
		return nil, errors.Wrap(gobasin.ErrBadIndexParam, "index has not been materialized")
	}
	if err = ix.validate(n, opts.Mode, snapshot); err != nil {
		ix.Close()
		return nil, err
	}
	return ix, nil
}

func open(opts gobasin.IndexOpts) (*Index, bool, error) {
	dbOpts := badger.DefaultOptions(opts.DbPathName)
	dbOpts.ReadOnly = opts.ReadOnly
	dbOpts.DetectConflicts = false
	dbOpts.Logger = nil
	dbOpts.MetricsEnabled = false

	if runtime.GOOS == "windows" {
		dbOpts.ReadOnly = false
	}

	if len(opts.DbPathName) == 0 {
		if opts.ReadOnly {
			return nil, false, errors.Wrap(gobasin.ErrBadIndexParam, "DbPathName must be specified for a read-only index")
		}
		dbOpts.InMemory = true
	}

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, false, err
	}

	ix := &Index{db: db}
	err = ix.loadState()
	if err == badger.ErrKeyNotFound {
		return ix, false, nil
	}
	if err != nil {
		ix.Close()
		return nil, false, err
	}
	return ix, true, nil
}

func (ix *Index) validate(n gobasin.NRule, mode gobasin.EvalMode, snapshot string) error {
	if ix.state.Rule != n {
		return errors.Wrapf(gobasin.ErrRuleMismatch, "index built for n=%d, want n=%d", ix.state.Rule, n)
	}
	if ix.state.Mode != mode {
		return errors.Wrapf(gobasin.ErrModeMismatch, "index built under %s, want %s", ix.state.Mode, mode)
	}
	if len(snapshot) > 0 && ix.state.Snapshot != snapshot {
		return errors.Wrapf(gobasin.ErrSnapshotMismatch, "index built from %q, want %q", ix.state.Snapshot, snapshot)
	}
	return nil
}

func (ix *Index) build(ctx context.Context, st gobasin.SequenceStore, opts gobasin.IndexOpts) error {
	logEvery := opts.LogEvery
	if logEvery <= 0 {
		logEvery = kDefaultLogEvery
	}

	wb := ix.db.NewWriteBatch()
	defer wb.Cancel()

	scanned := int64(0)
	err := st.ScanSequences(ctx, func(id gobasin.PageID, links []gobasin.PageID) error {
		scanned++
		if scanned%logEvery == 0 {
			klog.V(2).Infof("materialize n=%d: %d sequences, %d edges", ix.state.Rule, scanned, ix.state.Edges)
		}

		idx, ok := ix.state.Mode.LinkIndex(ix.state.Rule, len(links))
		if !ok {
			return nil // HALT under this rule: no edge
		}

		target := links[idx]
		ok, err := st.HasPage(target)
		if err != nil {
			return err
		}
		if !ok {
			ix.state.Dangling++
			return nil
		}

		if err = wb.Set(edgeKey(nil, target, id), nil); err != nil {
			return err
		}
		ix.state.Edges++
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "materializing reverse index")
	}

	if err = wb.Flush(); err != nil {
		return err
	}
	err = ix.db.Update(func(txn *badger.Txn) error {
		return txn.Set(gStateKey, marshalState(nil, ix.state))
	})
	if err != nil {
		return err
	}

	klog.V(1).Infof("materialized n=%d: %d edges from %d sequences (%d dangling skipped)",
		ix.state.Rule, ix.state.Edges, scanned, ix.state.Dangling)
	return nil
}

func (ix *Index) Rule() gobasin.NRule  { return ix.state.Rule }
func (ix *Index) Snapshot() string     { return ix.state.Snapshot }
func (ix *Index) EdgeCount() int64     { return ix.state.Edges }
func (ix *Index) DanglingCount() int64 { return ix.state.Dangling }

// Predecessors streams the pages whose successor under f_N is `of`,
// ascending.  Safe for concurrent callers: each call runs its own
// read-only transaction.
func (ix *Index) Predecessors(ctx context.Context, of gobasin.PageID, fn func(gobasin.PageID) error) error {
	var keyBuf [16]byte
	prefix := edgeTargetPrefix(keyBuf[:0], of)

	return ix.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			PrefetchValues: false,
			Prefix:         prefix,
		})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := it.Item().Key()
			pred := gobasin.PageID(binary.BigEndian.Uint32(key[5:9]))
			if err := fn(pred); err != nil {
				return err
			}
		}
		return nil
	})
}

func (ix *Index) Close() error {
	if ix.db == nil {
		return nil
	}
	err := ix.db.Close()
	ix.db = nil
	return err
}

func edgeKey(out []byte, target, pred gobasin.PageID) []byte {
	out = edgeTargetPrefix(out, target)
	var be [4]byte
	binary.BigEndian.PutUint32(be[:], uint32(pred))
	return append(out, be[:]...)
}

func edgeTargetPrefix(out []byte, target gobasin.PageID) []byte {
	out = append(out, 'e')
	var be [4]byte
	binary.BigEndian.PutUint32(be[:], uint32(target))
	return append(out, be[:]...)
}

func marshalState(out []byte, s indexState) []byte {
	var scrap [binary.MaxVarintLen64]byte
	n := binary.PutVarint(scrap[:], int64(s.Rule))
	out = append(out, scrap[:n]...)
	out = append(out, byte(s.Mode))
	n = binary.PutUvarint(scrap[:], uint64(len(s.Snapshot)))
	out = append(out, scrap[:n]...)
	out = append(out, s.Snapshot...)
	n = binary.PutVarint(scrap[:], s.Edges)
	out = append(out, scrap[:n]...)
	n = binary.PutVarint(scrap[:], s.Dangling)
	out = append(out, scrap[:n]...)
	return out
}

func (ix *Index) loadState() error {
	return ix.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(gStateKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return unmarshalState(&ix.state, val)
		})
	})
}

func unmarshalState(s *indexState, val []byte) error {
	rdr := bytes.NewReader(val)
	rule, err := binary.ReadVarint(rdr)
	if err != nil {
		return gobasin.ErrUnmarshal
	}
	s.Rule = gobasin.NRule(rule)
	mode, err := rdr.ReadByte()
	if err != nil {
		return gobasin.ErrUnmarshal
	}
	s.Mode = gobasin.EvalMode(mode)
	tagLen, err := binary.ReadUvarint(rdr)
	if err != nil {
		return gobasin.ErrUnmarshal
	}
	tag := make([]byte, tagLen)
	if _, err = rdr.Read(tag); err != nil {
		return gobasin.ErrUnmarshal
	}
	s.Snapshot = string(tag)
	if s.Edges, err = binary.ReadVarint(rdr); err != nil {
		return gobasin.ErrUnmarshal
	}
	if s.Dangling, err = binary.ReadVarint(rdr); err != nil {
		return gobasin.ErrUnmarshal
	}
	return nil
}
