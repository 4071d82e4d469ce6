// Package store implements the Link Sequence Store: the read-only,
// snapshot-tagged source of per-page ordered link sequences and the
// page identity table, backed by badger.
package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"runtime"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/basin-systems/gobasin/gobasin"
)

/***

Store database format:

	gStateKey => SnapshotInfo (hand-rolled varint record)

	'p', PageID (be32) => varint namespace, flag byte, title bytes
	's', PageID (be32) => uvarint count, [count]uvarint link ids

Big-endian fixed-width ids keep prefix iteration in ascending id order.

***/

var (
	gStateKey   = []byte{0x00, 0x00, 0x01}
	gPagePrefix = []byte{'p'}
	gSeqPrefix  = []byte{'s'}
)

// Store is the badger-backed gobasin.SequenceStore implementation.
type Store struct {
	db       *badger.DB
	readOnly bool
	state    gobasin.SnapshotInfo
	dirty    bool
}

// Open opens (or creates) a Link Sequence Store.
// An empty DbPathName opens an in-memory store, which requires a SnapshotTag.
func Open(opts gobasin.StoreOpts) (*Store, error) {
	st := &Store{
		readOnly: opts.ReadOnly,
	}

	dbOpts := badger.DefaultOptions(opts.DbPathName)
	dbOpts.ReadOnly = opts.ReadOnly
	dbOpts.DetectConflicts = false // single writer, read-mostly
	dbOpts.Logger = nil
	dbOpts.MetricsEnabled = false

	// Badger for windows currently does not support read-only mode
	if runtime.GOOS == "windows" {
		dbOpts.ReadOnly = false
	}

	if len(opts.DbPathName) == 0 {
		if opts.ReadOnly {
			return nil, errors.Wrap(gobasin.ErrBadStoreParam, "DbPathName must be specified for a read-only store")
		}
		dbOpts.InMemory = true
	}

	var err error
	st.db, err = badger.Open(dbOpts)
	if err != nil {
		return nil, err
	}

	err = st.loadState()
	if err == badger.ErrKeyNotFound {
		err = nil
		if len(opts.SnapshotTag) == 0 {
			err = errors.Wrap(gobasin.ErrBadStoreParam, "SnapshotTag required when creating a store")
		}
		st.state.Tag = opts.SnapshotTag
		st.dirty = true
	}
	if err == nil && len(opts.SnapshotTag) > 0 && st.state.Tag != opts.SnapshotTag {
		err = errors.Wrapf(gobasin.ErrSnapshotMismatch, "store holds %q, caller expects %q", st.state.Tag, opts.SnapshotTag)
	}

	if err != nil {
		st.db.Close()
		return nil, err
	}

	return st, nil
}

func (st *Store) Snapshot() gobasin.SnapshotInfo {
	return st.state
}

func (st *Store) Close() error {
	if st.db == nil {
		return gobasin.ErrStoreClosed
	}
	st.flushState()
	err := st.db.Close()
	st.db = nil
	return err
}

func (st *Store) loadState() error {
	return st.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(gStateKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return unmarshalState(&st.state, val)
		})
	})
}

func (st *Store) flushState() {
	if !st.dirty || st.readOnly {
		return
	}
	err := st.db.Update(func(txn *badger.Txn) error {
		return txn.Set(gStateKey, marshalState(nil, st.state))
	})
	if err != nil {
		panic(err)
	}
	st.dirty = false
}

func marshalState(out []byte, s gobasin.SnapshotInfo) []byte {
	var scrap [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(scrap[:], uint64(len(s.Tag)))
	out = append(out, scrap[:n]...)
	out = append(out, s.Tag...)
	n = binary.PutVarint(scrap[:], s.PageCount)
	out = append(out, scrap[:n]...)
	n = binary.PutVarint(scrap[:], s.SeqCount)
	out = append(out, scrap[:n]...)
	return out
}

func unmarshalState(s *gobasin.SnapshotInfo, val []byte) error {
	rdr := bytes.NewReader(val)
	tagLen, err := binary.ReadUvarint(rdr)
	if err != nil {
		return gobasin.ErrUnmarshal
	}
	tag := make([]byte, tagLen)
	if _, err = rdr.Read(tag); err != nil {
		return gobasin.ErrUnmarshal
	}
	s.Tag = string(tag)
	if s.PageCount, err = binary.ReadVarint(rdr); err != nil {
		return gobasin.ErrUnmarshal
	}
	if s.SeqCount, err = binary.ReadVarint(rdr); err != nil {
		return gobasin.ErrUnmarshal
	}
	return nil
}

func pageKey(out []byte, id gobasin.PageID) []byte {
	out = append(out, 'p')
	var be [4]byte
	binary.BigEndian.PutUint32(be[:], uint32(id))
	return append(out, be[:]...)
}

func seqKey(out []byte, id gobasin.PageID) []byte {
	out = append(out, 's')
	var be [4]byte
	binary.BigEndian.PutUint32(be[:], uint32(id))
	return append(out, be[:]...)
}

func idOfKey(key []byte) gobasin.PageID {
	return gobasin.PageID(binary.BigEndian.Uint32(key[1:5]))
}

func marshalPage(out []byte, p gobasin.Page) []byte {
	var scrap [binary.MaxVarintLen64]byte
	n := binary.PutVarint(scrap[:], int64(p.Namespace))
	out = append(out, scrap[:n]...)
	flags := byte(0)
	if p.IsRedirect {
		flags |= 1
	}
	out = append(out, flags)
	return append(out, p.Title...)
}

func unmarshalPage(p *gobasin.Page, val []byte) error {
	ns, n := binary.Varint(val)
	if n <= 0 || n >= len(val) {
		return gobasin.ErrUnmarshal
	}
	p.Namespace = int32(ns)
	p.IsRedirect = val[n]&1 != 0
	p.Title = string(val[n+1:])
	return nil
}

func marshalLinks(out []byte, links []gobasin.PageID) []byte {
	var scrap [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(scrap[:], uint64(len(links)))
	out = append(out, scrap[:n]...)
	for _, id := range links {
		n = binary.PutUvarint(scrap[:], uint64(id))
		out = append(out, scrap[:n]...)
	}
	return out
}

func unmarshalLinks(dst []gobasin.PageID, val []byte) ([]gobasin.PageID, error) {
	rdr := bytes.NewReader(val)
	count, err := binary.ReadUvarint(rdr)
	if err != nil {
		return nil, gobasin.ErrUnmarshal
	}
	dst = dst[:0]
	for i := uint64(0); i < count; i++ {
		id, err := binary.ReadUvarint(rdr)
		if err != nil {
			return nil, gobasin.ErrUnmarshal
		}
		dst = append(dst, gobasin.PageID(id))
	}
	return dst, nil
}

func (st *Store) HasPage(id gobasin.PageID) (bool, error) {
	var keyBuf [8]byte
	found := false
	err := st.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(pageKey(keyBuf[:0], id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err == nil {
			found = true
		}
		return err
	})
	return found, err
}

func (st *Store) PageInfo(id gobasin.PageID) (gobasin.Page, error) {
	var keyBuf [8]byte
	p := gobasin.Page{ID: id}
	err := st.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(pageKey(keyBuf[:0], id))
		if err == badger.ErrKeyNotFound {
			return errors.Wrapf(gobasin.ErrPageNotFound, "page %d", id)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return unmarshalPage(&p, val)
		})
	})
	return p, err
}

func (st *Store) OutDegree(id gobasin.PageID) (int, error) {
	var keyBuf [8]byte
	deg := 0
	err := st.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(seqKey(keyBuf[:0], id))
		if err == badger.ErrKeyNotFound {
			return nil // no sequence record: out-degree 0
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			count, n := binary.Uvarint(val)
			if n <= 0 {
				return gobasin.ErrUnmarshal
			}
			deg = int(count)
			return nil
		})
	})
	return deg, err
}

func (st *Store) Links(id gobasin.PageID) ([]gobasin.PageID, error) {
	var keyBuf [8]byte
	var links []gobasin.PageID
	err := st.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(seqKey(keyBuf[:0], id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			links, err = unmarshalLinks(nil, val)
			return err
		})
	})
	return links, err
}

func (st *Store) ScanPages(ctx context.Context, fn func(gobasin.Page) error) error {
	return st.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			PrefetchValues: true,
			PrefetchSize:   300,
			Prefix:         gPagePrefix,
		})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			p := gobasin.Page{ID: idOfKey(item.Key())}
			err := item.Value(func(val []byte) error {
				return unmarshalPage(&p, val)
			})
			if err == nil {
				err = fn(p)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (st *Store) ScanSequences(ctx context.Context, fn func(id gobasin.PageID, links []gobasin.PageID) error) error {
	return st.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			PrefetchValues: true,
			PrefetchSize:   300,
			Prefix:         gSeqPrefix,
		})
		defer it.Close()

		var links []gobasin.PageID
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			id := idOfKey(item.Key())
			err := item.Value(func(val []byte) error {
				var err error
				links, err = unmarshalLinks(links, val)
				return err
			})
			if err == nil {
				err = fn(id, links)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// PutPage inserts one identity record.  Intended for small synthetic
// graphs and tests; bulk loads should use ImportPages.
func (st *Store) PutPage(p gobasin.Page) error {
	if st.readOnly {
		return errors.Wrap(gobasin.ErrBadStoreParam, "store is read-only")
	}
	err := st.db.Update(func(txn *badger.Txn) error {
		return txn.Set(pageKey(nil, p.ID), marshalPage(nil, p))
	})
	if err == nil {
		st.state.PageCount++
		st.dirty = true
	}
	return err
}

// PutLinks inserts one link sequence record.
func (st *Store) PutLinks(id gobasin.PageID, links []gobasin.PageID) error {
	if st.readOnly {
		return errors.Wrap(gobasin.ErrBadStoreParam, "store is read-only")
	}
	err := st.db.Update(func(txn *badger.Txn) error {
		return txn.Set(seqKey(nil, id), marshalLinks(nil, links))
	})
	if err == nil {
		st.state.SeqCount++
		st.dirty = true
	}
	return err
}
