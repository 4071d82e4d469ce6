package store

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"github.com/pkg/errors"
	"github.com/plan-systems/klog"

	"github.com/basin-systems/gobasin/gobasin"
)

// ImportPages bulk-loads the page identity table from CSV rows of the
// form: id,title,namespace,is_redirect.  Returns the row count.
func (st *Store) ImportPages(ctx context.Context, r io.Reader) (int64, error) {
	if st.readOnly {
		return 0, errors.Wrap(gobasin.ErrBadStoreParam, "store is read-only")
	}

	wb := st.db.NewWriteBatch()
	defer wb.Cancel()

	rdr := csv.NewReader(r)
	rdr.FieldsPerRecord = 4
	rdr.ReuseRecord = true

	count := int64(0)
	for {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		row, err := rdr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, errors.Wrap(err, "reading page row")
		}

		p, err := parsePageRow(row)
		if err != nil {
			return count, err
		}
		if err = wb.Set(pageKey(nil, p.ID), marshalPage(nil, p)); err != nil {
			return count, err
		}

		count++
		if count%(1<<20) == 0 {
			klog.V(2).Infof("imported %d pages", count)
		}
	}

	if err := wb.Flush(); err != nil {
		return count, err
	}
	st.state.PageCount += count
	st.dirty = true
	st.flushState()
	return count, nil
}

// ImportSequences bulk-loads the link-sequence table.  Each CSV row is
// a page id followed by its ordered link targets (variable width):
// id,target1,target2,...
func (st *Store) ImportSequences(ctx context.Context, r io.Reader) (int64, error) {
	if st.readOnly {
		return 0, errors.Wrap(gobasin.ErrBadStoreParam, "store is read-only")
	}

	wb := st.db.NewWriteBatch()
	defer wb.Cancel()

	rdr := csv.NewReader(r)
	rdr.FieldsPerRecord = -1
	rdr.ReuseRecord = true

	count := int64(0)
	links := make([]gobasin.PageID, 0, 256)
	for {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		row, err := rdr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, errors.Wrap(err, "reading sequence row")
		}
		if len(row) == 0 {
			continue
		}

		id, err := parsePageID(row[0])
		if err != nil {
			return count, err
		}
		links = links[:0]
		for _, field := range row[1:] {
			target, err := parsePageID(field)
			if err != nil {
				return count, err
			}
			links = append(links, target)
		}
		if err = wb.Set(seqKey(nil, id), marshalLinks(nil, links)); err != nil {
			return count, err
		}

		count++
		if count%(1<<20) == 0 {
			klog.V(2).Infof("imported %d link sequences", count)
		}
	}

	if err := wb.Flush(); err != nil {
		return count, err
	}
	st.state.SeqCount += count
	st.dirty = true
	st.flushState()
	return count, nil
}

func parsePageRow(row []string) (gobasin.Page, error) {
	var p gobasin.Page
	id, err := parsePageID(row[0])
	if err != nil {
		return p, err
	}
	ns, err := strconv.ParseInt(row[2], 10, 32)
	if err != nil {
		return p, errors.Wrapf(err, "bad namespace %q", row[2])
	}
	redirect, err := strconv.ParseBool(row[3])
	if err != nil {
		return p, errors.Wrapf(err, "bad redirect flag %q", row[3])
	}
	p.ID = id
	p.Title = row[1]
	p.Namespace = int32(ns)
	p.IsRedirect = redirect
	return p, nil
}

func parsePageID(field string) (gobasin.PageID, error) {
	id, err := strconv.ParseUint(field, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "bad page id %q", field)
	}
	return gobasin.PageID(id), nil
}
