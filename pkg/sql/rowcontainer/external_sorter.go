// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package rowcontainer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/cockroachdb/relcore/pkg/util/log"
	"github.com/cockroachdb/relcore/pkg/util/mon"
	"github.com/golang/snappy"
	"github.com/google/btree"
	"github.com/marusama/semaphore"
)

// KVIterator iterates over key/value records in key order.
type KVIterator interface {
	// Next advances to the next record and returns false when there are no
	// more records.
	Next(ctx context.Context) (bool, error)
	// Key returns the key of the current record.
	Key() []byte
	// Value returns the value of the current record.
	Value() []byte
	Close() error
}

// record is an entry of the in-memory run of an ExternalSorter. Records
// with equal keys are kept in insertion order.
type record struct {
	key, val []byte
	seq      uint64
}

func (r *record) Less(than btree.Item) bool {
	o := than.(*record)
	if c := bytes.Compare(r.key, o.key); c != 0 {
		return c < 0
	}
	return r.seq < o.seq
}

// recordOverhead approximates the memory used by a record beyond its key
// and value.
const recordOverhead = 64

var sorterIDs int64

// ExternalSorter sorts key/value records by key, using a bounded amount of
// memory. Records are buffered in memory until the memory account refuses
// to grow, at which point the buffer is written to a snappy-compressed
// sorted run on disk. Iterating merges the runs and the buffer.
type ExternalSorter struct {
	fs  vfs.FS
	dir string
	acc *mon.BoundAccount
	// sem bounds the number of runs being written concurrently across the
	// sorters that share it. It may be nil.
	sem semaphore.Semaphore
	id  int64

	mem  *btree.BTree
	seq  uint64
	runs []string

	spilledBytes int64
	dirCreated   bool
}

// NewExternalSorter creates a sorter that writes its runs as files of dir
// in fs.
func NewExternalSorter(
	fs vfs.FS, dir string, acc *mon.BoundAccount, sem semaphore.Semaphore,
) *ExternalSorter {
	return &ExternalSorter{
		fs:  fs,
		dir: dir,
		acc: acc,
		sem: sem,
		id:  atomic.AddInt64(&sorterIDs, 1),
		mem: btree.New(8),
	}
}

// NumRuns returns the number of sorted runs written to disk.
func (s *ExternalSorter) NumRuns() int { return len(s.runs) }

// SpilledBytes returns the uncompressed size of the spilled runs.
func (s *ExternalSorter) SpilledBytes() int64 { return s.spilledBytes }

// Len returns the number of records buffered in memory.
func (s *ExternalSorter) Len() int { return s.mem.Len() }

// Add copies a record into the sorter, spilling the buffered records first
// if they exhaust the memory budget.
func (s *ExternalSorter) Add(ctx context.Context, key, val []byte) error {
	sz := int64(len(key) + len(val) + recordOverhead)
	if err := s.acc.Grow(ctx, sz); err != nil {
		if !errors.Is(err, mon.ErrBudgetExceeded) || s.mem.Len() == 0 {
			return err
		}
		if err := s.Spill(ctx); err != nil {
			return err
		}
		if err := s.acc.Grow(ctx, sz); err != nil {
			return err
		}
	}
	buf := make([]byte, len(key)+len(val))
	copy(buf, key)
	copy(buf[len(key):], val)
	s.seq++
	s.mem.ReplaceOrInsert(&record{key: buf[:len(key):len(key)], val: buf[len(key):], seq: s.seq})
	return nil
}

// Spill writes the records buffered in memory to a new sorted run and
// releases their memory.
func (s *ExternalSorter) Spill(ctx context.Context) error {
	if s.mem.Len() == 0 {
		return nil
	}
	it := s.memIterator()
	if err := s.WriteSortedRun(ctx, it); err != nil {
		return err
	}
	s.mem.Clear(false)
	s.acc.Clear(ctx)
	return nil
}

// WriteSortedRun writes the records of it, which must be sorted by key, to
// a new run. It consumes and closes it.
func (s *ExternalSorter) WriteSortedRun(ctx context.Context, it KVIterator) (retErr error) {
	defer func() {
		if err := it.Close(); err != nil && retErr == nil {
			retErr = err
		}
	}()
	if s.sem != nil {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		defer s.sem.Release(1)
	}
	if !s.dirCreated {
		if err := s.fs.MkdirAll(s.dir, 0755); err != nil {
			return errors.Wrap(err, "spilling sorted run")
		}
		s.dirCreated = true
	}

	name := s.fs.PathJoin(s.dir, fmt.Sprintf("sort-%d-%06d.run", s.id, len(s.runs)))
	f, err := s.fs.Create(name, vfs.WriteCategoryUnspecified)
	if err != nil {
		return errors.Wrap(err, "spilling sorted run")
	}
	s.runs = append(s.runs, name)
	w := snappy.NewBufferedWriter(f)
	var written int64
	var hdr [binary.MaxVarintLen64]byte
	write := func(b []byte) error {
		n := binary.PutUvarint(hdr[:], uint64(len(b)))
		if _, err := w.Write(hdr[:n]); err != nil {
			return err
		}
		_, err := w.Write(b)
		written += int64(n + len(b))
		return err
	}
	var count int
	for {
		ok, err := it.Next(ctx)
		if err != nil {
			_ = f.Close()
			return err
		}
		if !ok {
			break
		}
		if err := write(it.Key()); err != nil {
			_ = f.Close()
			return errors.Wrapf(err, "spilling sorted run %s", name)
		}
		if err := write(it.Value()); err != nil {
			_ = f.Close()
			return errors.Wrapf(err, "spilling sorted run %s", name)
		}
		count++
	}
	if err := w.Close(); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "spilling sorted run %s", name)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "spilling sorted run %s", name)
	}
	s.spilledBytes += written
	log.VEventf(ctx, 2, "spilled %d records (%d bytes) to %s", count, written, name)
	return nil
}

// memIterator returns an iterator over the records buffered in memory.
func (s *ExternalSorter) memIterator() *sliceIterator {
	recs := make([]*record, 0, s.mem.Len())
	s.mem.Ascend(func(i btree.Item) bool {
		recs = append(recs, i.(*record))
		return true
	})
	return &sliceIterator{recs: recs, pos: -1}
}

// NewIterator returns an iterator over every record added to the sorter,
// in key order. Records with equal keys are returned in the order of the
// runs they were spilled to, with the records still in memory last. The
// sorter must not be modified while the iterator is in use.
func (s *ExternalSorter) NewIterator(ctx context.Context) (KVIterator, error) {
	sources := make([]KVIterator, 0, len(s.runs)+1)
	for _, name := range s.runs {
		f, err := s.fs.Open(name)
		if err != nil {
			for _, src := range sources {
				_ = src.Close()
			}
			return nil, errors.Wrapf(err, "opening sorted run %s", name)
		}
		sources = append(sources, &runReader{name: name, f: f, r: bufio.NewReader(snappy.NewReader(f))})
	}
	sources = append(sources, s.memIterator())
	if len(sources) == 1 {
		return sources[0], nil
	}
	return NewMergingIterator(sources), nil
}

// Close removes the runs and releases the memory of the sorter.
func (s *ExternalSorter) Close(ctx context.Context) error {
	var retErr error
	for _, name := range s.runs {
		retErr = errors.CombineErrors(retErr, s.fs.Remove(name))
	}
	s.runs = nil
	s.mem.Clear(false)
	s.acc.Clear(ctx)
	return retErr
}

type sliceIterator struct {
	recs []*record
	pos  int
}

func (it *sliceIterator) Next(context.Context) (bool, error) {
	if it.pos+1 >= len(it.recs) {
		it.pos = len(it.recs)
		return false, nil
	}
	it.pos++
	return true, nil
}

func (it *sliceIterator) Key() []byte   { return it.recs[it.pos].key }
func (it *sliceIterator) Value() []byte { return it.recs[it.pos].val }
func (it *sliceIterator) Close() error  { return nil }

// runReader reads the records of a sorted run.
type runReader struct {
	name     string
	f        vfs.File
	r        *bufio.Reader
	key, val []byte
}

func (rr *runReader) readBytes() ([]byte, error) {
	n, err := binary.ReadUvarint(rr.r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(rr.r, b); err != nil {
		return nil, errors.Wrapf(err, "reading sorted run %s", rr.name)
	}
	return b, nil
}

func (rr *runReader) Next(context.Context) (bool, error) {
	key, err := rr.readBytes()
	if err == io.EOF {
		return false, nil
	} else if err != nil {
		return false, err
	}
	val, err := rr.readBytes()
	if err != nil {
		if err == io.EOF {
			err = errors.Errorf("truncated sorted run %s", rr.name)
		}
		return false, err
	}
	rr.key, rr.val = key, val
	return true, nil
}

func (rr *runReader) Key() []byte   { return rr.key }
func (rr *runReader) Value() []byte { return rr.val }
func (rr *runReader) Close() error  { return rr.f.Close() }
