// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package stats

import (
	"context"
	"math"
	"math/rand"

	"github.com/axiomhq/hyperloglog"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/opt/cat"
	"github.com/cockroachdb/relcore/pkg/sql/rowenc/keyside"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/util/encoding"
	"github.com/cockroachdb/relcore/pkg/util/log"
)

const (
	// DefaultHistogramBuckets is the maximum number of histogram buckets
	// built per column.
	DefaultHistogramBuckets = 200

	// DefaultSampleSize is the number of values per column kept in the
	// reservoir from which histograms are built.
	DefaultSampleSize = 10000
)

// Options configures Analyze.
type Options struct {
	MaxBuckets int
	SampleSize int
	// Seed seeds the reservoir sampler so results are reproducible.
	Seed int64
}

// DefaultOptions returns the options used by the engine.
func DefaultOptions() Options {
	return Options{MaxBuckets: DefaultHistogramBuckets, SampleSize: DefaultSampleSize, Seed: 1}
}

// columnSampler accumulates the statistics of a single column.
type columnSampler struct {
	sketch   *hyperloglog.Sketch
	nulls    int64
	nonNulls int64
	min, max tree.Datum
	sample   tree.Datums
	scratch  []byte
}

func (s *columnSampler) add(d tree.Datum, capacity int, rng *rand.Rand) error {
	if d == tree.DNull {
		s.nulls++
		return nil
	}
	var err error
	s.scratch, err = keyside.Encode(s.scratch[:0], d, encoding.Ascending)
	if err != nil {
		return err
	}
	s.sketch.Insert(s.scratch)
	if s.min == nil || d.Compare(s.min) < 0 {
		s.min = d
	}
	if s.max == nil || d.Compare(s.max) > 0 {
		s.max = d
	}
	s.nonNulls++
	if len(s.sample) < capacity {
		s.sample = append(s.sample, d)
	} else if j := rng.Int63n(s.nonNulls); j < int64(capacity) {
		s.sample[j] = d
	}
	return nil
}

func (s *columnSampler) finish(maxBuckets int) (*cat.ColumnStatistic, error) {
	cs := &cat.ColumnStatistic{NullCount: float64(s.nulls), Min: s.min, Max: s.max}
	if s.nonNulls == 0 {
		return cs, nil
	}
	// The sketch is approximate, but the distinct count is never more than
	// the number of values and never less than one.
	distinct := float64(s.sketch.Estimate())
	distinct = math.Max(1, math.Min(distinct, float64(s.nonNulls)))
	cs.DistinctCount = distinct
	buckets, err := EquiDepthHistogram(s.sample, s.nonNulls, distinct, maxBuckets)
	if err != nil {
		return nil, err
	}
	cs.Histogram = buckets
	return cs, nil
}

// Analyze reads every partition of the table and computes its statistics:
// the row count, the data size, and for each column the distinct count,
// NULL count, minimum, maximum and an equi-depth histogram.
func Analyze(ctx context.Context, table cat.Table, opts Options) (*cat.TableStatistic, error) {
	if opts.MaxBuckets < 2 {
		opts.MaxBuckets = DefaultHistogramBuckets
	}
	if opts.SampleSize <= 0 {
		opts.SampleSize = DefaultSampleSize
	}
	ctx = log.WithLogTag(ctx, "analyze", table.Name())
	rng := rand.New(rand.NewSource(opts.Seed))

	samplers := make([]columnSampler, table.ColumnCount())
	for i := range samplers {
		samplers[i].sketch = hyperloglog.New()
	}
	var rowCount int64
	var size float64
	for p := 0; p < table.PartitionCount(); p++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := table.NewReader(ctx, p)
		if err != nil {
			return nil, err
		}
		err = func() error {
			defer r.Close(ctx)
			for {
				row, err := r.Next(ctx)
				if err != nil {
					return err
				}
				if row == nil {
					return nil
				}
				if len(row) != len(samplers) {
					return errors.AssertionFailedf(
						"row has %d columns, table %s has %d", len(row), table.Name(), len(samplers))
				}
				rowCount++
				size += float64(row.Size())
				for i, d := range row {
					if err := samplers[i].add(d, opts.SampleSize, rng); err != nil {
						return errors.Wrapf(err, "column %s", table.Column(i).Name)
					}
				}
			}
		}()
		if err != nil {
			return nil, errors.Wrapf(err, "analyzing %s", table.Name())
		}
	}

	stat := &cat.TableStatistic{
		RowCount:  float64(rowCount),
		SizeBytes: size,
		Columns:   make([]*cat.ColumnStatistic, len(samplers)),
	}
	for i := range samplers {
		cs, err := samplers[i].finish(opts.MaxBuckets)
		if err != nil {
			return nil, errors.Wrapf(err, "column %s", table.Column(i).Name)
		}
		stat.Columns[i] = cs
	}
	log.VEventf(ctx, 1, "analyzed %d rows (%.0f bytes)", rowCount, size)
	return stat, nil
}
