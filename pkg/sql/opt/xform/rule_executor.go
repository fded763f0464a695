// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package xform

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/opt/norm"
	"github.com/cockroachdb/relcore/pkg/util/log"
	"github.com/cockroachdb/relcore/pkg/util/metric"
	"github.com/cockroachdb/relcore/pkg/util/timeutil"
)

// ErrNonConvergence marks the error returned by a strict RuleExecutor when a
// fixed-point batch does not converge within its iteration limit.
var ErrNonConvergence = errors.New("rule batch did not converge")

// Strategy determines how many passes of its rules a batch makes.
type Strategy struct {
	// MaxIterations is the maximum number of passes. A batch with a limit of
	// one makes exactly one pass and is not checked for convergence.
	MaxIterations int
}

// Once makes a single pass over the rules of a batch.
var Once = Strategy{MaxIterations: 1}

// FixedPoint repeats the rules of a batch until the plan stops changing, up
// to maxIterations passes. A limit below two yields Once: the single pass is
// reported as converged even if it changed the plan, and a strict executor
// does not fail it.
func FixedPoint(maxIterations int) Strategy {
	if maxIterations < 1 {
		maxIterations = 1
	}
	return Strategy{MaxIterations: maxIterations}
}

func (s Strategy) isOnce() bool { return s.MaxIterations == 1 }

// Batch is a named, ordered list of rules applied with a strategy.
type Batch struct {
	Name     string
	Strategy Strategy
	Rules    []norm.Rule
}

// RuleStats records the work done by a rule during one execution.
type RuleStats struct {
	Invocations int
	Effective   int
	Time        time.Duration
}

// BatchRun records how a batch terminated during one execution.
type BatchRun struct {
	Name       string
	Iterations int
	Converged  bool
}

// Metrics are the optimizer metrics shared by every query of an engine.
type Metrics struct {
	RuleTime                 *metric.HistogramVec
	RuleInvocations          *metric.Counter
	EffectiveRuleInvocations *metric.Counter
	NonConvergentBatches     *metric.Counter
}

// MakeMetrics creates the optimizer metrics.
func MakeMetrics() Metrics {
	return Metrics{
		RuleTime: metric.NewHistogramVec(metric.Metadata{
			Name: "sql_opt_rule_seconds",
			Help: "Wall time spent applying each rewrite rule",
		}, "rule", 1e-6, 4, 12),
		RuleInvocations: metric.NewCounter(metric.Metadata{
			Name: "sql_opt_rule_invocations_total",
			Help: "Number of times a rewrite rule was applied to a plan",
		}),
		EffectiveRuleInvocations: metric.NewCounter(metric.Metadata{
			Name: "sql_opt_rule_effective_invocations_total",
			Help: "Number of rule applications that changed the plan",
		}),
		NonConvergentBatches: metric.NewCounter(metric.Metadata{
			Name: "sql_opt_nonconvergent_batches_total",
			Help: "Number of fixed-point rule batches that hit their iteration limit",
		}),
	}
}

// RuleExecutor applies batches of rules to a plan, in order. Within a batch,
// the rules are applied in order on every pass. It is not safe for
// concurrent use; planning is single-threaded per query.
type RuleExecutor struct {
	Batches []Batch

	// Strict makes non-convergence an error, and checks that every rule
	// that changes the plan leaves it well formed. Otherwise non-convergence
	// is logged and the plan of the last pass is used.
	Strict bool

	// Metadata is used to check plans in strict mode and to format them in
	// traces. It may be nil if Strict is false.
	Metadata *opt.Metadata

	// Metrics may be nil.
	Metrics *Metrics

	// Runs and Stats describe the last call to Execute.
	Runs  []BatchRun
	Stats map[norm.RuleName]*RuleStats
}

// Execute runs every batch over the plan and returns the result.
func (re *RuleExecutor) Execute(ctx context.Context, plan memo.RelExpr) (memo.RelExpr, error) {
	re.Runs = re.Runs[:0]
	re.Stats = make(map[norm.RuleName]*RuleStats)
	for i := range re.Batches {
		var err error
		plan, err = re.executeBatch(ctx, &re.Batches[i], plan)
		if err != nil {
			return nil, err
		}
	}
	return plan, nil
}

func (re *RuleExecutor) executeBatch(
	ctx context.Context, b *Batch, plan memo.RelExpr,
) (memo.RelExpr, error) {
	ctx = log.WithLogTag(ctx, "batch", b.Name)
	run := BatchRun{Name: b.Name}
	defer func() { re.Runs = append(re.Runs, run) }()

	for {
		run.Iterations++
		prev := plan
		for _, r := range b.Rules {
			var err error
			if plan, err = re.applyRule(ctx, r, plan); err != nil {
				return nil, err
			}
		}
		if b.Strategy.isOnce() {
			run.Converged = true
			return plan, nil
		}
		if memo.Equal(prev, plan) {
			run.Converged = true
			log.VEventf(ctx, 2, "converged after %d iterations", run.Iterations)
			return plan, nil
		}
		if run.Iterations >= b.Strategy.MaxIterations {
			break
		}
	}

	if re.Metrics != nil {
		re.Metrics.NonConvergentBatches.Inc(1)
	}
	if re.Strict {
		return nil, errors.Mark(
			errors.Newf("max iterations (%d) reached for batch %s", b.Strategy.MaxIterations, b.Name),
			ErrNonConvergence,
		)
	}
	log.Warningf(ctx, "max iterations (%d) reached for batch %s; using the plan of the last iteration",
		b.Strategy.MaxIterations, b.Name)
	return plan, nil
}

func (re *RuleExecutor) applyRule(
	ctx context.Context, r norm.Rule, plan memo.RelExpr,
) (memo.RelExpr, error) {
	start := timeutil.Now()
	after := r.Apply(plan)
	elapsed := timeutil.Since(start)

	effective := after != plan && !memo.Equal(after, plan)
	st := re.Stats[r.Name]
	if st == nil {
		st = &RuleStats{}
		re.Stats[r.Name] = st
	}
	st.Invocations++
	st.Time += elapsed
	if effective {
		st.Effective++
	}
	if m := re.Metrics; m != nil {
		m.RuleTime.RecordValue(string(r.Name), elapsed.Seconds())
		m.RuleInvocations.Inc(1)
		if effective {
			m.EffectiveRuleInvocations.Inc(1)
		}
	}
	if !effective {
		return plan, nil
	}

	if log.V(3) {
		log.VEventf(ctx, 3, "%s:\n%s", r.Name, memo.FormatExpr(after, memo.ExprFmtHideStats, re.Metadata))
	}
	if re.Strict {
		if err := memo.CheckExpr(re.Metadata, after); err != nil {
			return nil, errors.NewAssertionErrorWithWrappedErrf(err, "rule %s produced an invalid plan", r.Name)
		}
	}
	return after, nil
}
