package polars

import "github.com/AmirulAndalib/polars/internal/planner/logical"

// WhenClause is a conditional expression under construction, waiting for
// its branch value. Clauses are values: extending one never mutates the
// chain it came from.
type WhenClause struct {
	branches []whenBranch
	pred     logical.Expr
}

// ThenClause is a conditional expression with at least one complete
// predicate-value branch. Finish it with [ThenClause.Otherwise] or chain
// another condition with [ThenClause.When].
type ThenClause struct {
	branches []whenBranch
}

type whenBranch struct {
	pred  logical.Expr
	value logical.Expr
}

// When starts a conditional expression choosing values row by row. Rows
// where the predicate is true take the value given to Then, rows where it
// is false fall through to later branches and finally to Otherwise, and
// rows where it is null yield null.
func When(predicate Expr) WhenClause {
	return WhenClause{pred: predicate.node}
}

// Then sets the value for rows matching the pending predicate.
func (w WhenClause) Then(value Expr) ThenClause {
	branches := make([]whenBranch, len(w.branches), len(w.branches)+1)
	copy(branches, w.branches)
	return ThenClause{branches: append(branches, whenBranch{pred: w.pred, value: value.node})}
}

// When chains a further condition, tested only on rows no earlier branch
// matched.
func (t ThenClause) When(predicate Expr) WhenClause {
	return WhenClause{branches: t.branches, pred: predicate.node}
}

// Otherwise sets the fallback value and returns the finished expression.
// Its output takes the name of the first branch's value.
func (t ThenClause) Otherwise(value Expr) Expr {
	out := value.node
	for i := len(t.branches) - 1; i >= 0; i-- {
		b := t.branches[i]
		out = &logical.TernaryExpr{Predicate: b.pred, Truthy: b.value, Falsy: out}
	}
	return wrapExpr(out)
}
