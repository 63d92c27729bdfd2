package physical

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"

	"github.com/cespare/xxhash/v2"
)

// Structural fingerprints drive subexpression and subplan sharing. Two
// expressions with the same fingerprint denote the same computation, which
// holds because expressions are pure values: user functions hash by function
// pointer, so distinct closures never collide into one.

// fingerprintExpr returns a structural hash of a resolved expression.
func fingerprintExpr(e Expression) uint64 {
	d := xxhash.New()
	hashExpr(d, e)
	return d.Sum64()
}

func hashExpr(d *xxhash.Digest, e Expression) {
	hashU64(d, uint64(e.Type()))
	switch e := e.(type) {
	case NamedExpression:
		hashString(d, e.Name)
		hashExpr(d, e.Expression)
		return
	case *ColumnExpr:
		hashString(d, e.Name)
	case *LiteralExpr:
		hashString(d, e.DataType().String())
		hashString(d, e.Literal.String())
	case *UnaryExpr:
		hashU64(d, uint64(e.Op))
	case *BinaryExpr:
		hashU64(d, uint64(e.Op))
	case *CastExpr:
		hashString(d, e.To.String())
		hashBool(d, e.Strict)
	case *TernaryExpr:
	case *AggExpr:
		hashU64(d, uint64(e.Op))
		hashU64(d, uint64(e.Ddof))
		hashU64(d, math.Float64bits(e.Quantile))
		hashString(d, e.Interpolation)
	case *FuncExpr:
		hashU64(d, uint64(e.Op))
		hashU64(d, uint64(e.Options.N))
		hashString(d, e.Options.Unit)
		hashString(d, e.Options.Method)
		hashU64(d, uint64(e.Options.Ddof))
		for _, desc := range e.Options.Descending {
			hashBool(d, desc)
		}
		hashBool(d, e.Options.Reverse)
	case *HorizontalExpr:
		hashU64(d, uint64(e.Op))
		hashBool(d, e.IgnoreNulls)
	case *FoldExpr:
		hashU64(d, uint64(e.Op))
		hashU64(d, uint64(reflect.ValueOf(e.Fn).Pointer()))
		hashBool(d, e.IncludeInit)
	case *MapExpr:
		hashU64(d, uint64(e.Mode))
		if e.BatchFn != nil {
			hashU64(d, uint64(reflect.ValueOf(e.BatchFn).Pointer()))
		}
		if e.ElemFn != nil {
			hashU64(d, uint64(reflect.ValueOf(e.ElemFn).Pointer()))
		}
		hashString(d, e.Dtype.String())
		hashBool(d, e.SkipNulls)
		hashString(d, e.Strategy)
		hashBool(d, e.PassName)
		hashBool(d, e.ReturnsScalar)
		hashBool(d, e.AggList)
	}
	for _, child := range Children(e) {
		hashExpr(d, child)
	}
}

// fingerprintNode returns a structural hash of the subplan rooted at n.
func fingerprintNode(p *Plan, n Node) uint64 {
	d := xxhash.New()
	hashNode(d, p, n)
	return d.Sum64()
}

func hashNode(d *xxhash.Digest, p *Plan, n Node) {
	hashU64(d, uint64(n.Type()))
	switch n := n.(type) {
	case *TableScan:
		// Source identity, not just its name: two distinct in-memory
		// tables may well share a display name.
		hashString(d, fmt.Sprintf("%p", n.Source))
		hashString(d, n.Source.Name())
		hashU64(d, uint64(n.Offset))
		hashU64(d, uint64(n.Limit))
		for _, col := range n.Projections {
			hashString(d, col)
		}
	case *Projection:
		hashU64(d, uint64(n.Mode))
		for _, col := range n.Columns {
			hashExpr(d, col)
		}
	case *Filter:
		for _, pred := range n.Predicates {
			hashExpr(d, pred)
		}
	case *HashAggregate:
		hashBool(d, n.MaintainOrder)
		for _, key := range n.Keys {
			hashExpr(d, key)
		}
		for _, agg := range n.Aggs {
			hashExpr(d, agg)
		}
	case *HashJoin:
		hashU64(d, uint64(n.How))
		hashString(d, n.Suffix)
		for _, key := range n.LeftKeys {
			hashExpr(d, key)
		}
		for _, key := range n.RightKeys {
			hashExpr(d, key)
		}
		// Output pruning is part of a join's identity: two joins over equal
		// inputs may expose different right columns.
		for _, jc := range n.RightColumns {
			hashString(d, jc.Name)
			hashString(d, jc.OutName)
		}
	case *Sort:
		for i, by := range n.By {
			hashExpr(d, by)
			hashBool(d, n.Descending[i])
		}
		hashBool(d, n.NullsLast)
	case *Limit:
		hashU64(d, uint64(n.Skip))
		hashU64(d, uint64(n.Fetch))
	case *Cache:
		hashString(d, n.CacheID)
	}
	for _, child := range p.Children(n) {
		hashNode(d, p, child)
	}
}

func hashU64(d *xxhash.Digest, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = d.Write(buf[:])
}

func hashString(d *xxhash.Digest, s string) {
	hashU64(d, uint64(len(s)))
	_, _ = d.WriteString(s)
}

func hashBool(d *xxhash.Digest, v bool) {
	if v {
		hashU64(d, 1)
	} else {
		hashU64(d, 0)
	}
}
