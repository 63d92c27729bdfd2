package logical

import (
	"fmt"
	"strings"

	"github.com/AmirulAndalib/polars/internal/types"
)

// ColumnRef refers to a single column by name. The name resolves against the
// input schema at planning time; construction never fails.
type ColumnRef struct {
	Column string
}

// NewColumnRef creates a reference to the named column.
func NewColumnRef(name string) *ColumnRef {
	return &ColumnRef{Column: name}
}

// Kind implements the [Expr] interface.
func (*ColumnRef) Kind() ExprKind { return ExprKindColumn }

// String returns the string representation of the column reference.
func (c *ColumnRef) String() string {
	return fmt.Sprintf("col(%q)", c.Column)
}

func (*ColumnRef) isExpr() {}

// SelectorKind identifies the variant of a column selector.
type SelectorKind uint32

const (
	SelectorInvalid SelectorKind = iota

	SelectorAll     // every column of the input
	SelectorByName  // an explicit list of names
	SelectorByRegex // names matching an anchored pattern
	SelectorByDtype // columns of the given types
	SelectorExclude // an inner selector minus names and/or types
)

// Selector describes a set of columns to be resolved against a concrete
// schema. Resolution happens at exactly one point, in the physical planner,
// before any optimizer rule runs.
type Selector struct {
	Kind    SelectorKind
	Names   []string         // ByName
	Pattern string           // ByRegex, anchored (^...$)
	Dtypes  []types.DataType // ByDtype

	// Exclude only.
	Inner         *Selector
	ExcludeNames  []string
	ExcludeDtypes []types.DataType
}

// SelectorExpr is an expression node holding an unresolved column selector.
// It expands to zero or more column references during resolution.
type SelectorExpr struct {
	Selector Selector
}

// NewWildcard returns a selector expression matching all input columns.
func NewWildcard() *SelectorExpr {
	return &SelectorExpr{Selector: Selector{Kind: SelectorAll}}
}

// NewSelector wraps a selector into an expression node.
func NewSelector(s Selector) *SelectorExpr {
	return &SelectorExpr{Selector: s}
}

// Kind implements the [Expr] interface.
func (*SelectorExpr) Kind() ExprKind { return ExprKindSelector }

// String returns the string representation of the selector.
func (s *SelectorExpr) String() string {
	return s.Selector.String()
}

func (*SelectorExpr) isExpr() {}

// String returns the string representation of the selector variant.
func (s Selector) String() string {
	switch s.Kind {
	case SelectorAll:
		return "*"
	case SelectorByName:
		return fmt.Sprintf("cols(%s)", strings.Join(s.Names, ", "))
	case SelectorByRegex:
		return fmt.Sprintf("col(%s)", s.Pattern)
	case SelectorByDtype:
		parts := make([]string, len(s.Dtypes))
		for i, dt := range s.Dtypes {
			parts[i] = dt.String()
		}
		return fmt.Sprintf("dtype_cols(%s)", strings.Join(parts, ", "))
	case SelectorExclude:
		return fmt.Sprintf("%s.exclude(%s)", s.Inner, strings.Join(s.ExcludeNames, ", "))
	default:
		return "invalid_selector"
	}
}

// IsRegexProjection reports whether a column name denotes a regex selector,
// following the `^...$` convention.
func IsRegexProjection(name string) bool {
	return strings.HasPrefix(name, "^") && strings.HasSuffix(name, "$")
}
