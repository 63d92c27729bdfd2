package types

import "fmt"

// UnaryOpKind denotes the kind of unary operation to perform.
type UnaryOpKind int

// Recognized values of [UnaryOpKind].
const (
	// UnaryOpKindInvalid indicates an invalid unary operation.
	UnaryOpKindInvalid UnaryOpKind = iota

	UnaryOpKindNot       // Logical NOT operation (!).
	UnaryOpKindNeg       // Arithmetic negation (-).
	UnaryOpKindIsNull    // Null test.
	UnaryOpKindIsNotNull // Non-null test.
)

var unaryOpKindStrings = map[UnaryOpKind]string{
	UnaryOpKindInvalid: "invalid",

	UnaryOpKindNot:       "NOT",
	UnaryOpKindNeg:       "NEG",
	UnaryOpKindIsNull:    "IS_NULL",
	UnaryOpKindIsNotNull: "IS_NOT_NULL",
}

// String returns the string representation of the UnaryOpKind.
func (k UnaryOpKind) String() string {
	if s, ok := unaryOpKindStrings[k]; ok {
		return s
	}
	return fmt.Sprintf("UnaryOpKind(%d)", k)
}

// BinOpKind denotes the kind of binary operation to perform.
type BinOpKind int

// Recognized values of [BinOpKind].
const (
	// BinOpKindInvalid indicates an invalid binary operation.
	BinOpKindInvalid BinOpKind = iota

	BinOpKindEq  // Equality comparison (==).
	BinOpKindNeq // Inequality comparison (!=).
	BinOpKindGt  // Greater than comparison (>).
	BinOpKindGte // Greater than or equal comparison (>=).
	BinOpKindLt  // Less than comparison (<).
	BinOpKindLte // Less than or equal comparison (<=).
	BinOpKindAnd // Logical AND operation (&&), Kleene on nullable booleans.
	BinOpKindOr  // Logical OR operation (||), Kleene on nullable booleans.
	BinOpKindXor // Logical XOR operation (^).

	BinOpKindAdd      // Addition operation (+). Concatenation for strings.
	BinOpKindSub      // Subtraction operation (-).
	BinOpKindMul      // Multiplication operation (*).
	BinOpKindDiv      // Division operation (/). Integer operands yield f64.
	BinOpKindFloorDiv // Floor division operation (//).
	BinOpKindMod      // Modulo operation (%).
	BinOpKindPow      // Exponentiation operation (**).
)

var binOpKindStrings = map[BinOpKind]string{
	BinOpKindInvalid: "invalid",

	BinOpKindEq:  "EQ",
	BinOpKindNeq: "NEQ",
	BinOpKindGt:  "GT",
	BinOpKindGte: "GTE",
	BinOpKindLt:  "LT",
	BinOpKindLte: "LTE",
	BinOpKindAnd: "AND",
	BinOpKindOr:  "OR",
	BinOpKindXor: "XOR",

	BinOpKindAdd:      "ADD",
	BinOpKindSub:      "SUB",
	BinOpKindMul:      "MUL",
	BinOpKindDiv:      "DIV",
	BinOpKindFloorDiv: "FLOORDIV",
	BinOpKindMod:      "MOD",
	BinOpKindPow:      "POW",
}

// String returns a human-readable representation of the binary operation kind.
func (k BinOpKind) String() string {
	if s, ok := binOpKindStrings[k]; ok {
		return s
	}
	return fmt.Sprintf("BinOpKind(%d)", k)
}

// IsComparison reports whether the operation yields a boolean from two
// same-typed operands.
func (k BinOpKind) IsComparison() bool {
	switch k {
	case BinOpKindEq, BinOpKindNeq, BinOpKindGt, BinOpKindGte, BinOpKindLt, BinOpKindLte:
		return true
	}
	return false
}

// IsLogical reports whether the operation is a boolean connective.
func (k BinOpKind) IsLogical() bool {
	switch k {
	case BinOpKindAnd, BinOpKindOr, BinOpKindXor:
		return true
	}
	return false
}

// IsArithmetic reports whether the operation is numeric arithmetic.
func (k BinOpKind) IsArithmetic() bool {
	switch k {
	case BinOpKindAdd, BinOpKindSub, BinOpKindMul, BinOpKindDiv, BinOpKindFloorDiv, BinOpKindMod, BinOpKindPow:
		return true
	}
	return false
}

// AggKind denotes a vertical aggregation over one column.
type AggKind int

// Recognized values of [AggKind].
const (
	AggKindInvalid AggKind = iota

	AggKindSum
	AggKindMean
	AggKindMin
	AggKindMax
	AggKindMedian
	AggKindStd
	AggKindVar
	AggKindCount
	AggKindNUnique
	AggKindApproxNUnique
	AggKindFirst
	AggKindLast
	AggKindImplode
	AggKindQuantile

	// AggKindLen counts rows including nulls, unlike AggKindCount which
	// counts non-null values.
	AggKindLen
)

var aggKindStrings = map[AggKind]string{
	AggKindInvalid: "invalid",

	AggKindSum:           "sum",
	AggKindMean:          "mean",
	AggKindMin:           "min",
	AggKindMax:           "max",
	AggKindMedian:        "median",
	AggKindStd:           "std",
	AggKindVar:           "var",
	AggKindCount:         "count",
	AggKindNUnique:       "n_unique",
	AggKindApproxNUnique: "approx_n_unique",
	AggKindFirst:         "first",
	AggKindLast:          "last",
	AggKindImplode:       "implode",
	AggKindQuantile:      "quantile",
	AggKindLen:           "len",
}

// String returns the string representation of the AggKind.
func (k AggKind) String() string {
	if s, ok := aggKindStrings[k]; ok {
		return s
	}
	return fmt.Sprintf("AggKind(%d)", k)
}

// HorizontalKind denotes a row-wise reduction across columns.
type HorizontalKind int

// Recognized values of [HorizontalKind].
const (
	HorizontalKindInvalid HorizontalKind = iota

	HorizontalKindSum
	HorizontalKindMean
	HorizontalKindMin
	HorizontalKindMax
	HorizontalKindAny
	HorizontalKindAll
	HorizontalKindCoalesce
)

var horizontalKindStrings = map[HorizontalKind]string{
	HorizontalKindInvalid: "invalid",

	HorizontalKindSum:      "sum",
	HorizontalKindMean:     "mean",
	HorizontalKindMin:      "min",
	HorizontalKindMax:      "max",
	HorizontalKindAny:      "any",
	HorizontalKindAll:      "all",
	HorizontalKindCoalesce: "coalesce",
}

// String returns the string representation of the HorizontalKind.
func (k HorizontalKind) String() string {
	if s, ok := horizontalKindStrings[k]; ok {
		return s
	}
	return fmt.Sprintf("HorizontalKind(%d)", k)
}

// FunctionKind denotes a named built-in function over one or more columns.
type FunctionKind int

// Recognized values of [FunctionKind].
const (
	FunctionKindInvalid FunctionKind = iota

	FunctionKindCumCount
	FunctionKindCumSum
	FunctionKindHead
	FunctionKindTail
	FunctionKindReverse
	FunctionKindFromEpoch
	FunctionKindArcTan2
	FunctionKindCorr
	FunctionKindCov
	FunctionKindArgSortBy
	FunctionKindFillNull
)

var functionKindStrings = map[FunctionKind]string{
	FunctionKindInvalid: "invalid",

	FunctionKindCumCount:  "cum_count",
	FunctionKindCumSum:    "cum_sum",
	FunctionKindHead:      "head",
	FunctionKindTail:      "tail",
	FunctionKindReverse:   "reverse",
	FunctionKindFromEpoch: "from_epoch",
	FunctionKindArcTan2:   "arctan2",
	FunctionKindCorr:      "corr",
	FunctionKindCov:       "cov",
	FunctionKindArgSortBy: "arg_sort_by",
	FunctionKindFillNull:  "fill_null",
}

// String returns the string representation of the FunctionKind.
func (k FunctionKind) String() string {
	if s, ok := functionKindStrings[k]; ok {
		return s
	}
	return fmt.Sprintf("FunctionKind(%d)", k)
}
