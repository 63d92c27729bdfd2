package types

// Supertype returns the least upper bound of two types in the coercion
// lattice, if one exists. Null is the bottom element and contributes the
// other operand's type. Unknown absorbs everything, since the result of an
// undeclared user function cannot be reasoned about until evaluation.
//
// The numeric portion of the lattice widens bool < unsigned < signed <
// float32 < float64. Mixing signed and unsigned integers picks the smallest
// signed integer that can represent both, spilling into float64 when no such
// integer exists. There is no supertype between a free-form string and a
// numeric type; such pairings must fail rather than silently coerce.
func Supertype(a, b DataType) (DataType, bool) {
	if a.Equal(b) {
		return a, true
	}
	if a.IsUnknown() || b.IsUnknown() {
		return Unknown, true
	}
	if a.IsNull() {
		return b, true
	}
	if b.IsNull() {
		return a, true
	}

	// Bool acts as the narrowest numeric operand.
	if a.Kind() == KindBool && b.IsNumeric() {
		return b, true
	}
	if b.Kind() == KindBool && a.IsNumeric() {
		return a, true
	}

	if a.IsNumeric() && b.IsNumeric() {
		return numericSupertype(a, b), true
	}

	switch {
	case a.Kind() == KindDate && b.Kind() == KindDatetime:
		return b, true
	case a.Kind() == KindDatetime && b.Kind() == KindDate:
		return a, true
	case a.Kind() == KindDatetime && b.Kind() == KindDatetime:
		return Datetime(finerUnit(a.Unit(), b.Unit())), true
	case a.Kind() == KindDuration && b.Kind() == KindDuration:
		return Duration(finerUnit(a.Unit(), b.Unit())), true
	}

	if a.Kind() == KindList && b.Kind() == KindList {
		inner, ok := Supertype(a.Inner(), b.Inner())
		if !ok {
			return Invalid, false
		}
		return List(inner), true
	}
	// A scalar type pairs with a list of a compatible element type, which is
	// how imploded columns combine with flat ones.
	if a.Kind() == KindList {
		inner, ok := Supertype(a.Inner(), b)
		if !ok {
			return Invalid, false
		}
		return List(inner), true
	}
	if b.Kind() == KindList {
		return Supertype(b, a)
	}

	if a.Kind() == KindStruct && b.Kind() == KindStruct {
		return structSupertype(a, b)
	}

	return Invalid, false
}

// SupertypeAll folds Supertype across all types, returning the offending
// pair when no common type exists.
func SupertypeAll(dtypes []DataType) (DataType, DataType, DataType, bool) {
	if len(dtypes) == 0 {
		return Null, Invalid, Invalid, true
	}
	acc := dtypes[0]
	for _, dt := range dtypes[1:] {
		st, ok := Supertype(acc, dt)
		if !ok {
			return Invalid, acc, dt, false
		}
		acc = st
	}
	return acc, Invalid, Invalid, true
}

func numericSupertype(a, b DataType) DataType {
	// Floats dominate. float32 holds integers up to 16 bits losslessly;
	// anything wider forces float64.
	if a.IsFloat() || b.IsFloat() {
		if a.Kind() == KindFloat64 || b.Kind() == KindFloat64 {
			return Float64
		}
		other := b
		if b.IsFloat() {
			other = a
		}
		if other.bitWidth() <= 16 {
			return Float32
		}
		return Float64
	}

	sa, sb := a.IsSignedInteger(), b.IsSignedInteger()
	switch {
	case sa == sb:
		if a.bitWidth() >= b.bitWidth() {
			return a
		}
		return b
	default:
		signed, unsigned := a, b
		if sb {
			signed, unsigned = b, a
		}
		if signed.bitWidth() > unsigned.bitWidth() {
			return signed
		}
		required := unsigned.bitWidth() * 2
		switch {
		case required <= 16:
			return Int16
		case required <= 32:
			return Int32
		case required <= 64:
			return Int64
		default:
			return Float64
		}
	}
}

func structSupertype(a, b DataType) (DataType, bool) {
	af, bf := a.Fields(), b.Fields()
	if len(af) != len(bf) {
		return Invalid, false
	}
	fields := make([]Field, len(af))
	for i := range af {
		if af[i].Name != bf[i].Name {
			return Invalid, false
		}
		st, ok := Supertype(af[i].Type, bf[i].Type)
		if !ok {
			return Invalid, false
		}
		fields[i] = Field{Name: af[i].Name, Type: st}
	}
	return Struct(fields...), true
}

func finerUnit(a, b TimeUnit) TimeUnit {
	if a > b {
		return a
	}
	return b
}
