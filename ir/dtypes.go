package ir

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// PromoteDTypes returns the dtype a mixed-type elementwise operation resolves
// to: the higher-priority of the two operand dtypes.
func PromoteDTypes(lhs, rhs dtypes.DType) (dtypes.DType, error) {
	if lhs == rhs {
		return lhs, nil
	}
	lhsP, rhsP := dtypePriority(lhs), dtypePriority(rhs)
	if lhsP == 0 || rhsP == 0 {
		return dtypes.InvalidDType, errors.Errorf("cannot promote dtypes %s and %s", lhs, rhs)
	}
	if rhsP > lhsP {
		return rhs, nil
	}
	return lhs, nil
}

// dtypePriority returns a priority value for dtype promotion.
// Higher values are preferred in mixed-type operations.
func dtypePriority(dt dtypes.DType) int {
	switch dt {
	case dtypes.Complex128:
		return 110
	case dtypes.Complex64:
		return 105
	case dtypes.Float64:
		return 100
	case dtypes.Float32:
		return 90
	case dtypes.Float16, dtypes.BFloat16:
		return 80
	case dtypes.Int64:
		return 70
	case dtypes.Int32:
		return 60
	case dtypes.Int16:
		return 50
	case dtypes.Int8:
		return 40
	case dtypes.Uint64:
		return 35
	case dtypes.Uint32:
		return 30
	case dtypes.Uint16:
		return 25
	case dtypes.Uint8:
		return 20
	case dtypes.Bool:
		return 10
	default:
		return 0
	}
}
