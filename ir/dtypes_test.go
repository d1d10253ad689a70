package ir

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromoteDTypes(t *testing.T) {
	cases := []struct {
		lhs, rhs, want dtypes.DType
	}{
		{dtypes.Float32, dtypes.Float32, dtypes.Float32},
		{dtypes.Float32, dtypes.Int64, dtypes.Float32},
		{dtypes.Int64, dtypes.Float32, dtypes.Float32},
		{dtypes.Int32, dtypes.Int64, dtypes.Int64},
		{dtypes.Bool, dtypes.Uint8, dtypes.Uint8},
		{dtypes.Float16, dtypes.Float64, dtypes.Float64},
		{dtypes.BFloat16, dtypes.Int64, dtypes.BFloat16},
	}
	for _, c := range cases {
		got, err := PromoteDTypes(c.lhs, c.rhs)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "promote(%s, %s)", c.lhs, c.rhs)
	}

	_, err := PromoteDTypes(dtypes.Float32, dtypes.InvalidDType)
	require.Error(t, err)
}
