package utils_test

import (
	"testing"

	"github.com/jrsteele09/go-uma-server/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestToStringSlice(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, utils.ToStringSlice("a  b"))
	require.Equal(t, []string{"a", "c"}, utils.ToStringSlice([]any{"a", 1, "c"}))
	require.Equal(t, []string{"x"}, utils.ToStringSlice([]string{"x"}))
	require.Nil(t, utils.ToStringSlice(42))
}

func TestContainsAll(t *testing.T) {
	require.True(t, utils.ContainsAll([]string{"read", "write"}, []string{"read"}))
	require.True(t, utils.ContainsAll([]string{"read"}, nil))
	require.False(t, utils.ContainsAll([]string{"read"}, []string{"read", "write"}))
}

func TestPtrValue(t *testing.T) {
	require.Equal(t, 0, utils.Value[int](nil))
	require.Equal(t, 5, utils.Value(utils.Ptr(5)))
}
