package main

import (
	"context"
	"testing"

	"github.com/jrsteele09/go-uma-server/internal/config"
	"github.com/stretchr/testify/require"
)

func TestOpenStoresDefaultsToMemory(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("DATABASE_DRIVER", "")

	st, err := openStores(context.Background(), config.New())
	require.NoError(t, err)
	defer st.Close()
	require.NotNil(t, st.clients)
	require.NotNil(t, st.tokens)
	require.Empty(t, st.closers)
}

func TestOpenStoresRejectsUnknownDriver(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("DATABASE_DRIVER", "postgres")

	_, err := openStores(context.Background(), config.New())
	require.ErrorContains(t, err, `unsupported DATABASE_DRIVER "postgres"`)
}
