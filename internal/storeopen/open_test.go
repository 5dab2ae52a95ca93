package storeopen

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/ifice/pkg/ifice/config"
	"github.com/cognicore/ifice/pkg/ifice/internalerr"
	"github.com/cognicore/ifice/pkg/ifice/store"
)

func TestOpenBackends(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	for _, p := range []Params{
		{Kind: Memory},
		{Kind: SQLite, DSN: filepath.Join(t.TempDir(), "ifice.db")},
		{Kind: Redis, RedisURL: "redis://" + mr.Addr(), Sequence: config.DefaultEngine().Sequence},
	} {
		t.Run(p.Kind, func(t *testing.T) {
			st, err := Open(ctx, p)
			require.NoError(t, err)
			defer st.Close()

			seq, err := st.Allocate(ctx, store.Scope{Industry: "BEV", Region: "SD", Year: 2025})
			require.NoError(t, err)
			assert.Equal(t, int64(1), seq)
		})
	}
}

func TestOpenRejectsIncompleteParams(t *testing.T) {
	for _, p := range []Params{
		{Kind: "etcd"},
		{Kind: SQLite},
		{Kind: Postgres},
		{Kind: Redis},
	} {
		_, err := Open(context.Background(), p)
		assert.ErrorIs(t, err, internalerr.ErrInvalidConfig, p.Kind)
	}
}
