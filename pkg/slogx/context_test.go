package slogx_test

import (
	"context"
	"testing"

	"github.com/aussiebroadwan/tabchat/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestContextLogger(t *testing.T) {
	t.Parallel()

	t.Run("stored logger is returned", func(t *testing.T) {
		t.Parallel()
		logger := slogx.Discard()
		ctx := slogx.WithContext(context.Background(), logger)
		require.Same(t, logger, slogx.FromContext(ctx))
	})

	t.Run("falls back to default", func(t *testing.T) {
		t.Parallel()
		require.NotNil(t, slogx.FromContext(context.Background()))
	})
}
