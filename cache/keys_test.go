package cache_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/notify-gov/admin-portal/cache"
)

func TestFormat(t *testing.T) {
	t.Run("interpolates named parameters", func(t *testing.T) {
		key, err := cache.Format("service-{service_id}-template-{template_id}-version-{version}", cache.Params{
			"service_id":  "s1",
			"template_id": "t1",
			"version":     2,
		})
		require.NoError(t, err)
		require.Equal(t, "service-s1-template-t1-version-2", key)
	})

	t.Run("template without placeholders", func(t *testing.T) {
		key, err := cache.Format("organizations", nil)
		require.NoError(t, err)
		require.Equal(t, "organizations", key)
	})

	t.Run("unknown parameter", func(t *testing.T) {
		_, err := cache.Format("user-{user_id}", cache.Params{"service_id": "s1"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "unknown parameter")
	})

	t.Run("unbalanced braces", func(t *testing.T) {
		_, err := cache.Format("user-{user_id", cache.Params{"user_id": "u1"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "unbalanced braces")
	})
}

func TestMustFormat(t *testing.T) {
	require.Panics(t, func() {
		cache.MustFormat("user-{user_id}", nil)
	})
}
