package reporting_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/warofcoins/marketguard/internal/reporting"
)

func TestReportingMeta(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		t.Parallel()

		meta := reporting.MetaFromContext(t.Context())
		require.Empty(t, meta.Tags())
		require.Empty(t, meta.Extras())
		require.Empty(t, meta.Identity())
	})

	t.Run("values accumulate without leaking into parents", func(t *testing.T) {
		t.Parallel()

		parent := reporting.AddTagsToContext(t.Context(), map[string]string{"port": "price"})
		child := reporting.AddExtrasToContext(parent, map[string]string{"cacheKey": "k"})
		child = reporting.AddTagsToContext(child, map[string]string{"class": "default"})
		child = reporting.SetIdentityInContext(child, "1.2.3.4")

		parentMeta := reporting.MetaFromContext(parent)
		require.Equal(t, map[string]string{"port": "price"}, parentMeta.Tags())
		require.Empty(t, parentMeta.Extras())
		require.Empty(t, parentMeta.Identity())

		childMeta := reporting.MetaFromContext(child)
		require.Equal(t, map[string]string{"port": "price", "class": "default"}, childMeta.Tags())
		require.Equal(t, map[string]string{"cacheKey": "k"}, childMeta.Extras())
		require.Equal(t, "1.2.3.4", childMeta.Identity())
	})
}
