package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/quizwalk/internal/explorer"
	"github.com/xkilldash9x/quizwalk/internal/profile"
)

func TestNavigationLockScript(t *testing.T) {
	t.Run("default profile locks loading", func(t *testing.T) {
		p, err := profile.Default()
		require.NoError(t, err)

		script := navigationLockScript(p.DeadEnds)
		assert.Contains(t, script, `new Set(["loading"])`)
		assert.Contains(t, script, `["pushState", "replaceState"]`)
		assert.Contains(t, script, `addEventListener("popstate"`)
		assert.Contains(t, script, "setTimeout(() => { allowBack = false; }, 100)")
		assert.Contains(t, script, "original.apply(this, args)")
	})

	t.Run("ids are lowercased and quoted", func(t *testing.T) {
		script := navigationLockScript([]explorer.PageID{"Loading", `re"sults`})
		assert.Contains(t, script, `new Set(["loading", "re\"sults"])`)
	})

	t.Run("nothing to lock", func(t *testing.T) {
		assert.Empty(t, navigationLockScript(nil))
	})
}
