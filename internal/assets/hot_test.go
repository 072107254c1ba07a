package assets

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/assetpack/internal/project"
)

func TestHotClientReference(t *testing.T) {
	require.Equal(t, "assetpack/hot-client?reload=true&timeout=20000", HotClientReference())
}

func TestAddHotMiddleware(t *testing.T) {
	single := project.Sources{"./scripts/main.js"}
	entry := project.Entry{
		"main":  single,
		"admin": {"./scripts/admin.js", "./styles/admin.scss"},
	}

	rebuilt := AddHotMiddleware(entry)

	require.Equal(t, project.Sources{"./scripts/main.js", HotClientReference()}, rebuilt["main"])
	require.Equal(t, project.Sources{"./scripts/admin.js", "./styles/admin.scss", HotClientReference()}, rebuilt["admin"])

	require.Len(t, entry["main"], 1)
	require.Len(t, entry["admin"], 2)
	require.Equal(t, project.Sources{"./scripts/main.js"}, single)
}

func TestAddHotMiddleware_DoesNotShareBackingArrays(t *testing.T) {
	sources := make(project.Sources, 1, 4)
	sources[0] = "./scripts/main.js"
	entry := project.Entry{"main": sources}

	rebuilt := AddHotMiddleware(entry)
	rebuilt["main"][0] = "changed"

	require.Equal(t, "./scripts/main.js", entry["main"][0])
	require.Empty(t, sources[:2][1])
}
