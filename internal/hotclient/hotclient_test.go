package hotclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseQuery(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected Options
		wantErr  bool
	}{
		{
			name:     "defaults",
			query:    "",
			expected: Options{Timeout: 20 * time.Second, Path: SocketPath},
		},
		{
			name:     "timeout and reload",
			query:    "?reload=true&timeout=20000",
			expected: Options{Timeout: 20 * time.Second, Reload: true, Path: SocketPath},
		},
		{
			name:     "custom path",
			query:    "timeout=5000&path=%2Fhot",
			expected: Options{Timeout: 5 * time.Second, Path: "/hot"},
		},
		{
			name:    "bad timeout",
			query:   "timeout=soon",
			wantErr: true,
		},
		{
			name:    "bad reload",
			query:   "reload=maybe",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := ParseQuery(tt.query)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expected, opts)
		})
	}
}

func TestSource(t *testing.T) {
	src, err := Source(Options{Timeout: 20 * time.Second, Reload: true, Path: SocketPath})
	require.NoError(t, err)
	require.Contains(t, src, `{"path":"/__assetpack_hot","reload":true,"timeout":20000}`)
	require.Contains(t, src, `case "heartbeat":`)
	require.Contains(t, src, `case "errors":`)
	require.NotContains(t, src, placeholder)
}

func TestStyleLink(t *testing.T) {
	snippet := StyleLink("/dist/styles/main.css")
	require.Contains(t, snippet, `link.href = "/dist/styles/main.css";`)
	require.Contains(t, snippet, "data-assetpack")
}

func TestRegister(t *testing.T) {
	require.Contains(t, Register("scripts/main.js"), `.push("scripts/main.js")`)
}
