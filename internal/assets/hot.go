package assets

import (
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/wolfeidau/assetpack/internal/project"
)

// HotClientModule is the import path of the hot reload client.
const HotClientModule = "assetpack/hot-client"

// HotClientTimeout is how long the client waits for the server before reconnecting.
const HotClientTimeout = 20 * time.Second

// HotClientReference is the hot client module with its options.
func HotClientReference() string {
	q := url.Values{
		"timeout": {strconv.FormatInt(HotClientTimeout.Milliseconds(), 10)},
		"reload":  {"true"},
	}
	return HotClientModule + "?" + q.Encode()
}

// AddHotMiddleware returns a copy of entry with the hot client appended to
// every bundle. entry is not modified.
func AddHotMiddleware(entry project.Entry) project.Entry {
	results := make(project.Entry, len(entry))
	hot := HotClientReference()

	for name, sources := range entry {
		rebuilt := slices.Clone(sources)
		results[name] = append(rebuilt, hot)
	}

	return results
}
