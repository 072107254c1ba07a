// Package hotclient renders the browser side of hot reloading.
package hotclient

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SocketPath is where the dev server accepts hot client connections.
const SocketPath = "/__assetpack_hot"

const placeholder = "__ASSETPACK_HOT_OPTIONS__"

//go:embed client.js
var clientSource string

// Options configure the client.
type Options struct {
	Timeout time.Duration
	Reload  bool
	Path    string
}

// ParseQuery reads options from a module query such as timeout=20000&reload=true.
func ParseQuery(query string) (Options, error) {
	values, err := url.ParseQuery(strings.TrimPrefix(query, "?"))
	if err != nil {
		return Options{}, fmt.Errorf("invalid hot client query: %w", err)
	}

	opts := Options{
		Timeout: 20 * time.Second,
		Path:    SocketPath,
	}

	if v := values.Get("timeout"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return Options{}, fmt.Errorf("invalid hot client timeout %q: %w", v, err)
		}
		opts.Timeout = time.Duration(ms) * time.Millisecond
	}
	if v := values.Get("reload"); v != "" {
		opts.Reload, err = strconv.ParseBool(v)
		if err != nil {
			return Options{}, fmt.Errorf("invalid hot client reload %q: %w", v, err)
		}
	}
	if v := values.Get("path"); v != "" {
		opts.Path = v
	}

	return opts, nil
}

// Source returns the client module configured with opts.
func Source(opts Options) (string, error) {
	raw, err := json.Marshal(map[string]any{
		"timeout": opts.Timeout.Milliseconds(),
		"reload":  opts.Reload,
		"path":    opts.Path,
	})
	if err != nil {
		return "", err
	}
	return strings.Replace(clientSource, placeholder, string(raw), 1), nil
}

// StyleLink returns a snippet that adds a stylesheet link for href. It stands
// in for extracted styles while they are served from memory.
func StyleLink(href string) string {
	quoted, _ := json.Marshal(href)
	return fmt.Sprintf(`(function () {
  var link = document.createElement("link");
  link.rel = "stylesheet";
  link.href = %s;
  link.setAttribute("data-assetpack", "");
  document.head.appendChild(link);
})();
`, quoted)
}

// Register returns a snippet that marks module as hot aware.
func Register(module string) string {
	quoted, _ := json.Marshal(module)
	return fmt.Sprintf("\n;(self.__assetpackHot = self.__assetpackHot || []).push(%s);\n", quoted)
}
