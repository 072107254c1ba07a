package engine

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// current majors used to resolve "last N versions"
var latestVersions = map[api.EngineName]int{
	api.EngineChrome:  140,
	api.EngineEdge:    140,
	api.EngineFirefox: 143,
	api.EngineSafari:  26,
	api.EngineIOS:     26,
	api.EngineOpera:   122,
}

var browserNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"ff":      api.EngineFirefox,
	"safari":  api.EngineSafari,
	"ios":     api.EngineIOS,
	"ios_saf": api.EngineIOS,
	"opera":   api.EngineOpera,
	"ie":      api.EngineIE,
	// the stock android browser from 4.4 on is chromium 30
	"android": api.EngineChrome,
}

// Engines converts browser queries ("last 2 versions", "opera 12") into
// esbuild engine targets, keeping the oldest version per engine.
func Engines(queries []string) ([]api.Engine, error) {
	oldest := map[api.EngineName]float64{}
	keep := func(name api.EngineName, version float64) {
		if v, ok := oldest[name]; !ok || version < v {
			oldest[name] = version
		}
	}

	for _, q := range queries {
		fields := strings.Fields(strings.ToLower(q))

		switch {
		case len(fields) == 3 && fields[0] == "last" && fields[2] == "versions":
			n, err := strconv.Atoi(fields[1])
			if err != nil || n < 1 {
				return nil, fmt.Errorf("invalid browser query %q", q)
			}
			for name, latest := range latestVersions {
				keep(name, float64(latest-n+1))
			}
		case len(fields) == 2:
			name, ok := browserNames[fields[0]]
			if !ok {
				return nil, fmt.Errorf("unknown browser in query %q", q)
			}
			version, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				return nil, fmt.Errorf("invalid browser version in query %q", q)
			}
			if fields[0] == "android" {
				version = 30
			}
			keep(name, version)
		default:
			return nil, fmt.Errorf("unsupported browser query %q", q)
		}
	}

	engines := make([]api.Engine, 0, len(oldest))
	for name, version := range oldest {
		engines = append(engines, api.Engine{
			Name:    name,
			Version: strconv.FormatFloat(version, 'f', -1, 64),
		})
	}
	slices.SortFunc(engines, func(a, b api.Engine) int {
		return strings.Compare(engineLabel(a.Name), engineLabel(b.Name))
	})

	return engines, nil
}

var engineLabels = map[api.EngineName]string{
	api.EngineChrome:  "chrome",
	api.EngineEdge:    "edge",
	api.EngineFirefox: "firefox",
	api.EngineIE:      "ie",
	api.EngineIOS:     "ios",
	api.EngineOpera:   "opera",
	api.EngineSafari:  "safari",
}

func engineLabel(name api.EngineName) string {
	return engineLabels[name]
}
