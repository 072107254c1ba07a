// Package lint checks script sources before they are compiled.
package lint

import (
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// Options control which findings fail a module.
type Options struct {
	FailOnWarning bool
	FailOnError   bool
}

// Report holds the findings for one source file.
type Report struct {
	Errors   []api.Message
	Warnings []api.Message
}

// Check parses source as a script module. Syntax errors are reported as
// errors, anything esbuild flags as suspicious and debugger statements are
// reported as warnings.
func Check(path, source string) Report {
	result := api.Transform(source, api.TransformOptions{
		Loader:     api.LoaderJS,
		Sourcefile: path,
		LogLevel:   api.LogLevelSilent,
	})

	report := Report{
		Errors:   result.Errors,
		Warnings: result.Warnings,
	}
	if len(result.Errors) == 0 && hasDebugger(source, string(result.Code)) {
		report.Warnings = append(report.Warnings, debuggerWarning(path, source))
	}
	return report
}

var debuggerToken = regexp.MustCompile(`\bdebugger\b`)

// hasDebugger compares the plain output with one that drops debugger
// statements, so the word in strings or comments does not count.
func hasDebugger(source, code string) bool {
	if !debuggerToken.MatchString(source) {
		return false
	}
	dropped := api.Transform(source, api.TransformOptions{
		Loader:   api.LoaderJS,
		Drop:     api.DropDebugger,
		LogLevel: api.LogLevelSilent,
	})
	return len(dropped.Errors) == 0 && string(dropped.Code) != code
}

func debuggerWarning(path, source string) api.Message {
	msg := api.Message{Text: "Unexpected 'debugger' statement"}

	loc := debuggerToken.FindStringIndex(source)
	if loc == nil {
		return msg
	}
	before := source[:loc[0]]
	line := strings.Count(before, "\n") + 1
	lineStart := strings.LastIndex(before, "\n") + 1
	lineEnd := strings.IndexByte(source[lineStart:], '\n')
	if lineEnd < 0 {
		lineEnd = len(source) - lineStart
	}

	msg.Location = &api.Location{
		File:     path,
		Line:     line,
		Column:   loc[0] - lineStart,
		Length:   len("debugger"),
		LineText: source[lineStart : lineStart+lineEnd],
	}
	return msg
}

// Apply splits the report into findings that fail the module and findings
// that are only reported.
func (r Report) Apply(opts Options) (failures, notes []api.Message) {
	if opts.FailOnError {
		failures = append(failures, r.Errors...)
	} else {
		notes = append(notes, r.Errors...)
	}

	if opts.FailOnWarning {
		failures = append(failures, r.Warnings...)
	} else {
		notes = append(notes, r.Warnings...)
	}

	for i := range failures {
		failures[i].PluginName = "eslint"
	}
	for i := range notes {
		notes[i].PluginName = "eslint"
	}

	return failures, notes
}
