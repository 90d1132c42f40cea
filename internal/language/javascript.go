package language

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// javascriptBootstrap defines the cell runner and starts a REPL without a
// prompt that does not echo undefined results.
const javascriptBootstrap = `globalThis.__oi_run = function (src) {
  try {
    require("vm").runInThisContext(src, { filename: "cell" });
  } catch (e) {
    console.error(e && e.stack ? e.stack : String(e));
  } finally {
    console.log("##end_of_execution##");
  }
};
require("repl").start({ prompt: "", terminal: false, useGlobal: true, ignoreUndefined: true });`

// JavaScriptConfig holds configuration for the JavaScript profile.
type JavaScriptConfig struct {
	// BinaryPath is the path to node.
	BinaryPath string
}

// DefaultJavaScriptConfig returns a JavaScriptConfig with sensible defaults.
func DefaultJavaScriptConfig() *JavaScriptConfig {
	return &JavaScriptConfig{
		BinaryPath: "node",
	}
}

// JavaScript drives a node REPL.
type JavaScript struct {
	markers
	config *JavaScriptConfig
}

// NewJavaScript creates a JavaScript profile with the given configuration.
func NewJavaScript(cfg *JavaScriptConfig) *JavaScript {
	if cfg == nil {
		cfg = DefaultJavaScriptConfig()
	}
	return &JavaScript{config: cfg}
}

// Name returns "javascript".
func (j *JavaScript) Name() string {
	return "javascript"
}

// StartCommand runs the bootstrap, which reads cells from stdin.
func (j *JavaScript) StartCommand() []string {
	return []string{j.config.BinaryPath, "-e", javascriptBootstrap}
}

var (
	// Lines starting with these continue the previous statement.
	jsContinuationStart = regexp.MustCompile(`^(\.|\)|\]|\}|else\b|catch\b|finally\b|case\b|default\s*:|\?|:|&&|\|\||\+|-|\*|/[^/*])`)

	// Lines ending with these are continued on the next line.
	jsOpenEnd = regexp.MustCompile(`(,|\(|\[|=|\+|-|\*|/|&&|\|\||\?|:|=>)$`)

	// Object literal keys must not be preceded by a statement.
	jsObjectKey = regexp.MustCompile(`^['"]?[A-Za-z_$][\w$]*['"]?\s*:`)
)

// Preprocess inserts console.log active-line markers and wraps the cell in
// a single runner call.
func (j *JavaScript) Preprocess(code string) (string, error) {
	if err := validate(code); err != nil {
		return "", err
	}

	var b strings.Builder
	var lex jsLexer
	prev := ""
	for i, line := range splitLines(code) {
		trimmed := strings.TrimSpace(line)
		if !lex.open() && j.wantsMarker(trimmed, prev) {
			b.WriteString(`console.log("` + ActiveLineMarker(i+1) + `");` + "\n")
		}
		b.WriteString(line)
		b.WriteString("\n")
		inComment := lex.comment
		lex.scan(line)
		if trimmed != "" && !inComment && !strings.HasPrefix(trimmed, "//") && !strings.HasPrefix(trimmed, "/*") {
			prev = trimmed
		}
	}

	quoted, err := json.Marshal(b.String())
	if err != nil {
		return "", fmt.Errorf("quote javascript cell: %w", err)
	}
	return "__oi_run(" + string(quoted) + ")", nil
}

func (j *JavaScript) wantsMarker(trimmed, prev string) bool {
	if trimmed == "" || strings.HasPrefix(trimmed, "//") {
		return false
	}
	if jsContinuationStart.MatchString(trimmed) {
		return false
	}
	if jsOpenEnd.MatchString(prev) {
		return false
	}
	if strings.HasSuffix(prev, "{") && jsObjectKey.MatchString(trimmed) {
		return false
	}
	return true
}

// PostprocessLine passes output through unchanged.
func (j *JavaScript) PostprocessLine(line string) (string, bool) {
	return line, true
}

// jsLexer tracks string literals and block comments across lines.
type jsLexer struct {
	quote   byte // ', " or ` while inside a literal
	comment bool // inside /* */
}

// open reports whether the next line starts inside a literal or comment.
func (l *jsLexer) open() bool {
	return l.quote != 0 || l.comment
}

func (l *jsLexer) scan(line string) {
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case l.comment:
			if c == '*' && i+1 < len(line) && line[i+1] == '/' {
				l.comment = false
				i++
			}
		case l.quote != 0:
			if c == '\\' {
				i++
			} else if c == l.quote {
				l.quote = 0
			}
		case c == '/' && i+1 < len(line) && line[i+1] == '/':
			return
		case c == '/' && i+1 < len(line) && line[i+1] == '*':
			l.comment = true
			i++
		case c == '\'' || c == '"' || c == '`':
			l.quote = c
		}
	}
	// Only template literals and escaped newlines span lines.
	if (l.quote == '\'' || l.quote == '"') && !strings.HasSuffix(line, `\`) {
		l.quote = 0
	}
}

var _ Profile = (*JavaScript)(nil)
