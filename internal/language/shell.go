package language

import (
	"regexp"
	"strings"
)

// ShellConfig holds configuration for the shell profile.
type ShellConfig struct {
	// BinaryPath is the path to bash.
	BinaryPath string
}

// DefaultShellConfig returns a ShellConfig with sensible defaults.
func DefaultShellConfig() *ShellConfig {
	return &ShellConfig{
		BinaryPath: "bash",
	}
}

// Shell drives a non-interactive bash reading commands from stdin.
type Shell struct {
	markers
	config *ShellConfig
}

// NewShell creates a shell profile with the given configuration.
func NewShell(cfg *ShellConfig) *Shell {
	if cfg == nil {
		cfg = DefaultShellConfig()
	}
	return &Shell{config: cfg}
}

// Name returns "shell".
func (s *Shell) Name() string {
	return "shell"
}

// StartCommand returns bash without startup files.
func (s *Shell) StartCommand() []string {
	return []string{s.config.BinaryPath, "--noprofile", "--norc"}
}

var (
	heredocRe     = regexp.MustCompile(`<<-?\s*['"]?([A-Za-z_][A-Za-z0-9_]*)['"]?`)
	casePatternRe = regexp.MustCompile(`^[^\s()$]*\)`)
)

// shellKeywords never get a marker in front of them; doing so would change
// the meaning of the enclosing compound command.
var shellKeywords = map[string]bool{
	"then": true, "do": true, "else": true, "elif": true, "fi": true,
	"done": true, "esac": true, "in": true, ";;": true, "}": true, ")": true,
}

// Preprocess echoes an active-line marker before each executable line and
// the end marker after the cell.
func (s *Shell) Preprocess(code string) (string, error) {
	if err := validate(code); err != nil {
		return "", err
	}

	var b strings.Builder
	var lex shLexer
	heredocEnd := ""
	continued := false

	for i, line := range splitLines(code) {
		trimmed := strings.TrimSpace(line)

		switch {
		case heredocEnd != "":
			if trimmed == heredocEnd {
				heredocEnd = ""
			}
			b.WriteString(line + "\n")
			continue
		case continued || lex.open():
		case trimmed == "" || strings.HasPrefix(trimmed, "#"):
		case shellKeywords[firstWord(trimmed)]:
		case casePatternRe.MatchString(trimmed):
		default:
			b.WriteString(`echo "` + ActiveLineMarker(i+1) + `"` + "\n")
		}

		b.WriteString(line)
		b.WriteString("\n")

		inLiteral := lex.open()
		lex.scan(line)
		if !inLiteral && !lex.open() {
			if m := heredocRe.FindStringSubmatch(strings.ReplaceAll(line, "<<<", "")); m != nil {
				heredocEnd = m[1]
			}
		}
		continued = strings.HasSuffix(trimmed, `\`) ||
			strings.HasSuffix(trimmed, "|") ||
			strings.HasSuffix(trimmed, "&&") ||
			strings.HasSuffix(trimmed, "||")
	}

	b.WriteString(`echo "` + EndOfExecutionMarker + `"`)
	return b.String(), nil
}

// PostprocessLine passes shell output through unchanged.
func (s *Shell) PostprocessLine(line string) (string, bool) {
	return line, true
}

// shLexer tracks quoting across lines so that markers never land inside a
// multi-line string.
type shLexer struct {
	quote byte // ', ", ` or $ (for $'...') while inside a quote
}

func (l *shLexer) open() bool {
	return l.quote != 0
}

func (l *shLexer) scan(line string) {
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch l.quote {
		case '\'':
			if c == '\'' {
				l.quote = 0
			}
		case '$':
			if c == '\\' {
				i++
			} else if c == '\'' {
				l.quote = 0
			}
		case '"', '`':
			if c == '\\' {
				i++
			} else if c == l.quote {
				l.quote = 0
			}
		default:
			switch {
			case c == '\\':
				i++
			case c == '#' && (i == 0 || line[i-1] == ' ' || line[i-1] == '\t'):
				return
			case c == '$' && i+1 < len(line) && line[i+1] == '\'':
				l.quote = '$'
				i++
			case c == '\'' || c == '"' || c == '`':
				l.quote = c
			}
		}
	}
}

func firstWord(s string) string {
	if i := strings.IndexAny(s, " \t;"); i > 0 {
		return s[:i]
	}
	return s
}

var _ Profile = (*Shell)(nil)
