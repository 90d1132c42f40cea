package preflight

import (
	"bytes"
	"net"
	"os/exec"
	"strings"
	"testing"

	"github.com/randomizedcoder/go-interp-driver/internal/language"
)

func TestCheck_String(t *testing.T) {
	t.Run("passed_with_required", func(t *testing.T) {
		c := Check{Name: "test_check", Required: 100, Actual: 200, Passed: true}
		s := c.String()
		if !strings.Contains(s, "✓") || !strings.Contains(s, "200") || !strings.Contains(s, "100") {
			t.Errorf("unexpected string %q", s)
		}
	})

	t.Run("failed_check", func(t *testing.T) {
		c := Check{Name: "test_check", Required: 100, Actual: 50}
		if s := c.String(); !strings.Contains(s, "✗") {
			t.Errorf("failed check should have ✗: %q", s)
		}
	})

	t.Run("warning_check", func(t *testing.T) {
		c := Check{Name: "test_check", Passed: true, Warning: true, Message: "warning message"}
		s := c.String()
		if !strings.Contains(s, "⚠") || !strings.Contains(s, "warning message") {
			t.Errorf("unexpected string %q", s)
		}
	})
}

func generic(t *testing.T, name, cmd string) language.Profile {
	t.Helper()
	g, err := language.NewGeneric(language.GenericConfig{Name: name, Command: []string{cmd}})
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestRunAll_ActiveFound(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	result := RunAll(Options{Active: generic(t, "shell", "sh")})

	var found bool
	for _, c := range result.Checks {
		if c.Name == "interpreter_shell" {
			found = true
			if !c.Passed || c.Warning {
				t.Errorf("interpreter check = %+v, want passed", c)
			}
		}
	}
	if !found {
		t.Error("missing interpreter_shell check")
	}
}

func TestRunAll_ActiveMissingFails(t *testing.T) {
	result := RunAll(Options{Active: generic(t, "ghost", "/nonexistent/interpreter-xyz")})

	if result.Passed {
		t.Error("missing active interpreter should fail preflight")
	}
	if c := result.Checks[0]; c.Passed || !strings.Contains(c.Message, "not found") {
		t.Errorf("check = %+v", c)
	}
}

func TestRunAll_OptionalMissingWarns(t *testing.T) {
	result := RunAll(Options{Others: []language.Profile{generic(t, "ghost", "/nonexistent/interpreter-xyz")}})

	c := result.Checks[0]
	if !c.Passed || !c.Warning {
		t.Errorf("optional missing interpreter = %+v, want passed warning", c)
	}
}

func TestRunAll_ResourceChecksPresent(t *testing.T) {
	result := RunAll(Options{})

	names := map[string]bool{}
	for _, c := range result.Checks {
		names[c.Name] = true
	}
	for _, want := range []string{"file_descriptors", "process_limit"} {
		if !names[want] {
			t.Errorf("missing %s check", want)
		}
	}
	if names["metrics_addr"] {
		t.Error("metrics_addr should only be checked when set")
	}
}

func TestCheckFileDescriptors_Scaling(t *testing.T) {
	small := checkFileDescriptors(1)
	large := checkFileDescriptors(100)
	if small.Warning {
		t.Skip("file descriptor limit unavailable")
	}
	if large.Required <= small.Required {
		t.Error("required fds should grow with interpreters")
	}
}

func TestParseMaxProcesses(t *testing.T) {
	tests := []struct {
		name   string
		limits string
		want   int
	}{
		{"numeric", "Max cpu time              unlimited            unlimited            seconds\nMax processes             24001                30000                processes\n", 24001},
		{"unlimited", "Max processes             unlimited            unlimited            processes\n", 1000000},
		{"missing", "Max open files            1024                 4096                 files\n", 0},
		{"short", "Max processes\n", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseMaxProcesses(tt.limits); got != tt.want {
				t.Errorf("parseMaxProcesses = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCheckListen(t *testing.T) {
	if c := checkListen("127.0.0.1:0"); !c.Passed {
		t.Errorf("free port check = %+v", c)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	if c := checkListen(ln.Addr().String()); c.Passed {
		t.Errorf("busy port check passed: %+v", c)
	}
}

func TestSuggestFix(t *testing.T) {
	tests := map[string]string{
		"file_descriptors":   "ulimit -n",
		"process_limit":      "ulimit -u",
		"metrics_addr":       "-metrics",
		"interpreter_python": "languages.python.command",
		"other":              "see documentation",
	}
	for name, want := range tests {
		if got := suggestFix(name); !strings.Contains(got, want) {
			t.Errorf("suggestFix(%q) = %q, want it to mention %q", name, got, want)
		}
	}
}

func TestPrintResults(t *testing.T) {
	result := &Result{
		Checks: []Check{
			{Name: "test1", Passed: true, Message: "ok"},
			{Name: "process_limit", Passed: false, Required: 100, Actual: 50},
		},
		Passed: false,
	}

	var buf bytes.Buffer
	PrintResults(&buf, result)
	out := buf.String()

	if !strings.HasPrefix(out, "Preflight checks:") {
		t.Errorf("missing header:\n%s", out)
	}
	if strings.Count(out, "Fix:") != 1 {
		t.Errorf("expected one fix line:\n%s", out)
	}
}
