package metrics

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// newTestCollector creates a collector with a private registry.
func newTestCollector() (*Collector, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	return NewCollectorWithRegistry(CollectorConfig{Version: "test"}, registry), registry
}

func TestNewCollector_Info(t *testing.T) {
	c, _ := newTestCollector()

	if got := testutil.ToFloat64(c.info.WithLabelValues("test")); got != 1 {
		t.Errorf("info = %v, want 1", got)
	}
}

func TestCollector_Runs(t *testing.T) {
	c, registry := newTestCollector()

	c.RunStarted("python")
	c.RunStarted("python")
	if got := testutil.ToFloat64(c.runsInFlight.WithLabelValues("python")); got != 2 {
		t.Errorf("runs_in_flight = %v, want 2", got)
	}

	c.RunCompleted("python", "completed", 200*time.Millisecond, 1)
	c.RunCompleted("python", "max_retries", time.Second, 3)

	if got := testutil.ToFloat64(c.runsTotal.WithLabelValues("python", "completed")); got != 1 {
		t.Errorf("runs_total{completed} = %v", got)
	}
	if got := testutil.ToFloat64(c.runsTotal.WithLabelValues("python", "max_retries")); got != 1 {
		t.Errorf("runs_total{max_retries} = %v", got)
	}
	if got := testutil.ToFloat64(c.runsInFlight.WithLabelValues("python")); got != 0 {
		t.Errorf("runs_in_flight = %v, want 0", got)
	}

	mfs, err := Families(registry, Namespace+"_run_duration_seconds")
	if err != nil {
		t.Fatal(err)
	}
	if len(mfs) != 1 {
		t.Fatalf("got %d duration families", len(mfs))
	}
	h := mfs[0].GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("duration sample count = %d, want 2", h.GetSampleCount())
	}
	if sum := h.GetSampleSum(); sum < 1.19 || sum > 1.21 {
		t.Errorf("duration sample sum = %v, want 1.2", sum)
	}
}

func TestCollector_EventsAndLines(t *testing.T) {
	c, _ := newTestCollector()

	c.EventYielded("shell", "output")
	c.EventYielded("shell", "output")
	c.EventYielded("shell", "active_line")
	c.LineRead("shell", "stdout")
	c.LineRead("shell", "stderr")
	c.WriteFailed("shell")

	if got := testutil.ToFloat64(c.eventsTotal.WithLabelValues("shell", "output")); got != 2 {
		t.Errorf("events_total{output} = %v", got)
	}
	if got := testutil.ToFloat64(c.linesRead.WithLabelValues("shell", "stderr")); got != 1 {
		t.Errorf("lines_read_total{stderr} = %v", got)
	}
	if got := testutil.ToFloat64(c.writeFailures.WithLabelValues("shell")); got != 1 {
		t.Errorf("stdin_write_failures_total = %v", got)
	}
}

func TestCollector_Processes(t *testing.T) {
	c, _ := newTestCollector()

	c.ProcessStarted("python")
	if got := testutil.ToFloat64(c.processAlive.WithLabelValues("python")); got != 1 {
		t.Errorf("process_alive = %v, want 1", got)
	}

	c.ProcessExited("python", 137, time.Minute)
	c.ProcessRestarted("python")
	c.ProcessStarted("python")
	c.ProcessExited("python", 0, time.Second)

	if got := testutil.ToFloat64(c.processAlive.WithLabelValues("python")); got != 0 {
		t.Errorf("process_alive = %v, want 0", got)
	}
	if got := testutil.ToFloat64(c.processExits.WithLabelValues("python", "signal")); got != 1 {
		t.Errorf("exits{signal} = %v", got)
	}
	if got := testutil.ToFloat64(c.processExits.WithLabelValues("python", "success")); got != 1 {
		t.Errorf("exits{success} = %v", got)
	}

	s := c.Summary()
	if s.TotalStarts != 2 || s.TotalRestarts != 1 {
		t.Errorf("summary = %+v", s)
	}
	if s.ExitCodes[137] != 1 || s.ExitCodes[0] != 1 {
		t.Errorf("exit codes = %v", s.ExitCodes)
	}
}

func TestExitCategory(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{0, "success"},
		{1, "error"},
		{128, "error"},
		{130, "signal"},
		{137, "signal"},
	}
	for _, tt := range tests {
		if got := ExitCategory(tt.code); got != tt.want {
			t.Errorf("ExitCategory(%d) = %s, want %s", tt.code, got, tt.want)
		}
	}
}

func TestWriteText(t *testing.T) {
	c, registry := newTestCollector()
	c.RunCompleted("javascript", "completed", time.Second, 1)

	// Foreign metrics are left out.
	other := prometheus.NewCounter(prometheus.CounterOpts{Name: "unrelated_total", Help: "x"})
	registry.MustRegister(other)

	var buf bytes.Buffer
	if err := WriteText(&buf, registry); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	if !strings.Contains(out, `interp_driver_runs_total{language="javascript",outcome="completed"} 1`) {
		t.Errorf("missing runs_total sample:\n%s", out)
	}
	if !strings.Contains(out, "# TYPE interp_driver_run_duration_seconds histogram") {
		t.Errorf("missing histogram type line:\n%s", out)
	}
	if strings.Contains(out, "unrelated_total") {
		t.Error("WriteText should only include driver metrics")
	}
}

func TestServer(t *testing.T) {
	c, registry := newTestCollector()
	c.ProcessStarted("shell")

	s := NewServer("127.0.0.1:0", registry, nil)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Shutdown(context.Background())

	get := func(path string) string {
		t.Helper()
		resp, err := http.Get("http://" + s.Addr() + path)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s = %d", path, resp.StatusCode)
		}
		body, _ := io.ReadAll(resp.Body)
		return string(body)
	}

	if body := get("/health"); strings.TrimSpace(body) != "ok" {
		t.Errorf("/health = %q", body)
	}
	if body := get("/metrics"); !strings.Contains(body, `interp_driver_process_starts_total{language="shell"} 1`) {
		t.Errorf("/metrics missing process_starts_total:\n%s", body)
	}
}

func TestServer_ListenError(t *testing.T) {
	s := NewServer("256.0.0.1:bad", prometheus.NewRegistry(), nil)
	if err := s.Start(); err == nil {
		t.Error("expected a listen error")
	}
}

func TestCollector_ThreadSafety(t *testing.T) {
	c, _ := newTestCollector()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.ProcessStarted("python")
				c.ProcessExited("python", j%3, time.Millisecond)
				c.RunStarted("python")
				c.RunCompleted("python", "completed", time.Millisecond, 1)
			}
		}()
	}
	wg.Wait()

	if s := c.Summary(); s.TotalStarts != 1000 {
		t.Errorf("TotalStarts = %d, want 1000", s.TotalStarts)
	}
	if got := testutil.ToFloat64(c.runsTotal.WithLabelValues("python", "completed")); got != 1000 {
		t.Errorf("runs_total = %v", got)
	}
}
