package stats

import (
	"testing"
	"time"
)

func TestRecorder_LanguageIsStable(t *testing.T) {
	r := NewRecorder()

	a := r.Language("python")
	b := r.Language("python")
	if a != b {
		t.Error("Language should return the same stats for the same name")
	}
	r.Language("shell")
	if n := r.LanguageCount(); n != 2 {
		t.Errorf("LanguageCount = %d, want 2", n)
	}
}

func TestRecorder_Aggregate(t *testing.T) {
	r := NewRecorder()

	py := r.Language("python")
	py.RecordRun("completed", 200*time.Millisecond)
	py.RecordRun("process_exited", 400*time.Millisecond)
	py.Starts.Add(2)
	py.Restarts.Add(1)

	js := r.Language("javascript")
	js.RecordRun("completed", 100*time.Millisecond)
	js.WriteFailures.Add(1)
	js.Events.Add(7)

	agg := r.Aggregate()

	if agg.TotalRuns != 3 {
		t.Errorf("TotalRuns = %d, want 3", agg.TotalRuns)
	}
	if agg.Outcomes["completed"] != 2 || agg.Outcomes["process_exited"] != 1 {
		t.Errorf("Outcomes = %v", agg.Outcomes)
	}
	if agg.SuccessRate < 0.66 || agg.SuccessRate > 0.67 {
		t.Errorf("SuccessRate = %v", agg.SuccessRate)
	}
	if agg.TotalStarts != 2 || agg.TotalRestarts != 1 || agg.TotalWriteFailures != 1 || agg.TotalEvents != 7 {
		t.Errorf("totals = %+v", agg)
	}
	if agg.DurationMax != 400*time.Millisecond {
		t.Errorf("DurationMax = %v", agg.DurationMax)
	}
	if agg.DurationP50 < 100*time.Millisecond || agg.DurationP50 > 400*time.Millisecond {
		t.Errorf("DurationP50 = %v out of range", agg.DurationP50)
	}

	if len(agg.PerLanguage) != 2 {
		t.Fatalf("PerLanguage len = %d", len(agg.PerLanguage))
	}
	if agg.PerLanguage[0].Language != "javascript" || agg.PerLanguage[1].Language != "python" {
		t.Errorf("PerLanguage not sorted: %s, %s", agg.PerLanguage[0].Language, agg.PerLanguage[1].Language)
	}
}

func TestRecorder_AggregateEmpty(t *testing.T) {
	agg := NewRecorder().Aggregate()
	if agg.TotalRuns != 0 || agg.SuccessRate != 0 || agg.DurationP50 != 0 {
		t.Errorf("empty aggregate = %+v", agg)
	}
}

func TestRecorder_Reset(t *testing.T) {
	r := NewRecorder()
	r.Language("python").RecordRun("completed", time.Millisecond)

	r.Reset()

	if r.LanguageCount() != 0 {
		t.Error("Reset should drop all languages")
	}
	if agg := r.Aggregate(); agg.TotalRuns != 0 {
		t.Errorf("TotalRuns after reset = %d", agg.TotalRuns)
	}
}
