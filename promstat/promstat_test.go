package promstat

import (
	"io/ioutil"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStatter(t *testing.T) {
	s := NewStatter()
	s.Count("rows.revision", 3, 1, "class:default")
	s.Count("rows.revision", 2, 1, "class:default")
	s.Count("rows.revision", 4, 1, "class:scholarly-article")
	s.Gauge("queue.depth", 12, 1)
	s.Timing("flush", 250*time.Millisecond, 1, "class:default")
	s.Set("ignored", "x", 1)

	if got := testutil.ToFloat64(s.counters["rows.revision"].counter.WithLabelValues("default")); got != 5 {
		t.Fatalf("unexpected counter value %v", got)
	}
	if got := testutil.ToFloat64(s.gauges["queue.depth"].gauge.WithLabelValues()); got != 12 {
		t.Fatalf("unexpected gauge value %v", got)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := ioutil.ReadAll(rec.Body)
	for _, want := range []string{
		`wdhistory_rows_revision_total{class="scholarly-article"} 4`,
		`wdhistory_queue_depth 12`,
		`wdhistory_flush_seconds_count{class="default"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("expected %q in:\n%s", want, body)
		}
	}
}

func TestStatterUntaggedLabel(t *testing.T) {
	s := NewStatter()
	s.Count("pages.read", 1, 1, "class:default")
	// a later call without the tag leaves the label empty
	s.Count("pages.read", 1, 1)
	if got := testutil.ToFloat64(s.counters["pages.read"].counter.WithLabelValues("")); got != 1 {
		t.Fatalf("unexpected counter value %v", got)
	}
}
