package output

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestResultLabel(t *testing.T) {
	tests := []struct {
		name string
		in   Result
		want string
	}{
		{name: "error wins", in: Result{Status: StatusError, Operation: "created"}, want: "ERROR"},
		{name: "created", in: Result{Status: StatusOK, Operation: "created", Changed: true}, want: "CREATED"},
		{name: "updated", in: Result{Status: StatusOK, Operation: "updated", Changed: true}, want: "UPDATED"},
		{name: "dry run change", in: Result{Status: StatusOK, Operation: "none", Changed: true}, want: "CHANGED"},
		{name: "unchanged", in: Result{Status: StatusOK, Operation: "none"}, want: "UNCHANGED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Label(); got != tt.want {
				t.Fatalf("Label() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTally(t *testing.T) {
	var tl Tally
	for _, r := range sampleResults() {
		tl.Add(r)
	}
	tl.Add(Result{Status: StatusOK, Operation: "none", Changed: true})
	want := Tally{Targets: 4, Unchanged: 1, Changed: 1, Created: 1, Updated: 0, Failed: 1}
	if tl != want {
		t.Fatalf("Tally = %+v, want %+v", tl, want)
	}
}

func TestEvent_TargetShadowsResultTarget(t *testing.T) {
	e := eventFromResult(Result{Target: "eclipse-zenoh/zenoh-c", Status: StatusOK, Operation: "none"})
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(b)
	if strings.Count(s, `"target":`) != 1 {
		t.Fatalf("expected a single target field, got %s", s)
	}
	for _, want := range []string{`"type":"target.result"`, `"status":"OK"`, `"operation":"none"`} {
		if !strings.Contains(s, want) {
			t.Fatalf("expected %s in %s", want, s)
		}
	}
}
