package core

import (
	"reflect"
	"sort"
	"testing"
)

func TestApply_ResetsBeforeReplacements(t *testing.T) {
	s := NewGraphState("seed", DefaultConfig())
	s.ResearchGuide = &Guide{Questions: []string{"q"}}
	s.Critique = &Critique{Score: 4}
	s.InterviewCycle = 2

	next := Apply(s, Patch{
		Artifact:     &Idea{Title: "v1"},
		Resets:       ResetGuide | ResetCritique | ResetInterviewCycle,
		IncIteration: true,
	})

	if next.ResearchGuide != nil || next.Critique != nil {
		t.Fatalf("expected guide and critique cleared: %+v", next)
	}
	if next.InterviewCycle != 0 {
		t.Fatalf("expected cycle reset, got %d", next.InterviewCycle)
	}
	if next.Artifact == nil || next.Artifact.Title != "v1" {
		t.Fatalf("artifact not applied: %+v", next.Artifact)
	}
	if next.IterationCount != 1 || next.Version != 1 {
		t.Fatalf("unexpected counters: iteration=%d version=%d", next.IterationCount, next.Version)
	}
	// input untouched
	if s.ResearchGuide == nil || s.Critique == nil || s.InterviewCycle != 2 {
		t.Fatalf("Apply mutated its input: %+v", s)
	}
}

func TestApply_ResetThenReplaceSameField(t *testing.T) {
	s := NewGraphState("seed", DefaultConfig())
	s.InterviewResults = []InterviewResult{{TranscriptSummary: "old"}}

	next := Apply(s, Patch{
		Resets:           ResetInterviews,
		InterviewResults: []InterviewResult{{TranscriptSummary: "new"}},
	})

	if len(next.InterviewResults) != 1 || next.InterviewResults[0].TranscriptSummary != "new" {
		t.Fatalf("expected only the new result, got %+v", next.InterviewResults)
	}
}

func TestApply_AppendsInterviewResults(t *testing.T) {
	s := NewGraphState("seed", DefaultConfig())
	s = Apply(s, Patch{InterviewResults: []InterviewResult{{TranscriptSummary: "a"}}})
	s = Apply(s, Patch{InterviewResults: []InterviewResult{{TranscriptSummary: "b"}}})

	if len(s.InterviewResults) != 2 {
		t.Fatalf("expected 2 results, got %d", len(s.InterviewResults))
	}
	if s.Version != 2 {
		t.Fatalf("expected version 2, got %d", s.Version)
	}
}

func TestMerge_CommutativeOverInterviewResults(t *testing.T) {
	a := Patch{InterviewResults: []InterviewResult{{TranscriptSummary: "a"}}}
	b := Patch{InterviewResults: []InterviewResult{{TranscriptSummary: "b"}, {TranscriptSummary: "c"}}}
	c := Patch{InterviewResults: []InterviewResult{{TranscriptSummary: "d"}}}

	left := Merge(Merge(a, b), c)
	right := Merge(c, Merge(b, a))

	if got, want := summaries(left), summaries(right); !reflect.DeepEqual(got, want) {
		t.Fatalf("merge not commutative as multiset: %v vs %v", got, want)
	}
	if len(left.InterviewResults) != 4 {
		t.Fatalf("expected 4 results, got %d", len(left.InterviewResults))
	}
}

func TestMerge_EmptyIsIdentity(t *testing.T) {
	a := Patch{Report: &Report{PivotRecommendation: "x"}, IncInterviewCycle: true}
	got := Merge(Patch{}, a)
	if got.Report == nil || !got.IncInterviewCycle {
		t.Fatalf("merge with empty lost fields: %+v", got)
	}
	if !(Patch{}).IsEmpty() {
		t.Fatal("zero patch should be empty")
	}
	if a.IsEmpty() {
		t.Fatal("non-zero patch reported empty")
	}
}

func TestReset_String(t *testing.T) {
	if got := (ResetGuide | ResetInterviewCycle).String(); got != "guide|interview_cycle" {
		t.Fatalf("unexpected reset string %q", got)
	}
	if got := Reset(0).String(); got != "none" {
		t.Fatalf("unexpected empty reset string %q", got)
	}
}

func summaries(p Patch) []string {
	out := make([]string, 0, len(p.InterviewResults))
	for _, r := range p.InterviewResults {
		out = append(out, r.TranscriptSummary)
	}
	sort.Strings(out)
	return out
}
