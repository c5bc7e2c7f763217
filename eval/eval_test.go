package eval

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brunobiangulo/kgsynth/dataset"
	"github.com/brunobiangulo/kgsynth/llm/llmtest"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name       string
		resp       string
		answer     string
		confidence any
	}{
		{"plain", `{"Answer": "Yes", "Suggestions": "None", "Confidence": 4.5}`, "Yes", 4.5},
		{"fenced", "```json\n{\"Answer\": \"No\", \"Suggestions\": \"Wrong tail\", \"Confidence\": \"3\"}\n```", "No", "3"},
		{"prose around", `Here you go: {"Answer": "Yes", "Suggestions": "", "Confidence": 5} Thanks.`, "Yes", 5.0},
		{"missing field", `{"Answer": "Yes", "Suggestions": "ok"}`, AnswerInvalid, nil},
		{"not json", "looks right to me", AnswerInvalid, nil},
		{"broken json", `{"Answer": "Yes",`, AnswerInvalid, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ParseVerdict(tt.resp)
			if v.Answer != tt.answer {
				t.Fatalf("Answer = %q, want %q", v.Answer, tt.answer)
			}
			if v.Confidence != tt.confidence {
				t.Errorf("Confidence = %#v, want %#v", v.Confidence, tt.confidence)
			}
			if tt.answer == AnswerInvalid && v.Suggestions != tt.resp {
				t.Errorf("invalid verdict should keep the raw response, got %q", v.Suggestions)
			}
		})
	}
}

func TestParseVerdictStructuredSuggestions(t *testing.T) {
	v := ParseVerdict(`{"Answer": "No", "Suggestions": ["fix head", "fix tail"], "Confidence": 2}`)
	if v.Answer != "No" {
		t.Fatalf("Answer = %q", v.Answer)
	}
	if !strings.Contains(v.Suggestions, "fix tail") {
		t.Errorf("Suggestions = %q", v.Suggestions)
	}
}

func TestComputeMetrics(t *testing.T) {
	verdicts := []Verdict{
		{Answer: "Yes", Confidence: 4.0},
		{Answer: "yes", Confidence: "5"},
		{Answer: "No", Confidence: 2.0},
		{Answer: "No", Confidence: 9.0},       // out of range
		{Answer: "Yes", Confidence: "unsure"}, // unparsable
		{Answer: AnswerInvalid, Suggestions: "raw"},
		{Answer: AnswerError, Suggestions: "API call failed."},
	}
	m := ComputeMetrics(verdicts)

	if m.Total != 7 || m.Correct != 3 || m.Incorrect != 2 || m.Invalid != 1 || m.Errors != 1 {
		t.Fatalf("counts = %+v", m)
	}
	if math.Abs(m.Accuracy-3.0/7.0) > 1e-9 {
		t.Errorf("Accuracy = %v, want 3/7", m.Accuracy)
	}
	if m.Scored != 3 || math.Abs(m.MeanConfidence-11.0/3.0) > 1e-9 {
		t.Errorf("Scored = %d MeanConfidence = %v, want 3 and 11/3", m.Scored, m.MeanConfidence)
	}
}

func TestComputeMetricsEmpty(t *testing.T) {
	m := ComputeMetrics(nil)
	if m.Accuracy != 0 || m.MeanConfidence != 0 {
		t.Errorf("empty metrics = %+v", m)
	}
}

func TestKGCPrompt(t *testing.T) {
	p := KGCPrompt(dataset.KGCRecord{
		HeadEntityName: "Partial oxidation",
		Relation:       "facilitates",
		TailEntityName: "Oxygen",
		Context:        "Gasification",
	})
	for _, want := range []string{
		"Head Entity: Partial oxidation\n",
		"Relation: facilitates\n",
		"Tail Entity: Oxygen\n",
		"Context: Gasification\n",
		"accuracy and completeness",
		`"Confidence": <score>`,
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q:\n%s", want, p)
		}
	}

	p = KGCPrompt(dataset.KGCRecord{})
	if !strings.Contains(p, "Head Entity: N/A\n") || strings.Contains(p, "Context:") {
		t.Errorf("empty record prompt:\n%s", p)
	}
}

func TestRTEPrompt(t *testing.T) {
	p, err := RTEPrompt(dataset.RTERecord{
		EntityName:      "Partial oxidation",
		EntityType:      "industry",
		TextDescription: "Gasification",
		Triplet:         []dataset.Predicate{{Subject: "Partial oxidation", Predicate: "facilitates", Object: "O<2>"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := `Triplets: [{"subject":"Partial oxidation","predicate":"facilitates","object":"O<2>"}]` + "\n"
	if !strings.Contains(p, want) {
		t.Errorf("prompt missing %q:\n%s", want, p)
	}
	if !strings.Contains(p, "logical consistency and correctness") {
		t.Errorf("prompt missing instruction:\n%s", p)
	}
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestEvaluatorRun(t *testing.T) {
	dir := t.TempDir()
	kgcPath := filepath.Join(dir, "kgc.json")
	rtePath := filepath.Join(dir, "rte.json")
	writeJSON(t, kgcPath, []dataset.KGCRecord{
		{HeadEntityName: "A", Relation: "r", TailEntityName: "B"},
		{HeadEntityName: "C", Relation: "s", TailEntityName: "D"},
	})
	writeJSON(t, rtePath, []dataset.RTERecord{{EntityName: "A", Triplet: []dataset.Predicate{{Subject: "A", Predicate: "r", Object: "B"}}}})

	judge := &llmtest.Scripted{}
	judge.Push(
		llmtest.Reply{Text: `<think>hmm</think>{"Answer": "Yes", "Suggestions": "", "Confidence": 4}`},
		llmtest.Reply{Err: errors.New("503")},
		llmtest.Reply{Text: `{"Answer": "No", "Suggestions": "vague", "Confidence": 1}`},
	)

	r, err := NewEvaluator(judge, "judge-model").Run(context.Background(), kgcPath, rtePath)
	if err != nil {
		t.Fatal(err)
	}
	if got := r.KGC.Results[1]; got.Answer != AnswerError || got.Suggestions != "API call failed." {
		t.Errorf("failed call verdict = %+v", got)
	}
	if r.KGC.Metrics.Accuracy != 0.5 || r.KGC.Metrics.MeanConfidence != 4 {
		t.Errorf("KGC metrics = %+v", r.KGC.Metrics)
	}
	if r.RTE.Metrics.Incorrect != 1 || r.RTE.Metrics.Accuracy != 0 {
		t.Errorf("RTE metrics = %+v", r.RTE.Metrics)
	}
	req := judge.Requests[0]
	if req.Model != "judge-model" || len(req.Messages) != 1 || req.Messages[0].Role != "user" {
		t.Errorf("judge request = %+v", req)
	}
	for i, req := range judge.Requests {
		if req.ResponseFormat != "json_object" {
			t.Errorf("judge request %d response format = %q, want json_object", i, req.ResponseFormat)
		}
	}

	out := filepath.Join(dir, "results")
	if err := WriteResults(out, r); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(out, "kgc_results.json"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "\n    {\n        \"Answer\": \"Yes\"") {
		t.Errorf("results not indented by four spaces:\n%s", data)
	}
	if strings.Contains(string(data), `"Confidence": null`) {
		t.Errorf("error verdicts must omit Confidence:\n%s", data)
	}

	report := FormatReport(r)
	for _, want := range []string{"KGC Dataset - Accuracy: 0.50, Average Confidence: 4.00", "RTE Dataset - Accuracy: 0.00"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}

func TestEvaluatorMissingFile(t *testing.T) {
	_, err := NewEvaluator(llmtest.Texts(), "").Run(context.Background(), "nope.json", "nope.json")
	if err == nil {
		t.Fatal("expected error for missing dataset")
	}
}

func TestLoadDatasetRejectsObject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kgc.json")
	if err := os.WriteFile(path, []byte(`{"head entity name": "A"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadDataset(path, KGC); err == nil {
		t.Fatal("expected error for non-array dataset")
	}
}

func TestEvaluateStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEvaluator(llmtest.Texts("x"), "").Evaluate(ctx, KGC, []Item{{Prompt: "p"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
