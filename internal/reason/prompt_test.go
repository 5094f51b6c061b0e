package reason

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/simeneide/djuplet/internal/jsonl"
)

func TestBuildPromptsAssemblesText(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "filtered.jsonl")
	output := filepath.Join(dir, "dataset.jsonl")

	writeFilterInput(t, input, []string{
		`{"url":"https://no.wikipedia.org/wiki/Oslo","paragraph_number":3,` +
			`"corrupt":"oslo er hovedstaden i norge","corrupt_level":4,` +
			`"reasoning":"Teksten mangler store bokstaver.",` +
			`"text_result":"Oslo er hovedstaden i Norge.",` +
			`"original_text":"Oslo er hovedstaden i Norge.",` +
			`"custom_field":"beholdt"}`,
	})

	opts := PromptOptions{
		InputPath:  input,
		OutputPath: output,
		Template:   "Rett opp teksten:\n\n",
	}
	stats, err := BuildPrompts(context.Background(), opts, testLogger(), testCollector())
	if err != nil {
		t.Fatalf("BuildPrompts failed: %v", err)
	}
	if stats.Written != 1 {
		t.Fatalf("expected 1 record written, got %d", stats.Written)
	}

	lines, err := jsonl.ReadAll(output)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(lines[0], &record); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}

	want := "Rett opp teksten:\n\n" +
		"oslo er hovedstaden i norge" +
		"<think>Teksten mangler store bokstaver.</think>" +
		"Oslo er hovedstaden i Norge."
	if got := record["text"]; got != want {
		t.Errorf("text = %q, want %q", got, want)
	}

	if record["url"] != "https://no.wikipedia.org/wiki/Oslo" {
		t.Errorf("url not preserved: %v", record["url"])
	}
	if record["paragraph_number"] != float64(3) {
		t.Errorf("paragraph_number not preserved: %v", record["paragraph_number"])
	}
	if record["reasoning"] != "Teksten mangler store bokstaver." {
		t.Errorf("reasoning not preserved: %v", record["reasoning"])
	}
	if record["original_text"] != "Oslo er hovedstaden i Norge." {
		t.Errorf("original_text not preserved: %v", record["original_text"])
	}
	if record["custom_field"] != "beholdt" {
		t.Errorf("unknown fields should be preserved: %v", record["custom_field"])
	}
}

func TestBuildPromptsSkipsErrorReasoning(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "filtered.jsonl")
	output := filepath.Join(dir, "dataset.jsonl")

	writeFilterInput(t, input, []string{
		`{"corrupt":"a","reasoning":"` + APIErrorSentinel + `","original_text":"A."}`,
		`{"corrupt":"b","reasoning":"Gyldig resonnement.","original_text":"B."}`,
		`{"corrupt":"c","reasoning":"midt i ERROR midt i","original_text":"C."}`,
	})

	opts := PromptOptions{
		InputPath:  input,
		OutputPath: output,
		Template:   "T:",
	}
	stats, err := BuildPrompts(context.Background(), opts, testLogger(), testCollector())
	if err != nil {
		t.Fatalf("BuildPrompts failed: %v", err)
	}
	if stats.Written != 1 {
		t.Errorf("expected 1 record written, got %d", stats.Written)
	}
	if stats.Dropped[DropErrorReasoning] != 2 {
		t.Errorf("expected 2 error_reasoning drops, got %d", stats.Dropped[DropErrorReasoning])
	}

	lines, err := jsonl.ReadAll(output)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected 1 output line, got %d", len(lines))
	}
	var record map[string]any
	if err := json.Unmarshal(lines[0], &record); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if record["text"] != "T:b<think>Gyldig resonnement.</think>B." {
		t.Errorf("unexpected assembled text: %v", record["text"])
	}
}

func TestBuildPromptsSkipsInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "filtered.jsonl")
	output := filepath.Join(dir, "dataset.jsonl")

	writeFilterInput(t, input, []string{
		`{not json at all`,
		`{"corrupt":"b","reasoning":"Gyldig.","original_text":"B."}`,
	})

	opts := PromptOptions{InputPath: input, OutputPath: output, Template: ""}
	stats, err := BuildPrompts(context.Background(), opts, testLogger(), testCollector())
	if err != nil {
		t.Fatalf("BuildPrompts failed: %v", err)
	}
	if stats.Written != 1 {
		t.Errorf("expected 1 record written, got %d", stats.Written)
	}
	if stats.Dropped[DropInvalidJSON] != 1 {
		t.Errorf("expected 1 invalid_json drop, got %d", stats.Dropped[DropInvalidJSON])
	}
}

func TestBuildPromptsMissingFieldsBecomeEmpty(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "filtered.jsonl")
	output := filepath.Join(dir, "dataset.jsonl")

	writeFilterInput(t, input, []string{
		`{"reasoning":"Bare resonnement."}`,
	})

	opts := PromptOptions{InputPath: input, OutputPath: output, Template: "T:"}
	stats, err := BuildPrompts(context.Background(), opts, testLogger(), testCollector())
	if err != nil {
		t.Fatalf("BuildPrompts failed: %v", err)
	}
	if stats.Written != 1 {
		t.Fatalf("expected 1 record written, got %d", stats.Written)
	}

	lines, err := jsonl.ReadAll(output)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(lines[0], &record); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if record["text"] != "T:<think>Bare resonnement.</think>" {
		t.Errorf("missing fields should assemble as empty strings, got %v", record["text"])
	}
}

func TestPromptOptionsValidate(t *testing.T) {
	if err := (PromptOptions{OutputPath: "out"}).validate(); err == nil {
		t.Error("expected error for missing input path")
	}
	if err := (PromptOptions{InputPath: "in"}).validate(); err == nil {
		t.Error("expected error for missing output path")
	}
	if err := (PromptOptions{InputPath: "in", OutputPath: "out"}).validate(); err != nil {
		t.Errorf("valid options rejected: %v", err)
	}
}
