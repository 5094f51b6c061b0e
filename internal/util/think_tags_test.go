package util

import (
	"testing"
)

func TestContainsThinkTags(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{
			name:     "has think tags",
			input:    "<think>Teksten mangler komma</think>Svaret er klart",
			expected: true,
		},
		{
			name:     "has thinking tags",
			input:    "<thinking>Step by step</thinking>Final answer",
			expected: true,
		},
		{
			name:     "no think tags",
			input:    "Just a regular response without any tags",
			expected: false,
		},
		{
			name:     "has Chinese think tags",
			input:    "<思考>让我想想</思考>答案是42",
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ContainsThinkTags(tt.input)
			if result != tt.expected {
				t.Errorf("ContainsThinkTags() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestExtractThinkContent(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "single think block",
			input:    "<think>Først sjekker jeg tegnsettingen.</think>Her er teksten.",
			expected: "Først sjekker jeg tegnsettingen.",
		},
		{
			name:     "multiple blocks joined",
			input:    "<think>del en</think>midt<think>del to</think>",
			expected: "del en\n\ndel to",
		},
		{
			name:     "no tags",
			input:    "ingen tagger her",
			expected: "",
		},
		{
			name:     "multiline content trimmed",
			input:    "<think>\nlinje en\nlinje to\n</think>svar",
			expected: "linje en\nlinje to",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ExtractThinkContent(tt.input)
			if result != tt.expected {
				t.Errorf("ExtractThinkContent() = %q, want %q", result, tt.expected)
			}
		})
	}
}
