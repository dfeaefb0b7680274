package client

import "testing"

func TestCleanAnswer(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "The revenue peaked in 2021.", "The revenue peaked in 2021."},
		{"template prefix", "system\nYou are helpful\nuser\nWhat?\nassistant\nThree bars.", "Three bars."},
		{"last marker wins", "user: ask the assistant\nassistant: 42", "42"},
		{"chatml marker", "<|im_start|>user\nWhat?<|im_end|>\n<|im_start|>assistant\nQ3 is highest.<|im_end|>", "Q3 is highest."},
		{"word inside answer", "The tallest bar is the assistant manager category at 42%.", "The tallest bar is the assistant manager category at 42%."},
		{"word at line start", "Top roles:\nassistant managers lead with 42%.", "Top roles:\nassistant managers lead with 42%."},
		{"fenced", "```text\nline one\nline two\n```", "line one\nline two"},
		{"think block", "<think>counting bars</think>\nFive.", "Five."},
		{"whitespace", "   \n  ok \n", "ok"},
	}

	for _, tt := range tests {
		if got := CleanAnswer(tt.in); got != tt.want {
			t.Errorf("%s: CleanAnswer(%q) = %q, want %q", tt.name, tt.in, got, tt.want)
		}
	}
}
