package textgen

import (
	"strings"
	"testing"
)

func TestBuildPrompt_IncludesTopicsAndMaterial(t *testing.T) {
	prompt := BuildPrompt("AP Physics", []string{"Unit 2 Quiz", "Forces Assessment"}, "Newton's laws excerpt.", 0)

	if !strings.Contains(prompt, "expert AP Physics tutor") {
		t.Errorf("expected subject in prompt, got %q", prompt[:80])
	}
	if !strings.Contains(prompt, "Unit 2 Quiz, Forces Assessment") {
		t.Error("expected weak topics joined into prompt")
	}
	if !strings.Contains(prompt, "Newton's laws excerpt.") {
		t.Error("expected material text in prompt")
	}
	if !strings.Contains(prompt, "[[BOX:") {
		t.Error("expected callout syntax in formatting rules")
	}
	if !strings.Contains(prompt, "### ") {
		t.Error("expected heading syntax in formatting rules")
	}
}

func TestBuildPrompt_DefaultSubject(t *testing.T) {
	prompt := BuildPrompt("", []string{"Topic"}, "m", 0)
	if !strings.Contains(prompt, "expert General Studies tutor") {
		t.Error("expected default subject")
	}
}

func TestBuildPrompt_TruncatesMaterial(t *testing.T) {
	lines := make([]string, 200)
	for i := range lines {
		lines[i] = "alpha beta gamma delta epsilon zeta eta theta"
	}
	material := strings.Join(lines, "\n")

	prompt := BuildPrompt("Math", []string{"T"}, material, 50)
	if !strings.Contains(prompt, "[material truncated]") {
		t.Error("expected truncation marker")
	}
	if strings.Count(prompt, "alpha beta gamma") >= 200 {
		t.Error("expected material to be cut")
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"hi", 1},
		{"one two three four", 5},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q): expected %d, got %d", tt.text, tt.want, got)
		}
	}
}

func TestTruncateToBudget_UnderBudgetUnchanged(t *testing.T) {
	text := "short line\nanother line"
	if got := TruncateToBudget(text, 1000); got != text {
		t.Errorf("expected unchanged text, got %q", got)
	}
}

func TestTruncateToBudget_CutsAtLineBoundary(t *testing.T) {
	text := "one two three\nfour five six\nseven eight nine"
	got := TruncateToBudget(text, 7)

	if !strings.Contains(got, "one two three") {
		t.Errorf("expected first line kept, got %q", got)
	}
	if strings.Contains(got, "seven") {
		t.Errorf("expected last line dropped, got %q", got)
	}
	if !strings.HasSuffix(got, "[material truncated]") {
		t.Errorf("expected truncation marker, got %q", got)
	}
}

func TestTruncateToBudget_SingleGiantLine(t *testing.T) {
	text := strings.Repeat("word ", 1000)
	got := TruncateToBudget(text, 10)

	if len(got) >= len(text) {
		t.Error("expected giant line to be cut")
	}
	if !strings.HasSuffix(got, "[material truncated]") {
		t.Errorf("expected truncation marker, got %q", got)
	}
	words := strings.Fields(strings.TrimSuffix(got, "\n[material truncated]"))
	if len(words) > 10 {
		t.Errorf("expected at most 10 words kept, got %d", len(words))
	}
}
