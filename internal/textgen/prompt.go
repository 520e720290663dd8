package textgen

import (
	"fmt"
	"strings"
)

// DefaultPromptTokenBudget caps how much course material goes into one
// prompt. Gemini's context window is far larger; the cap keeps request
// size and latency predictable.
const DefaultPromptTokenBudget = 120000

const guideInstructions = `You are an expert %s tutor and curriculum designer. Create a rigorous, detailed, personalized study guide for a high school student who has demonstrated weakness in the following topics: %s.

The guide must be a comprehensive learning tool, not a summary. For each topic:

1. Topic Overview: a concise, engaging introduction with a real-world analogy explaining why the concept matters.
2. Deconstructing the Essential Knowledge: break each concept into simple terms, define key vocabulary, give at least two distinct examples (one everyday analogy, one code or pseudocode example), and explicitly correct common misconceptions.
3. Mastering the Learning Objectives: step-by-step guidance a student can follow to demonstrate mastery, plus a novel scenario worked through in full.
4. Practice Makes Perfect: five practice questions per topic of increasing difficulty (two multiple-choice with plausible distractors, two short-answer, one free-response or code-analysis challenge with a detailed solution walkthrough).

Base the core content ONLY on the provided excerpts from the official course material.

FORMATTING RULES (follow these exactly):
- Begin immediately with the first topic's main title. No preamble, no self-introduction.
- Use "### " for main topic titles and "#### " for sub-headings.
- Use **text** for bold and "* " at the start of a line for bullet points.
- Use backticks for inline code and triple backticks (three backticks on their own line) for code blocks.
- Format all mathematical expressions, variables, and formulas in standard LaTeX: single dollar signs for inline math (e.g. $v = \Delta x / \Delta t$) and double dollar signs on their own lines for display equations. Never wrap LaTeX in backticks.
- For key definitions, exam tips, and warnings, use a callout on its own line: [[BOX: Title | body text]]. Example: [[BOX: Exam Tip | Always check units before computing.]]
- Use only standard ASCII characters outside of LaTeX. Write "!=" instead of the Unicode not-equal sign.`

// BuildPrompt assembles the generation prompt. Material text beyond the
// token budget is truncated at a line boundary; budget <= 0 applies
// DefaultPromptTokenBudget.
func BuildPrompt(subject string, weakTopics []string, material string, tokenBudget int) string {
	if subject == "" {
		subject = "General Studies"
	}
	if tokenBudget <= 0 {
		tokenBudget = DefaultPromptTokenBudget
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, guideInstructions, subject, strings.Join(weakTopics, ", "))
	sb.WriteString("\n\n--- Course Material ---\n")
	sb.WriteString(TruncateToBudget(material, tokenBudget))
	sb.WriteString("\n--- End of Course Material ---\n\nGenerate the study guide now.")
	return sb.String()
}

// EstimateTokens gives a rough token count using a words-based heuristic.
// Exact tokenization is not required for budgeting.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	// Roughly 1.33 tokens per English word.
	tokens := int(float64(words) * 1.33)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// TruncateToBudget drops trailing lines of text until the estimate fits
// the budget. Truncation is marked so the model knows material was cut.
func TruncateToBudget(text string, budget int) string {
	if budget <= 0 || EstimateTokens(text) <= budget {
		return text
	}

	var sb strings.Builder
	used := 0
	for _, line := range strings.Split(text, "\n") {
		t := EstimateTokens(line)
		if used+t > budget {
			break
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
		used += t
	}

	if sb.Len() == 0 {
		// A single line larger than the whole budget: fall back to words.
		words := strings.Fields(text)
		keep := int(float64(budget) / 1.33)
		if keep < 1 {
			keep = 1
		}
		if keep > len(words) {
			keep = len(words)
		}
		return strings.Join(words[:keep], " ") + "\n[material truncated]"
	}

	return strings.TrimRight(sb.String(), "\n") + "\n[material truncated]"
}
