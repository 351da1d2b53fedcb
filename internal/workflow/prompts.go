package workflow

import (
	"fmt"
	"strings"
)

const plannerPrompt = `You are a methodical research planner. Turn the user's question into a short research plan.

User question:
%s

Instructions:
- Write 3 to 5 concise sub-questions that together answer the user's question.
- Each sub-question must be self-contained and searchable on its own against a document collection.
- Output ONLY a numbered list ("1.", "2.", ...). No introduction, commentary, or conclusion.

Example for "Tell me about the benefits of hackathons.":
1. What is the definition and purpose of a hackathon?
2. What are the key benefits for individuals participating in a hackathon?
3. What are the main benefits for organizations that sponsor hackathons?`

const draftPrompt = `You are an expert report writer. Write a research report that answers the user's question using the research summary below.

User question:
%s

Research summary:
%s

Instructions:
- Structure the report with an introduction, a body, and a conclusion. Use Markdown.
- Use ONLY information present in the research summary. Do not add outside knowledge.
- Cite every factual claim with the tag attached to its passage, copied exactly, in the form [Source: <source>, page: <page>].
- If a sub-question has no information or reports an error, say so plainly instead of guessing.

Output only the report.`

const revisePrompt = `You are an expert editor. Revise the draft research report below.

User question:
%s

Draft report:
%s

Instructions:
1. Completeness: make sure the report fully answers the question, and note any gaps the evidence cannot fill.
2. Clarity: improve structure and wording so the report is easy to follow.
3. Accuracy: keep claims consistent with their citations. Preserve every [Source: <source>, page: <page>] tag.

Return the complete revised report in Markdown, not a list of changes.`

func buildPlannerPrompt(task string) string {
	return fmt.Sprintf(plannerPrompt, strings.TrimSpace(task))
}

func buildDraftPrompt(task, summary string) string {
	return fmt.Sprintf(draftPrompt, strings.TrimSpace(task), summary)
}

func buildRevisePrompt(task, draft string) string {
	return fmt.Sprintf(revisePrompt, strings.TrimSpace(task), draft)
}
