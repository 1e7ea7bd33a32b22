package classify

import (
	"fmt"
	"strings"

	"github.com/legb78/mail-classification-agent/core/domain"
)

const systemPromptBase = `You are an expert support ticket classifier.
Analyze incoming support emails and classify them by category and priority.

Rules:
- Use the subject, the sender and the content to pick the category.
- Judge urgency and impact to pick the priority; reserve the highest
  priority for blocking or urgent problems.
- Be consistent and objective.
- Respond with a single valid JSON object and nothing else.`

const systemPromptStrict = `You are an expert support ticket classifier.
Your previous answer was not a usable JSON object.

Respond with EXACTLY one JSON object with the keys "category", "priority",
"confidence" and "reasoning". "category" and "priority" MUST be copied
verbatim from the allowed lists in the request. "confidence" MUST be a
number between 0 and 1. No markdown, no code fences, no extra text.`

// buildUserPrompt enumerates the exact closed sets so the provider cannot
// invent an out-of-set value without it being rejected as a parse failure.
func buildUserPrompt(subject, senderEmail, truncatedBody string, categories domain.CategorySet, priorities domain.PrioritySet) string {
	cats := make([]string, len(categories))
	for i, c := range categories {
		cats[i] = string(c)
	}
	prios := make([]string, len(priorities))
	for i, p := range priorities {
		prios[i] = string(p)
	}

	return fmt.Sprintf(`Classify this support email.

Subject: %s
Sender: %s
Content: %s

Allowed categories: %s
Allowed priorities: %s

Respond in JSON with exactly these fields:
- "category": one of the allowed categories
- "priority": one of the allowed priorities
- "confidence": a number between 0 and 1
- "reasoning": a one or two sentence justification

Example:
{
    "category": %q,
    "priority": %q,
    "confidence": 0.9,
    "reasoning": "The ticket reports a blocking technical failure."
}`,
		subject, senderEmail, truncatedBody,
		strings.Join(cats, ", "), strings.Join(prios, ", "),
		cats[0], prios[0])
}
