package engine

import "fmt"

// translatePrompt returns the system prompt for translating one text
// into targetLang. sourceLang may be empty for auto-detection.
func translatePrompt(sourceLang, targetLang string) string {
	sourceLine := "Detect the source language automatically."
	if sourceLang != "" {
		sourceLine = fmt.Sprintf("The source language is %s.", sourceLang)
	}

	return fmt.Sprintf(`You are a professional translator. %s

CRITICAL: You MUST translate into %s. Any response not in %s is a FAILURE.

Rules:
- Output ONLY the translated text, nothing else
- NEVER add explanations, notes, or quotation marks around the output
- Preserve placeholders, markup, and formatting exactly as given
- Keep proper nouns unless a well-established %s form exists
- NO leading or trailing newlines`, sourceLine, targetLang, targetLang, targetLang)
}

// contextHint renders optional per-request guidance appended to the
// system prompt.
func contextHint(systemPrompt string, glossary map[string]string) string {
	hint := ""
	if systemPrompt != "" {
		hint += "\n\nAdditional context from the caller:\n" + systemPrompt
	}
	if len(glossary) > 0 {
		hint += "\n\nGlossary (always use these renderings):"
		for term, rendering := range glossary {
			hint += fmt.Sprintf("\n- %s => %s", term, rendering)
		}
	}
	return hint
}
