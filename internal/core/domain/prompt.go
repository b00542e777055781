package domain

// Prompt section markers shared by the template and offline generators.
const (
	PromptSystemMarker    = "SYSTEM:"
	PromptContextMarker   = "CONTEXT:"
	PromptQueryMarker     = "USER QUERY:"
	PromptAssistantMarker = "ASSISTANT:"
)

// DefaultSystemPrompt constrains generation to the supplied context.
const DefaultSystemPrompt = `You are a secure assistant operating in an isolated environment.

RULES:
1. Answer ONLY using information from the provided CONTEXT
2. If the answer is not in the CONTEXT, respond EXACTLY: "` + InsufficientInformation + `"
3. NEVER use knowledge beyond the CONTEXT
4. Cite source documents using [Source: name]
5. If classification levels conflict, defer to the highest classification
6. Be precise and factual; do not speculate`

// DefaultRAGTemplate takes the system prompt, context and query, in that order.
const DefaultRAGTemplate = PromptSystemMarker + `
%s

` + PromptContextMarker + `
%s

` + PromptQueryMarker + `
%s

` + PromptAssistantMarker

// ClassificationWarning is appended to answers above UNCLASSIFIED.
const ClassificationWarning = "WARNING: This response contains information classified as %s. Handle accordingly and ensure proper clearance."
