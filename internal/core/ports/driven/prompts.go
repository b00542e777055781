package driven

// PromptStore provides access to prompt templates.
// Implementations may load prompts from files or embed them in the binary.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	Load(name string) (string, error)

	// Reload clears any cached prompts, forcing fresh loads on next access.
	Reload()
}

// Well-known prompt names.
const (
	// PromptRAGSystem is the system prompt placed ahead of the context.
	// It has no format placeholders.
	PromptRAGSystem = "rag_system"

	// PromptRAGTemplate renders the final prompt. It expects three %s
	// placeholders: system prompt, context, query.
	PromptRAGTemplate = "rag_template"
)

// PromptStoreAware is an optional interface for services that can use custom prompts.
type PromptStoreAware interface {
	// SetPromptStore sets the prompt store for loading customisable prompts.
	// If not set, the service uses built-in prompts.
	SetPromptStore(store PromptStore)
}
