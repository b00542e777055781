// Package file provides file-based implementations of driven port interfaces.
//
// Adapters:
//   - ConfigStore: TOML configuration in the data directory
//   - PromptStore: user-editable generation prompts
package file
