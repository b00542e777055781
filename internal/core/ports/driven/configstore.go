package driven

// ConfigStore holds settings as flat dotted keys such as "retrieval.top_k"
// or "users.alice.roles". Values keep the type they were decoded with;
// the typed getters return the zero value on a missing key or a type
// mismatch.
type ConfigStore interface {
	Get(key string) (any, bool)
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
	GetStringSlice(key string) []string

	// Keys lists the stored keys under prefix in sorted order. The user
	// table is discovered this way.
	Keys(prefix string) []string

	// Set stores value and persists it before returning. On a write
	// failure the previous value is kept.
	Set(key string, value any) error

	Save() error

	// Load re-reads the backing file, picking up edits made outside the
	// process.
	Load() error

	// Path names the backing file. In-memory stores return ":memory:".
	Path() string
}
