package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driven"
	"github.com/custodia-labs/bastion/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BASTION"

// Config keys for settings storage.
const (
	keyDataDir = "data_dir"

	keyChunkSize    = "chunking.size"
	keyChunkOverlap = "chunking.overlap"

	keyRetrievalMode  = "retrieval.mode"
	keyTopK           = "retrieval.top_k"
	keySimilarity     = "retrieval.similarity_threshold"
	keyFusedThreshold = "retrieval.fused_threshold"
	keySemanticWeight = "retrieval.semantic_weight"
	keyRerank         = "retrieval.rerank"
	keyOverFetch      = "retrieval.over_fetch"

	keyEncryption     = "security.encryption"
	keyKeyFile        = "security.key_file"
	keyDefaultLevel   = "security.default_classification"
	keyEnforcement    = "security.enforcement"
	keyOffline        = "security.offline"
	keySafetyStrict   = "safety.strict"
	keySafetyOverlap  = "safety.min_overlap"
	keySafetyPhrases  = "safety.phrases"
	keyEmbedProvider  = "embedding.provider"
	keyEmbedModel     = "embedding.model"
	keyEmbedBaseURL   = "embedding.base_url"
	keyEmbedDims      = "embedding.dimensions"
	keyEmbedRate      = "embedding.requests_per_second"
	keyLLMProvider    = "llm.provider"
	keyLLMModel       = "llm.model"
	keyLLMBaseURL     = "llm.base_url"
	keyLLMTemperature = "llm.temperature"
	keyLLMMaxTokens   = "llm.max_tokens"
	keyLLMRate        = "llm.requests_per_second"

	usersPrefix = "users."
)

var knownKeys = []string{
	keyDataDir, keyChunkSize, keyChunkOverlap,
	keyRetrievalMode, keyTopK, keySimilarity, keyFusedThreshold, keySemanticWeight, keyRerank, keyOverFetch,
	keyEncryption, keyKeyFile, keyDefaultLevel, keyEnforcement, keyOffline,
	keySafetyStrict, keySafetyOverlap, keySafetyPhrases,
	keyEmbedProvider, keyEmbedModel, keyEmbedBaseURL, keyEmbedDims, keyEmbedRate,
	keyLLMProvider, keyLLMModel, keyLLMBaseURL, keyLLMTemperature, keyLLMMaxTokens, keyLLMRate,
}

var userFields = []string{"roles", "clearance", "disabled"}

// envOverrides is filled from BASTION_* variables. Unset variables stay nil.
type envOverrides struct {
	DataDir             *string  `envconfig:"DATA_DIR"`
	TopK                *int     `envconfig:"TOP_K"`
	ChunkSize           *int     `envconfig:"CHUNK_SIZE"`
	ChunkOverlap        *int     `envconfig:"CHUNK_OVERLAP"`
	Encryption          *bool    `envconfig:"ENCRYPTION"`
	RetrievalMode       *string  `envconfig:"RETRIEVAL_MODE"`
	SimilarityThreshold *float64 `envconfig:"SIMILARITY_THRESHOLD"`
	EmbeddingProvider   *string  `envconfig:"EMBEDDING_PROVIDER"`
	LLMProvider         *string  `envconfig:"LLM_PROVIDER"`
	OllamaURL           *string  `envconfig:"OLLAMA_URL"`
}

// SettingsService layers defaults, the config file and the environment.
type SettingsService struct {
	configStore driven.ConfigStore
	envFiles    []string

	gate     *Gate
	auditLog driven.AuditLog
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{configStore: configStore}
}

// SetEnvFiles sets the dotenv files read before the environment. With none
// set, .env in the working directory is read if present.
func (s *SettingsService) SetEnvFiles(files ...string) {
	s.envFiles = files
}

// SetAccess enables Set. Without a gate every change is refused.
func (s *SettingsService) SetAccess(gate *Gate, auditLog driven.AuditLog) {
	s.gate = gate
	s.auditLog = auditLog
}

// GetDefaults returns the default settings with the data directory resolved.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	settings := domain.DefaultAppSettings()
	settings.DataDir = defaultDataDir()
	settings.Users = domain.DefaultUsers()
	return settings
}

// Get returns the effective settings.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	return s.resolve(s.configStore.Get, s.configStore.Keys(usersPrefix))
}

// Validate checks the effective settings.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return ValidateSettings(settings, s.policy())
}

// Set checks the configure_system permission, validates the settings that
// would result, persists the value and audits the change.
func (s *SettingsService) Set(ctx context.Context, userID, key string, value any) error {
	if !isKnownKey(key) {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}
	if s.gate == nil {
		return fmt.Errorf("%w: settings are read-only", domain.ErrAccessDenied)
	}

	user, err := s.gate.Authenticate(ctx, userID)
	if err != nil {
		return err
	}
	if !s.gate.CheckPermission(user, domain.PermissionConfigure) {
		if err := appendAudit(ctx, s.auditLog, domain.AuditEvent{
			Kind:           domain.AuditAccessDenied,
			UserID:         userID,
			Classification: user.Clearance,
			Details:        map[string]any{"action": "config_change", "key": key},
		}); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s lacks %s", domain.ErrAccessDenied, userID, domain.PermissionConfigure)
	}

	lookup := func(k string) (any, bool) {
		if k == key {
			return value, true
		}
		return s.configStore.Get(k)
	}
	userKeys := s.configStore.Keys(usersPrefix)
	if strings.HasPrefix(key, usersPrefix) && !slices.Contains(userKeys, key) {
		userKeys = append(userKeys, key)
	}
	candidate, err := s.resolve(lookup, userKeys)
	if err != nil {
		return err
	}
	if err := ValidateSettings(candidate, s.policy()); err != nil {
		return err
	}

	if err := s.configStore.Set(key, value); err != nil {
		return fmt.Errorf("save setting %s: %w", key, err)
	}

	return appendAudit(ctx, s.auditLog, domain.AuditEvent{
		Kind:           domain.AuditConfigChange,
		UserID:         userID,
		Classification: user.Clearance,
		Details:        map[string]any{"key": key, "value": fmt.Sprint(value)},
		Success:        true,
	})
}

func (s *SettingsService) policy() *domain.Policy {
	if s.gate != nil {
		return s.gate.Policy()
	}
	return domain.DefaultPolicy()
}

// resolve builds settings from defaults, lookup and the environment.
func (s *SettingsService) resolve(lookup func(string) (any, bool), userKeys []string) (*domain.AppSettings, error) {
	settings := s.GetDefaults()
	r := &reader{lookup: lookup}

	r.readString(keyDataDir, &settings.DataDir)

	r.readInt(keyChunkSize, &settings.Chunking.Size)
	r.readInt(keyChunkOverlap, &settings.Chunking.Overlap)

	var mode string
	if r.readString(keyRetrievalMode, &mode) {
		settings.Retrieval.Mode = domain.RetrievalMode(mode)
	}
	r.readInt(keyTopK, &settings.Retrieval.TopK)
	thresholdSet := r.readFloat(keySimilarity, &settings.Retrieval.SimilarityThreshold)
	r.readFloat(keyFusedThreshold, &settings.Retrieval.FusedThreshold)
	r.readFloat(keySemanticWeight, &settings.Retrieval.SemanticWeight)
	r.readBool(keyRerank, &settings.Retrieval.Rerank)
	r.readInt(keyOverFetch, &settings.Retrieval.OverFetch)

	r.readBool(keyEncryption, &settings.Security.Encryption)
	r.readString(keyKeyFile, &settings.Security.KeyFile)
	var level string
	if r.readString(keyDefaultLevel, &level) {
		parsed, err := domain.ParseClassification(level)
		if err != nil {
			r.fail(keyDefaultLevel, err)
		}
		settings.Security.DefaultClassification = parsed
	}
	var enforcement string
	if r.readString(keyEnforcement, &enforcement) {
		settings.Security.Enforcement = domain.EnforcementMode(enforcement)
	}
	r.readBool(keyOffline, &settings.Security.Offline)

	r.readBool(keySafetyStrict, &settings.Safety.Strict)
	r.readFloat(keySafetyOverlap, &settings.Safety.MinOverlap)
	r.readStrings(keySafetyPhrases, &settings.Safety.Phrases)

	var provider string
	if r.readString(keyEmbedProvider, &provider) {
		settings.Embedding.Provider = domain.AIProvider(provider)
	}
	r.readString(keyEmbedModel, &settings.Embedding.Model)
	r.readString(keyEmbedBaseURL, &settings.Embedding.BaseURL)
	r.readInt(keyEmbedDims, &settings.Embedding.Dimensions)
	r.readFloat(keyEmbedRate, &settings.Embedding.RequestsPerSecond)

	if r.readString(keyLLMProvider, &provider) {
		settings.LLM.Provider = domain.AIProvider(provider)
	}
	r.readString(keyLLMModel, &settings.LLM.Model)
	r.readString(keyLLMBaseURL, &settings.LLM.BaseURL)
	r.readFloat(keyLLMTemperature, &settings.LLM.Temperature)
	r.readInt(keyLLMMaxTokens, &settings.LLM.MaxTokens)
	r.readFloat(keyLLMRate, &settings.LLM.RequestsPerSecond)

	if users := r.users(userKeys); len(users) > 0 {
		settings.Users = users
	}

	if err := errors.Join(r.errs...); err != nil {
		return nil, err
	}
	env, err := s.applyEnv(&settings)
	if err != nil {
		return nil, err
	}
	if !thresholdSet && env.SimilarityThreshold == nil {
		settings.Retrieval.SimilarityThreshold = domain.DefaultSimilarityThreshold(settings.Embedding.Provider)
	}
	return &settings, nil
}

// applyEnv overlays BASTION_* variables, after loading dotenv files, and
// returns what was set.
func (s *SettingsService) applyEnv(settings *domain.AppSettings) (envOverrides, error) {
	// A missing .env file is normal.
	_ = godotenv.Load(s.envFiles...)

	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return env, fmt.Errorf("%w: environment: %v", domain.ErrInvalidInput, err)
	}

	if env.DataDir != nil {
		settings.DataDir = *env.DataDir
	}
	if env.TopK != nil {
		settings.Retrieval.TopK = *env.TopK
	}
	if env.ChunkSize != nil {
		settings.Chunking.Size = *env.ChunkSize
	}
	if env.ChunkOverlap != nil {
		settings.Chunking.Overlap = *env.ChunkOverlap
	}
	if env.Encryption != nil {
		settings.Security.Encryption = *env.Encryption
	}
	if env.RetrievalMode != nil {
		settings.Retrieval.Mode = domain.RetrievalMode(*env.RetrievalMode)
	}
	if env.SimilarityThreshold != nil {
		settings.Retrieval.SimilarityThreshold = *env.SimilarityThreshold
	}
	if env.EmbeddingProvider != nil {
		settings.Embedding.Provider = domain.AIProvider(*env.EmbeddingProvider)
	}
	if env.LLMProvider != nil {
		settings.LLM.Provider = domain.AIProvider(*env.LLMProvider)
	}
	if env.OllamaURL != nil {
		settings.Embedding.BaseURL = *env.OllamaURL
		settings.LLM.BaseURL = *env.OllamaURL
	}
	return env, nil
}

// ValidateSettings reports every problem in settings, each wrapping
// domain.ErrInvalidInput.
func ValidateSettings(settings *domain.AppSettings, policy *domain.Policy) error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{domain.ErrInvalidInput}, args...)...))
		}
	}

	check(settings.DataDir != "", "data_dir is empty")

	c := settings.Chunking
	check(c.Size >= 1, "chunk size %d must be at least 1", c.Size)
	check(c.Overlap >= 0 && c.Overlap < c.Size, "chunk overlap %d must be in [0, %d)", c.Overlap, c.Size)

	r := settings.Retrieval
	check(r.Mode.IsValid(), "unknown retrieval mode %q", r.Mode)
	check(r.TopK >= 1, "top_k %d must be at least 1", r.TopK)
	check(inUnit(r.SimilarityThreshold), "similarity_threshold %v must be in [0, 1]", r.SimilarityThreshold)
	check(inUnit(r.FusedThreshold), "fused_threshold %v must be in [0, 1]", r.FusedThreshold)
	check(inUnit(r.SemanticWeight), "semantic_weight %v must be in [0, 1]", r.SemanticWeight)
	check(r.OverFetch >= 3, "over_fetch %d must be at least 3", r.OverFetch)

	sec := settings.Security
	check(sec.DefaultClassification.IsValid(), "invalid default classification %d", int(sec.DefaultClassification))
	check(sec.Enforcement.IsValid(), "unknown enforcement mode %q", sec.Enforcement)
	check(!sec.Encryption || sec.KeyFile != "", "encryption is on but key_file is empty")

	check(inUnit(settings.Safety.MinOverlap), "safety min_overlap %v must be in [0, 1]", settings.Safety.MinOverlap)

	e := settings.Embedding
	check(e.Provider.IsValidEmbedding(), "unknown embedding provider %q", e.Provider)
	check(e.Dimensions >= 1, "embedding dimensions %d must be at least 1", e.Dimensions)
	check(e.RequestsPerSecond >= 0, "embedding requests_per_second must not be negative")

	l := settings.LLM
	check(l.Provider.IsValidLLM(), "unknown llm provider %q", l.Provider)
	check(l.MaxTokens >= 1, "llm max_tokens %d must be at least 1", l.MaxTokens)
	check(l.Temperature >= 0 && l.Temperature <= 2, "llm temperature %v must be in [0, 2]", l.Temperature)
	check(l.RequestsPerSecond >= 0, "llm requests_per_second must not be negative")

	if sec.Offline {
		if e.Provider == domain.AIProviderOllama {
			check(isLoopbackURL(e.BaseURL), "offline mode requires a loopback embedding endpoint, got %q", e.BaseURL)
		}
		if l.Provider == domain.AIProviderOllama {
			check(isLoopbackURL(l.BaseURL), "offline mode requires a loopback llm endpoint, got %q", l.BaseURL)
		}
	}

	seen := make(map[string]bool, len(settings.Users))
	for _, u := range settings.Users {
		check(u.ID != "", "user with empty id")
		check(!seen[u.ID], "duplicate user %s", u.ID)
		seen[u.ID] = true
		check(len(u.Roles) > 0, "user %s has no roles", u.ID)
		for _, role := range u.Roles {
			_, ok := policy.Role(role)
			check(ok, "user %s: %v: %s", u.ID, domain.ErrUnknownRole, role)
		}
		if u.Clearance != "" {
			_, err := domain.ParseClassification(u.Clearance)
			check(err == nil, "user %s: %v", u.ID, err)
		}
	}

	return errors.Join(errs...)
}

// isLoopbackURL reports whether raw names localhost or a loopback IP.
// Hostnames are not resolved.
func isLoopbackURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1 && !math.IsNaN(v)
}

func isKnownKey(key string) bool {
	if slices.Contains(knownKeys, key) {
		return true
	}
	id, field, ok := splitUserKey(key)
	return ok && id != "" && slices.Contains(userFields, field)
}

// splitUserKey splits "users.<id>.<field>".
func splitUserKey(key string) (id, field string, ok bool) {
	rest, found := strings.CutPrefix(key, usersPrefix)
	if !found {
		return "", "", false
	}
	i := strings.LastIndex(rest, ".")
	if i < 0 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bastion"
	}
	return filepath.Join(home, ".bastion")
}

// reader converts loosely typed config values. TOML yields int64 and
// float64; the CLI passes strings.
type reader struct {
	lookup func(string) (any, bool)
	errs   []error
}

func (r *reader) fail(key string, err error) {
	r.errs = append(r.errs, fmt.Errorf("%w: %s: %v", domain.ErrInvalidInput, key, err))
}

func (r *reader) readString(key string, dst *string) bool {
	val, ok := r.lookup(key)
	if !ok {
		return false
	}
	switch v := val.(type) {
	case string:
		*dst = v
	case fmt.Stringer:
		*dst = v.String()
	default:
		r.fail(key, fmt.Errorf("want string, got %T", val))
		return false
	}
	return true
}

func (r *reader) readInt(key string, dst *int) {
	val, ok := r.lookup(key)
	if !ok {
		return
	}
	switch v := val.(type) {
	case int:
		*dst = v
	case int64:
		*dst = int(v)
	case float64:
		if v != math.Trunc(v) {
			r.fail(key, fmt.Errorf("want integer, got %v", v))
			return
		}
		*dst = int(v)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			r.fail(key, err)
			return
		}
		*dst = n
	default:
		r.fail(key, fmt.Errorf("want integer, got %T", val))
	}
}

func (r *reader) readFloat(key string, dst *float64) bool {
	val, ok := r.lookup(key)
	if !ok {
		return false
	}
	switch v := val.(type) {
	case float64:
		*dst = v
	case int:
		*dst = float64(v)
	case int64:
		*dst = float64(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			r.fail(key, err)
			return false
		}
		*dst = f
	default:
		r.fail(key, fmt.Errorf("want number, got %T", val))
		return false
	}
	return true
}

func (r *reader) readBool(key string, dst *bool) {
	val, ok := r.lookup(key)
	if !ok {
		return
	}
	switch v := val.(type) {
	case bool:
		*dst = v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			r.fail(key, err)
			return
		}
		*dst = b
	default:
		r.fail(key, fmt.Errorf("want boolean, got %T", val))
	}
}

func (r *reader) readStrings(key string, dst *[]string) {
	val, ok := r.lookup(key)
	if !ok {
		return
	}
	switch v := val.(type) {
	case []string:
		*dst = slices.Clone(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				r.fail(key, fmt.Errorf("want string list, got element %T", item))
				return
			}
			out = append(out, str)
		}
		*dst = out
	case string:
		*dst = splitList(v)
	default:
		r.fail(key, fmt.Errorf("want string list, got %T", val))
	}
}

// users collects users.<id>.<field> keys in key order.
func (r *reader) users(keys []string) []domain.UserSpec {
	var (
		order []string
		specs = make(map[string]*domain.UserSpec)
	)
	for _, key := range keys {
		id, _, ok := splitUserKey(key)
		if !ok || id == "" {
			continue
		}
		if _, seen := specs[id]; seen {
			continue
		}
		spec := &domain.UserSpec{ID: id}
		prefix := usersPrefix + id + "."
		r.readStrings(prefix+"roles", &spec.Roles)
		r.readString(prefix+"clearance", &spec.Clearance)
		r.readBool(prefix+"disabled", &spec.Disabled)
		specs[id] = spec
		order = append(order, id)
	}

	out := make([]domain.UserSpec, 0, len(order))
	for _, id := range order {
		out = append(out, *specs[id])
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
