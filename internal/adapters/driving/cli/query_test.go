package cli

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/bastion/internal/core/domain"
)

func sampleResponse() *domain.Response {
	return &domain.Response{
		Query:          "deployment schedule",
		Answer:         "The rollout starts in March.",
		Classification: domain.Secret,
		IsValid:        true,
		Warning:        "Handle as SECRET.",
		Sources: []domain.RetrievalResult{
			{
				ChunkID:        "doc-1_chunk_0",
				Score:          0.91,
				Classification: domain.Secret,
				Metadata: map[string]string{
					domain.MetaSource:     "plans.md",
					domain.MetaDocumentID: "doc-1",
				},
			},
		},
		Metadata: domain.ResponseMetadata{Mode: domain.RetrievalModeHybrid, RetrievedCount: 1, Reranked: true},
	}
}

func TestQueryCmd_PrintsAnswerWithBanner(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	current.query.response = sampleResponse()

	out, err := runCommand("query", "--user", "analyst_s", "deployment", "schedule")

	require.NoError(t, err)
	assert.Equal(t, "analyst_s", current.query.gotUser)
	assert.Equal(t, "deployment schedule", current.query.gotQuery)
	assert.Contains(t, out, "[CLASSIFICATION: SECRET]")
	assert.Contains(t, out, "The rollout starts in March.")
	assert.Contains(t, out, "Handle as SECRET.")
	assert.Contains(t, out, "Sources:")
	assert.Contains(t, out, "1. plans.md")
	assert.NotContains(t, out, "safety filter")
}

func TestQueryCmd_Denied(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	current.query.response = &domain.Response{
		Answer: "Access denied: insufficient clearance",
		Denied: true,
		Sources: []domain.RetrievalResult{
			{ChunkID: "c1", Metadata: map[string]string{domain.MetaSource: "secret.md"}},
		},
	}

	out, err := runCommand("query", "anything")

	require.NoError(t, err)
	assert.Contains(t, out, "Access denied")
	assert.NotContains(t, out, "CLASSIFICATION")
	assert.NotContains(t, out, "secret.md")
}

func TestQueryCmd_InvalidAnswerNote(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	resp := sampleResponse()
	resp.IsValid = false
	current.query.response = resp

	out, err := runCommand("query", "question")

	require.NoError(t, err)
	assert.Contains(t, out, "did not pass the safety filter")
}

func TestQueryCmd_JSON(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	current.query.response = sampleResponse()

	out, err := runCommand("query", "--json", "deployment")
	require.NoError(t, err)

	var result queryResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "SECRET", result.Classification)
	assert.Equal(t, "hybrid", result.Mode)
	assert.True(t, result.Reranked)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "doc-1", result.Sources[0].DocumentID)
	assert.Equal(t, "plans.md", result.Sources[0].Source)
}

func TestQueryCmd_Options(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	_, err := runCommand("query", "-k", "3", "--mode", "HYBRID", "--threshold", "0.4",
		"--filter", "document_type=memo", "--filter", "source = a.md", "--no-rerank", "q")
	require.NoError(t, err)

	opts := current.query.gotOpts
	assert.Equal(t, 3, opts.TopK)
	assert.Equal(t, domain.RetrievalModeHybrid, opts.Mode)
	require.NotNil(t, opts.Threshold)
	assert.InDelta(t, 0.4, *opts.Threshold, 1e-9)
	assert.Equal(t, map[string]string{"document_type": "memo", "source": "a.md"}, opts.Filters)
	assert.True(t, opts.NoRerank)
}

func TestQueryCmd_DefaultsLeaveOptionsUnset(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	_, err := runCommand("query", "q")
	require.NoError(t, err)

	opts := current.query.gotOpts
	assert.Zero(t, opts.TopK)
	assert.Empty(t, opts.Mode)
	assert.Nil(t, opts.Threshold)
	assert.Nil(t, opts.Filters)
}

func TestQueryCmd_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown mode", args: []string{"query", "--mode", "fuzzy", "q"}},
		{name: "threshold above one", args: []string{"query", "--threshold", "1.5", "q"}},
		{name: "negative top k", args: []string{"query", "--top-k", "-1", "q"}},
		{name: "malformed filter", args: []string{"query", "--filter", "novalue", "q"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanup := setupTestServices()
			defer cleanup()

			_, err := runCommand(tt.args...)

			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
			assert.Empty(t, current.query.gotQuery)
		})
	}
}

func TestQueryCmd_ServiceError(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	current.query.err = errors.New("index unavailable")

	_, err := runCommand("query", "q")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "index unavailable")
}

func TestQueryCmd_NotConfigured(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	SetServices(nil)

	_, err := runCommand("query", "q")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "query service not configured")
}

func TestParseFilters(t *testing.T) {
	filters, err := parseFilters(nil)
	require.NoError(t, err)
	assert.Nil(t, filters)

	filters, err = parseFilters([]string{"a=1", "b=x=y", "c="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "x=y", "c": ""}, filters)

	_, err = parseFilters([]string{"=1"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
