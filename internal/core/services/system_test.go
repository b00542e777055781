package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driven"
)

func TestSystemService_StartStop(t *testing.T) {
	index := &mockVectorIndex{loadResult: driven.LoadResult{State: driven.LoadStateLoaded, Count: 4}}
	log := &mockAuditLog{}
	svc := NewSystemService(index, log, "operator")
	ctx := context.Background()

	status, err := svc.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, "loaded", status.IndexState)
	assert.Empty(t, status.Warning)

	again, err := svc.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, "loaded", again.IndexState)
	assert.Equal(t, 1, index.loads, "a second Start must not reload")

	require.NoError(t, index.Add(ctx, [][]float32{{1, 0, 0}}, []domain.Chunk{{ID: "a_chunk_0", DocumentID: "a"}}))
	require.NoError(t, svc.Stop(ctx))
	require.NoError(t, svc.Stop(ctx))

	assert.Equal(t, []domain.AuditEventKind{domain.AuditSystemStart, domain.AuditSystemStop}, log.kinds())
	assert.Equal(t, 1, index.saves)
	assert.Equal(t, true, log.last().Details["saved"])
	assert.Equal(t, "operator", log.events[0].UserID)
}

func TestSystemService_StopSkipsCleanIndex(t *testing.T) {
	index := &mockVectorIndex{loadResult: driven.LoadResult{State: driven.LoadStateLoaded, Count: 4}}
	log := &mockAuditLog{}
	svc := NewSystemService(index, log, "operator")
	ctx := context.Background()

	_, err := svc.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Stop(ctx))

	assert.Zero(t, index.saves)
	assert.True(t, log.last().Success)
	assert.Equal(t, false, log.last().Details["saved"])
}

func TestSystemService_CorruptStartDoesNotOverwrite(t *testing.T) {
	index := &mockVectorIndex{loadResult: driven.LoadResult{State: driven.LoadStateCorrupt, Reason: domain.ErrWrongKey}}
	svc := NewSystemService(index, &mockAuditLog{}, "operator")
	ctx := context.Background()

	_, err := svc.Start(ctx)
	require.NoError(t, err)
	_, err = svc.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Stop(ctx))

	assert.Equal(t, 1, index.loads)
	assert.Zero(t, index.saves, "the unreadable index file must survive a session that changed nothing")
}

func TestSystemService_RestartReloads(t *testing.T) {
	index := &mockVectorIndex{loadResult: driven.LoadResult{State: driven.LoadStateNotFound}}
	svc := NewSystemService(index, &mockAuditLog{}, "operator")
	ctx := context.Background()

	_, err := svc.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Stop(ctx))
	status, err := svc.Start(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, index.loads)
	assert.Equal(t, "not_found", status.IndexState)
}

func TestSystemService_CorruptIndex(t *testing.T) {
	index := &mockVectorIndex{loadResult: driven.LoadResult{State: driven.LoadStateCorrupt, Reason: domain.ErrWrongKey}}
	log := &mockAuditLog{}
	svc := NewSystemService(index, log, "operator")

	status, err := svc.Start(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "corrupt", status.IndexState)
	assert.Contains(t, status.Warning, "different key")
	assert.False(t, log.last().Success)
}

func TestSystemService_Errors(t *testing.T) {
	ctx := context.Background()

	svc := NewSystemService(&mockVectorIndex{loadErr: domain.ErrDimensionMismatch}, &mockAuditLog{}, "operator")
	_, err := svc.Start(ctx)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	index := &mockVectorIndex{saveErr: errors.New("read-only")}
	log := &mockAuditLog{}
	svc = NewSystemService(index, log, "operator")
	_, err = svc.Start(ctx)
	require.NoError(t, err)
	index.dirty = true
	err = svc.Stop(ctx)
	assert.ErrorContains(t, err, "save index")
	assert.Equal(t, domain.AuditSystemStop, log.last().Kind)
	assert.False(t, log.last().Success)

	log = &mockAuditLog{appendErr: errors.New("disk full")}
	svc = NewSystemService(&mockVectorIndex{}, log, "operator")
	_, err = svc.Start(ctx)
	assert.ErrorIs(t, err, domain.ErrAuditWrite)
}

func TestSystemService_Stats(t *testing.T) {
	index := &mockVectorIndex{}
	svc := NewSystemService(index, &mockAuditLog{}, "operator")

	stats := svc.Stats()

	assert.Equal(t, 3, stats.Dimension)
	assert.Zero(t, stats.Vectors)
}
