package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	jobA := &stubJob{name: "attribution-sync"}
	jobB := &stubJob{name: "watermark-audit"}
	registry, err := NewRegistry(jobA, nil, jobB)
	require.NoError(t, err)

	jobs := registry.Jobs()
	require.Len(t, jobs, 2)
	assert.Same(t, jobA, jobs[0])
	assert.Equal(t, []string{"attribution-sync", "watermark-audit"}, registry.Names())

	jobs[0] = nil
	assert.NotNil(t, registry.Jobs()[0])

	found, ok := registry.Lookup(" watermark-audit ")
	require.True(t, ok)
	assert.Same(t, jobB, found)
	_, ok = registry.Lookup("missing")
	assert.False(t, ok)
}

func TestRegistryRejectsDuplicateAndBlankNames(t *testing.T) {
	_, err := NewRegistry(&stubJob{name: "attribution-sync"}, &stubJob{name: "attribution-sync"})
	assert.Error(t, err)

	registry, err := NewRegistry()
	require.NoError(t, err)
	assert.Error(t, registry.Register(&stubJob{name: "  "}))
	assert.Empty(t, registry.Names())
}
