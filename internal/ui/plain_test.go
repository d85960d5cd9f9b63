package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainRenderer_UpdateProgress_Streaming(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: a page is reported
	r.UpdateProgress(ProgressEvent{
		Stage:       StageStreaming,
		Pages:       3,
		Documents:   1500,
		Failed:      2,
		Workers:     4,
		WorkersDone: 1,
	})

	// Then: the running totals are printed
	out := buf.String()
	assert.Contains(t, out, "[STREAM]")
	assert.Contains(t, out, "3 pages, 1500 documents, 2 failed")
	assert.Contains(t, out, "workers 1/4")
}

func TestPlainRenderer_UpdateProgress_StageEntryOnce(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: the same non-streaming stage is reported twice
	r.UpdateProgress(ProgressEvent{Stage: StageCreating, Message: "creating products_1"})
	r.UpdateProgress(ProgressEvent{Stage: StageCreating, Message: "creating products_1"})
	r.UpdateProgress(ProgressEvent{Stage: StageMapping})

	// Then: each stage prints only on entry
	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "[CREATE] creating products_1"))
	assert.Contains(t, out, "[MAP] Mapping")
}

func TestPlainRenderer_NoANSICodes(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: rendering through all stages
	for _, stage := range []Stage{StageCreating, StageMapping, StageStreaming, StageAwaiting, StageSwapping} {
		r.UpdateProgress(ProgressEvent{Stage: stage, Pages: 1, Documents: 10})
	}
	r.AddError(ErrorEvent{Subject: "worker 2", Err: errors.New("boom")})
	r.Complete(CompletionStats{Alias: "a", Index: "a_1", Transition: "rolling"})

	// Then: output contains no ANSI escape codes
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestPlainRenderer_AddError(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: adding an error and a warning
	r.AddError(ErrorEvent{Subject: "worker 1", Err: errors.New("connection refused")})
	r.AddError(ErrorEvent{Err: errors.New("2 documents rejected"), IsWarn: true})

	// Then: both are printed with their prefix and kept
	out := buf.String()
	assert.Contains(t, out, "ERROR: worker 1: connection refused")
	assert.Contains(t, out, "WARN: 2 documents rejected")
	require.Len(t, r.Errors(), 2)
	assert.True(t, r.Errors()[1].IsWarn)
}

func TestPlainRenderer_Complete(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: completing a run with failures
	r.Complete(CompletionStats{
		Alias:         "products",
		Index:         "products_20260101000000",
		Transition:    "legacy_index",
		Pages:         4,
		Documents:     2000,
		Failed:        3,
		Workers:       2,
		WorkersFailed: 1,
		Duration:      1500 * time.Millisecond,
	})

	// Then: the summary and the alias line are printed
	out := buf.String()
	assert.Contains(t, out, "Complete: 2000 documents in 4 pages indexed into products_20260101000000 in 1.5s")
	assert.Contains(t, out, "3 failed documents, 1 of 2 workers failed")
	assert.Contains(t, out, "Alias: products -> products_20260101000000 (legacy_index)")
}

func TestPlainRenderer_StartStop(t *testing.T) {
	r := NewPlainRenderer(NewConfig(&bytes.Buffer{}))
	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Stop())
}
