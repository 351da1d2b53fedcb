package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kenkyu/internal/model"
)

func TestGuard(t *testing.T) {
	g := NewGuard()

	release, ok := g.TryAcquire("s1")
	require.True(t, ok)
	_, ok = g.TryAcquire("s1")
	assert.False(t, ok, "second acquire of the same id must fail")

	releaseOther, ok := g.TryAcquire("s2")
	require.True(t, ok)
	assert.Equal(t, 2, g.InFlight())

	release()
	release() // idempotent
	releaseOther()
	assert.Equal(t, 0, g.InFlight())

	_, ok = g.TryAcquire("s1")
	assert.True(t, ok)
}

func TestGuard_Concurrent(t *testing.T) {
	g := NewGuard()
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok := g.TryAcquire("same"); ok {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{inputError("s", model.ErrSessionNotFound), model.ErrCodeNotFound},
		{&Error{Kind: ErrInvalidInput, Err: ErrNotExecutable}, model.ErrCodeConflict},
		{&Error{Kind: ErrInvalidInput, Err: ErrAlreadyPlanned}, model.ErrCodeConflict},
		{&Error{Kind: ErrInvalidInput, Err: ErrTaskMismatch}, model.ErrCodeInvalidInput},
		{&Error{Kind: ErrPlanParse, Raw: "???"}, model.ErrCodePlanParse},
		{&Error{Kind: ErrGeneration, Err: context.DeadlineExceeded}, model.ErrCodeTimeout},
		{&Error{Kind: ErrGeneration, Err: errors.New("503")}, model.ErrCodeUpstream},
		{&Error{Kind: ErrRetrieval}, model.ErrCodeUpstream},
		{&Error{Kind: ErrStore, Err: errors.New("down")}, model.ErrCodeStore},
		{&Error{Kind: ErrPrecondition}, model.ErrCodeInternalError},
		{errors.New("other"), model.ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.err), func(t *testing.T) {
			assert.Equal(t, tt.want, Code(tt.err))
		})
	}
}
