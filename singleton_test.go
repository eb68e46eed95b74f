package vhci

import (
	"sync/atomic"
	"testing"

	"golang.org/x/sync/errgroup"
)

// Property 5: across N concurrent opener goroutines, exactly one runs init;
// all others return AlreadyInit (they waited on the winner) or AlreadyOpen
// (they arrived after it finished).
func TestSingletonExclusivity(t *testing.T) {
	const n = 32
	var g singletonGuard
	var initCount atomic.Int32

	var eg errgroup.Group
	results := make([]error, n)
	for i := 0; i < n; i++ {
		i := i
		eg.Go(func() error {
			_, err := g.tryInit(func() (any, error) {
				initCount.Add(1)
				return "driver-handle", nil
			})
			results[i] = err
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatalf("errgroup.Wait: %v", err)
	}

	if got := initCount.Load(); got != 1 {
		t.Fatalf("init ran %d times, want exactly 1", got)
	}

	succeeded, alreadyInit, other := 0, 0, 0
	for _, err := range results {
		switch err {
		case nil:
			succeeded++
		case ErrAlreadyInit, ErrAlreadyOpen:
			alreadyInit++
		default:
			other++
		}
	}
	if succeeded != 1 {
		t.Fatalf("succeeded = %d, want 1", succeeded)
	}
	if other != 0 {
		t.Fatalf("%d callers returned an unexpected error", other)
	}
	if alreadyInit != n-1 {
		t.Fatalf("alreadyInit = %d, want %d", alreadyInit, n-1)
	}
}

func TestSingletonStickyError(t *testing.T) {
	var g singletonGuard
	_, err := g.tryInit(func() (any, error) {
		return nil, errTestInit
	})
	if err != errTestInit {
		t.Fatalf("first init err = %v, want errTestInit", err)
	}

	_, err = g.tryInit(func() (any, error) {
		t.Fatal("init must not run again after a prior failure")
		return nil, nil
	})
	if err != ErrAlreadyFailed {
		t.Fatalf("second tryInit err = %v, want ErrAlreadyFailed", err)
	}
}

func TestSingletonTerminateAllowsReinit(t *testing.T) {
	var g singletonGuard
	var finalized bool

	v, err := g.tryInit(func() (any, error) { return 1, nil })
	if err != nil {
		t.Fatalf("tryInit: %v", err)
	}
	if v != 1 {
		t.Fatalf("v = %v, want 1", v)
	}

	g.terminate(func(any) { finalized = true })
	if !finalized {
		t.Fatalf("terminate did not run finalizer")
	}

	v, err = g.tryInit(func() (any, error) { return 2, nil })
	if err != nil {
		t.Fatalf("tryInit after terminate: %v", err)
	}
	if v != 2 {
		t.Fatalf("v = %v, want 2", v)
	}
}

var errTestInit = newErrorf(ErrKindOpen, "boom")
