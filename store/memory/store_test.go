package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/credits/errs"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/memory"
	"github.com/xraph/credits/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return memory.New() })
}

func TestAtomicHonoursContextWhileWaiting(t *testing.T) {
	s := memory.New()
	held := make(chan struct{})
	done := make(chan struct{})

	go func() {
		_ = s.Atomic(context.Background(), []string{"acct"}, func(context.Context, store.Tx) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held
	defer close(done)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Atomic(ctx, []string{"acct"}, func(context.Context, store.Tx) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}

func TestClosedStore(t *testing.T) {
	s := memory.New()
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(context.Background()); !errors.Is(err, errs.ErrStoreClosed) {
		t.Errorf("Ping: err = %v", err)
	}
	err := s.Atomic(context.Background(), []string{"acct"}, func(context.Context, store.Tx) error { return nil })
	if !errors.Is(err, errs.ErrStoreClosed) {
		t.Errorf("Atomic: err = %v", err)
	}
}
