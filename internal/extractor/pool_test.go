package extractor

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPool_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	pool := NewPool(2, nil)
	html := []byte(`<html><body><article><p>` + longParagraph() + `</p></article></body></html>`)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.Extract(context.Background(), html)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
}

func TestPool_RespectsContextCancellation(t *testing.T) {
	t.Parallel()

	pool := NewPool(1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pool.Extract(ctx, []byte(`<html></html>`))
	require.Error(t, err)
}
