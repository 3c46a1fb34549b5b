package progress

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReporter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	r := BeginEvery(logger, "cells", 100, time.Hour)
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				r.Add(1)
			}
		}()
	}
	wg.Wait()
	r.End()

	assert.Equal(t, int64(100), r.Done())

	out := buf.String()
	// The first Add always reports; the hour long interval suppresses the rest.
	assert.Equal(t, 1, strings.Count(out, "msg=progress"))
	assert.Contains(t, out, "stage completed")
	assert.Contains(t, out, "stage=cells")
}

func TestReporter_NilLogger(t *testing.T) {
	r := Begin(nil, "items", 0)
	r.Add(3)
	assert.Equal(t, int64(3), r.Done())
	assert.GreaterOrEqual(t, r.End(), time.Duration(0))
	assert.Equal(t, float64(100), r.percent(3))
}
