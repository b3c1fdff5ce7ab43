package main

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"adlign-personalization-layer/internal/application"
	"adlign-personalization-layer/internal/domain"
	"adlign-personalization-layer/internal/infrastructure/api"
	"adlign-personalization-layer/internal/infrastructure/pubsub"
	"adlign-personalization-layer/internal/infrastructure/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingAnalyzer never finishes on its own
type blockingAnalyzer struct{}

func (blockingAnalyzer) Analyze(ctx context.Context, shop string, scanType domain.ScanType) (*domain.MappingRecord, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestDrainEndsOpenEventStreams(t *testing.T) {
	const shop = "demo-store.myshopify.com"
	var logs bytes.Buffer
	logger := zerolog.New(&logs)

	kv := repository.NewMemoryStore()
	events := pubsub.NewScanJobPubSub(logger)
	jobs := application.NewScanJobManager(blockingAnalyzer{}, repository.NewScanJobRepository(kv), events, logger)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	server := &http.Server{Handler: api.NewRouter(api.Deps{Jobs: jobs, Events: events, Logger: logger})}
	go func() { _ = server.Serve(ln) }()

	_, started, err := jobs.Start(context.Background(), shop, "test")
	require.NoError(t, err)
	require.True(t, started)

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/themes/scan-jobs/" + shop + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// wait for the first event so the stream is open before draining
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data:") {
			break
		}
	}
	rest := make(chan string, 1)
	go func() {
		b, _ := io.ReadAll(reader)
		rest <- string(b)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	drain(ctx, logger, jobs, server, kv)

	select {
	case tail := <-rest:
		assert.Contains(t, tail, `"status":"canceled"`)
	case <-time.After(2 * time.Second):
		t.Fatal("event stream still open after drain")
	}
	assert.NotContains(t, logs.String(), "Graceful shutdown failed")
	assert.NotContains(t, logs.String(), "Failed to stop scan jobs")
}
