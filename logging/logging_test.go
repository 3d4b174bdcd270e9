package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rustyeddy/exchange/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestTeeWritesFileAndConsole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	require.NoError(t, os.WriteFile(path, []byte("previous run\n"), 0644))

	var console syncBuffer
	logger, err := build(config.LogConfig{File: path, Level: "info"}, &console)
	require.NoError(t, err)

	logger.Info("client connected", zap.String("user", "User1"))
	logger.Debug("hidden")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	file := string(data)

	assert.Contains(t, file, "previous run\n")
	assert.Contains(t, file, "client connected")
	assert.Contains(t, file, "User1")
	assert.NotContains(t, file, "hidden")
	assert.Contains(t, console.String(), "client connected")
}

func TestConcurrentLinesStayWhole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")

	var console syncBuffer
	logger, err := build(config.LogConfig{File: path}, &console)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				logger.Info("trade", zap.Int("session", i), zap.Int("n", j))
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	assert.Len(t, lines, 16*50)
	for _, l := range lines {
		assert.Contains(t, string(l), "trade")
	}
}

func TestConsoleOnly(t *testing.T) {
	var console syncBuffer
	logger, err := build(config.LogConfig{Level: "debug"}, &console)
	require.NoError(t, err)

	logger.Debug("market initialized")
	assert.Contains(t, console.String(), "market initialized")
}

func TestBadLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestUnwritableFile(t *testing.T) {
	_, err := New(config.LogConfig{File: filepath.Join(t.TempDir(), "missing", "server.log")})
	assert.Error(t, err)
}
