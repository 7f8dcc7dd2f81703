package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FMPull/pkg/config"
	"FMPull/pkg/logger"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fakeRunner struct {
	name     string
	rec      *recorder
	startErr error
}

func (f *fakeRunner) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.rec.add("start " + f.name)
	return nil
}

func (f *fakeRunner) Stop(context.Context) error {
	f.rec.add("stop " + f.name)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Server.ShutdownTimeout = time.Second
	return cfg
}

func TestApp_RunStopsRunnersInReverseOrder(t *testing.T) {
	rec := &recorder{}
	app := New(testConfig(t), logger.NewNop(), nil,
		&fakeRunner{name: "a", rec: rec},
		nil,
		&fakeRunner{name: "b", rec: rec},
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	assert.Eventually(t, func() bool { return len(rec.list()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, rec.list())
}

func TestApp_StartFailureStopsStartedRunners(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("redis down")
	app := New(testConfig(t), logger.NewNop(), nil,
		&fakeRunner{name: "a", rec: rec},
		&fakeRunner{name: "b", rec: rec, startErr: boom},
	)

	err := app.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"start a", "stop a"}, rec.list())
}
