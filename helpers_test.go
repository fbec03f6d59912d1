package vkframe

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/andewx/vkframe/internal/fakegpu"
)

type testEnv struct {
	win  *fakegpu.Window
	inst *fakegpu.Instance
	r    *Renderer
	logs *bytes.Buffer
}

func (e *testEnv) dev() *fakegpu.Device { return e.inst.Device() }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Validation = false
	cfg.Layers = nil
	return cfg
}

func newTestEnv(t *testing.T, gpu fakegpu.Config, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{
		win:  fakegpu.NewWindow(640, 480),
		logs: &bytes.Buffer{},
	}
	env.inst = fakegpu.New(env.win, gpu)
	opts = append([]Option{WithLogger(log.New(env.logs, "", 0))}, opts...)
	r, err := New(env.inst, env.win, testConfig(), opts...)
	require.NoError(t, err)
	env.r = r
	return env
}

// clearFrame records a frame that only clears the image.
func clearFrame(f *Frame) error {
	f.BeginRendering([4]float32{0, 0, 0, 1})
	f.EndRendering()
	return nil
}

// runFrame drives one full frame through BeginFrame and EndFrame.
func (e *testEnv) runFrame(t *testing.T) (*Frame, error) {
	t.Helper()
	f, err := e.r.BeginFrame()
	if err != nil {
		return nil, err
	}
	rec := f.Recorder()
	require.NoError(t, rec.Begin(0))
	require.NoError(t, clearFrame(f))
	require.NoError(t, rec.End())
	return f, e.r.EndFrame(f)
}

func (e *testEnv) destroy(t *testing.T) {
	t.Helper()
	e.r.Destroy()
	require.True(t, e.dev().Destroyed())
	require.True(t, e.inst.Closed())
	require.Empty(t, e.dev().Violations())
}
