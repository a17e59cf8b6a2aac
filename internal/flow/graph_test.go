// SPDX-License-Identifier: MIT

package flow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/mediaflow/internal/buffer"
	"github.com/flowforge/mediaflow/internal/errs"
	"github.com/flowforge/mediaflow/internal/paramstring"
	"github.com/flowforge/mediaflow/internal/registry"
	"github.com/flowforge/mediaflow/internal/stage/faketest"
)

func TestBuildFromConfigWiresSourceCodecSink(t *testing.T) {
	r := registry.New()
	capturedSink := faketest.NewCapturingSink()

	b, err := buffer.Alloc(1, buffer.MemCommon)
	require.NoError(t, err)
	b.SetValidLength(1)
	b.Bytes()[0] = 7

	r.Register(registry.KindSource, "q", nil, func(*paramstring.Map) (any, error) {
		return faketest.NewQueueSource(b), nil
	})
	r.Register(registry.KindCodec, "identity", nil, func(*paramstring.Map) (any, error) {
		return faketest.PassthroughCodec{}, nil
	})
	r.Register(registry.KindSink, "capture", nil, func(*paramstring.Map) (any, error) {
		return capturedSink, nil
	})

	inst := InstanceSpec{
		Flows: []FlowSpec{
			{Name: "src", Kind: "source", Factory: "q", Params: "thread_model=async_common\ninput_maxcachenum=4"},
			{Name: "enc", Kind: "codec", Factory: "identity"},
			{Name: "snk", Kind: "sink", Factory: "capture"},
		},
		Edges: []EdgeSpec{
			{FromFlow: "src", FromSlot: 0, ToFlow: "enc", ToSlot: 0},
			{FromFlow: "enc", FromSlot: 0, ToFlow: "snk", ToSlot: 0},
		},
	}

	g, err := BuildFromConfig("cam1", inst, r)
	require.NoError(t, err)
	defer g.Stop()

	require.Eventually(t, func() bool { return capturedSink.Count() > 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, byte(7), capturedSink.Buffers()[0].Bytes()[0])

	_, ok := g.Flow("src")
	assert.True(t, ok)
	_, ok = g.Flow("nope")
	assert.False(t, ok)
}

func TestBuildFromConfigRejectsUnknownKind(t *testing.T) {
	r := registry.New()
	inst := InstanceSpec{Flows: []FlowSpec{{Name: "x", Kind: "bogus", Factory: "f"}}}

	_, err := BuildFromConfig("i", inst, r)
	require.Error(t, err)
}

func TestBuildFromConfigRejectsEdgeToUnknownFlow(t *testing.T) {
	r := registry.New()
	r.Register(registry.KindSink, "capture", nil, func(*paramstring.Map) (any, error) {
		return faketest.NewCapturingSink(), nil
	})
	inst := InstanceSpec{
		Flows: []FlowSpec{{Name: "snk", Kind: "sink", Factory: "capture"}},
		Edges: []EdgeSpec{{FromFlow: "ghost", ToFlow: "snk"}},
	}

	_, err := BuildFromConfig("i", inst, r)
	require.Error(t, err)
}

func TestBuildFromConfigStopsPartiallyBuiltGraphOnFailure(t *testing.T) {
	r := registry.New()
	r.Register(registry.KindSink, "capture", nil, func(*paramstring.Map) (any, error) {
		return faketest.NewCapturingSink(), nil
	})
	// The second flow references an unregistered factory, so building must
	// fail after the first flow ("snk") has already started; BuildFromConfig
	// must stop it rather than leaking its worker.
	inst := InstanceSpec{
		Flows: []FlowSpec{
			{Name: "snk", Kind: "sink", Factory: "capture"},
			{Name: "missing", Kind: "sink", Factory: "nope"},
		},
	}

	_, err := BuildFromConfig("i", inst, r)
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
}

func TestGraphStatusReportsPerFlowState(t *testing.T) {
	r := registry.New()
	r.Register(registry.KindSink, "capture", nil, func(*paramstring.Map) (any, error) {
		return faketest.NewCapturingSink(), nil
	})
	inst := InstanceSpec{Flows: []FlowSpec{{Name: "snk", Kind: "sink", Factory: "capture"}}}

	g, err := BuildFromConfig("i", inst, r)
	require.NoError(t, err)
	defer g.Stop()

	statuses := g.Status()
	require.Len(t, statuses, 1)
	assert.Equal(t, "snk", statuses[0].Name)
	assert.True(t, statuses[0].Enabled)
	assert.Equal(t, "running", statuses[0].State)

	f, _ := g.Flow("snk")
	f.Disable()
	statuses = g.Status()
	assert.False(t, statuses[0].Enabled)
	assert.Equal(t, "disabled", statuses[0].State)
}
