// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleConfig() *PipelineConfig {
	cfg := DefaultPipelineConfig()
	cfg.Instances["cam1"] = InstanceConfig{
		Flows: []FlowConfig{
			{Name: "src", Kind: "source", Factory: "v4l2", Params: "device=/dev/video0"},
			{Name: "enc", Kind: "codec", Factory: "h264", Params: "input_data_type=image/yuv420p"},
			{Name: "rtsp", Kind: "sink", Factory: "mediamtx", Params: "path=cam1"},
		},
		Edges: []EdgeConfig{
			{FromFlow: "src", FromSlot: 0, ToFlow: "enc", ToSlot: 0},
			{FromFlow: "enc", FromSlot: 0, ToFlow: "rtsp", ToSlot: 0},
		},
	}
	return cfg
}

func TestLoadPipelineRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")

	cfg := sampleConfig()
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadPipeline(path)
	require.NoError(t, err)
	assert.Len(t, loaded.Instances["cam1"].Flows, 3)
	assert.Equal(t, "v4l2", loaded.Instances["cam1"].Flows[0].Factory)
	assert.Equal(t, "127.0.0.1:9998", loaded.Health.Addr)
}

func TestLoadPipelineMissingFile(t *testing.T) {
	_, err := LoadPipeline(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadPipelineInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not: valid: yaml"), 0600))

	_, err := LoadPipeline(path)
	require.Error(t, err)
}

func TestValidateRejectsEdgeToUnknownFlow(t *testing.T) {
	cfg := sampleConfig()
	inst := cfg.Instances["cam1"]
	inst.Edges = append(inst.Edges, EdgeConfig{FromFlow: "src", ToFlow: "ghost"})
	cfg.Instances["cam1"] = inst

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestValidateRejectsDuplicateFlowNames(t *testing.T) {
	cfg := sampleConfig()
	inst := cfg.Instances["cam1"]
	inst.Flows = append(inst.Flows, FlowConfig{Name: "src", Kind: "source", Factory: "v4l2"})
	cfg.Instances["cam1"] = inst

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestValidateRejectsEmptyFlowFields(t *testing.T) {
	cases := []FlowConfig{
		{Name: "", Kind: "source", Factory: "v4l2"},
		{Name: "x", Kind: "", Factory: "v4l2"},
		{Name: "x", Kind: "source", Factory: ""},
	}
	for _, fc := range cases {
		cfg := DefaultPipelineConfig()
		cfg.Instances["i"] = InstanceConfig{Flows: []FlowConfig{fc}}
		assert.Error(t, cfg.Validate())
	}
}

func TestSaveIsAtomicAndCleansUpOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	cfg := sampleConfig()

	boom := errors.New("disk full")
	err := cfg.saveWith(path, func(dir, pattern string) (atomicFile, error) {
		f, ferr := os.CreateTemp(dir, pattern)
		require.NoError(t, ferr)
		return &failingWriteFile{atomicFile: f, err: boom}, nil
	})
	require.ErrorIs(t, err, boom)

	entries, rerr := os.ReadDir(dir)
	require.NoError(t, rerr)
	assert.Empty(t, entries, "temp file must be cleaned up on write failure")
}

// failingWriteFile wraps a real temp file but fails on Write, to exercise
// saveWith's cleanup path without touching the filesystem's actual I/O
// error surface.
type failingWriteFile struct {
	atomicFile
	err error
}

func (f *failingWriteFile) Write([]byte) (int, error) { return 0, f.err }
