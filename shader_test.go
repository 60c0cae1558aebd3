package vkframe

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/andewx/vkframe/hal"
	"github.com/andewx/vkframe/hal/haltest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShaderCompilerRefCount(t *testing.T) {
	b := &fakeBackend{}
	c := NewShaderCompiler(b)

	require.NoError(t, c.Acquire())
	require.NoError(t, c.Acquire())
	assert.Equal(t, 2, c.Refs())
	assert.True(t, c.Initialized())

	require.NoError(t, c.Release())
	inits, finalizes := b.counts()
	assert.Equal(t, 1, inits)
	assert.Equal(t, 0, finalizes)
	assert.True(t, c.Initialized())

	require.NoError(t, c.Release())
	inits, finalizes = b.counts()
	assert.Equal(t, 1, inits)
	assert.Equal(t, 1, finalizes)
	assert.False(t, c.Initialized())
	assert.Equal(t, 0, c.Refs())
}

func TestShaderCompilerDoubleRelease(t *testing.T) {
	b := &fakeBackend{}
	c := NewShaderCompiler(b)
	require.NoError(t, c.Acquire())
	require.NoError(t, c.Release())

	err := c.Release()
	assert.True(t, errors.Is(err, ErrDoubleRelease))
	assert.Equal(t, 0, c.Refs())
	_, finalizes := b.counts()
	assert.Equal(t, 1, finalizes)
}

func TestShaderCompilerReinitializes(t *testing.T) {
	b := &fakeBackend{}
	c := NewShaderCompiler(b)
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Acquire())
		require.NoError(t, c.Release())
	}
	inits, finalizes := b.counts()
	assert.Equal(t, 3, inits)
	assert.Equal(t, 3, finalizes)
}

func TestShaderCompilerConcurrentUse(t *testing.T) {
	b := &fakeBackend{}
	c := NewShaderCompiler(b)
	require.NoError(t, c.Acquire())

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if err := c.Acquire(); err != nil {
					t.Error(err)
					return
				}
				if _, err := c.Compile(hal.ShaderStageVertex, vertexSource); err != nil {
					t.Error(err)
				}
				if err := c.Release(); err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, c.Refs())
	inits, finalizes := b.counts()
	assert.Equal(t, 1, inits)
	assert.Equal(t, 0, finalizes)
	require.NoError(t, c.Release())
}

func TestCompileErrors(t *testing.T) {
	b := &fakeBackend{}
	c := NewShaderCompiler(b)

	_, err := c.Compile(hal.ShaderStageVertex, vertexSource)
	var cerr *CompileError
	require.True(t, errors.As(err, &cerr), "compile before acquire")

	require.NoError(t, c.Acquire())
	defer c.Release()

	_, err = c.Compile(hal.ShaderStageFragment, vertexSource)
	require.True(t, errors.As(err, &cerr), "missing entry point")
	assert.Equal(t, hal.ShaderStageFragment, cerr.Stage)

	b.fail = errors.New("unexpected token")
	_, err = c.Compile(hal.ShaderStageVertex, vertexSource)
	require.True(t, errors.As(err, &cerr))
	assert.Contains(t, cerr.Message, "unexpected token")

	b.fail = nil
	b.panicMsg = "index out of range"
	_, err = c.Compile(hal.ShaderStageVertex, vertexSource)
	require.True(t, errors.As(err, &cerr), "backend panic")
	assert.Contains(t, cerr.Message, "index out of range")

	b.panicMsg = ""
	prog, err := c.Compile(hal.ShaderStageVertex, vertexSource)
	require.NoError(t, err)
	assert.Equal(t, "vs_main", prog.Entry)
	assert.Equal(t, 5, prog.Words())
}

func TestEntryPoint(t *testing.T) {
	tests := []struct {
		stage  hal.ShaderStage
		source string
		want   string
	}{
		{hal.ShaderStageVertex, "@vertex\nfn main_vs() {}", "main_vs"},
		{hal.ShaderStageFragment, "@fragment fn shade() {}", "shade"},
		{hal.ShaderStageCompute, "@compute @workgroup_size(8, 8) fn blur() {}", "blur"},
		{hal.ShaderStageCompute, "@compute fn plain() {}", "plain"},
	}
	for _, tt := range tests {
		got, ok := EntryPoint(tt.stage, tt.source)
		assert.True(t, ok, tt.source)
		assert.Equal(t, tt.want, got)
	}
	_, ok := EntryPoint(hal.ShaderStageVertex, fragmentSource)
	assert.False(t, ok)
}

func TestNagaBackendEmitsSPIRV(t *testing.T) {
	b := NewNagaBackend()
	_, err := b.Compile(hal.ShaderStageVertex, vertexSource)
	assert.Error(t, err, "compile before init")

	require.NoError(t, b.Init())
	code, err := b.Compile(hal.ShaderStageVertex, vertexSource)
	require.NoError(t, err)
	require.NotEmpty(t, code)
	assert.Equal(t, uint32(0x07230203), code[0])

	again, err := b.Compile(hal.ShaderStageVertex, vertexSource)
	require.NoError(t, err)
	assert.Equal(t, code, again)
	assert.Equal(t, 1, b.Compiles)
	b.Finalize()
}

func TestNagaBackendCachesPerStage(t *testing.T) {
	b := NewNagaBackend()
	require.NoError(t, b.Init())
	defer b.Finalize()
	both := vertexSource + "\n" + fragmentSource

	_, err := b.Compile(hal.ShaderStageVertex, both)
	require.NoError(t, err)
	_, err = b.Compile(hal.ShaderStageFragment, both)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Compiles, "same source, different stage")

	_, err = b.Compile(hal.ShaderStageFragment, both)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Compiles)
}

func TestShaderLifecycle(t *testing.T) {
	f := newFixture(t)

	s, err := NewShader(f.ctx.Device(), f.compiler, hal.ShaderStageVertex, vertexSource)
	require.NoError(t, err)
	assert.Equal(t, "vs_main", s.Entry())
	assert.Equal(t, hal.ShaderStageVertex, s.Stage())
	assert.Equal(t, 1, f.compiler.Refs())
	assert.Equal(t, 1, f.rec.Live(haltest.KindShaderModule))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 0, f.compiler.Refs())
	assert.Equal(t, 0, f.rec.Live(haltest.KindShaderModule))
	f.noViolations()
}

func TestNewShaderReleasesCompilerOnFailure(t *testing.T) {
	f := newFixture(t)

	f.backend.fail = errors.New("syntax error")
	_, err := NewShader(f.ctx.Device(), f.compiler, hal.ShaderStageVertex, vertexSource)
	var cerr *CompileError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, 0, f.compiler.Refs())

	f.backend.fail = nil
	f.dev.FailNext("CreateShaderModule", hal.ErrorOutOfDeviceMemory)
	_, err = NewShader(f.ctx.Device(), f.compiler, hal.ShaderStageVertex, vertexSource)
	var rerr *ResourceCreationError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, hal.ErrorOutOfDeviceMemory, resultOf(err))
	assert.Equal(t, 0, f.compiler.Refs())

	inits, finalizes := f.backend.counts()
	assert.Equal(t, inits, finalizes)
}

func TestLoadShader(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "frag.wgsl")
	require.NoError(t, os.WriteFile(path, []byte(fragmentSource), 0o644))

	s, err := LoadShader(f.ctx.Device(), f.compiler, hal.ShaderStageFragment, path)
	require.NoError(t, err)
	assert.Equal(t, "fs_main", s.Entry())
	require.NoError(t, s.Close())

	_, err = LoadShader(f.ctx.Device(), f.compiler, hal.ShaderStageFragment, filepath.Join(dir, "missing.wgsl"))
	var nf *SourceNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, filepath.Join(dir, "missing.wgsl"), nf.Path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Equal(t, 0, f.compiler.Refs())
}
