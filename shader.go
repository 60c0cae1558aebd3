package vkframe

import (
	"fmt"
	"os"
	"regexp"
	"sync"

	"github.com/andewx/vkframe/hal"
	"github.com/gogpu/naga"
	"github.com/pkg/errors"
)

// CompilerBackend is the shader compiler library managed by ShaderCompiler.
// Init and Finalize are never called concurrently with each other or with
// Compile.
type CompilerBackend interface {
	Init() error
	Finalize()
	Compile(stage hal.ShaderStage, source string) ([]uint32, error)
}

// ShaderCompiler is a reference counted handle on a CompilerBackend. The
// first Acquire initializes the backend and the Release that brings the
// count back to zero finalizes it, whatever order shader objects are
// created and closed in.
type ShaderCompiler struct {
	mu          sync.Mutex
	backend     CompilerBackend
	count       int
	initialized bool
}

// DefaultCompiler is the process-wide compiler, backed by naga.
var DefaultCompiler = NewShaderCompiler(NewNagaBackend())

func NewShaderCompiler(backend CompilerBackend) *ShaderCompiler {
	return &ShaderCompiler{backend: backend}
}

// Acquire takes a reference, initializing the backend on the first one.
func (c *ShaderCompiler) Acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count == 0 {
		if err := c.backend.Init(); err != nil {
			return errors.Wrap(err, "initialize shader compiler")
		}
		c.initialized = true
		Logger().Debug("shader compiler initialized")
	}
	c.count++
	return nil
}

// Release drops a reference, finalizing the backend on the last one.
// Releasing an unreferenced compiler returns ErrDoubleRelease and changes
// nothing.
func (c *ShaderCompiler) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count == 0 {
		return errors.WithStack(ErrDoubleRelease)
	}
	c.count--
	if c.count == 0 {
		c.backend.Finalize()
		c.initialized = false
		Logger().Debug("shader compiler finalized")
	}
	return nil
}

// Refs returns the current reference count.
func (c *ShaderCompiler) Refs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Initialized reports whether the backend is currently initialized.
func (c *ShaderCompiler) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// Program is compiled SPIR-V for one shader stage.
type Program struct {
	Stage hal.ShaderStage
	Entry string
	Code  []uint32
}

// Words returns the program length in 32-bit words.
func (p *Program) Words() int { return len(p.Code) }

// Compile compiles a single-stage program. Every failure, including a panic
// inside the backend, is returned as a *CompileError.
func (c *ShaderCompiler) Compile(stage hal.ShaderStage, source string) (prog *Program, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return nil, &CompileError{Stage: stage, Message: "compiler not acquired"}
	}
	entry, ok := EntryPoint(stage, source)
	if !ok {
		return nil, &CompileError{Stage: stage, Message: fmt.Sprintf("no @%s entry point", stage)}
	}
	defer func() {
		if v := recover(); v != nil {
			prog, err = nil, &CompileError{Stage: stage, Message: fmt.Sprint(v)}
		}
	}()
	code, cerr := c.backend.Compile(stage, source)
	if cerr != nil {
		return nil, &CompileError{Stage: stage, Message: cerr.Error()}
	}
	if len(code) == 0 {
		return nil, &CompileError{Stage: stage, Message: "compiler produced no code"}
	}
	return &Program{Stage: stage, Entry: entry, Code: code}, nil
}

var entryPatterns = map[hal.ShaderStage]*regexp.Regexp{
	hal.ShaderStageVertex:   regexp.MustCompile(`@vertex\s+fn\s+(\w+)`),
	hal.ShaderStageFragment: regexp.MustCompile(`@fragment\s+fn\s+(\w+)`),
	hal.ShaderStageCompute:  regexp.MustCompile(`@compute(?:\s+@workgroup_size\([^)]*\))?\s+fn\s+(\w+)`),
}

// EntryPoint returns the name of the first WGSL function marked as the
// entry point for stage.
func EntryPoint(stage hal.ShaderStage, source string) (string, bool) {
	re, ok := entryPatterns[stage]
	if !ok {
		return "", false
	}
	m := re.FindStringSubmatch(source)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// LoadSourceFile reads a shader source file.
func LoadSourceFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.WithStack(&SourceNotFoundError{Path: path, Err: err})
	}
	return string(data), nil
}

// NagaBackend compiles WGSL to SPIR-V with naga. Its cache of compiled
// modules lives between Init and Finalize.
type NagaBackend struct {
	cache map[cacheKey][]uint32
	// Compiles counts calls that reached naga rather than the cache.
	Compiles int
}

type cacheKey struct {
	stage  hal.ShaderStage
	source string
}

func NewNagaBackend() *NagaBackend { return &NagaBackend{} }

func (b *NagaBackend) Init() error {
	b.cache = make(map[cacheKey][]uint32)
	return nil
}

func (b *NagaBackend) Finalize() {
	b.cache = nil
}

func (b *NagaBackend) Compile(stage hal.ShaderStage, source string) (code []uint32, err error) {
	defer checkErr(&err)
	if b.cache == nil {
		return nil, errors.New("naga backend not initialized")
	}
	key := cacheKey{stage: stage, source: source}
	if code, ok := b.cache[key]; ok {
		return code, nil
	}
	b.Compiles++
	spirv, err := naga.Compile(source)
	if err != nil {
		return nil, err
	}
	if len(spirv)%4 != 0 {
		return nil, errors.Errorf("spir-v length %d is not a multiple of 4", len(spirv))
	}
	// SPIR-V is little-endian 32-bit words.
	code = make([]uint32, len(spirv)/4)
	for i := range code {
		code[i] = uint32(spirv[i*4]) |
			uint32(spirv[i*4+1])<<8 |
			uint32(spirv[i*4+2])<<16 |
			uint32(spirv[i*4+3])<<24
	}
	b.cache[key] = code
	return code, nil
}

// Shader is a device shader module. It holds a compiler reference from
// construction until Close.
type Shader struct {
	compiler *ShaderCompiler
	stage    hal.ShaderStage
	entry    string
	module   hal.ShaderModule
}

// NewShader compiles source and creates its module. The compiler reference
// is released again on every failure path.
func NewShader(dev hal.Device, compiler *ShaderCompiler, stage hal.ShaderStage, source string) (*Shader, error) {
	if err := compiler.Acquire(); err != nil {
		return nil, err
	}
	prog, err := compiler.Compile(stage, source)
	if err != nil {
		compiler.Release()
		return nil, errors.WithStack(err)
	}
	mod, err := dev.CreateShaderModule(prog.Code)
	if err != nil {
		compiler.Release()
		return nil, resourceError("shader module", err)
	}
	Logger().Debug("shader module created", "stage", stage, "entry", prog.Entry, "words", prog.Words())
	return &Shader{compiler: compiler, stage: stage, entry: prog.Entry, module: mod}, nil
}

// LoadShader reads path and builds a shader from it.
func LoadShader(dev hal.Device, compiler *ShaderCompiler, stage hal.ShaderStage, path string) (*Shader, error) {
	src, err := LoadSourceFile(path)
	if err != nil {
		return nil, err
	}
	return NewShader(dev, compiler, stage, src)
}

func (s *Shader) Stage() hal.ShaderStage   { return s.stage }
func (s *Shader) Entry() string            { return s.entry }
func (s *Shader) Module() hal.ShaderModule { return s.module }

// Close destroys the module and releases the compiler. Closing twice is a
// no-op.
func (s *Shader) Close() error {
	if s.module == nil {
		return nil
	}
	s.module.Destroy()
	s.module = nil
	return s.compiler.Release()
}
