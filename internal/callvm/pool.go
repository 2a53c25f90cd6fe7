package callvm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/zeebo/blake3"
)

var (
	// ErrModuleNotFound is returned when no module is loaded for a call target.
	ErrModuleNotFound = errors.New("module not found")

	// ErrGasExhausted is returned when execution runs out of gas.
	ErrGasExhausted = errors.New("gas exhausted")

	// ErrNoEntryPoint is returned for a module that does not export execute.
	ErrNoEntryPoint = errors.New("module does not export execute")
)

// DefaultGasLimit bounds a single outgoing call.
const DefaultGasLimit = 10_000_000

// entryPoint is the export every call target must provide.
const entryPoint = "execute"

// Pool holds the compiled WASM modules the vault can call into. Modules are
// compiled once and instantiated fresh, without a name, for every call; the
// shared "env" host module finds the call's state through the context.
type Pool struct {
	runtime  wazero.Runtime
	gasLimit uint64

	mu      sync.RWMutex
	modules map[[32]byte]wazero.CompiledModule // modules maps call target to compiled module
}

// New creates a Pool with an initialized wazero runtime.
// A zero gasLimit selects DefaultGasLimit.
func New(gasLimit uint64) *Pool {
	if gasLimit == 0 {
		gasLimit = DefaultGasLimit
	}

	ctx := context.Background()
	runtime := wazero.NewRuntime(ctx)

	// The host functions have no state of their own, so this cannot fail
	// on a fresh runtime.
	if _, err := hostModule(runtime).Instantiate(ctx); err != nil {
		panic(fmt.Sprintf("callvm: instantiate host module: %v", err))
	}

	return &Pool{
		runtime:  runtime,
		gasLimit: gasLimit,
		modules:  make(map[[32]byte]wazero.CompiledModule),
	}
}

// Load compiles and registers a WASM module as a call target.
// If customID is nil, the target id is the blake3 hash of wasmBytes.
// Loading the same id twice keeps the first module.
func (p *Pool) Load(wasmBytes []byte, customID *[32]byte) ([32]byte, error) {
	id := blake3.Sum256(wasmBytes)
	if customID != nil {
		id = *customID
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.modules[id]; exists {
		return id, nil
	}

	compiled, err := p.runtime.CompileModule(context.Background(), wasmBytes)
	if err != nil {
		return [32]byte{}, fmt.Errorf("compile module:\n%w", err)
	}

	if _, ok := compiled.ExportedFunctions()[entryPoint]; !ok {
		compiled.Close(context.Background())
		return [32]byte{}, ErrNoEntryPoint
	}

	p.modules[id] = compiled

	return id, nil
}

// Has reports whether a module is loaded for target.
func (p *Pool) Has(target [32]byte) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	_, ok := p.modules[target]
	return ok
}

// Call runs the module registered for target with input and the forwarded
// value. The module may hand value back through the wallet_deposit host
// function, which invokes refund with the call's context.
func (p *Pool) Call(ctx context.Context, target [32]byte, input []byte, value uint64, refund func(context.Context, uint64) error) ([]byte, error) {
	p.mu.RLock()
	compiled, exists := p.modules[target]
	p.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %x", ErrModuleNotFound, target[:8])
	}

	f := &frame{input: input, value: value, refund: refund, gasLeft: p.gasLimit}
	ctx = withFrame(ctx, f)

	instance, err := p.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, fmt.Errorf("instantiate %x:\n%w", target[:8], err)
	}
	defer instance.Close(ctx)

	if _, err := instance.ExportedFunction(entryPoint).Call(ctx); err != nil {
		if f.exhausted {
			return nil, ErrGasExhausted
		}

		return nil, fmt.Errorf("execute %x:\n%w", target[:8], err)
	}

	return f.output, nil
}

// Unload removes a module from the pool.
func (p *Pool) Unload(id [32]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if compiled, exists := p.modules[id]; exists {
		compiled.Close(context.Background())
		delete(p.modules, id)
	}
}

// Close releases the runtime and every compiled module.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.modules = make(map[[32]byte]wazero.CompiledModule)
	p.mu.Unlock()

	return p.runtime.Close(context.Background())
}
