package callvm

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"GuardVault/internal/logger"
)

// frame is the state of one Call, reached by host functions through ctx.
type frame struct {
	input     []byte
	output    []byte
	value     uint64
	refund    func(context.Context, uint64) error
	gasLeft   uint64
	exhausted bool
}

type frameKey struct{}

func withFrame(ctx context.Context, f *frame) context.Context {
	return context.WithValue(ctx, frameKey{}, f)
}

// frameOf returns the frame of the running call. Host functions are only
// reachable from Pool.Call, so a missing frame is a bug.
func frameOf(ctx context.Context) *frame {
	f, ok := ctx.Value(frameKey{}).(*frame)
	if !ok {
		panic("callvm: host function called outside a call")
	}

	return f
}

// hostModule declares the "env" imports available to call targets:
//
//	gas(cost u32)                     charge gas, trap when the limit is passed
//	input_len() u32                   size of the call input
//	read_input(ptr u32)               copy the input to ptr
//	write_output(ptr u32, len u32)    set the call output
//	call_value() u64                  native value forwarded with the call
//	wallet_deposit(amount u64) u32    send value back to the vault, 0 on success
func hostModule(r wazero.Runtime) wazero.HostModuleBuilder {
	return r.NewHostModuleBuilder("env").
		NewFunctionBuilder().WithFunc(hostGas).Export("gas").
		NewFunctionBuilder().WithFunc(hostInputLen).Export("input_len").
		NewFunctionBuilder().WithFunc(hostReadInput).Export("read_input").
		NewFunctionBuilder().WithFunc(hostWriteOutput).Export("write_output").
		NewFunctionBuilder().WithFunc(hostCallValue).Export("call_value").
		NewFunctionBuilder().WithFunc(hostWalletDeposit).Export("wallet_deposit")
}

// hostGas panics once the gas limit is passed; wazero turns the panic
// into a trap that ends the call.
func hostGas(ctx context.Context, cost uint32) {
	f := frameOf(ctx)

	if uint64(cost) > f.gasLeft {
		f.gasLeft = 0
		f.exhausted = true
		panic(ErrGasExhausted)
	}

	f.gasLeft -= uint64(cost)
}

func hostInputLen(ctx context.Context) uint32 {
	return uint32(len(frameOf(ctx).input))
}

func hostReadInput(ctx context.Context, m api.Module, ptr uint32) {
	f := frameOf(ctx)

	if len(f.input) == 0 {
		return
	}

	mem := m.Memory()
	if mem == nil || !mem.Write(ptr, f.input) {
		panic("read_input: out of bounds")
	}
}

func hostWriteOutput(ctx context.Context, m api.Module, ptr, length uint32) {
	f := frameOf(ctx)

	if length == 0 {
		f.output = nil
		return
	}

	mem := m.Memory()
	if mem == nil {
		panic("write_output: module has no memory")
	}

	data, ok := mem.Read(ptr, length)
	if !ok {
		panic("write_output: out of bounds")
	}

	f.output = append([]byte(nil), data...)
}

func hostCallValue(ctx context.Context) uint64 {
	return frameOf(ctx).value
}

// hostWalletDeposit forwards value back to the vault.
// Returns 0 on success and 1 if the vault refused it.
func hostWalletDeposit(ctx context.Context, amount uint64) uint32 {
	f := frameOf(ctx)

	if f.refund == nil {
		return 1
	}

	if err := f.refund(ctx, amount); err != nil {
		logger.Warn("wallet_deposit refused", "amount", amount, "error", err)
		return 1
	}

	return 0
}
