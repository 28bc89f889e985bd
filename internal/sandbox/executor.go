package sandbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/dop251/goja"

	"github.com/animus-labs/scriptforge/internal/domain"
)

const DefaultTimeout = 5 * time.Second

// Limits bounds a single run. A zero Timeout falls back to DefaultTimeout;
// there is no way to run without a limit, because a sandbox that runs
// untrusted code without one is an open denial-of-service invitation.
type Limits struct {
	Timeout      time.Duration
	MaxCallStack int
}

// Executor compiles script source and runs it bound exclusively to one
// environment. Every fault raised by the script is converted into a
// failed ExecutionResult; nothing unwinds into the caller.
type Executor struct {
	logger *slog.Logger
}

func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Executor{logger: logger}
}

// Compile parses script source without touching any environment. The
// source runs as a function body, so plain `return 1+2` works and an
// array return carries a multi-value result sequence.
func Compile(code string) (*goja.Program, error) {
	return goja.Compile("script", "(function () {\n"+code+"\n})()", false)
}

// Run executes code against env under limits. Compilation happens first;
// a syntax error reports without the environment ever being touched.
func (x *Executor) Run(ctx context.Context, code string, env *Environment, limits Limits) domain.ExecutionResult {
	if env == nil {
		return domain.Failure("environment is required")
	}
	program, err := Compile(code)
	if err != nil {
		compileErr := &domain.CompileError{Detail: err.Error()}
		return domain.Failure(compileErr.Error())
	}
	return x.runProgram(ctx, program, env, limits)
}

func (x *Executor) runProgram(ctx context.Context, program *goja.Program, env *Environment, limits Limits) domain.ExecutionResult {
	env.mu.Lock()
	defer env.mu.Unlock()

	if env.tainted {
		return domain.Failure("environment tainted by an interrupted run; build a new one")
	}
	if limits.MaxCallStack > 0 {
		env.vm.SetMaxCallStackSize(limits.MaxCallStack)
	}
	timeout := limits.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	timer := time.AfterFunc(timeout, func() {
		env.vm.Interrupt(domain.ErrExecutionLimit)
	})
	defer timer.Stop()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			env.vm.Interrupt(domain.ErrExecutionLimit)
		case <-done:
		}
	}()

	value, err := env.vm.RunProgram(program)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			env.tainted = true
			x.logger.Warn("script run interrupted", "timeout", timeout.String())
			return domain.Failure(domain.ErrExecutionLimit.Error())
		}
		execErr := &domain.ExecutionError{Message: thrownMessage(err)}
		return domain.Failure(execErr.Error())
	}
	env.vm.ClearInterrupt()

	return domain.Success(captureValues(value)...)
}
