package cli

import (
	"fmt"
	"os"

	"github.com/mkrall/janus/internal/compiler"
	"github.com/mkrall/janus/internal/engine"
	"github.com/mkrall/janus/internal/ir"
)

// loadPrograms compiles every named CUE file into procedures. Compile
// errors abort with exit code 2: a document that does not parse is a
// usage problem, not a failed legality check.
func loadPrograms(paths []string) ([]*ir.Procedure, error) {
	var procs []*ir.Procedure
	for _, path := range paths {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("read %s", path), err)
		}
		compiled, err := compiler.CompileSource(string(src))
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("compile %s", path), err)
		}
		procs = append(procs, compiled...)
	}
	return procs, nil
}

// buildRegistry compiles and registers program files as one batch.
// Validation failures carry exit code 1.
func buildRegistry(paths []string, maxSteps int64) (*engine.Registry, error) {
	procs, err := loadPrograms(paths)
	if err != nil {
		return nil, err
	}

	var opts []engine.Option
	if maxSteps > 0 {
		opts = append(opts, engine.WithMaxSteps(maxSteps))
	}
	reg := engine.NewRegistry(opts...)
	if _, err := reg.RegisterAll(procs); err != nil {
		return nil, WrapExitError(ExitFailure, "validation failed", err)
	}
	return reg, nil
}
