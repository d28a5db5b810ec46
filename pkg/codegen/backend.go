package codegen

import (
	"bytes"

	"github.com/nvylang/nvyc/pkg/config"
	"github.com/nvylang/nvyc/pkg/ir"
)

// Backend is the interface that all code generation backends must implement.
type Backend interface {
	// Name identifies the backend in progress output.
	Name() string
	// Generate renders an IR program for the configured target.
	Generate(prog *ir.Program, cfg *config.Config) (*bytes.Buffer, error)
}

// SelectBackend returns the backend registered under name.
func SelectBackend(name string) (Backend, bool) {
	switch name {
	case "llvm", "":
		return NewLLVMBackend(), true
	}
	return nil, false
}
