package models

import (
	"fmt"
	"sort"
)

// Opcodes agents understand. Each names a primitive an agent can perform on
// its host; the command handler validates operator requests against this
// catalog before a job is created.
const (
	OpExecute           = "execute"
	OpWriteFile         = "write_file"
	OpReadFile          = "read_file"
	OpExfilConnection   = "exfil_connection"
	OpOpenShell         = "open_shell"
	OpCallDLL           = "call_dll"
	OpCallReflectiveDLL = "call_reflective_dll"
	OpImpersonateToken  = "impersonate_token"
	OpStopImpersonation = "stop_impersonating"
)

// OpcodeArgs maps each opcode to the argument names agents accept for it.
var OpcodeArgs = map[string][]string{
	OpExecute:           {"command_line", "stdin"},
	OpWriteFile:         {"file_path", "contents"},
	OpReadFile:          {"file_path"},
	OpExfilConnection:   {"address", "port", "file_path", "method"},
	OpOpenShell:         {},
	OpCallDLL:           {"file_path", "dll_function", "input"},
	OpCallReflectiveDLL: {"binary", "dll_function", "input"},
	OpImpersonateToken:  {"pid"},
	OpStopImpersonation: {},
}

// Opcodes returns the catalog sorted alphabetically.
func Opcodes() []string {
	ops := make([]string, 0, len(OpcodeArgs))
	for op := range OpcodeArgs {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// KnownOpcode reports whether op is in the catalog.
func KnownOpcode(op string) bool {
	_, ok := OpcodeArgs[op]
	return ok
}

// ValidateOpcodeArgs checks that every supplied argument name is accepted by op.
func ValidateOpcodeArgs(op string, args map[string]any) error {
	allowed, ok := OpcodeArgs[op]
	if !ok {
		return fmt.Errorf("unknown opcode %q", op)
	}
	for name := range args {
		accepted := false
		for _, a := range allowed {
			if a == name {
				accepted = true
				break
			}
		}
		if !accepted {
			return fmt.Errorf("opcode %q does not accept argument %q", op, name)
		}
	}
	return nil
}
