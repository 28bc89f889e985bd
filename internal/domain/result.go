package domain

// ExecutionResult is the outcome of running a script in a sandbox
// environment. A successful run carries the full ordered sequence of
// values the script returned; a failed run carries only a message.
type ExecutionResult struct {
	Values []Value
	Err    string
}

func Success(values ...Value) ExecutionResult {
	return ExecutionResult{Values: values}
}

func Failure(message string) ExecutionResult {
	return ExecutionResult{Err: message}
}

func (r ExecutionResult) OK() bool {
	return r.Err == ""
}
