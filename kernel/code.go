package kernel

// Code is a system call error number. Every failing system call returns one of
// the negative codes below; zero and positive values are success results.
type Code int32

// The flat error taxonomy shared by every kernel module.
const (
	CodeSuspended Code = 0

	CodeTableFull Code = -(iota)
	CodeNoMemory
	CodeNoProcess
	CodeNoResource
	CodePermission
	CodeInvalidID
	CodeInvalidPointer
	CodeOutOfRange
	CodeAlreadyOwned
	CodeNotOwner
	CodeNoFreePage
	CodeNoFreeMap
	CodeAlreadyMapped
	CodeNotMapped
	CodeSendFailed
	CodeReceiveFailed
	CodeNoTarget
	CodeSendTimeout
	CodeReceiveTimeout
	CodeNoHandler
	CodeDeadlock
	CodeHasThreads
	CodeMechanism
	CodeBadCall
	CodeInvalidParam
)

var codeNames = map[Code]string{
	CodeSuspended:      "suspended",
	CodeTableFull:      "table full",
	CodeNoMemory:       "out of memory",
	CodeNoProcess:      "process allocation failed",
	CodeNoResource:     "resource allocation failed",
	CodePermission:     "permission denied",
	CodeInvalidID:      "invalid identifier",
	CodeInvalidPointer: "invalid pointer",
	CodeOutOfRange:     "address out of range",
	CodeAlreadyOwned:   "resource already owned",
	CodeNotOwner:       "not owner",
	CodeNoFreePage:     "no free pages",
	CodeNoFreeMap:      "no free page-map records",
	CodeAlreadyMapped:  "address already mapped",
	CodeNotMapped:      "address not mapped",
	CodeSendFailed:     "send failed",
	CodeReceiveFailed:  "receive failed",
	CodeNoTarget:       "no target",
	CodeSendTimeout:    "send timed out",
	CodeReceiveTimeout: "receive timed out",
	CodeNoHandler:      "no handler registered",
	CodeDeadlock:       "deadlock",
	CodeHasThreads:     "process owns live threads",
	CodeMechanism:      "hardware mechanism failure",
	CodeBadCall:        "bad system call",
	CodeInvalidParam:   "invalid parameter",
}

// String returns a short description of the code.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "unknown error"
}
