package process

import "github.com/nvandessel/memtrace/internal/dist"

// CodeOp is the outcome of an instruction fetch draw.
type CodeOp int

const (
	FetchNext CodeOp = iota
	JumpBack
	JumpRandom
)

func (op CodeOp) String() string {
	switch op {
	case FetchNext:
		return "fetch_next"
	case JumpBack:
		return "jump_back"
	case JumpRandom:
		return "jump_random"
	default:
		return "unknown"
	}
}

// StackOp is the outcome of a stack access draw.
type StackOp int

const (
	AccessSame StackOp = iota
	AccessNear
	FuncCall
	FuncReturn
)

func (op StackOp) String() string {
	switch op {
	case AccessSame:
		return "access_same"
	case AccessNear:
		return "access_near"
	case FuncCall:
		return "func_call"
	case FuncReturn:
		return "func_return"
	default:
		return "unknown"
	}
}

// CodeTable drives AccessCode: 80% sequential, 15% short backward jump,
// 5% jump anywhere in the code region.
var CodeTable = dist.Table[CodeOp]{
	{UpTo: 0.80, Outcome: FetchNext},
	{UpTo: 0.95, Outcome: JumpBack},
	{UpTo: 1.00, Outcome: JumpRandom},
}

// StackTable drives AccessStack.
var StackTable = dist.Table[StackOp]{
	{UpTo: 0.475, Outcome: AccessSame},
	{UpTo: 0.95, Outcome: AccessNear},
	{UpTo: 0.975, Outcome: FuncCall},
	{UpTo: 1.00, Outcome: FuncReturn},
}

// Behavioral constants.
const (
	// MaxJumpBack bounds a backward jump (128 instructions of 8 bytes).
	MaxJumpBack = 8 * 128

	// NearStackReach bounds the stack pointer move of an AccessNear.
	NearStackReach = 8 * 16

	// MaxCallArgs is the largest number of arguments pushed by a call.
	MaxCallArgs = 5

	// FrameSize is the stack space reserved for a callee frame.
	FrameSize = 8 * 32

	// LiveJumpShare is the share of non-local heap accesses that target the
	// live heap directly; the rest aim at the whole heap budget.
	LiveJumpShare = 0.5

	// PageSizeSkew is the Zipf exponent used to pick page sizes.
	PageSizeSkew = 1.5
)
