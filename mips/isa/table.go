package isa

// opInfo is one row of the static instruction table.
type opInfo struct {
	name   string
	format Format
	code   uint8 // funct, rt selector, or primary opcode depending on format
	shape  Shape
	flags  Flags
}

// opTable is indexed by Op. Built by hand from the MIPS32 manual; the
// decode maps below are derived from it once at init.
var opTable = [opCount]opInfo{
	OpIllegal: {name: "illegal"},

	OpSll:     {name: "sll", format: FormatFunc, code: 0, shape: ShapeShift},
	OpSrl:     {name: "srl", format: FormatFunc, code: 2, shape: ShapeShift},
	OpSra:     {name: "sra", format: FormatFunc, code: 3, shape: ShapeShift},
	OpSllv:    {name: "sllv", format: FormatFunc, code: 4, shape: ShapeShiftVar},
	OpSrlv:    {name: "srlv", format: FormatFunc, code: 6, shape: ShapeShiftVar},
	OpSrav:    {name: "srav", format: FormatFunc, code: 7, shape: ShapeShiftVar},
	OpJr:      {name: "jr", format: FormatFunc, code: 8, shape: ShapeSource, flags: FlagJump},
	OpJalr:    {name: "jalr", format: FormatFunc, code: 9, shape: ShapeSource, flags: FlagJump | FlagLink},
	OpSyscall: {name: "syscall", format: FormatFunc, code: 12, shape: ShapeNone},
	OpMfhi:    {name: "mfhi", format: FormatFunc, code: 16, shape: ShapeDest},
	OpMthi:    {name: "mthi", format: FormatFunc, code: 17, shape: ShapeSource},
	OpMflo:    {name: "mflo", format: FormatFunc, code: 18, shape: ShapeDest},
	OpMtlo:    {name: "mtlo", format: FormatFunc, code: 19, shape: ShapeSource},
	OpMult:    {name: "mult", format: FormatFunc, code: 24, shape: ShapeInputs},
	OpMultu:   {name: "multu", format: FormatFunc, code: 25, shape: ShapeInputs},
	OpDiv:     {name: "div", format: FormatFunc, code: 26, shape: ShapeInputs},
	OpDivu:    {name: "divu", format: FormatFunc, code: 27, shape: ShapeInputs},
	OpAdd:     {name: "add", format: FormatFunc, code: 32, shape: ShapeRegister, flags: FlagTraps},
	OpAddu:    {name: "addu", format: FormatFunc, code: 33, shape: ShapeRegister},
	OpSub:     {name: "sub", format: FormatFunc, code: 34, shape: ShapeRegister, flags: FlagTraps},
	OpSubu:    {name: "subu", format: FormatFunc, code: 35, shape: ShapeRegister},
	OpAnd:     {name: "and", format: FormatFunc, code: 36, shape: ShapeRegister},
	OpOr:      {name: "or", format: FormatFunc, code: 37, shape: ShapeRegister},
	OpXor:     {name: "xor", format: FormatFunc, code: 38, shape: ShapeRegister},
	OpNor:     {name: "nor", format: FormatFunc, code: 39, shape: ShapeRegister},
	OpSltu:    {name: "sltu", format: FormatFunc, code: 41, shape: ShapeRegister},
	OpSlt:     {name: "slt", format: FormatFunc, code: 42, shape: ShapeRegister},

	OpBltz:   {name: "bltz", format: FormatRegimm, code: 0, shape: ShapeBranchZero, flags: FlagBranch},
	OpBgez:   {name: "bgez", format: FormatRegimm, code: 1, shape: ShapeBranchZero, flags: FlagBranch},
	OpBltzal: {name: "bltzal", format: FormatRegimm, code: 16, shape: ShapeBranchZero, flags: FlagBranch | FlagLink},
	OpBgezal: {name: "bgezal", format: FormatRegimm, code: 17, shape: ShapeBranchZero, flags: FlagBranch | FlagLink},

	OpJ:   {name: "j", format: FormatJump, code: 2, shape: ShapeJump, flags: FlagJump},
	OpJal: {name: "jal", format: FormatJump, code: 3, shape: ShapeJump, flags: FlagJump | FlagLink},

	OpBeq:   {name: "beq", format: FormatImmediate, code: 4, shape: ShapeBranch, flags: FlagBranch},
	OpBne:   {name: "bne", format: FormatImmediate, code: 5, shape: ShapeBranch, flags: FlagBranch},
	OpBlez:  {name: "blez", format: FormatImmediate, code: 6, shape: ShapeBranchZero, flags: FlagBranch},
	OpBgtz:  {name: "bgtz", format: FormatImmediate, code: 7, shape: ShapeBranchZero, flags: FlagBranch},
	OpAddi:  {name: "addi", format: FormatImmediate, code: 8, shape: ShapeImmediate, flags: FlagTraps},
	OpAddiu: {name: "addiu", format: FormatImmediate, code: 9, shape: ShapeImmediate},
	OpSlti:  {name: "slti", format: FormatImmediate, code: 10, shape: ShapeImmediate},
	OpSltiu: {name: "sltiu", format: FormatImmediate, code: 11, shape: ShapeImmediate},
	OpAndi:  {name: "andi", format: FormatImmediate, code: 12, shape: ShapeImmediate},
	OpOri:   {name: "ori", format: FormatImmediate, code: 13, shape: ShapeImmediate},
	OpXori:  {name: "xori", format: FormatImmediate, code: 14, shape: ShapeImmediate},
	OpLui:   {name: "lui", format: FormatImmediate, code: 15, shape: ShapeLoadImm},
	OpLlo:   {name: "llo", format: FormatImmediate, code: 24, shape: ShapeLoadImm},
	OpLhi:   {name: "lhi", format: FormatImmediate, code: 25, shape: ShapeLoadImm},
	OpTrap:  {name: "trap", format: FormatImmediate, code: 26, shape: ShapeNone},

	OpMadd:  {name: "madd", format: FormatAlgebra, code: 0, shape: ShapeInputs},
	OpMaddu: {name: "maddu", format: FormatAlgebra, code: 1, shape: ShapeInputs},
	OpMul:   {name: "mul", format: FormatAlgebra, code: 2, shape: ShapeRegister},
	OpMsub:  {name: "msub", format: FormatAlgebra, code: 4, shape: ShapeInputs},
	OpMsubu: {name: "msubu", format: FormatAlgebra, code: 5, shape: ShapeInputs},

	OpLb:  {name: "lb", format: FormatImmediate, code: 32, shape: ShapeOffset, flags: FlagLoad},
	OpLh:  {name: "lh", format: FormatImmediate, code: 33, shape: ShapeOffset, flags: FlagLoad},
	OpLw:  {name: "lw", format: FormatImmediate, code: 35, shape: ShapeOffset, flags: FlagLoad},
	OpLbu: {name: "lbu", format: FormatImmediate, code: 36, shape: ShapeOffset, flags: FlagLoad},
	OpLhu: {name: "lhu", format: FormatImmediate, code: 37, shape: ShapeOffset, flags: FlagLoad},
	OpSb:  {name: "sb", format: FormatImmediate, code: 40, shape: ShapeOffset, flags: FlagStore},
	OpSh:  {name: "sh", format: FormatImmediate, code: 41, shape: ShapeOffset, flags: FlagStore},
	OpSw:  {name: "sw", format: FormatImmediate, code: 43, shape: ShapeOffset, flags: FlagStore},
}

const (
	opcodeSpecial = 0
	opcodeRegimm  = 1
	opcodeAlgebra = 28
)

// Derived decode maps, keyed by the raw field each format dispatches on.
var (
	functMap   [64]Op
	regimmMap  [32]Op
	primaryMap [64]Op
	algebraMap [64]Op

	mnemonicMap = make(map[string]Op, opCount)
)

func init() {
	for op := Op(1); op < opCount; op++ {
		info := &opTable[op]

		switch info.format {
		case FormatFunc:
			functMap[info.code] = op
		case FormatRegimm:
			regimmMap[info.code] = op
		case FormatImmediate, FormatJump:
			primaryMap[info.code] = op
		case FormatAlgebra:
			algebraMap[info.code] = op
		}

		mnemonicMap[info.name] = op
	}
}

// LookupMnemonic resolves an assembly mnemonic to its Op. The second
// result is false for unknown names (including pseudo-instructions, which
// are expanded before this table is consulted).
func LookupMnemonic(name string) (Op, bool) {
	op, ok := mnemonicMap[name]
	return op, ok
}
