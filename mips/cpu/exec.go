package cpu

import (
	"errors"
	"fmt"

	"github.com/kmeister/go-mips/mips/isa"
	"github.com/kmeister/go-mips/mips/program"
)

// UnknownSyscallError is returned by syscall handlers for codes outside
// the documented table; the engine reports it as FaultUnresolvedSyscall.
type UnknownSyscallError struct {
	Code uint32
}

func (e *UnknownSyscallError) Error() string {
	return fmt.Sprintf("unknown syscall code %d", e.Code)
}

// faultPC is the address of the instruction currently executing; the PC
// has already advanced past it.
func (c *CPU) faultPC() uint32 {
	return c.PC - program.WordSize
}

func (c *CPU) overflow(word uint32) *Fault {
	return &Fault{Kind: FaultArithmeticOverflow, PC: c.faultPC(), Word: word}
}

// branchTargetFor computes a PC-relative branch destination. The offset
// is in words, relative to the instruction after the branch (the already
// advanced PC).
func (c *CPU) branchTargetFor(imm uint16) uint32 {
	return uint32(int32(c.PC) + (int32(int16(imm)) << 2))
}

// jumpTargetFor combines the 26-bit target with the high bits of the
// advanced PC.
func (c *CPU) jumpTargetFor(target uint32) uint32 {
	return c.PC&0xF0000000 | target<<2
}

func (c *CPU) execute(inst isa.Instruction, word uint32) error {
	rs := c.Reg(inst.Rs)
	rt := c.Reg(inst.Rt)
	imm := uint32(int32(int16(inst.Imm))) // sign-extended immediate
	address := rs + imm                   // base + signed offset for memory ops

	switch inst.Op {
	case isa.OpIllegal:
		return &Fault{Kind: FaultIllegalInstruction, PC: c.faultPC(), Word: word}

	// Shifts. Variable shift amounts use the low five bits of rs only.
	case isa.OpSll:
		c.SetReg(inst.Rd, rt<<inst.Shamt)
	case isa.OpSrl:
		c.SetReg(inst.Rd, rt>>inst.Shamt)
	case isa.OpSra:
		c.SetReg(inst.Rd, uint32(int32(rt)>>inst.Shamt))
	case isa.OpSllv:
		c.SetReg(inst.Rd, rt<<(rs&0x1F))
	case isa.OpSrlv:
		c.SetReg(inst.Rd, rt>>(rs&0x1F))
	case isa.OpSrav:
		c.SetReg(inst.Rd, uint32(int32(rt)>>(rs&0x1F)))

	// Trapping arithmetic faults on signed overflow before any write.
	case isa.OpAdd:
		sum := rs + rt
		if (rs^sum)&(rt^sum)&0x80000000 != 0 {
			return c.overflow(word)
		}
		c.SetReg(inst.Rd, sum)
	case isa.OpSub:
		diff := rs - rt
		if (rs^rt)&(rs^diff)&0x80000000 != 0 {
			return c.overflow(word)
		}
		c.SetReg(inst.Rd, diff)
	case isa.OpAddi:
		sum := rs + imm
		if (rs^sum)&(imm^sum)&0x80000000 != 0 {
			return c.overflow(word)
		}
		c.SetReg(inst.Rt, sum)

	// Wrapping arithmetic and logic.
	case isa.OpAddu:
		c.SetReg(inst.Rd, rs+rt)
	case isa.OpSubu:
		c.SetReg(inst.Rd, rs-rt)
	case isa.OpAddiu:
		c.SetReg(inst.Rt, rs+imm)
	case isa.OpAnd:
		c.SetReg(inst.Rd, rs&rt)
	case isa.OpOr:
		c.SetReg(inst.Rd, rs|rt)
	case isa.OpXor:
		c.SetReg(inst.Rd, rs^rt)
	case isa.OpNor:
		c.SetReg(inst.Rd, ^(rs | rt))
	case isa.OpAndi:
		c.SetReg(inst.Rt, rs&uint32(inst.Imm))
	case isa.OpOri:
		c.SetReg(inst.Rt, rs|uint32(inst.Imm))
	case isa.OpXori:
		c.SetReg(inst.Rt, rs^uint32(inst.Imm))

	// Comparisons.
	case isa.OpSlt:
		c.SetReg(inst.Rd, boolWord(int32(rs) < int32(rt)))
	case isa.OpSltu:
		c.SetReg(inst.Rd, boolWord(rs < rt))
	case isa.OpSlti:
		c.SetReg(inst.Rt, boolWord(int32(rs) < int32(imm)))
	case isa.OpSltiu:
		c.SetReg(inst.Rt, boolWord(rs < imm))

	// Immediate loads.
	case isa.OpLui:
		c.SetReg(inst.Rt, uint32(inst.Imm)<<16)
	case isa.OpLlo:
		c.SetReg(inst.Rt, c.Reg(inst.Rt)&0xFFFF0000|uint32(inst.Imm))
	case isa.OpLhi:
		c.SetReg(inst.Rt, c.Reg(inst.Rt)&0x0000FFFF|uint32(inst.Imm)<<16)

	// Multiply and divide unit.
	case isa.OpMult:
		product := int64(int32(rs)) * int64(int32(rt))
		c.Lo, c.Hi = uint32(product), uint32(uint64(product)>>32)
	case isa.OpMultu:
		product := uint64(rs) * uint64(rt)
		c.Lo, c.Hi = uint32(product), uint32(product>>32)
	case isa.OpDiv:
		// Division by zero leaves zero in HI/LO rather than faulting.
		if rt == 0 {
			c.Lo, c.Hi = 0, 0
		} else {
			c.Lo = uint32(int32(rs) / int32(rt))
			c.Hi = uint32(int32(rs) % int32(rt))
		}
	case isa.OpDivu:
		if rt == 0 {
			c.Lo, c.Hi = 0, 0
		} else {
			c.Lo, c.Hi = rs/rt, rs%rt
		}
	case isa.OpMadd:
		acc := int64(c.Hi)<<32 | int64(c.Lo)
		acc += int64(int32(rs)) * int64(int32(rt))
		c.Lo, c.Hi = uint32(acc), uint32(uint64(acc)>>32)
	case isa.OpMaddu:
		acc := uint64(c.Hi)<<32 | uint64(c.Lo)
		acc += uint64(rs) * uint64(rt)
		c.Lo, c.Hi = uint32(acc), uint32(acc>>32)
	case isa.OpMsub:
		acc := int64(c.Hi)<<32 | int64(c.Lo)
		acc -= int64(int32(rs)) * int64(int32(rt))
		c.Lo, c.Hi = uint32(acc), uint32(uint64(acc)>>32)
	case isa.OpMsubu:
		acc := uint64(c.Hi)<<32 | uint64(c.Lo)
		acc -= uint64(rs) * uint64(rt)
		c.Lo, c.Hi = uint32(acc), uint32(acc>>32)
	case isa.OpMul:
		c.SetReg(inst.Rd, uint32(int32(rs)*int32(rt)))
	case isa.OpMfhi:
		c.SetReg(inst.Rd, c.Hi)
	case isa.OpMflo:
		c.SetReg(inst.Rd, c.Lo)
	case isa.OpMthi:
		c.Hi = rs
	case isa.OpMtlo:
		c.Lo = rs

	// Control flow.
	case isa.OpJr:
		c.setPC(rs)
	case isa.OpJalr:
		// The link lands in rd, which encodes $ra for the plain
		// single-operand form.
		link := c.linkAddress()
		c.setPC(rs)
		c.SetReg(inst.Rd, link)
	case isa.OpJ:
		c.setPC(c.jumpTargetFor(inst.Target))
	case isa.OpJal:
		c.SetReg(isa.RegRa, c.linkAddress())
		c.setPC(c.jumpTargetFor(inst.Target))
	case isa.OpBeq:
		if rs == rt {
			c.setPC(c.branchTargetFor(inst.Imm))
		}
	case isa.OpBne:
		if rs != rt {
			c.setPC(c.branchTargetFor(inst.Imm))
		}
	case isa.OpBlez:
		if int32(rs) <= 0 {
			c.setPC(c.branchTargetFor(inst.Imm))
		}
	case isa.OpBgtz:
		if int32(rs) > 0 {
			c.setPC(c.branchTargetFor(inst.Imm))
		}
	case isa.OpBltz:
		if int32(rs) < 0 {
			c.setPC(c.branchTargetFor(inst.Imm))
		}
	case isa.OpBgez:
		if int32(rs) >= 0 {
			c.setPC(c.branchTargetFor(inst.Imm))
		}
	case isa.OpBltzal:
		if int32(rs) < 0 {
			c.SetReg(isa.RegRa, c.linkAddress())
			c.setPC(c.branchTargetFor(inst.Imm))
		}
	case isa.OpBgezal:
		if int32(rs) >= 0 {
			c.SetReg(isa.RegRa, c.linkAddress())
			c.setPC(c.branchTargetFor(inst.Imm))
		}

	// Memory access: address = base + signed offset, alignment checked
	// per width by the memory layer.
	case isa.OpLb:
		value, err := c.Mem.ReadByte(address)
		if err != nil {
			return memoryFault(c.faultPC(), word, err)
		}
		c.SetReg(inst.Rt, uint32(int32(int8(value))))
	case isa.OpLbu:
		value, err := c.Mem.ReadByte(address)
		if err != nil {
			return memoryFault(c.faultPC(), word, err)
		}
		c.SetReg(inst.Rt, uint32(value))
	case isa.OpLh:
		value, err := c.Mem.ReadHalf(address)
		if err != nil {
			return memoryFault(c.faultPC(), word, err)
		}
		c.SetReg(inst.Rt, uint32(int32(int16(value))))
	case isa.OpLhu:
		value, err := c.Mem.ReadHalf(address)
		if err != nil {
			return memoryFault(c.faultPC(), word, err)
		}
		c.SetReg(inst.Rt, uint32(value))
	case isa.OpLw:
		value, err := c.Mem.ReadWord(address)
		if err != nil {
			return memoryFault(c.faultPC(), word, err)
		}
		c.SetReg(inst.Rt, value)
	case isa.OpSb:
		if err := c.Mem.WriteByte(address, uint8(rt)); err != nil {
			return memoryFault(c.faultPC(), word, err)
		}
	case isa.OpSh:
		if err := c.Mem.WriteHalf(address, uint16(rt)); err != nil {
			return memoryFault(c.faultPC(), word, err)
		}
	case isa.OpSw:
		if err := c.Mem.WriteWord(address, rt); err != nil {
			return memoryFault(c.faultPC(), word, err)
		}

	case isa.OpSyscall:
		if c.handler == nil {
			return &Fault{Kind: FaultUnresolvedSyscall, PC: c.faultPC(), Word: word}
		}
		if err := c.handler.Syscall(c, c.Reg(isa.RegV0)); err != nil {
			var unknown *UnknownSyscallError
			if errors.As(err, &unknown) {
				return &Fault{Kind: FaultUnresolvedSyscall, PC: c.faultPC(), Word: word, Err: err}
			}
			return err
		}

	case isa.OpTrap:
		return &Fault{Kind: FaultTrap, PC: c.faultPC(), Word: word}

	default:
		// The decoder and this switch must cover the same closed set.
		panic(fmt.Sprintf("decoded op %d has no execution case", inst.Op))
	}

	return nil
}

func boolWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
