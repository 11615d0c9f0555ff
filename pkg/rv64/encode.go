// Package rv64 is the IR-to-RV64 encoder: pure functions from a symbolic
// instruction to its 4-byte (or, for Li, 24-byte) little-endian encoding and
// a disassembly string. See SPEC_FULL.md §4.3.
package rv64

import (
	"encoding/binary"
	"fmt"
)

// BinOp identifies a binary ALU or compare operation the encoder knows a
// real RV64 opcode for. The four predicates the distilled spec calls out as
// "synthetic" (eq, ne, sgt, sge) are deliberately absent here — the segment
// builder lowers them to sequences of these real ops at emission time
// (SPEC_FULL.md §9, "Synthetic compare opcodes").
type BinOp int

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv
	OpRem
	OpAnd
	OpOr
	OpXor
	OpSll
	OpSrl
	OpSra
	OpSlt  // rd = (rs1 < rs2) signed
	OpSltu // rd = (rs1 < rs2) unsigned
)

type binInfo struct {
	mnemonic       string
	funct3, funct7 uint32
}

var binTable = map[BinOp]binInfo{
	OpAdd:  {"add", 0x0, 0x00},
	OpSub:  {"sub", 0x0, 0x20},
	OpMul:  {"mul", 0x0, 0x01},
	OpDiv:  {"div", 0x4, 0x01},
	OpRem:  {"rem", 0x6, 0x01},
	OpAnd:  {"and", 0x7, 0x00},
	OpOr:   {"or", 0x6, 0x00},
	OpXor:  {"xor", 0x4, 0x00},
	OpSll:  {"sll", 0x1, 0x00},
	OpSrl:  {"srl", 0x5, 0x00},
	OpSra:  {"sra", 0x5, 0x20},
	OpSlt:  {"slt", 0x2, 0x00},
	OpSltu: {"sltu", 0x3, 0x00},
}

const opcodeOP = 0x33
const opcodeOPIMM = 0x13
const opcodeLOAD = 0x03
const opcodeSTORE = 0x23
const opcodeLUI = 0x37
const opcodeJALR = 0x67

func rType(opcode, funct3, funct7, rd, rs1, rs2 uint32) uint32 {
	return funct7<<25 | rs2<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func iType(opcode, funct3, rd, rs1 uint32, imm12 int32) uint32 {
	return uint32(imm12&0xFFF)<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func sType(opcode, funct3, rs1, rs2 uint32, imm12 int32) uint32 {
	u := uint32(imm12) & 0xFFF
	return (u>>5)<<25 | rs2<<20 | rs1<<15 | funct3<<12 | (u&0x1F)<<7 | opcode
}

func uType(opcode, rd uint32, imm20 int32) uint32 {
	return uint32(imm20)<<12 | rd<<7 | opcode
}

func le32(w uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, w)
	return b
}

// Bin encodes an R-type binary op: rd = rs1 OP rs2.
func Bin(op BinOp, rd, rs1, rs2 Reg) ([]byte, string, error) {
	info, ok := binTable[op]
	if !ok {
		return nil, "", fmt.Errorf("encoder: unknown binary opcode %d", op)
	}
	w := rType(opcodeOP, info.funct3, info.funct7, uint32(rd), uint32(rs1), uint32(rs2))
	return le32(w), fmt.Sprintf("%s %s, %s, %s", info.mnemonic, rd, rs1, rs2), nil
}

// Addi encodes rd = rs1 + imm12 (opcode=0x13, funct3=0).
func Addi(rd, rs1 Reg, imm12 int32) ([]byte, string, error) {
	if imm12 < -2048 || imm12 > 2047 {
		return nil, "", fmt.Errorf("encoder: addi immediate out of 12-bit range: %d", imm12)
	}
	w := iType(opcodeOPIMM, 0x0, uint32(rd), uint32(rs1), imm12)
	return le32(w), fmt.Sprintf("addi %s, %s, %d", rd, rs1, imm12), nil
}

// Xori encodes rd = rs1 ^ imm12.
func Xori(rd, rs1 Reg, imm12 int32) ([]byte, string, error) {
	w := iType(opcodeOPIMM, 0x4, uint32(rd), uint32(rs1), imm12)
	return le32(w), fmt.Sprintf("xori %s, %s, %d", rd, rs1, imm12), nil
}

// Sltiu encodes rd = (rs1 < imm12) ? 1 : 0, unsigned.
func Sltiu(rd, rs1 Reg, imm12 int32) ([]byte, string, error) {
	w := iType(opcodeOPIMM, 0x3, uint32(rd), uint32(rs1), imm12)
	return le32(w), fmt.Sprintf("sltiu %s, %s, %d", rd, rs1, imm12), nil
}

// Slli encodes rd = rs1 << shamt (RV64: 6-bit shift amount, funct6=0).
func Slli(rd, rs1 Reg, shamt uint8) ([]byte, string, error) {
	if shamt > 63 {
		return nil, "", fmt.Errorf("encoder: slli shift amount out of range: %d", shamt)
	}
	imm12 := int32(shamt) & 0x3F
	w := iType(opcodeOPIMM, 0x1, uint32(rd), uint32(rs1), imm12)
	return le32(w), fmt.Sprintf("slli %s, %s, %d", rd, rs1, shamt), nil
}

// Lui encodes rd = imm20 << 12 (U-type).
func Lui(rd Reg, imm20 int32) ([]byte, string, error) {
	w := uType(opcodeLUI, uint32(rd), imm20)
	return le32(w), fmt.Sprintf("lui %s, %d", rd, imm20), nil
}

// Ld encodes rd = *(int64*)(rs1 + imm12) — a 64-bit load.
func Ld(rd, rs1 Reg, imm12 int32) ([]byte, string, error) {
	if imm12 < -2048 || imm12 > 2047 {
		return nil, "", fmt.Errorf("encoder: ld immediate out of 12-bit range: %d", imm12)
	}
	w := iType(opcodeLOAD, 0x3, uint32(rd), uint32(rs1), imm12)
	return le32(w), fmt.Sprintf("ld %s, %d(%s)", rd, imm12, rs1), nil
}

// Sd encodes *(int64*)(rs1 + imm12) = rs2 — a 64-bit store.
func Sd(rs2, rs1 Reg, imm12 int32) ([]byte, string, error) {
	if imm12 < -2048 || imm12 > 2047 {
		return nil, "", fmt.Errorf("encoder: sd immediate out of 12-bit range: %d", imm12)
	}
	w := sType(opcodeSTORE, 0x3, uint32(rs1), uint32(rs2), imm12)
	return le32(w), fmt.Sprintf("sd %s, %d(%s)", rs2, imm12, rs1), nil
}

// Ret encodes jalr x0, x1, 0 — the fixed native-return word every segment
// ends with so the interpreter regains control.
func Ret() ([]byte, string) {
	w := iType(opcodeJALR, 0x0, uint32(Zero), uint32(Ra), 0)
	return le32(w), "ret"
}

// Li materializes any 64-bit immediate into rd via a fixed 6-instruction,
// 24-byte sequence: lui/addi build the high 32 bits in rd, shifted left by
// 32, then lui/addi build the low 32 bits in the temporary register S3
// (x19), and a final add combines them. Two borrow corrections are needed:
// each 32-bit half's own lui/addi split gets the standard 12-bit borrow
// correction, and since lui sign-extends on RV64, the temporary holds the
// low half as a sign-extended 64-bit value; whenever that value is
// negative the high half is bumped by one to cancel the borrow.
func Li(rd Reg, imm64 int64) ([]byte, string, error) {
	lo32 := int32(imm64)
	loUpper, loLower := lo32>>12, lo32&0xFFF
	if loLower&0x800 != 0 {
		loUpper++
	}
	// loVal is what S3 holds after lui/addi: lui sign-extends bit 31.
	loVal := int64(int32(uint32(loUpper)<<12)) + int64(signExtend12(loLower))

	hi32 := int32((imm64 - loVal) >> 32)
	hiUpper, hiLower := hi32>>12, hi32&0xFFF
	if hiLower&0x800 != 0 {
		hiUpper++
	}

	var code []byte
	var asm []string
	emit := func(b []byte, s string, err error) error {
		if err != nil {
			return err
		}
		code = append(code, b...)
		asm = append(asm, s)
		return nil
	}

	if err := emit(Lui(rd, hiUpper&0xFFFFF)); err != nil {
		return nil, "", err
	}
	if err := emit(Addi(rd, rd, signExtend12(hiLower))); err != nil {
		return nil, "", err
	}
	if err := emit(Slli(rd, rd, 32)); err != nil {
		return nil, "", err
	}
	if err := emit(Lui(S3, loUpper&0xFFFFF)); err != nil {
		return nil, "", err
	}
	if err := emit(Addi(S3, S3, signExtend12(loLower))); err != nil {
		return nil, "", err
	}
	if err := emit(Bin(OpAdd, rd, rd, S3)); err != nil {
		return nil, "", err
	}

	return code, fmt.Sprintf("li %s, %d ; %s", rd, imm64, joinComma(asm)), nil
}

// signExtend12 interprets the low 12 bits of v as a signed 12-bit immediate.
func signExtend12(v int32) int32 {
	return (v << 20) >> 20
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " ; "
		}
		out += p
	}
	return out
}
