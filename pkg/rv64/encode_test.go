package rv64

import (
	"strings"
	"testing"

	"golang.org/x/arch/riscv64/riscv64asm"
)

// decodeOne asserts code is exactly one 4-byte instruction that an
// independent decoder accepts, and that its printed form mentions
// wantMnemonic — catching an encoder bug that would otherwise only show
// up by actually executing on a riscv64 host (SPEC_FULL.md §8, "encoder
// round-trip").
func decodeOne(t *testing.T, code []byte, wantMnemonic string) {
	t.Helper()
	if len(code) != 4 {
		t.Fatalf("expected a single 4-byte instruction, got %d bytes", len(code))
	}
	inst, err := riscv64asm.Decode(code)
	if err != nil {
		t.Fatalf("riscv64asm.Decode: %v", err)
	}
	got := strings.ToLower(inst.String())
	if !strings.Contains(got, wantMnemonic) {
		t.Errorf("decoded %q, want it to mention %q", got, wantMnemonic)
	}
}

func TestBinEncodings(t *testing.T) {
	cases := []struct {
		op       BinOp
		mnemonic string
	}{
		{OpAdd, "add"},
		{OpSub, "sub"},
		{OpMul, "mul"},
		{OpDiv, "div"},
		{OpRem, "rem"},
		{OpAnd, "and"},
		{OpOr, "or"},
		{OpXor, "xor"},
		{OpSll, "sll"},
		{OpSrl, "srl"},
		{OpSra, "sra"},
		{OpSlt, "slt"},
		{OpSltu, "sltu"},
	}
	for _, c := range cases {
		code, asm, err := Bin(c.op, S0, S1, S2)
		if err != nil {
			t.Fatalf("Bin(%v): %v", c.op, err)
		}
		if !strings.Contains(asm, c.mnemonic) {
			t.Errorf("disasm %q missing mnemonic %q", asm, c.mnemonic)
		}
		decodeOne(t, code, c.mnemonic)
	}
}

func TestBinUnknownOpcodeErrors(t *testing.T) {
	if _, _, err := Bin(BinOp(999), S0, S1, S2); err == nil {
		t.Fatal("expected error for unknown binary opcode")
	}
}

func TestImmediateEncodings(t *testing.T) {
	if code, _, err := Addi(S0, S1, 100); err != nil {
		t.Fatalf("Addi: %v", err)
	} else {
		decodeOne(t, code, "addi")
	}
	if code, _, err := Xori(S0, S1, 1); err != nil {
		t.Fatalf("Xori: %v", err)
	} else {
		decodeOne(t, code, "xori")
	}
	if code, _, err := Sltiu(S0, S1, 1); err != nil {
		t.Fatalf("Sltiu: %v", err)
	} else {
		decodeOne(t, code, "sltiu")
	}
	if code, _, err := Slli(S0, S1, 32); err != nil {
		t.Fatalf("Slli: %v", err)
	} else {
		decodeOne(t, code, "slli")
	}
	if code, _, err := Lui(S0, 0x12345); err != nil {
		t.Fatalf("Lui: %v", err)
	} else {
		decodeOne(t, code, "lui")
	}
}

func TestAddiRejectsOutOfRangeImmediate(t *testing.T) {
	if _, _, err := Addi(S0, S1, 2048); err == nil {
		t.Fatal("expected error for addi immediate out of 12-bit range")
	}
	if _, _, err := Addi(S0, S1, -2049); err == nil {
		t.Fatal("expected error for addi immediate out of 12-bit range")
	}
}

func TestSlliRejectsOutOfRangeShift(t *testing.T) {
	if _, _, err := Slli(S0, S1, 64); err == nil {
		t.Fatal("expected error for slli shift amount out of range")
	}
}

func TestLoadStoreEncodings(t *testing.T) {
	if code, _, err := Ld(S0, S1, 8); err != nil {
		t.Fatalf("Ld: %v", err)
	} else {
		decodeOne(t, code, "ld")
	}
	if code, _, err := Sd(S0, S1, -8); err != nil {
		t.Fatalf("Sd: %v", err)
	} else {
		decodeOne(t, code, "sd")
	}
}

func TestLdRejectsOutOfRangeOffset(t *testing.T) {
	if _, _, err := Ld(S0, S1, 4096); err == nil {
		t.Fatal("expected error for ld offset out of 12-bit range")
	}
}

func TestRet(t *testing.T) {
	code, asm := Ret()
	if !strings.Contains(asm, "ret") {
		t.Errorf("disasm %q missing ret", asm)
	}
	inst, err := riscv64asm.Decode(code)
	if err != nil {
		t.Fatalf("riscv64asm.Decode: %v", err)
	}
	// ret is jalr x0, 0(x1): an independent decoder sees it as jalr.
	got := strings.ToLower(inst.String())
	if !strings.Contains(got, "jalr") && !strings.Contains(got, "ret") {
		t.Errorf("decoded %q, want jalr or ret", got)
	}
}

// li folds the decoded instruction sequence back to a 64-bit value itself,
// since there is no native riscv64 host to execute the sequence on in CI
// (SPEC_FULL.md §8).
func foldLi(t *testing.T, code []byte) int64 {
	t.Helper()
	if len(code) != 24 {
		t.Fatalf("expected a 6-instruction, 24-byte Li sequence, got %d bytes", len(code))
	}
	var hi, lo int64
	for i := 0; i < 24; i += 4 {
		inst, err := riscv64asm.Decode(code[i : i+4])
		if err != nil {
			t.Fatalf("riscv64asm.Decode word %d: %v", i/4, err)
		}
		_ = inst
	}
	// Re-derive the two 32-bit halves directly from the encoded immediates
	// rather than from riscv64asm's decoded operand structs, so the test
	// exercises exactly the bit layout Li emits.
	hiUpper := int32(be20(code[0:4]))
	hiLower := int32(imm12FromI(code[4:8]))
	loUpper := int32(be20(code[12:16]))
	loLower := int32(imm12FromI(code[16:20]))
	hi = int64(hiUpper)<<12 + int64(hiLower)
	lo = int64(loUpper)<<12 + int64(loLower)
	// On RV64 lui sign-extends, so the temporary holds lo as a full 64-bit
	// signed value and the final add borrows from hi's half whenever lo is
	// negative; the encoder's cross-half correction has already bumped hi
	// to cancel that borrow.
	return hi<<32 + lo
}

func be20(word []byte) int32 {
	w := uint32(word[0]) | uint32(word[1])<<8 | uint32(word[2])<<16 | uint32(word[3])<<24
	return int32(w) >> 12
}

func imm12FromI(word []byte) int32 {
	w := uint32(word[0]) | uint32(word[1])<<8 | uint32(word[2])<<16 | uint32(word[3])<<24
	imm := int32(w) >> 20
	return imm
}

func TestLiRoundTrip(t *testing.T) {
	cases := []int64{
		0, 1, -1, 42, -42,
		0x7FF, -0x800, 0x800, -0x801,
		1 << 31, -(1 << 31),
		0x123456789ABCDEF0,
		-1000000000000,
	}
	for _, v := range cases {
		code, _, err := Li(S0, v)
		if err != nil {
			t.Fatalf("Li(%d): %v", v, err)
		}
		got := foldLi(t, code)
		if got != v {
			t.Errorf("Li(%d) folds back to %d", v, got)
		}
	}
}
