package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// CreateSymlinkLoop creates two .py symlinks pointing at each other
func CreateSymlinkLoop(t *testing.T, dir string) {
	t.Helper()

	a := filepath.Join(dir, "a.py")
	b := filepath.Join(dir, "b.py")

	if err := os.Symlink(b, a); err != nil {
		t.Fatalf("failed to create symlink a: %v", err)
	}
	if err := os.Symlink(a, b); err != nil {
		t.Fatalf("failed to create symlink b: %v", err)
	}
}

// CreateSymlinkEscape links a file inside dir to a Python file outside
// it and returns the outside path
func CreateSymlinkEscape(t *testing.T, dir string) string {
	t.Helper()

	outside := filepath.Join(t.TempDir(), "evil.py")
	if err := os.WriteFile(outside, []byte("password = 'hunter22'\n"), 0644); err != nil {
		t.Fatalf("failed to create evil file: %v", err)
	}
	if err := os.Symlink(outside, filepath.Join(dir, "innocent.py")); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}
	return outside
}

// CreateBinaryBomb writes an ELF executable under a .py name
func CreateBinaryBomb(t *testing.T, outputPath string) {
	t.Helper()

	header := []byte{
		0x7f, 0x45, 0x4c, 0x46, // ELF magic
		0x02,                   // 64-bit
		0x01,                   // Little endian
		0x01,                   // Version 1
		0x00,                   // System V ABI
		0x00, 0x00, 0x00, 0x00, // Padding
		0x02, 0x00, // Executable
		0x3e, 0x00, // x86-64
		0x01, 0x00, 0x00, 0x00, // Version 1
		0xeb, 0xfe, // jmp -2
		0xff, 0xfe, 0x00, 0x0a, 0x0a, 0x00,
	}

	if err := os.WriteFile(outputPath, header, 0644); err != nil {
		t.Fatalf("failed to write binary bomb: %v", err)
	}
}

// CreateDeepTree nests a Python file depth directories down and
// returns its path
func CreateDeepTree(t *testing.T, dir string, depth int) string {
	t.Helper()

	deepDir := filepath.Join(dir, filepath.FromSlash(strings.Repeat("deep/", depth)))
	if err := os.MkdirAll(deepDir, 0755); err != nil {
		t.Fatalf("failed to create deep directory: %v", err)
	}
	path := filepath.Join(deepDir, "leaf.py")
	if err := os.WriteFile(path, []byte("x = eval(y)\n"), 0644); err != nil {
		t.Fatalf("failed to create deep file: %v", err)
	}
	return path
}

// BacktrackingRules is a rule file whose pattern backtracks
// catastrophically on BacktrackingInput
const BacktrackingRules = `
- id: nested-quantifier
  description: "Pathological pattern"
  pattern: '^(a+)+$'
  severity: LOW
`

// BacktrackingInput is a line of a's that fails to match at the end
var BacktrackingInput = strings.Repeat("a", 64) + "!\n"
