package integrity

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHash_DeterministicLowercaseHex(t *testing.T) {
	a := Hash([]byte("referto"))
	b := Hash([]byte("referto"))
	if a != b {
		t.Fatal("hash should be deterministic")
	}
	if len(a) != DigestHexLen {
		t.Fatalf("digest length = %d, want %d", len(a), DigestHexLen)
	}
	if a != strings.ToLower(a) {
		t.Fatal("digest should be lowercase hex")
	}
	if Hash([]byte("referto2")) == a {
		t.Fatal("different inputs should not collide")
	}
}

func TestVerify_DetectsSingleByteMutation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")
	content := []byte("%PDF-1.4 original content")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	digest := Hash(content)

	ok, err := Verify(path, digest)
	if err != nil || !ok {
		t.Fatalf("expected intact file to verify, ok=%v err=%v", ok, err)
	}

	content[5] ^= 0x01
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	ok, err = Verify(path, digest)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatal("expected tampered file to fail verification")
	}
}

func TestVerify_MissingFile(t *testing.T) {
	if _, err := Verify(filepath.Join(t.TempDir(), "nope.pdf"), Hash(nil)); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEqual_CaseInsensitive(t *testing.T) {
	d := Hash([]byte("x"))
	if !Equal(d, strings.ToUpper(d)) {
		t.Fatal("Equal should ignore hex case")
	}
	if Equal(d, d[:DigestHexLen-2]+"zz") {
		t.Fatal("Equal should reject a different digest")
	}
}

func TestValidDigest(t *testing.T) {
	if !ValidDigest(Hash([]byte("x"))) {
		t.Fatal("real digest should validate")
	}
	if ValidDigest("abc") || ValidDigest(strings.Repeat("g", DigestHexLen)) {
		t.Fatal("malformed digests should not validate")
	}
}
