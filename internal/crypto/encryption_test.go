package crypto

import (
	"bytes"
	"testing"
)

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	if len(key) != 64 {
		t.Fatalf("key length = %d hex chars, want 64", len(key))
	}

	key2, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	if key == key2 {
		t.Fatal("two generated keys are identical")
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	testCases := []struct {
		name      string
		plaintext []byte
	}{
		{"Token", []byte(`{"access_token":"ya29.test","refresh_token":"1//r"}`)},
		{"Empty", []byte{}},
		{"Binary", []byte{0x00, 0xFF, 0x80, 0x7F}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			blob, err := Seal(tc.plaintext, key)
			if err != nil {
				t.Fatalf("Seal failed: %v", err)
			}
			if bytes.Contains(blob, tc.plaintext) && len(tc.plaintext) > 0 {
				t.Fatal("ciphertext contains the plaintext")
			}

			got, err := Open(blob, key)
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			if !bytes.Equal(got, tc.plaintext) {
				t.Fatalf("round trip = %q, want %q", got, tc.plaintext)
			}
		})
	}
}

func TestSealProducesDistinctBlobs(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	a, err := Seal([]byte("same input"), key)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	b, err := Seal([]byte("same input"), key)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatal("two seals of the same plaintext are identical (nonce reuse?)")
	}
}

func TestOpenRejectsWrongKey(t *testing.T) {
	key, _ := GenerateKey()
	other, _ := GenerateKey()

	blob, err := Seal([]byte("secret"), key)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if _, err := Open(blob, other); err == nil {
		t.Fatal("Open with the wrong key should fail")
	}
}

func TestOpenRejectsTampering(t *testing.T) {
	key, _ := GenerateKey()
	blob, err := Seal([]byte("secret"), key)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	blob[len(blob)-1] ^= 0x01
	if _, err := Open(blob, key); err == nil {
		t.Fatal("Open of a tampered blob should fail")
	}
}

func TestOpenRejectsShortBlob(t *testing.T) {
	key, _ := GenerateKey()
	if _, err := Open([]byte{1, 2, 3}, key); err == nil {
		t.Fatal("Open of a truncated blob should fail")
	}
}

func TestBadKeys(t *testing.T) {
	testCases := []struct {
		name string
		key  string
	}{
		{"NotHex", "zz"},
		{"WrongLength", "deadbeef"},
		{"Empty", ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Seal([]byte("x"), tc.key); err == nil {
				t.Fatal("Seal with a bad key should fail")
			}
			if _, err := Open([]byte("0123456789012345"), tc.key); err == nil {
				t.Fatal("Open with a bad key should fail")
			}
		})
	}
}
