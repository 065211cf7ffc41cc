package cmclient

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func TestChannelCipherEncryptDecryptRoundTrip(t *testing.T) {
	sessionKey := make([]byte, 32)
	if _, err := rand.Read(sessionKey); err != nil {
		t.Fatalf("generate session key: %v", err)
	}

	for _, useHMAC := range []bool{true, false} {
		cipher, err := newChannelCipher(sessionKey, useHMAC)
		if err != nil {
			t.Fatalf("newChannelCipher(useHMAC=%v): %v", useHMAC, err)
		}

		cases := []struct {
			name      string
			plaintext []byte
		}{
			{"empty", []byte{}},
			{"short", []byte("hello")},
			{"exact block", bytes.Repeat([]byte{0xAB}, 16)},
			{"multi block", bytes.Repeat([]byte{0xCD}, 100)},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				encrypted, err := cipher.encrypt(tc.plaintext)
				if err != nil {
					t.Fatalf("encrypt: %v", err)
				}
				decrypted, err := cipher.decrypt(encrypted)
				if err != nil {
					t.Fatalf("decrypt: %v", err)
				}
				if !bytes.Equal(decrypted, tc.plaintext) {
					t.Errorf("decrypted = %q, want %q", decrypted, tc.plaintext)
				}
			})
		}
	}
}

func TestChannelCipherHMACDetectsTampering(t *testing.T) {
	sessionKey := make([]byte, 32)
	rand.Read(sessionKey)

	cipher, err := newChannelCipher(sessionKey, true)
	if err != nil {
		t.Fatalf("newChannelCipher: %v", err)
	}

	encrypted, err := cipher.encrypt([]byte("sensitive"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	tampered := append([]byte(nil), encrypted...)
	tampered[len(tampered)-1] ^= 0xFF

	if _, err := cipher.decrypt(tampered); err == nil {
		t.Error("decrypt did not detect tampered ciphertext")
	}
}

func TestPKCS7PadUnpadRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 15, 16, 17, 31, 32} {
		data := bytes.Repeat([]byte{0x42}, n)
		padded := pkcs7Pad(data, 16)
		if len(padded)%16 != 0 {
			t.Fatalf("pkcs7Pad(%d bytes) not block-aligned: %d", n, len(padded))
		}
		unpadded, err := pkcs7Unpad(padded, 16)
		if err != nil {
			t.Fatalf("pkcs7Unpad(%d bytes): %v", n, err)
		}
		if !bytes.Equal(unpadded, data) {
			t.Errorf("round trip for %d bytes: got %v, want %v", n, unpadded, data)
		}
	}
}

func TestGenerateSessionKeyProducesWrappedBlob(t *testing.T) {
	key, err := generateSessionKey(nil)
	if err != nil {
		t.Fatalf("generateSessionKey: %v", err)
	}
	if len(key.plain) != 32 {
		t.Errorf("plain key length = %d, want 32", len(key.plain))
	}
	if len(key.encrypted) == 0 {
		t.Error("encrypted blob is empty")
	}

	withChallenge, err := generateSessionKey([]byte{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("generateSessionKey with challenge: %v", err)
	}
	// RSA-OAEP output is always exactly the modulus size regardless of how
	// much plaintext (key, or key+challenge) went in.
	if len(withChallenge.encrypted) != len(key.encrypted) {
		t.Errorf("encrypted blob length changed with a challenge appended: %d vs %d", len(withChallenge.encrypted), len(key.encrypted))
	}
}
