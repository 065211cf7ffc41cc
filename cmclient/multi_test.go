package cmclient

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"testing"
)

func frameBytes(payload string) []byte {
	buf := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(payload)))
	copy(buf[4:], payload)
	return buf
}

func TestDecodeMultiUncompressed(t *testing.T) {
	var payload []byte
	payload = append(payload, frameBytes("one")...)
	payload = append(payload, frameBytes("two")...)
	payload = append(payload, frameBytes("three")...)

	frames, err := decodeMulti(payload, 0)
	if err != nil {
		t.Fatalf("decodeMulti: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	for i, want := range []string{"one", "two", "three"} {
		if string(frames[i]) != want {
			t.Errorf("frame[%d] = %q, want %q", i, frames[i], want)
		}
	}
}

func TestDecodeMultiZipCompressed(t *testing.T) {
	var payload []byte
	payload = append(payload, frameBytes("alpha")...)
	payload = append(payload, frameBytes("beta")...)

	var zipBuf bytes.Buffer
	zw := zip.NewWriter(&zipBuf)
	entry, err := zw.Create("z")
	if err != nil {
		t.Fatalf("create zip entry: %v", err)
	}
	if _, err := entry.Write(payload); err != nil {
		t.Fatalf("write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}

	frames, err := decodeMulti(zipBuf.Bytes(), uint32(len(payload)))
	if err != nil {
		t.Fatalf("decodeMulti: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if string(frames[0]) != "alpha" || string(frames[1]) != "beta" {
		t.Errorf("frames = %q, %q", frames[0], frames[1])
	}
}

func TestDecodeMultiZipMissingEntryErrors(t *testing.T) {
	var zipBuf bytes.Buffer
	zw := zip.NewWriter(&zipBuf)
	entry, err := zw.Create("not-z")
	if err != nil {
		t.Fatalf("create zip entry: %v", err)
	}
	entry.Write([]byte("irrelevant"))
	zw.Close()

	if _, err := decodeMulti(zipBuf.Bytes(), 5); err == nil {
		t.Fatal("expected error for missing entry \"z\"")
	}
}

func TestDecodeMultiTruncatedErrors(t *testing.T) {
	truncated := []byte{10, 0, 0, 0, 'a', 'b'} // claims 10 bytes, has 2
	if _, err := decodeMulti(truncated, 0); err == nil {
		t.Fatal("expected truncation error")
	}
}
