package cmclient

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// decodeMulti unpacks the CMsgMulti body into its ordered sub-frames.
// When sizeUnzipped > 0 the body is a zip archive containing a single
// entry named "z" whose decompressed bytes are the concatenated,
// length-prefixed sub-frames (spec §6); otherwise the body already is that
// concatenation.
func decodeMulti(body []byte, sizeUnzipped uint32) ([][]byte, error) {
	payload := body

	if sizeUnzipped > 0 {
		zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
		if err != nil {
			return nil, fmt.Errorf("cmclient: open multi zip: %w", err)
		}

		var entry *zip.File
		for _, f := range zr.File {
			if f.Name == "z" {
				entry = f
				break
			}
		}
		if entry == nil {
			return nil, fmt.Errorf("cmclient: multi zip missing entry %q", "z")
		}

		rc, err := entry.Open()
		if err != nil {
			return nil, fmt.Errorf("cmclient: open multi zip entry: %w", err)
		}
		defer rc.Close()

		unzipped, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("cmclient: read multi zip entry: %w", err)
		}
		payload = unzipped
	}

	var frames [][]byte
	for len(payload) > 0 {
		if len(payload) < 4 {
			return nil, fmt.Errorf("cmclient: multi batch truncated before sub-frame length")
		}
		subLen := binary.LittleEndian.Uint32(payload[0:4])
		payload = payload[4:]
		if uint32(len(payload)) < subLen {
			return nil, fmt.Errorf("cmclient: multi batch truncated: need %d bytes, have %d", subLen, len(payload))
		}
		frames = append(frames, payload[:subLen])
		payload = payload[subLen:]
	}

	return frames, nil
}
