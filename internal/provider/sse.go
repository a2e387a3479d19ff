package provider

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
)

var doneSentinel = []byte("[DONE]")

// streamDecoder incrementally parses a server-sent event body into text
// fragments. Partial lines are buffered across read boundaries; a malformed
// record is skipped and never aborts the stream.
type streamDecoder struct {
	r *bufio.Reader
}

func newStreamDecoder(r io.Reader) *streamDecoder {
	return &streamDecoder{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next non-empty text fragment. io.EOF signals exhaustion,
// either through the [DONE] sentinel or the transport closing the body.
func (d *streamDecoder) Next() (string, error) {
	for {
		line, err := d.r.ReadBytes('\n')
		if len(line) > 0 {
			payload, ok := dataPayload(bytes.TrimRight(line, "\r\n"))
			if ok {
				if bytes.Equal(bytes.TrimSpace(payload), doneSentinel) {
					return "", io.EOF
				}
				if fragment := decodeFragment(payload); fragment != "" {
					return fragment, nil
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				return "", io.EOF
			}
			return "", err
		}
	}
}

// dataPayload extracts the payload after the `data:` marker. Lines without
// the marker (comments, blank keep-alives) are not events.
func dataPayload(line []byte) ([]byte, bool) {
	if !bytes.HasPrefix(line, []byte("data:")) {
		return nil, false
	}
	payload := line[len("data:"):]
	if len(payload) > 0 && payload[0] == ' ' {
		payload = payload[1:]
	}
	return payload, true
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// decodeFragment parses one event payload. An absent content delta or a
// malformed record yields an empty fragment, which the caller skips.
func decodeFragment(payload []byte) string {
	var chunk streamChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return ""
	}
	if len(chunk.Choices) == 0 {
		return ""
	}
	return chunk.Choices[0].Delta.Content
}
