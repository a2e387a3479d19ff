package provider

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// chunkedReader delivers its payload in fixed pieces to exercise partial-line
// buffering across read boundaries.
type chunkedReader struct {
	chunks []string
	pos    int
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.chunks) {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[r.pos])
	if n < len(r.chunks[r.pos]) {
		r.chunks[r.pos] = r.chunks[r.pos][n:]
		return n, nil
	}
	r.pos++
	return n, nil
}

func drain(t *testing.T, dec *streamDecoder) []string {
	t.Helper()
	var fragments []string
	for {
		fragment, err := dec.Next()
		if err == io.EOF {
			return fragments
		}
		require.NoError(t, err)
		fragments = append(fragments, fragment)
	}
}

func TestStreamDecoderChunkBoundariesYieldIdenticalFragments(t *testing.T) {
	stream := "data: {\"choices\":[{\"delta\":{\"content\":\"Hello \"}}]}\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"world\"}}]}\n" +
		"data: [DONE]\n"

	whole := drain(t, newStreamDecoder(strings.NewReader(stream)))
	require.Equal(t, []string{"Hello ", "world"}, whole)

	for split := 1; split < len(stream); split++ {
		split := split
		chunked := drain(t, newStreamDecoder(&chunkedReader{chunks: []string{stream[:split], stream[split:]}}))
		require.Equalf(t, whole, chunked, "split at byte %d", split)
	}
}

func TestStreamDecoderSkipsMalformedRecords(t *testing.T) {
	stream := "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n" +
		"data: {not json\n" +
		": keep-alive comment\n" +
		"\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n" +
		"data: [DONE]\n"

	fragments := drain(t, newStreamDecoder(strings.NewReader(stream)))
	require.Equal(t, []string{"a", "b"}, fragments)
}

func TestStreamDecoderSkipsEmptyDeltas(t *testing.T) {
	stream := "data: {\"choices\":[{\"delta\":{}}]}\n" +
		"data: {\"choices\":[]}\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n" +
		"data: [DONE]\n"

	fragments := drain(t, newStreamDecoder(strings.NewReader(stream)))
	require.Equal(t, []string{"x"}, fragments)
}

func TestStreamDecoderEOFWithoutSentinel(t *testing.T) {
	stream := "data: {\"choices\":[{\"delta\":{\"content\":\"tail\"}}]}"

	fragments := drain(t, newStreamDecoder(strings.NewReader(stream)))
	require.Equal(t, []string{"tail"}, fragments)
}
