package transport

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// mockChunkReader delivers data in controlled chunks to simulate the way the
// OS splits pipe reads.
type mockChunkReader struct {
	chunks [][]byte
	index  int
}

func newMockChunkReader(chunks ...string) *mockChunkReader {
	byteChunks := make([][]byte, len(chunks))
	for i, chunk := range chunks {
		byteChunks[i] = []byte(chunk)
	}

	return &mockChunkReader{chunks: byteChunks}
}

func (r *mockChunkReader) Read(p []byte) (int, error) {
	if r.index >= len(r.chunks) {
		return 0, io.EOF
	}

	chunk := r.chunks[r.index]
	r.index++

	n := copy(p, chunk)

	return n, nil
}

// scanFrames runs the same framing loop ReadMessages uses: newline-delimited
// lines, empty lines skipped, invalid JSON counted rather than delivered.
func scanFrames(t *testing.T, r io.Reader) (frames []map[string]any, invalid int) {
	t.Helper()

	scanner := bufio.NewScanner(r)

	buf := make([]byte, maxScanTokenSize)
	scanner.Buffer(buf, maxScanTokenSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		if !json.Valid(line) {
			invalid++

			continue
		}

		var frame map[string]any

		require.NoError(t, json.Unmarshal(line, &frame))

		frames = append(frames, frame)
	}

	require.NoError(t, scanner.Err())

	return frames, invalid
}

// TestMultipleFramesInOneRead covers a single OS delivery carrying several
// complete newline-terminated frames.
func TestMultipleFramesInOneRead(t *testing.T) {
	frame1 := `{"jsonrpc":"2.0","id":1,"result":{"ok":true}}`
	frame2 := `{"jsonrpc":"2.0","id":2,"result":{"ok":false}}`

	reader := newMockChunkReader(frame1 + "\n" + frame2 + "\n")
	frames, invalid := scanFrames(t, reader)

	require.Zero(t, invalid)
	require.Len(t, frames, 2)
	require.EqualValues(t, 1, frames[0]["id"])
	require.EqualValues(t, 2, frames[1]["id"])
}

// TestFrameSplitAcrossReads covers one frame arriving in several partial
// deliveries; the scanner must reassemble it.
func TestFrameSplitAcrossReads(t *testing.T) {
	payload := map[string]any{
		"jsonrpc": "2.0",
		"id":      7,
		"result": map[string]any{
			"content": strings.Repeat("x", 1000),
		},
	}

	complete, err := json.Marshal(payload)
	require.NoError(t, err)

	complete = append(complete, '\n')

	reader := newMockChunkReader(
		string(complete[:100]),
		string(complete[100:250]),
		string(complete[250:]),
	)

	frames, invalid := scanFrames(t, reader)

	require.Zero(t, invalid)
	require.Len(t, frames, 1)
	require.EqualValues(t, 7, frames[0]["id"])
}

// TestEmbeddedNewlinesStayEscaped covers JSON string values containing
// newline characters; escaped as \n they never split a frame.
func TestEmbeddedNewlinesStayEscaped(t *testing.T) {
	payload := map[string]any{
		"jsonrpc": "2.0",
		"id":      3,
		"result":  map[string]any{"text": "line 1\nline 2\nline 3"},
	}

	complete, err := json.Marshal(payload)
	require.NoError(t, err)

	reader := newMockChunkReader(string(complete) + "\n")
	frames, invalid := scanFrames(t, reader)

	require.Zero(t, invalid)
	require.Len(t, frames, 1)

	result, ok := frames[0]["result"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "line 1\nline 2\nline 3", result["text"])
}

// TestBlankLinesBetweenFrames covers extra newlines between frames.
func TestBlankLinesBetweenFrames(t *testing.T) {
	frame1 := `{"jsonrpc":"2.0","id":1,"result":{}}`
	frame2 := `{"jsonrpc":"2.0","id":2,"result":{}}`

	reader := newMockChunkReader(frame1 + "\n\n\n" + frame2 + "\n")
	frames, invalid := scanFrames(t, reader)

	require.Zero(t, invalid)
	require.Len(t, frames, 2)
}

// TestInvalidLineSkipped covers a line of non-JSON noise between valid
// frames; it is dropped without losing the frames around it.
func TestInvalidLineSkipped(t *testing.T) {
	frame1 := `{"jsonrpc":"2.0","id":1,"result":{}}`
	frame2 := `{"jsonrpc":"2.0","id":2,"result":{}}`

	reader := newMockChunkReader(frame1 + "\nserver said something weird\n" + frame2 + "\n")
	frames, invalid := scanFrames(t, reader)

	require.Equal(t, 1, invalid)
	require.Len(t, frames, 2)
}

// TestLargeFrameWithinLimit covers a frame near the scanner buffer limit
// split across 64KB deliveries.
func TestLargeFrameWithinLimit(t *testing.T) {
	rows := make([]map[string]any, 1000)
	for i := range rows {
		rows[i] = map[string]any{"id": i, "value": strings.Repeat("x", 100)}
	}

	payload := map[string]any{
		"jsonrpc": "2.0",
		"id":      5,
		"result":  map[string]any{"rows": rows},
	}

	complete, err := json.Marshal(payload)
	require.NoError(t, err)

	complete = append(complete, '\n')

	chunkSize := 64 * 1024

	var chunks []string

	for i := 0; i < len(complete); i += chunkSize {
		end := min(i+chunkSize, len(complete))
		chunks = append(chunks, string(complete[i:end]))
	}

	reader := newMockChunkReader(chunks...)
	frames, invalid := scanFrames(t, reader)

	require.Zero(t, invalid)
	require.Len(t, frames, 1)

	result, ok := frames[0]["result"].(map[string]any)
	require.True(t, ok)
	require.Len(t, result["rows"], 1000)
}

// TestFrameOverLimitErrors covers a single line larger than the scanner
// buffer: the scanner reports token too long instead of delivering a
// truncated frame.
func TestFrameOverLimitErrors(t *testing.T) {
	customLimit := 1024
	huge := `{"data":"` + strings.Repeat("x", customLimit+100) + `"}` + "\n"

	scanner := bufio.NewScanner(strings.NewReader(huge))

	buf := make([]byte, customLimit)
	scanner.Buffer(buf, customLimit)

	require.False(t, scanner.Scan())
	require.Error(t, scanner.Err())
	require.Contains(t, scanner.Err().Error(), "token too long")
}
