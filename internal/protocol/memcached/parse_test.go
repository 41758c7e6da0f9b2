package memcached

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/armandparser/gofast-cache/internal/protocol"
)

func TestParseGetMulti(t *testing.T) {
	outcome, cmd, consumed, _ := Parse([]byte("get a b c\r\n"))
	assert.Equal(t, protocol.Complete, outcome)
	assert.Equal(t, []string{"a", "b", "c"}, cmd.Keys)
	assert.Equal(t, len("get a b c\r\n"), consumed)
}

func TestParseSetNeedsMoreData(t *testing.T) {
	outcome, cmd, _, _ := Parse([]byte("set foo 0 0 5\r\nhel"))
	assert.Equal(t, protocol.NeedData, outcome)
	assert.EqualValues(t, 5, cmd.Bytes)
}

func TestParseSetComplete(t *testing.T) {
	outcome, cmd, consumed, _ := Parse([]byte("set foo 0 0 5\r\nhello\r\n"))
	assert.Equal(t, protocol.Complete, outcome)
	assert.Equal(t, []byte("hello"), cmd.Value)
	assert.Equal(t, len("set foo 0 0 5\r\nhello\r\n"), consumed)
}

func TestParseBadDataChunkTrailer(t *testing.T) {
	outcome, _, _, msg := Parse([]byte("set foo 0 0 5\r\nhelloXX"))
	assert.Equal(t, protocol.ParseError, outcome)
	assert.Contains(t, msg, "bad data chunk")
}

func TestParseIncompleteHeader(t *testing.T) {
	outcome, _, _, _ := Parse([]byte("get fo"))
	assert.Equal(t, protocol.Incomplete, outcome)
}

func TestParseUnknownCommand(t *testing.T) {
	outcome, _, _, msg := Parse([]byte("frobnicate x\r\n"))
	assert.Equal(t, protocol.ParseError, outcome)
	assert.Contains(t, msg, "unknown command")
}

func TestParseNoreplySuffix(t *testing.T) {
	outcome, cmd, _, _ := Parse([]byte("set foo 0 0 3 noreply\r\nbar\r\n"))
	assert.Equal(t, protocol.Complete, outcome)
	assert.True(t, cmd.NoReply)
}

func TestParseKeyTooLong(t *testing.T) {
	key := make([]byte, MaxKeyLen+1)
	for i := range key {
		key[i] = 'a'
	}
	outcome, _, _, msg := Parse(append(append([]byte("get "), key...), "\r\n"...))
	assert.Equal(t, protocol.ParseError, outcome)
	assert.Contains(t, msg, "key too long")
}

func TestParseKeyWithControlCharacterIsRejected(t *testing.T) {
	outcome, _, _, msg := Parse([]byte("set fo\x01o 0 0 3\r\nbar\r\n"))
	assert.Equal(t, protocol.ParseError, outcome)
	assert.Contains(t, msg, "bad key")
}

func TestFormatValuesRoundTrip(t *testing.T) {
	entries := []ValueEntry{{Key: "foo", Flags: 0, Value: []byte("hello")}}
	got := FormatValues(entries, false)
	assert.Equal(t, "VALUE foo 0 5\r\nhello\r\nEND\r\n", string(got))
}
