package dnswire

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeNameRoundTrip(t *testing.T) {
	b, err := EncodeName("www.example.com")
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 'w', 'w', 'w', 7, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 3, 'c', 'o', 'm', 0}, b)

	off := 0
	name, err := DecodeName(b, &off)
	require.NoError(t, err)
	assert.Equal(t, "www.example.com", name)
	assert.Equal(t, len(b), off)
}

func TestDecodeNameFollowsCompressionPointer(t *testing.T) {
	msg := []byte{3, 'c', 'o', 'm', 0, 0xC0, 0x00}
	off := 5
	name, err := DecodeName(msg, &off)
	require.NoError(t, err)
	assert.Equal(t, "com", name)
	assert.Equal(t, 7, off)
}

func TestDecodeNameRejectsPointerLoop(t *testing.T) {
	msg := []byte{0xC0, 0x00}
	off := 0
	_, err := DecodeName(msg, &off)
	assert.Error(t, err)
}

func buildQuery(t *testing.T, name string, qtype uint16) []byte {
	t.Helper()
	encoded, err := EncodeName(name)
	require.NoError(t, err)

	msg := make([]byte, 0, headerSize+len(encoded)+4)
	msg = append(msg, 0x12, 0x34, 0x01, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00)
	msg = append(msg, encoded...)
	msg = append(msg, byte(qtype>>8), byte(qtype), 0x00, 0x01)
	return msg
}

func TestParseQueryRoundTripsThroughBuildResponse(t *testing.T) {
	msg := buildQuery(t, "example.com", TypeA)

	q, err := ParseQuery(msg)
	require.NoError(t, err)
	assert.Equal(t, "example.com", q.Question.Name)
	assert.Equal(t, TypeA, q.Question.Type)

	resp, err := BuildResponse(q, RCodeOK, []Answer{
		{Name: "example.com", Type: TypeA, TTL: 300, Addr: net.ParseIP("93.184.216.34")},
	})
	require.NoError(t, err)
	assert.NotEqual(t, byte(0), resp[2]&0x80, "QR flag should be set in the response")

	// The response is no longer a valid query (QR is set), confirming the
	// two message shapes are distinguishable by ParseQuery's own check.
	_, err = ParseQuery(resp)
	assert.Error(t, err)
}

func TestParseQueryRejectsResponsePacket(t *testing.T) {
	msg := buildQuery(t, "example.com", TypeA)
	msg[2] |= 0x80 // set QR
	_, err := ParseQuery(msg)
	assert.Error(t, err)
}

func TestParseQueryRejectsMultipleQuestions(t *testing.T) {
	msg := buildQuery(t, "example.com", TypeA)
	msg[5] = 2 // QDCount = 2
	_, err := ParseQuery(msg)
	assert.Error(t, err)
}

func TestBuildResponseAcceptsMappedIPv4InAAAAAndRejectsMissingAddress(t *testing.T) {
	q := Query{Question: Question{Name: "example.com", Type: TypeA, Class: ClassINET}}
	_, err := BuildResponse(q, RCodeOK, []Answer{
		{Name: "example.com", Type: TypeAAAA, TTL: 60, Addr: net.ParseIP("93.184.216.34")},
	})
	assert.NoError(t, err) // To16() succeeds for an IPv4-mapped address too

	_, err = BuildResponse(q, RCodeOK, []Answer{
		{Name: "example.com", Type: TypeA, TTL: 60, Addr: nil},
	})
	assert.Error(t, err)
}
