package dnsecho

import (
	"net"
	"testing"
	"time"

	"github.com/abyss-go/abyss"
	"github.com/abyss-go/abyss/internal/dnswire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSocket struct {
	sentTo      net.Addr
	sentPayload []byte
}

func (r *recordingSocket) Recv(time.Duration) (abyss.Datagram, error) {
	return abyss.Datagram{}, nil
}

func (r *recordingSocket) Send(dest net.Addr, payload []byte) error {
	r.sentTo = dest
	r.sentPayload = append([]byte(nil), payload...)
	return nil
}

func buildQuery(t *testing.T, name string, qtype uint16) []byte {
	t.Helper()
	encoded, err := dnswire.EncodeName(name)
	require.NoError(t, err)
	msg := make([]byte, 0, 12+len(encoded)+4)
	msg = append(msg, 0x00, 0x01, 0x01, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00)
	msg = append(msg, encoded...)
	msg = append(msg, byte(qtype>>8), byte(qtype), 0x00, 0x01)
	return msg
}

func TestHandlerAnswersFromZone(t *testing.T) {
	zone := NewZone(map[string][]net.IP{
		"example.com": {net.ParseIP("93.184.216.34")},
	})
	h := NewHandler(zone, "", nil)

	sock := &recordingSocket{}
	dg := abyss.Datagram{Payload: buildQuery(t, "example.com", dnswire.TypeA), Source: &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9999}}

	result := h.HandleData(dg, abyss.InitialState{Socket: sock, Source: dg.Source})
	assert.Equal(t, abyss.ActionClose, result.Action)
	require.NotNil(t, sock.sentPayload)

	resp, err := dnswire.ParseQuery(sock.sentPayload)
	_ = resp
	assert.Error(t, err, "response has QR set, so it is not itself a valid query")
}

func TestHandlerReturnsNXDomainWithoutForwarder(t *testing.T) {
	zone := NewZone(nil)
	h := NewHandler(zone, "", nil)

	sock := &recordingSocket{}
	dg := abyss.Datagram{Payload: buildQuery(t, "unknown.test", dnswire.TypeA), Source: &net.UDPAddr{}}

	h.HandleData(dg, abyss.InitialState{Socket: sock, Source: dg.Source})
	require.NotNil(t, sock.sentPayload)
	assert.Equal(t, byte(dnswire.RCodeNXDomain), sock.sentPayload[3]&0x0F)
}

func TestHandlerDropsQueryWithoutInitialState(t *testing.T) {
	zone := NewZone(nil)
	h := NewHandler(zone, "", nil)

	result := h.HandleData(abyss.Datagram{Payload: buildQuery(t, "example.com", dnswire.TypeA)}, "not-initial-state")
	assert.Equal(t, abyss.ActionClose, result.Action)
}
