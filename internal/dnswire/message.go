package dnswire

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Record type and class constants this codec understands (RFC 1035, RFC 3596).
const (
	TypeA     uint16 = 1
	TypeAAAA  uint16 = 28
	ClassINET uint16 = 1
)

// Response codes (RFC 1035 §4.1.1).
const (
	RCodeOK       uint16 = 0
	RCodeFormErr  uint16 = 1
	RCodeServFail uint16 = 2
	RCodeNXDomain uint16 = 3
	RCodeNotImp   uint16 = 4
)

const (
	flagQR uint16 = 0x8000
	flagRD uint16 = 0x0100
	flagRA uint16 = 0x0080
)

const headerSize = 12

// Header is the fixed 12-byte DNS message header.
type Header struct {
	ID      uint16
	Flags   uint16
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// Question is one entry of a message's question section.
type Question struct {
	Name  string
	Type  uint16
	Class uint16
}

// Answer is an A or AAAA resource record answering a Question.
type Answer struct {
	Name string
	Type uint16
	TTL  uint32
	Addr net.IP
}

// Query is a parsed incoming DNS request: header plus its single question.
type Query struct {
	Header   Header
	Question Question
}

// ParseQuery parses a well-formed single-question query. Multi-question
// messages and opcodes other than standard query are rejected, mirroring
// the bounded-parsing posture of a production resolver's front door.
func ParseQuery(msg []byte) (Query, error) {
	if len(msg) < headerSize {
		return Query{}, fmt.Errorf("%w: message shorter than header", ErrMalformed)
	}

	h := Header{
		ID:      binary.BigEndian.Uint16(msg[0:2]),
		Flags:   binary.BigEndian.Uint16(msg[2:4]),
		QDCount: binary.BigEndian.Uint16(msg[4:6]),
		ANCount: binary.BigEndian.Uint16(msg[6:8]),
		NSCount: binary.BigEndian.Uint16(msg[8:10]),
		ARCount: binary.BigEndian.Uint16(msg[10:12]),
	}
	if h.Flags&flagQR != 0 {
		return Query{}, fmt.Errorf("%w: QR flag set on a query", ErrMalformed)
	}
	if opcode := (h.Flags >> 11) & 0x0F; opcode != 0 {
		return Query{}, fmt.Errorf("%w: unsupported opcode %d", ErrMalformed, opcode)
	}
	if h.QDCount != 1 {
		return Query{}, fmt.Errorf("%w: expected exactly one question, got %d", ErrMalformed, h.QDCount)
	}

	off := headerSize
	name, err := DecodeName(msg, &off)
	if err != nil {
		return Query{}, err
	}
	if off+4 > len(msg) {
		return Query{}, fmt.Errorf("%w: truncated question", ErrMalformed)
	}
	q := Question{
		Name:  NormalizeName(name),
		Type:  binary.BigEndian.Uint16(msg[off : off+2]),
		Class: binary.BigEndian.Uint16(msg[off+2 : off+4]),
	}
	return Query{Header: h, Question: q}, nil
}

// BuildResponse serializes a response to req's question carrying rcode and
// answers. An empty answers slice with RCodeOK means "no data of this type".
func BuildResponse(req Query, rcode uint16, answers []Answer) ([]byte, error) {
	flags := flagQR | (req.Header.Flags & flagRD) | flagRA
	flags |= rcode & 0x000F

	h := Header{
		ID:      req.Header.ID,
		Flags:   flags,
		QDCount: 1,
		ANCount: uint16(len(answers)),
	}

	buf := make([]byte, 0, 512)
	hb := make([]byte, headerSize)
	binary.BigEndian.PutUint16(hb[0:2], h.ID)
	binary.BigEndian.PutUint16(hb[2:4], h.Flags)
	binary.BigEndian.PutUint16(hb[4:6], h.QDCount)
	binary.BigEndian.PutUint16(hb[6:8], h.ANCount)
	binary.BigEndian.PutUint16(hb[8:10], h.NSCount)
	binary.BigEndian.PutUint16(hb[10:12], h.ARCount)
	buf = append(buf, hb...)

	qname, err := EncodeName(req.Question.Name)
	if err != nil {
		return nil, err
	}
	buf = append(buf, qname...)
	qtail := make([]byte, 4)
	binary.BigEndian.PutUint16(qtail[0:2], req.Question.Type)
	binary.BigEndian.PutUint16(qtail[2:4], req.Question.Class)
	buf = append(buf, qtail...)

	for _, a := range answers {
		rr, err := marshalAnswer(a)
		if err != nil {
			return nil, err
		}
		buf = append(buf, rr...)
	}
	return buf, nil
}

func marshalAnswer(a Answer) ([]byte, error) {
	name, err := EncodeName(a.Name)
	if err != nil {
		return nil, err
	}

	var rdata []byte
	switch a.Type {
	case TypeA:
		ip4 := a.Addr.To4()
		if ip4 == nil {
			return nil, fmt.Errorf("%w: A record requires an IPv4 address", ErrMalformed)
		}
		rdata = []byte(ip4)
	case TypeAAAA:
		ip16 := a.Addr.To16()
		if ip16 == nil {
			return nil, fmt.Errorf("%w: AAAA record requires an IPv6 address", ErrMalformed)
		}
		rdata = []byte(ip16)
	default:
		return nil, fmt.Errorf("%w: unsupported answer type %d", ErrMalformed, a.Type)
	}

	head := make([]byte, 10)
	binary.BigEndian.PutUint16(head[0:2], a.Type)
	binary.BigEndian.PutUint16(head[2:4], ClassINET)
	binary.BigEndian.PutUint32(head[4:8], a.TTL)
	binary.BigEndian.PutUint16(head[8:10], uint16(len(rdata)))

	out := make([]byte, 0, len(name)+len(head)+len(rdata))
	out = append(out, name...)
	out = append(out, head...)
	out = append(out, rdata...)
	return out, nil
}
