package resolver

import (
	"bytes"
	"context"
	"encoding/binary"
	"net"
	"strconv"
	"time"

	"github.com/anstrom/reconnode/internal/errors"
)

// NetBIOS node status (NBSTAT) wire layout. A request is a fixed 50 bytes;
// the first name in a response starts at byte 57.
const (
	nbHeaderLen      = 12
	nbEncodedNameLen = 34 // length byte, 32 encoded bytes, terminator
	nbQuestionTail   = 4  // type, class
	nbRequestLen     = nbHeaderLen + nbEncodedNameLen + nbQuestionTail

	nbAnswerFixedLen = 10 // type, class, ttl, rdlength
	nbNameCountOff   = nbHeaderLen + nbEncodedNameLen + nbAnswerFixedLen
	nbFirstNameOff   = nbNameCountOff + 1
	nbMaxNameLen     = 15

	nbTransactionID = 0x8094
	nbTypeNBSTAT    = 0x0021
	nbClassIN       = 0x0001

	defaultNetBIOSPort = 137
	nbReadBufferSize   = 512
)

// nbstatRequest is the NBSTAT query for the wildcard name "*".
type nbstatRequest struct {
	TransactionID uint16
	Flags         uint16
	QDCount       uint16
	ANCount       uint16
	NSCount       uint16
	ARCount       uint16
	Name          [nbEncodedNameLen]byte
	QType         uint16
	QClass        uint16
}

func newNBSTATRequest() nbstatRequest {
	return nbstatRequest{
		TransactionID: nbTransactionID,
		QDCount:       1,
		Name:          encodeNetBIOSName("*"),
		QType:         nbTypeNBSTAT,
		QClass:        nbClassIN,
	}
}

// MarshalBinary encodes the request in network byte order.
func (r nbstatRequest) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(nbRequestLen)
	if err := binary.Write(&buf, binary.BigEndian, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodeNetBIOSName applies first-level encoding: the name is padded with
// zero bytes to 16 and every nibble becomes 'A' plus its value.
func encodeNetBIOSName(name string) [nbEncodedNameLen]byte {
	var out [nbEncodedNameLen]byte
	var raw [16]byte
	copy(raw[:], name)

	out[0] = 0x20
	for i, b := range raw {
		out[1+2*i] = 'A' + b>>4
		out[2+2*i] = 'A' + b&0x0f
	}
	return out
}

// nbstatResponse holds the decoded part of a node status response.
type nbstatResponse struct {
	TransactionID uint16
	NameCount     uint8
	FirstName     string
}

// UnmarshalBinary decodes a node status response. Only the first name is read.
func (r *nbstatResponse) UnmarshalBinary(data []byte) error {
	if len(data) <= nbFirstNameOff {
		return errors.NewScanError(errors.CodeProtocolDecode,
			"netbios response too short: "+strconv.Itoa(len(data))+" bytes")
	}
	r.TransactionID = binary.BigEndian.Uint16(data[0:2])
	r.NameCount = data[nbNameCountOff]
	r.FirstName = decodeNodeName(data[nbFirstNameOff:])
	return nil
}

// decodeNodeName reads printable characters up to a space or zero byte,
// skipping anything else, for at most 15 characters.
func decodeNodeName(b []byte) string {
	name := make([]byte, 0, nbMaxNameLen)
	for _, c := range b {
		if len(name) == nbMaxNameLen || c == ' ' || c == 0 {
			break
		}
		if c > ' ' && c <= '~' {
			name = append(name, c)
		}
	}
	return string(name)
}

// NetBIOS queries the host's NetBIOS name service.
type NetBIOS struct {
	port int
}

// NewNetBIOS creates a NetBIOS node status lookup on UDP 137.
func NewNetBIOS() *NetBIOS {
	return &NetBIOS{port: defaultNetBIOSPort}
}

// Name implements Method.
func (n *NetBIOS) Name() string { return "netbios" }

// Lookup sends one NBSTAT query and returns the first name in the reply.
func (n *NetBIOS) Lookup(ctx context.Context, addr string) (string, error) {
	req, err := newNBSTATRequest().MarshalBinary()
	if err != nil {
		return "", err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", net.JoinHostPort(addr, strconv.Itoa(n.port)))
	if err != nil {
		return "", errors.WrapScanErrorWithTarget(errors.CodeResolveFailed, "netbios dial failed", addr, err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultTimeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return "", err
	}

	if _, err := conn.Write(req); err != nil {
		return "", errors.WrapScanErrorWithTarget(errors.CodeResolveFailed, "netbios write failed", addr, err)
	}

	buf := make([]byte, nbReadBufferSize)
	size, err := conn.Read(buf)
	if err != nil {
		return "", errors.WrapScanErrorWithTarget(errors.CodeResolveFailed, "netbios read failed", addr, err)
	}

	var resp nbstatResponse
	if err := resp.UnmarshalBinary(buf[:size]); err != nil {
		return "", err
	}
	if resp.TransactionID != nbTransactionID {
		return "", errors.NewScanErrorWithTarget(errors.CodeProtocolDecode,
			"netbios response has transaction id 0x"+strconv.FormatUint(uint64(resp.TransactionID), 16), addr)
	}
	return resp.FirstName, nil
}
