package services

import (
	"bytes"
	"context"
	"encoding/binary"
	"net"
	"strconv"
	"time"

	"github.com/anstrom/reconnode/internal/errors"
)

// SMB ports in the order they are tried.
var smbPorts = []uint16{445, 139}

const (
	smbSessionMessage   = 0x00
	smbCommandNegotiate = 0x72
	smbFlags            = 0x18
	smbDialectMarker    = 0x02

	smbSessionHeaderLen = 4
	smbStatusOffset     = smbSessionHeaderLen + 4 + 1
	smbMinResponseLen   = smbStatusOffset + 4
	smbReadBufferSize   = 256

	defaultSMBTimeout = 2 * time.Second
)

var smbMagic = [4]byte{0xFF, 'S', 'M', 'B'}

// negotiateDialects are offered in this order.
var negotiateDialects = []string{
	"PC NETWORK PROGRAM 1.0",
	"LANMAN1.0",
	"Windows for Workgroups 3.1a",
	"LM1.2X002",
	"LANMAN2.1",
	"NT LM 0.12",
}

// negotiateHeader is the fixed part of an SMB1 NEGOTIATE request, preceded by
// its NetBIOS session header.
type negotiateHeader struct {
	Session   uint32 // message type in the top byte, length below
	Protocol  [4]byte
	Command   uint8
	Status    uint32
	Flags     uint8
	Flags2    [2]byte
	Reserved  [11]byte
	TreeID    [4]byte
	ProcessID uint32
	UserID    uint32
	MuxID     uint32
	WordCount uint8
	ByteCount [2]byte // little endian
}

type negotiateRequest struct {
	Dialects []string
}

func newNegotiateRequest() negotiateRequest {
	return negotiateRequest{Dialects: negotiateDialects}
}

// MarshalBinary encodes the request with a session length that covers every
// byte after the session header.
func (r negotiateRequest) MarshalBinary() ([]byte, error) {
	var dialects bytes.Buffer
	for _, d := range r.Dialects {
		dialects.WriteByte(smbDialectMarker)
		dialects.WriteString(d)
		dialects.WriteByte(0)
	}

	h := negotiateHeader{
		Protocol: smbMagic,
		Command:  smbCommandNegotiate,
		Flags:    smbFlags,
		Flags2:   [2]byte{0x53, 0xC8},
		TreeID:   [4]byte{0xFF, 0xFF, 0xFF, 0xFE},
	}
	binary.LittleEndian.PutUint16(h.ByteCount[:], uint16(dialects.Len()))
	length := binary.Size(h) - smbSessionHeaderLen + dialects.Len()
	h.Session = smbSessionMessage<<24 | uint32(length)

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, h); err != nil {
		return nil, err
	}
	buf.Write(dialects.Bytes())
	return buf.Bytes(), nil
}

// negotiateResponse holds the part of a reply the null session check reads.
type negotiateResponse struct {
	Protocol [4]byte
	Status   uint32
}

// UnmarshalBinary decodes the SMB magic and the NT status.
func (r *negotiateResponse) UnmarshalBinary(data []byte) error {
	if len(data) < smbMinResponseLen {
		return errors.NewScanError(errors.CodeProtocolDecode,
			"smb response too short: "+strconv.Itoa(len(data))+" bytes")
	}
	copy(r.Protocol[:], data[smbSessionHeaderLen:smbSessionHeaderLen+4])
	if r.Protocol != smbMagic {
		return errors.NewScanError(errors.CodeProtocolDecode, "smb response has no SMB header")
	}
	r.Status = binary.LittleEndian.Uint32(data[smbStatusOffset:])
	return nil
}

// SMBChecker tests whether an SMB server accepts a negotiate from an
// unauthenticated client.
type SMBChecker struct {
	timeout time.Duration
	ports   []uint16
}

// NewSMBChecker creates a checker. Each connect and read is bounded by timeout.
func NewSMBChecker(timeout time.Duration) *SMBChecker {
	if timeout <= 0 {
		timeout = defaultSMBTimeout
	}
	return &SMBChecker{timeout: timeout, ports: smbPorts}
}

// Check sends one negotiate to addr:port. It reports false with an error when
// the server cannot be reached or does not answer in SMB.
func (c *SMBChecker) Check(ctx context.Context, addr string, port uint16) (bool, error) {
	req, err := newNegotiateRequest().MarshalBinary()
	if err != nil {
		return false, err
	}

	target := net.JoinHostPort(addr, strconv.Itoa(int(port)))
	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.DialContext(ctx, "tcp", target)
	if err != nil {
		return false, errors.WrapScanErrorWithTarget(errors.CodeResolveFailed, "smb connect failed", target, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return false, err
	}
	if _, err := conn.Write(req); err != nil {
		return false, errors.WrapScanErrorWithTarget(errors.CodeResolveFailed, "smb write failed", target, err)
	}

	buf := make([]byte, smbReadBufferSize)
	n, err := conn.Read(buf)
	if err != nil {
		return false, errors.WrapScanErrorWithTarget(errors.CodeResolveFailed, "smb read failed", target, err)
	}

	var resp negotiateResponse
	if err := resp.UnmarshalBinary(buf[:n]); err != nil {
		return false, err
	}
	return resp.Status == 0, nil
}
