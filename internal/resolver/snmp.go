package resolver

import (
	"context"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/anstrom/reconnode/internal/errors"
)

// OIDSysName is SNMPv2-MIB::sysName.0.
const OIDSysName = "1.3.6.1.2.1.1.5.0"

const defaultSNMPPort = 161

// SNMPName reads sysName.0 over SNMP v2c.
type SNMPName struct {
	community string
	port      uint16
}

// NewSNMPName creates an SNMP lookup using community.
func NewSNMPName(community string) *SNMPName {
	return &SNMPName{community: community, port: defaultSNMPPort}
}

// Name implements Method.
func (s *SNMPName) Name() string { return "snmp" }

// Lookup returns the device's sysName.
func (s *SNMPName) Lookup(ctx context.Context, addr string) (string, error) {
	timeout := DefaultTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if timeout <= 0 {
		return "", ctx.Err()
	}

	client := &gosnmp.GoSNMP{
		Target:    addr,
		Port:      s.port,
		Community: s.community,
		Version:   gosnmp.Version2c,
		Timeout:   timeout,
		Retries:   0,
		Context:   ctx,
	}
	if err := client.Connect(); err != nil {
		return "", errors.WrapScanErrorWithTarget(errors.CodeResolveFailed, "snmp connect failed", addr, err)
	}
	defer client.Conn.Close()

	pkt, err := client.Get([]string{OIDSysName})
	if err != nil {
		return "", errors.WrapScanErrorWithTarget(errors.CodeResolveFailed, "snmp get failed", addr, err)
	}
	return sysNameFromPacket(pkt), nil
}

func sysNameFromPacket(pkt *gosnmp.SnmpPacket) string {
	if pkt == nil {
		return ""
	}
	for _, v := range pkt.Variables {
		if strings.TrimPrefix(v.Name, ".") != OIDSysName || v.Type != gosnmp.OctetString {
			continue
		}
		if b, ok := v.Value.([]byte); ok {
			return strings.TrimSpace(string(b))
		}
	}
	return ""
}
