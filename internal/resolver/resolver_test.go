package resolver

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/reconnode/internal/config"
	rerrors "github.com/anstrom/reconnode/internal/errors"
)

type fakeMethod struct {
	name   string
	result string
	err    error
	delay  time.Duration
	calls  int
	addr   string
}

func (f *fakeMethod) Name() string { return f.name }

func (f *fakeMethod) Lookup(ctx context.Context, addr string) (string, error) {
	f.calls++
	f.addr = addr
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.result, f.err
}

func TestChain_Resolve(t *testing.T) {
	const prefix = "10.0.0."

	t.Run("first name wins", func(t *testing.T) {
		first := &fakeMethod{name: "dns", err: errors.New("nxdomain")}
		second := &fakeMethod{name: "netbios", result: "NAS01"}
		third := &fakeMethod{name: "snmp", result: "unused"}

		chain := NewChain(time.Second, first, second, third)
		name, ok := chain.Resolve(context.Background(), prefix, 42)

		assert.True(t, ok)
		assert.Equal(t, "NAS01", name)
		assert.Equal(t, "10.0.0.42", first.addr)
		assert.Equal(t, 0, third.calls)

		_, _ = chain.Resolve(context.Background(), "172.16.0.", 42)
		assert.Equal(t, "172.16.0.42", first.addr, "address follows the prefix of the call")
	})

	t.Run("no method finds a name", func(t *testing.T) {
		chain := NewChain(time.Second, &fakeMethod{name: "dns"}, &fakeMethod{name: "netbios"})
		name, ok := chain.Resolve(context.Background(), prefix, 1)
		assert.False(t, ok)
		assert.Empty(t, name)
	})

	t.Run("bounded by timeout", func(t *testing.T) {
		slow := &fakeMethod{name: "dns", result: "late", delay: time.Second}
		after := &fakeMethod{name: "netbios", result: "never"}
		chain := NewChain(20*time.Millisecond, slow, after)

		start := time.Now()
		_, ok := chain.Resolve(context.Background(), prefix, 1)
		assert.False(t, ok)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
		assert.Equal(t, 0, after.calls)
	})
}

func TestNew_MethodSelection(t *testing.T) {
	chain := New(config.ResolverConfig{DNSServer: "127.0.0.1:53"})
	require.Len(t, chain.methods, 1)
	assert.Equal(t, "dns", chain.methods[0].Name())
	assert.Equal(t, DefaultTimeout, chain.timeout)

	chain = New(config.ResolverConfig{
		DNSServer:     "127.0.0.1:53",
		EnableMDNS:    true,
		EnableNetBIOS: true,
		SNMPCommunity: "public",
		Timeout:       time.Second,
	})
	require.Len(t, chain.methods, 4)
	assert.Equal(t, "mdns", chain.methods[1].Name())
	assert.Equal(t, "netbios", chain.methods[2].Name())
	assert.Equal(t, "snmp", chain.methods[3].Name())
}

func TestNBSTATRequest_WireBytes(t *testing.T) {
	expected := []byte{
		0x80, 0x94, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x20, 0x43, 0x4B, 0x41,
		0x41, 0x41, 0x41, 0x41, 0x41, 0x41, 0x41, 0x41,
		0x41, 0x41, 0x41, 0x41, 0x41, 0x41, 0x41, 0x41,
		0x41, 0x41, 0x41, 0x41, 0x41, 0x41, 0x41, 0x41,
		0x41, 0x41, 0x41, 0x41, 0x41, 0x00, 0x00, 0x21,
		0x00, 0x01,
	}

	got, err := newNBSTATRequest().MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, got, nbRequestLen)
	assert.Equal(t, expected, got)
}

// nbstatReply builds a node status response carrying names.
func nbstatReply(names ...string) []byte {
	reply := make([]byte, nbFirstNameOff)
	reply[0], reply[1] = 0x80, 0x94
	reply[nbNameCountOff] = byte(len(names))
	for _, n := range names {
		entry := make([]byte, 18)
		for i := range entry[:15] {
			entry[i] = ' '
		}
		copy(entry, n)
		reply = append(reply, entry...)
	}
	return reply
}

func TestNBSTATResponse_Unmarshal(t *testing.T) {
	t.Run("first name", func(t *testing.T) {
		var resp nbstatResponse
		require.NoError(t, resp.UnmarshalBinary(nbstatReply("WORKSTATION1", "WORKGROUP")))
		assert.Equal(t, uint16(nbTransactionID), resp.TransactionID)
		assert.Equal(t, uint8(2), resp.NameCount)
		assert.Equal(t, "WORKSTATION1", resp.FirstName)
	})

	t.Run("name is capped at 15 characters", func(t *testing.T) {
		data := append(make([]byte, nbFirstNameOff), []byte("ABCDEFGHIJKLMNOPQRST")...)
		var resp nbstatResponse
		require.NoError(t, resp.UnmarshalBinary(data))
		assert.Equal(t, "ABCDEFGHIJKLMNO", resp.FirstName)
	})

	t.Run("non printable bytes are skipped", func(t *testing.T) {
		data := append(make([]byte, nbFirstNameOff), 'N', 0x07, 'A', 'S', 0x00, 'X')
		var resp nbstatResponse
		require.NoError(t, resp.UnmarshalBinary(data))
		assert.Equal(t, "NAS", resp.FirstName)
	})

	t.Run("short response", func(t *testing.T) {
		var resp nbstatResponse
		err := resp.UnmarshalBinary(make([]byte, nbFirstNameOff))
		require.Error(t, err)
		assert.True(t, rerrors.IsCode(err, rerrors.CodeProtocolDecode))
	})
}

// startNBSTATResponder answers one datagram with reply and hands back what it received.
func startNBSTATResponder(t *testing.T, reply []byte) (*NetBIOS, <-chan []byte) {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })

	received := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 512)
		n, from, err := pc.ReadFrom(buf)
		if err != nil {
			return
		}
		received <- append([]byte(nil), buf[:n]...)
		_, _ = pc.WriteTo(reply, from)
	}()
	return &NetBIOS{port: pc.LocalAddr().(*net.UDPAddr).Port}, received
}

func TestNetBIOS_Lookup(t *testing.T) {
	t.Run("returns the first name", func(t *testing.T) {
		nb, received := startNBSTATResponder(t, nbstatReply("PRINTER"))
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		name, err := nb.Lookup(ctx, "127.0.0.1")
		require.NoError(t, err)
		assert.Equal(t, "PRINTER", name)
		assert.Len(t, <-received, nbRequestLen)
	})

	t.Run("rejects a reply to another transaction", func(t *testing.T) {
		reply := nbstatReply("SPOOFED")
		reply[0], reply[1] = 0x12, 0x34
		nb, _ := startNBSTATResponder(t, reply)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		name, err := nb.Lookup(ctx, "127.0.0.1")
		require.Error(t, err)
		assert.True(t, rerrors.IsCode(err, rerrors.CodeProtocolDecode))
		assert.Contains(t, err.Error(), "0x1234")
		assert.Empty(t, name)
	})
}

func startDNSServer(t *testing.T, handler dns.HandlerFunc) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	server := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = server.ActivateAndServe() }()
	t.Cleanup(func() { _ = server.Shutdown() })

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("dns server did not start")
	}
	return pc.LocalAddr().String()
}

func TestMDNSName_Lookup(t *testing.T) {
	addr := startDNSServer(t, func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(req)
		q := req.Question[0]
		if q.Qtype == dns.TypePTR && q.Name == "1.0.0.127.in-addr.arpa." && !req.RecursionDesired {
			m.Answer = append(m.Answer, &dns.PTR{
				Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: 120},
				Ptr: "living-room-tv.local.",
			})
		}
		_ = w.WriteMsg(m)
	})
	_, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	m := NewMDNSName()
	m.port, err = strconv.Atoi(port)
	require.NoError(t, err)
	assert.Equal(t, "mdns", m.Name())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	name, err := m.Lookup(ctx, "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "living-room-tv.local", name)

	_, err = m.Lookup(ctx, "bogus")
	assert.True(t, rerrors.IsCode(err, rerrors.CodeTargetInvalid))
}

func TestReverseDNS_Lookup(t *testing.T) {
	addr := startDNSServer(t, func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(req)
		q := req.Question[0]
		if q.Qtype == dns.TypePTR && q.Name == "7.0.0.10.in-addr.arpa." {
			m.Answer = append(m.Answer, &dns.PTR{
				Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: 60},
				Ptr: "router.lan.",
			})
		} else {
			m.Rcode = dns.RcodeNameError
		}
		_ = w.WriteMsg(m)
	})

	r := NewReverseDNS(addr)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	name, err := r.Lookup(ctx, "10.0.0.7")
	require.NoError(t, err)
	assert.Equal(t, "router.lan", name)

	name, err = r.Lookup(ctx, "10.0.0.8")
	require.NoError(t, err)
	assert.Empty(t, name)

	_, err = r.Lookup(ctx, "not-an-ip")
	assert.True(t, rerrors.IsCode(err, rerrors.CodeTargetInvalid))
}

func TestSysNameFromPacket(t *testing.T) {
	pkt := &gosnmp.SnmpPacket{
		Variables: []gosnmp.SnmpPDU{
			{Name: ".1.3.6.1.2.1.1.1.0", Type: gosnmp.OctetString, Value: []byte("descr")},
			{Name: "." + OIDSysName, Type: gosnmp.OctetString, Value: []byte(" core-switch \n")},
		},
	}
	assert.Equal(t, "core-switch", sysNameFromPacket(pkt))

	noSuch := &gosnmp.SnmpPacket{
		Variables: []gosnmp.SnmpPDU{{Name: "." + OIDSysName, Type: gosnmp.NoSuchObject}},
	}
	assert.Empty(t, sysNameFromPacket(noSuch))
	assert.Empty(t, sysNameFromPacket(nil))
}
