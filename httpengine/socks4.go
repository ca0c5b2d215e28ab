package httpengine

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
)

// socks4Dialer implements the SOCKS4/SOCKS4A CONNECT handshake, which
// neither the standard library nor golang.org/x/net/proxy implements
// (that package only speaks SOCKS5), grounded on the original HTTP
// client's MCL_PROXY_SOCKS4/MCL_PROXY_SOCKS4A enum members.
type socks4Dialer struct {
	proxyAddr string
	// resolveLocally is true for plain SOCKS4 (resolve the target host
	// before talking to the proxy); false for SOCKS4A (let the proxy
	// resolve the hostname).
	resolveLocally bool
}

func (d *socks4Dialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", d.proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("dial socks4 proxy: %w", err)
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("split target address: %w", err)
	}
	var port uint16
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		conn.Close()
		return nil, fmt.Errorf("parse target port: %w", err)
	}

	req := []byte{0x04, 0x01}
	portBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(portBytes, port)
	req = append(req, portBytes...)

	if d.resolveLocally {
		ip := net.ParseIP(host)
		if ip == nil {
			resolved, err := net.ResolveIPAddr("ip4", host)
			if err != nil {
				conn.Close()
				return nil, fmt.Errorf("resolve socks4 target host: %w", err)
			}
			ip = resolved.IP
		}
		ip4 := ip.To4()
		if ip4 == nil {
			conn.Close()
			return nil, fmt.Errorf("socks4 requires an IPv4 target address")
		}
		req = append(req, ip4...)
		req = append(req, 0x00) // empty user id
	} else {
		// SOCKS4A: invalid-IP marker 0.0.0.x followed by the hostname.
		req = append(req, 0x00, 0x00, 0x00, 0x01)
		req = append(req, 0x00) // empty user id
		req = append(req, []byte(host)...)
		req = append(req, 0x00)
	}

	if _, err := conn.Write(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("write socks4 request: %w", err)
	}

	reply := make([]byte, 8)
	if _, err := readFull(conn, reply); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read socks4 reply: %w", err)
	}
	if reply[1] != 0x5A {
		conn.Close()
		return nil, fmt.Errorf("socks4 proxy rejected connection, status 0x%02x", reply[1])
	}
	return conn, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
