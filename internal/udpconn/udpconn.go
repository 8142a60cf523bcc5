// Package udpconn is the owner-task-safe UDP transport shared by the
// scheduler, drone agent and fire source: one goroutine owns the socket
// and feeds a non-blocking channel, so the owning task never blocks on I/O.
package udpconn

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Datagram is one received UDP packet.
type Datagram struct {
	Data []byte
	Addr *net.UDPAddr
}

// Conn wraps a UDP socket, delivering inbound datagrams on Inbound() and
// accepting outbound sends via Send. The bounded receive timeout (§5,
// default 1s) lets the receive loop notice context cancellation promptly
// without busy-waiting.
type Conn struct {
	sock    *net.UDPConn
	inbound chan Datagram
	timeout time.Duration
}

// Listen opens a UDP socket on port and starts its receive loop.
func Listen(ctx context.Context, port int, timeout time.Duration) (*Conn, error) {
	addr := &net.UDPAddr{Port: port}
	sock, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("udpconn: listen :%d: %w", port, err)
	}
	c := &Conn{
		sock:    sock,
		inbound: make(chan Datagram, 256),
		timeout: timeout,
	}
	go c.recvLoop(ctx)
	return c, nil
}

func (c *Conn) recvLoop(ctx context.Context) {
	buf := make([]byte, 2048)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := c.sock.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return
		}
		n, addr, err := c.sock.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return
			default:
				continue
			}
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case c.inbound <- Datagram{Data: data, Addr: addr}:
		case <-ctx.Done():
			return
		default:
			// inbound queue full: drop, matching the transport's
			// best-effort, no-exactly-once-delivery contract (§1 Non-goals).
		}
	}
}

// Inbound returns the channel of received datagrams.
func (c *Conn) Inbound() <-chan Datagram {
	return c.inbound
}

// Send transmits data to addr.
func (c *Conn) Send(data []byte, addr *net.UDPAddr) error {
	_, err := c.sock.WriteToUDP(data, addr)
	return err
}

// SendString is a convenience wrapper around Send for the ASCII wire
// format's text lines.
func (c *Conn) SendString(line string, addr *net.UDPAddr) error {
	return c.Send([]byte(line), addr)
}

// LocalPort returns the bound local port.
func (c *Conn) LocalPort() int {
	return c.sock.LocalAddr().(*net.UDPAddr).Port
}

// Close closes the underlying socket.
func (c *Conn) Close() error {
	return c.sock.Close()
}

// ResolveAddr resolves a host:port string into a *net.UDPAddr.
func ResolveAddr(hostPort string) (*net.UDPAddr, error) {
	addr, err := net.ResolveUDPAddr("udp", hostPort)
	if err != nil {
		return nil, fmt.Errorf("udpconn: resolve %s: %w", hostPort, err)
	}
	return addr, nil
}
