// Package rotctld talks to a hamlib rotctld daemon over its line-oriented
// TCP protocol and maintains a background session that relays commanded
// positions at a bounded duty cycle.
package rotctld

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
	"time"
)

// replyBuf caps the size of a single daemon reply.
const replyBuf = 128

const dialTimeout = 5 * time.Second

// ErrLinkDown reports that the TCP link to the daemon failed. Callers can
// distinguish it from soft protocol errors with errors.Is.
var ErrLinkDown = errors.New("link down")

// ProtocolError is a nonzero status returned by the daemon. The link is
// still usable after one.
type ProtocolError struct {
	Cmd  string
	Code int
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("rotctld: command %q returned RPRT %d", e.Cmd, e.Code)
}

// Client is a connection to a rotctld daemon. It is not safe for
// concurrent use; a Session owns one for its whole lifetime.
type Client struct {
	conn net.Conn
	buf  [replyBuf]byte
}

// Open dials the daemon.
func Open(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connecting to rotctld at %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// WriteRead sends one command line and returns whatever bytes arrive in a
// single read. An empty reply is logged but left to the caller to judge.
func (c *Client) WriteRead(cmd string) (string, error) {
	if _, err := io.WriteString(c.conn, cmd); err != nil {
		return "", fmt.Errorf("%w: sending %q: %v", ErrLinkDown, strings.TrimSpace(cmd), err)
	}
	n, err := c.conn.Read(c.buf[:])
	if err != nil {
		return "", fmt.Errorf("%w: reading reply to %q: %v", ErrLinkDown, strings.TrimSpace(cmd), err)
	}
	if n == 0 {
		log.Printf("rotctld: empty reply to %q", strings.TrimSpace(cmd))
	}
	return string(c.buf[:n]), nil
}

// Position requests the current azimuth and elevation.
func (c *Client) Position() (az, el float64, err error) {
	reply, err := c.WriteRead("p\n")
	if err != nil {
		return 0, 0, err
	}
	if strings.HasPrefix(reply, "RPRT") {
		return 0, 0, &ProtocolError{Cmd: "p", Code: statusCode(reply)}
	}
	fields := strings.SplitN(reply, "\n", 3)
	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("rotctld: malformed position reply %q", strings.TrimSpace(reply))
	}
	az, errAz := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	el, errEl := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if errAz != nil || errEl != nil {
		return 0, 0, fmt.Errorf("rotctld: malformed position reply %q", strings.TrimSpace(reply))
	}
	return az, el, nil
}

// SetPosition commands a new azimuth and elevation. A nonzero status is
// returned as a ProtocolError; the link stays up.
func (c *Client) SetPosition(az, el float64) error {
	cmd := fmt.Sprintf("P %.2f %.2f\n", az, el)
	reply, err := c.WriteRead(cmd)
	if err != nil {
		return err
	}
	if code := statusCode(reply); code != 0 {
		return &ProtocolError{Cmd: strings.TrimSpace(cmd), Code: code}
	}
	return nil
}

// Stop halts rotator motion.
func (c *Client) Stop() error {
	reply, err := c.WriteRead("S\n")
	if err != nil {
		return err
	}
	if code := statusCode(reply); code != 0 {
		return &ProtocolError{Cmd: "S", Code: code}
	}
	return nil
}

// Close sends a polite quit and closes the socket regardless of whether
// the quit is acknowledged.
func (c *Client) Close() error {
	io.WriteString(c.conn, "q\n")
	return c.conn.Close()
}

// statusCode extracts the numeric status from a reply of the form
// "RPRT n\n". The code starts at a fixed byte offset past the tag.
func statusCode(reply string) int {
	if len(reply) < 5 {
		return -1
	}
	fields := strings.Fields(reply[4:])
	if len(fields) == 0 {
		return -1
	}
	code, err := strconv.Atoi(fields[0])
	if err != nil {
		return -1
	}
	return code
}
