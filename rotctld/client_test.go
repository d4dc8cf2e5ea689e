package rotctld

import (
	"bufio"
	"errors"
	"net"
	"testing"
)

// pipeClient returns a Client on one end of an in-memory connection and a
// scripted server on the other.
func pipeClient(t *testing.T, script func(conn net.Conn)) *Client {
	t.Helper()
	client, server := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer server.Close()
		script(server)
	}()
	t.Cleanup(func() {
		client.Close()
		<-done
	})
	return &Client{conn: client}
}

func reply(t *testing.T, conn net.Conn, want, response string) {
	t.Helper()
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Errorf("server read: %v", err)
		return
	}
	if line != want {
		t.Errorf("server got %q, want %q", line, want)
	}
	conn.Write([]byte(response))
}

func TestPosition(t *testing.T) {
	c := pipeClient(t, func(conn net.Conn) {
		reply(t, conn, "p\n", "123.456000\n45.000000\n")
	})
	az, el, err := c.Position()
	if err != nil {
		t.Fatal(err)
	}
	if az != 123.456 || el != 45 {
		t.Errorf("Position = (%v, %v), want (123.456, 45)", az, el)
	}
}

func TestPositionError(t *testing.T) {
	c := pipeClient(t, func(conn net.Conn) {
		reply(t, conn, "p\n", "RPRT -1\n")
	})
	_, _, err := c.Position()
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("Position error = %v, want ProtocolError", err)
	}
	if perr.Code != -1 {
		t.Errorf("code = %d, want -1", perr.Code)
	}
}

func TestPositionMalformed(t *testing.T) {
	c := pipeClient(t, func(conn net.Conn) {
		reply(t, conn, "p\n", "123.456000")
	})
	if _, _, err := c.Position(); err == nil {
		t.Error("Position on one-field reply = nil error")
	}
}

func TestSetPosition(t *testing.T) {
	c := pipeClient(t, func(conn net.Conn) {
		reply(t, conn, "P 123.40 45.00\n", "RPRT 0\n")
	})
	if err := c.SetPosition(123.4, 45); err != nil {
		t.Fatal(err)
	}
}

func TestSetPositionSoftError(t *testing.T) {
	c := pipeClient(t, func(conn net.Conn) {
		reply(t, conn, "P 10.00 0.00\n", "RPRT -22\n")
		// The link must still be usable after a soft error.
		reply(t, conn, "p\n", "10.000000\n0.000000\n")
	})
	err := c.SetPosition(10, 0)
	var perr *ProtocolError
	if !errors.As(err, &perr) || perr.Code != -22 {
		t.Fatalf("SetPosition error = %v, want ProtocolError -22", err)
	}
	if errors.Is(err, ErrLinkDown) {
		t.Error("soft error reported as link down")
	}
	if _, _, err := c.Position(); err != nil {
		t.Errorf("Position after soft error: %v", err)
	}
}

func TestStop(t *testing.T) {
	c := pipeClient(t, func(conn net.Conn) {
		reply(t, conn, "S\n", "RPRT 0\n")
	})
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestLinkDown(t *testing.T) {
	client, server := net.Pipe()
	server.Close()
	c := &Client{conn: client}
	defer client.Close()
	_, err := c.WriteRead("p\n")
	if !errors.Is(err, ErrLinkDown) {
		t.Errorf("WriteRead on closed peer = %v, want ErrLinkDown", err)
	}
}

func TestCloseSendsQuit(t *testing.T) {
	got := make(chan string, 1)
	client, server := net.Pipe()
	go func() {
		line, _ := bufio.NewReader(server).ReadString('\n')
		got <- line
	}()
	c := &Client{conn: client}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if line := <-got; line != "q\n" {
		t.Errorf("Close sent %q, want %q", line, "q\n")
	}
}

func TestStatusCode(t *testing.T) {
	for _, tt := range []struct {
		reply string
		want  int
	}{
		{"RPRT 0\n", 0},
		{"RPRT -22\n", -22},
		{"RPRT 2\n", 2},
		{"RPR", -1},
		{"RPRT x\n", -1},
		{"", -1},
	} {
		if got := statusCode(tt.reply); got != tt.want {
			t.Errorf("statusCode(%q) = %d, want %d", tt.reply, got, tt.want)
		}
	}
}
