package singleinstance

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

type tcpClient struct {
	rng PortRange
}

func newTcpClient(r PortRange) *tcpClient { return &tcpClient{rng: r.clamp()} }

func (c *tcpClient) Send(ctx context.Context, req Request) (string, bool, error) {
	timeout := dialTimeout(ctx, 2*time.Second)
	// scan configured range for resident using PING then request
	for port := c.rng.Start; port <= c.rng.End; port++ {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}
		addr := net.JoinHostPort(residentHost, strconv.Itoa(port))
		if !ping(addr, timeout) {
			continue
		}
		reply, err := c.exchange(ctx, addr, req, timeout)
		return reply, true, err
	}
	return "", false, nil
}

func (c *tcpClient) exchange(ctx context.Context, addr string, req Request, timeout time.Duration) (string, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	} else {
		// STOP waits for the final transcript write.
		_ = conn.SetDeadline(time.Now().Add(30 * time.Second))
	}

	line := req.Command
	if req.Arg != "" {
		line += " " + req.Arg
	}
	w := bufio.NewWriter(conn)
	if _, err := w.WriteString(line + "\n"); err != nil {
		return "", err
	}
	if err := w.Flush(); err != nil {
		return "", err
	}

	resp, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", err
	}
	resp = strings.TrimRight(resp, "\r\n")
	switch {
	case resp == "OK":
		return "", nil
	case strings.HasPrefix(resp, "OK "):
		return strings.TrimPrefix(resp, "OK "), nil
	case strings.HasPrefix(resp, "ERROR"):
		return "", fmt.Errorf("%w: %s", ErrRemote, strings.TrimSpace(strings.TrimPrefix(resp, "ERROR")))
	}
	return "", fmt.Errorf("singleinstance: unexpected reply %q", resp)
}
