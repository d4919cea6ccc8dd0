package singleinstance

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"
)

const (
	residentHost = "127.0.0.1"
	pingRequest  = "PING\n"
	pongResponse = "PONG\n"
	readTimeout  = 3 * time.Second
)

// tcpServer implements Server over TCP loopback.
type tcpServer struct {
	rng       PortRange
	lis       net.Listener
	incoming  chan *tcpConn
	port      int
	closeOnce sync.Once
	closed    chan struct{}
}

func newTcpServer(r PortRange) *tcpServer {
	return &tcpServer{rng: r.clamp(), incoming: make(chan *tcpConn, 8), closed: make(chan struct{})}
}

// Start binds the first free port in the range.
func (s *tcpServer) Start(ctx context.Context) error {
	if s.lis != nil {
		return nil
	}
	var lastErr error
	for port := s.rng.Start; port <= s.rng.End; port++ {
		addr := fmt.Sprintf("%s:%d", residentHost, port)
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		s.lis = lis
		s.port = port
		log.Printf("singleinstance: listening on %s", addr)
		go s.acceptLoop(ctx)
		return nil
	}
	log.Printf("singleinstance: no free port in %d-%d: %v", s.rng.Start, s.rng.End, lastErr)
	return fmt.Errorf("singleinstance: no free port in %d-%d: %w", s.rng.Start, s.rng.End, lastErr)
}

// Port returns the bound port (0 if not started).
func (s *tcpServer) Port() int { return s.port }

func (s *tcpServer) acceptLoop(ctx context.Context) {
	for {
		c, err := s.lis.Accept()
		if err != nil {
			return
		}
		go s.handle(ctx, c)
	}
}

func (s *tcpServer) handle(ctx context.Context, c net.Conn) {
	remote := c.RemoteAddr().String()
	_ = c.SetDeadline(time.Now().Add(readTimeout))
	br := bufio.NewReader(c)
	line, err := br.ReadString('\n')
	if err != nil {
		_ = c.Close()
		return
	}
	bw := bufio.NewWriter(c)
	if line == pingRequest {
		log.Printf("singleinstance: PING from %s -> PONG", remote)
		_, _ = bw.WriteString(pongResponse)
		_ = bw.Flush()
		_ = c.Close()
		return
	}

	req := parseRequest(line)
	log.Printf("singleinstance: %s request from %s", req.Command, remote)
	_ = c.SetDeadline(time.Time{})
	tc := &tcpConn{c: c, r: req, w: bw}
	select {
	case s.incoming <- tc:
	case <-s.closed:
		_ = c.Close()
	case <-ctx.Done():
		_ = c.Close()
	}
}

func parseRequest(line string) Request {
	line = strings.TrimSpace(line)
	cmd, arg, _ := strings.Cut(line, " ")
	return Request{Command: strings.ToUpper(cmd), Arg: strings.TrimSpace(arg)}
}

func (s *tcpServer) Next(ctx context.Context) (Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return nil, net.ErrClosed
	case tc := <-s.incoming:
		return tc, nil
	}
}

func (s *tcpServer) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.lis != nil {
			_ = s.lis.Close()
		}
	})
	return nil
}

type tcpConn struct {
	c net.Conn
	r Request
	w *bufio.Writer
}

func (tc *tcpConn) Request() Request { return tc.r }

func (tc *tcpConn) Respond(payload string) error {
	line := "OK"
	if payload != "" {
		line += " " + oneLine(payload)
	}
	if _, err := tc.w.WriteString(line + "\n"); err != nil {
		return err
	}
	return tc.w.Flush()
}

func (tc *tcpConn) RespondError(msg string) error {
	if _, err := tc.w.WriteString("ERROR " + oneLine(msg) + "\n"); err != nil {
		return err
	}
	return tc.w.Flush()
}

func (tc *tcpConn) Close() error { return tc.c.Close() }

func oneLine(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
