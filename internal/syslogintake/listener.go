// Package syslogintake implements the Syslog Listener intake path: UDP
// (best-effort, drops under overload) and TCP (newline- or octet-counted
// framing) listeners that parse RFC 3164/5424 messages and hand the result
// to the ingestion Buffer.
package syslogintake

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"grepwise/internal/logentry"
	"grepwise/internal/logging"
	"grepwise/internal/syslogparse"
)

// Enqueuer is the ingestion buffer's write path, as the Listener needs it.
type Enqueuer interface {
	Enqueue(ctx context.Context, e logentry.LogEntry, timeout time.Duration) error
}

// Config configures the UDP and/or TCP syslog listeners. Leaving an address
// empty disables that transport.
type Config struct {
	UDPAddr        string
	TCPAddr        string
	SourceName     string
	EnqueueTimeout time.Duration
}

// Listener accepts syslog messages over UDP and TCP and forwards parsed
// entries to an Enqueuer.
type Listener struct {
	cfg    Config
	out    Enqueuer
	logger *slog.Logger

	mu          sync.Mutex
	udpConn     *net.UDPConn
	tcpListener net.Listener
}

// New creates a Listener. Run must be called to start accepting traffic.
func New(cfg Config, out Enqueuer, logger *slog.Logger) *Listener {
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = 5 * time.Second
	}
	return &Listener{
		cfg:    cfg,
		out:    out,
		logger: logging.Default(logger).With("component", "syslogintake", "source", cfg.SourceName),
	}
}

// Run starts the configured listeners and blocks until ctx is canceled or
// a listener fails.
func (l *Listener) Run(ctx context.Context) error {
	if l.cfg.UDPAddr == "" && l.cfg.TCPAddr == "" {
		return errors.New("syslog listener: no UDP or TCP address configured")
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	if l.cfg.UDPAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.runUDP(ctx); err != nil {
				errCh <- err
			}
		}()
	}
	if l.cfg.TCPAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.runTCP(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		l.shutdown()
		wg.Wait()
		return nil
	case err := <-errCh:
		l.logger.Warn("syslog listener stopping on error", "error", err)
		l.shutdown()
		wg.Wait()
		return err
	}
}

func (l *Listener) shutdown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.udpConn != nil {
		_ = l.udpConn.Close()
		l.udpConn = nil
	}
	if l.tcpListener != nil {
		_ = l.tcpListener.Close()
		l.tcpListener = nil
	}
}

// runUDP reads datagrams until ctx is canceled. A full Buffer causes the
// message to be dropped, not retried: UDP syslog has no sender-visible
// delivery guarantee to begin with.
func (l *Listener) runUDP(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.cfg.UDPAddr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.udpConn = conn
	l.mu.Unlock()

	l.logger.Info("syslog UDP listener starting", "addr", conn.LocalAddr().String())

	buf := make([]byte, 65536)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		n, remoteAddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			l.logger.Warn("UDP read error", "error", err)
			continue
		}
		if n == 0 {
			continue
		}

		raw := make([]byte, n)
		copy(raw, buf[:n])
		l.emitDroppingOnFull(ctx, raw, remoteAddr.IP.String())
	}
}

func (l *Listener) runTCP(ctx context.Context) error {
	listener, err := net.Listen("tcp", l.cfg.TCPAddr)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.tcpListener = listener
	l.mu.Unlock()

	l.logger.Info("syslog TCP listener starting", "addr", listener.Addr().String())

	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		default:
		}

		if tl, ok := listener.(*net.TCPListener); ok {
			_ = tl.SetDeadline(time.Now().Add(time.Second))
		}
		conn, err := listener.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				wg.Wait()
				return nil
			}
			l.logger.Warn("TCP accept error", "error", err)
			continue
		}

		wg.Add(1)
		go func(conn net.Conn) {
			defer wg.Done()
			defer conn.Close()
			l.handleTCPConn(ctx, conn)
		}(conn)
	}
}

// handleTCPConn reads one framed syslog message per iteration. TCP syslog
// uses either newline-delimited or octet-counted ("123 <msg>") framing;
// framing is detected per message from its leading byte.
func (l *Listener) handleTCPConn(ctx context.Context, conn net.Conn) {
	remoteIP := ""
	if tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		remoteIP = tcpAddr.IP.String()
	}

	reader := bufio.NewReader(conn)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		firstByte, err := reader.Peek(1)
		if err != nil {
			return
		}

		var line []byte
		if firstByte[0] >= '0' && firstByte[0] <= '9' {
			line, err = readOctetCounted(reader)
		} else {
			line, err = reader.ReadBytes('\n')
			if err == nil && len(line) > 0 && line[len(line)-1] == '\n' {
				line = line[:len(line)-1]
				if len(line) > 0 && line[len(line)-1] == '\r' {
					line = line[:len(line)-1]
				}
			}
		}
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				l.logger.Debug("TCP read error", "error", err, "remote", remoteIP)
			}
			return
		}
		if len(line) == 0 {
			continue
		}

		if err := l.emit(ctx, line, remoteIP); err != nil {
			l.logger.Warn("enqueue failed", "remote", remoteIP, "error", err)
		}
	}
}

func readOctetCounted(reader *bufio.Reader) ([]byte, error) {
	var length int
	for {
		b, err := reader.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == ' ' {
			break
		}
		if b < '0' || b > '9' {
			return nil, errors.New("invalid octet count")
		}
		length = length*10 + int(b-'0')
		if length > 1<<20 {
			return nil, errors.New("octet count too large")
		}
	}
	msg := make([]byte, length)
	_, err := io.ReadFull(reader, msg)
	return msg, err
}

func (l *Listener) emitDroppingOnFull(ctx context.Context, raw []byte, remoteIP string) {
	if err := l.emit(ctx, raw, remoteIP); err != nil {
		l.logger.Debug("UDP message dropped", "remote", remoteIP, "error", err)
	}
}

func (l *Listener) emit(ctx context.Context, raw []byte, remoteIP string) error {
	parsed := syslogparse.Parse(raw, remoteIP)
	level := ""
	if sev, ok := parsed.Attrs["severity"]; ok {
		level = severityFromAttr(sev)
	}
	source := l.cfg.SourceName
	if host, ok := parsed.Attrs["hostname"]; ok {
		if app, ok2 := parsed.Attrs["app_name"]; ok2 {
			source = host + "/" + app
		} else {
			source = host
		}
	}

	e := logentry.New(parsed.SourceTS, time.Now(), level, string(raw), source, string(raw), parsed.Attrs)
	return l.out.Enqueue(ctx, e, l.cfg.EnqueueTimeout)
}

func severityFromAttr(sev string) string {
	n := 0
	for _, c := range sev {
		if c < '0' || c > '9' {
			return ""
		}
		n = n*10 + int(c-'0')
	}
	return syslogparse.SeverityLevel(n)
}
