package syslogintake

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	gorelp "github.com/thierry-f-78/go-relp"

	"grepwise/internal/logentry"
	"grepwise/internal/logging"
	"grepwise/internal/syslogparse"
)

// RELPConfig configures the RELP listener. RELP acknowledges each message
// only once it has been durably enqueued, giving the sender (typically
// rsyslog) an end-to-end delivery guarantee that plain UDP/TCP syslog
// lacks.
type RELPConfig struct {
	Addr           string
	SourceName     string
	EnqueueTimeout time.Duration
}

// RELPListener accepts syslog messages via the RELP protocol.
type RELPListener struct {
	cfg    RELPConfig
	out    Enqueuer
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
}

// NewRELP creates a RELPListener. Run must be called to start listening.
func NewRELP(cfg RELPConfig, out Enqueuer, logger *slog.Logger) *RELPListener {
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = 5 * time.Second
	}
	return &RELPListener{
		cfg:    cfg,
		out:    out,
		logger: logging.Default(logger).With("component", "syslogintake", "transport", "relp", "source", cfg.SourceName),
	}
}

// Run starts the RELP TCP listener and blocks until ctx is canceled.
func (r *RELPListener) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", r.cfg.Addr)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.listener = listener
	r.mu.Unlock()

	r.logger.Info("RELP listener starting", "addr", listener.Addr().String())

	var wg sync.WaitGroup
	defer func() {
		_ = listener.Close()
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
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
				return nil
			}
			r.logger.Warn("RELP accept error", "error", err)
			continue
		}

		wg.Add(1)
		go func(conn net.Conn) {
			defer wg.Done()
			r.handleConn(ctx, conn)
		}(conn)
	}
}

func (r *RELPListener) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	remoteIP := ""
	if tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		remoteIP = tcpAddr.IP.String()
	}

	opts, err := gorelp.ValidateOptions(&gorelp.Options{Tls: gorelp.Opt_tls_disabled})
	if err != nil {
		r.logger.Error("RELP options validation failed", "error", err)
		return
	}

	session, err := gorelp.NewTcp(conn, opts)
	if err != nil {
		r.logger.Debug("RELP session setup failed", "error", err, "remote", remoteIP)
		return
	}
	defer session.Close()

	r.logger.Debug("RELP session established", "remote", remoteIP)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := session.ReceiveLog()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				r.logger.Debug("RELP receive ended", "error", err, "remote", remoteIP)
			}
			return
		}

		parsed := syslogparse.Parse(msg.Data, remoteIP)
		level := ""
		if sev, ok := parsed.Attrs["severity"]; ok {
			level = severityFromAttr(sev)
		}
		source := r.cfg.SourceName
		if host, ok := parsed.Attrs["hostname"]; ok {
			source = host
		}

		e := logentry.New(parsed.SourceTS, time.Now(), level, string(msg.Data), source, string(msg.Data), parsed.Attrs)
		if err := r.out.Enqueue(ctx, e, r.cfg.EnqueueTimeout); err != nil {
			if ansErr := session.AnswerError(msg, err.Error()); ansErr != nil {
				r.logger.Debug("RELP answer error failed", "error", ansErr)
				return
			}
			continue
		}

		if err := session.AnswerOk(msg); err != nil {
			r.logger.Debug("RELP answer ok failed", "error", err)
			return
		}
	}
}
