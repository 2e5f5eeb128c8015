// Package probe implements the connection handler: a composed [ipcow.Func]
// pipeline that probes an accepted connection for service fingerprinting,
// records what it finds, and responds with a synthetic status page.
//
// Grounded on original_source/src/core/handlers.rs's handle_connection,
// restated as a composed ipcow.Func pipeline (compose.go's Compose4).
package probe

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"
	"unicode/utf8"

	"github.com/bitloop/ipcow"
	"github.com/bitloop/ipcow/internal/discovery"
)

// probeRequest is the fixed HTTP probe sent to every accepted connection.
const probeRequest = "GET / HTTP/1.1\r\nHost: localhost\r\n\r\n"

// maxProbeResponse bounds the single read performed against the peer.
const maxProbeResponse = 1024

// Handler wires together the send/read/respond pipeline for one accepted
// connection. It is safe to share across goroutines once constructed;
// construction itself is not concurrency-safe.
type Handler struct {
	pipeline ipcow.Func[net.Conn, ipcow.Unit]
}

// New builds a *Handler that records discovered payloads into log and
// reports structured events through logger.
//
// cfg supplies TimeNow/ErrClassifier to the observer stage; logger is
// attached separately so callers can scope it per-connection before
// passing it in.
func New(cfg *ipcow.Config, logger ipcow.SLogger, log *discovery.Log) *Handler {
	observe := ipcow.NewObserveConnFunc(cfg, logger)

	pipeline := ipcow.Compose4(
		ipcow.Func[net.Conn, net.Conn](observe),
		sendProbeFunc(),
		readOnceFunc(log),
		respondFunc(cfg.TimeNow),
	)

	return &Handler{pipeline: pipeline}
}

// Handle runs the probe/respond pipeline against conn. Any I/O failure at
// any stage silently short-circuits the pipeline: the listener never
// learns about per-connection I/O errors, matching the probe's
// best-effort contract. conn is closed when Handle returns, whether the
// pipeline completed or stopped early.
func (h *Handler) Handle(ctx context.Context, conn net.Conn) {
	_, _ = h.pipeline.Call(ctx, conn)
}

// sendProbeFunc writes the fixed HTTP probe request.
func sendProbeFunc() ipcow.Func[net.Conn, net.Conn] {
	return ipcow.FuncAdapter[net.Conn, net.Conn](func(ctx context.Context, conn net.Conn) (net.Conn, error) {
		if _, err := conn.Write([]byte(probeRequest)); err != nil {
			conn.Close()
			return nil, err
		}
		return conn, nil
	})
}

// readOnceFunc performs exactly one read of the peer's response, and if
// any bytes were read, lossily decodes them as UTF-8 and records the
// result in the discovery log.
func readOnceFunc(log *discovery.Log) ipcow.Func[net.Conn, net.Conn] {
	return ipcow.FuncAdapter[net.Conn, net.Conn](func(ctx context.Context, conn net.Conn) (net.Conn, error) {
		buf := make([]byte, maxProbeResponse)
		n, err := conn.Read(buf)
		if err != nil {
			conn.Close()
			return nil, err
		}
		if n > 0 {
			payload := toValidUTF8(buf[:n])
			if addrPort, parseErr := netip.ParseAddrPort(conn.RemoteAddr().String()); parseErr == nil {
				log.Record(addrPort, payload)
			}
		}
		return conn, nil
	})
}

// respondFunc writes the synthetic HTML status page, naming the
// connection's LOCAL accept port (not the peer's), then closes the
// connection.
func respondFunc(timeNow func() time.Time) ipcow.Func[net.Conn, ipcow.Unit] {
	return ipcow.FuncAdapter[net.Conn, ipcow.Unit](func(ctx context.Context, conn net.Conn) (ipcow.Unit, error) {
		_, port, err := net.SplitHostPort(conn.LocalAddr().String())
		if err != nil {
			port = "0"
		}

		body := fmt.Sprintf(
			"HTTP/1.1 200 OK\r\nContent-Type: text/html\r\n\r\n"+
				"<html><body><h1>Port %s</h1><p>Active since: %s</p></body></html>",
			port,
			timeNow().Format("2006-01-02 15:04:05"),
		)

		_, err = conn.Write([]byte(body))
		conn.Close()
		if err != nil {
			return ipcow.Unit{}, err
		}
		return ipcow.Unit{}, nil
	})
}

// toValidUTF8 mirrors Rust's String::from_utf8_lossy: invalid byte
// sequences are replaced with U+FFFD rather than rejected outright.
func toValidUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return string([]rune(string(b)))
}
