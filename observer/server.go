// Package observer serves published outputs to external viewers over HTTP
// and websocket.
package observer

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pthm-cable/genesoup/config"
	"github.com/pthm-cable/genesoup/genome"
	"github.com/pthm-cable/genesoup/sim"
)

const (
	minInterval = 10 * time.Millisecond
	maxInterval = 10 * time.Second
)

// Source is the simulation state the observer reads.
type Source interface {
	Tick() int64
	Len() int
	Layout() genome.Layout
	Published(dst []float32) []float32
	Snapshot(i int) (sim.OrganismView, error)
}

// Server serves bootstrap data, organism snapshots and the frame stream for one Source.
type Server struct {
	src           Source
	interval      time.Duration
	allowNonLocal bool

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

// NewServer creates a Server reading from src. cfg.Addr is ignored; the caller owns the listener.
func NewServer(src Source, cfg config.ObserverConfig) *Server {
	return &Server{
		src:           src,
		interval:      clampInterval(cfg.Interval()),
		allowNonLocal: cfg.AllowNonLocal,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler routes the observer endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /bootstrap", s.BootstrapHandler())
	mux.HandleFunc("GET /organisms/{id}", s.OrganismHandler())
	mux.HandleFunc("GET /ws", s.WSHandler())
	return mux
}

// BootstrapHandler reports the protocol version, network layout, population size and tick.
func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		l := s.src.Layout()
		resp := BootstrapResponse{
			ProtocolVersion: Version,
			Tick:            s.src.Tick(),
			Organisms:       s.src.Len(),
			Network: NetworkParams{
				Genes:   l.Genes,
				Neurons: l.Neurons,
				Inputs:  l.Inputs,
				Outputs: l.Outputs,
				Weights: l.Weights.String(),
			},
		}

		writeJSON(rw, resp)
	}
}

// OrganismHandler returns a snapshot of the organism named by the {id} path value.
func (s *Server) OrganismHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		id, err := strconv.Atoi(r.PathValue("id"))
		if err != nil {
			http.Error(rw, "bad organism id", http.StatusBadRequest)
			return
		}
		view, err := s.src.Snapshot(id)
		if errors.Is(err, sim.ErrNoOrganism) {
			http.Error(rw, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}

		writeJSON(rw, view)
	}
}

// WSHandler upgrades to a websocket and streams FRAME messages after a SUBSCRIBE.
func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, err := parseSubscribe(msg)
		if err != nil {
			slog.Debug("rejected subscribe", "remote", r.RemoteAddr, "error", err)
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := s.nextID.Add(1)
		log := slog.With("session", sid, "remote", r.RemoteAddr)
		log.Info("observer subscribed", "interval_ms", s.subscribeInterval(sub).Milliseconds())

		// Reader goroutine: SUBSCRIBE updates change the interval; any read error ends the session.
		intervals := make(chan time.Duration, 1)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
				_, msg, err := conn.ReadMessage()
				if err != nil {
					return
				}
				sub, err := parseSubscribe(msg)
				if err != nil {
					continue
				}
				select {
				case intervals <- s.subscribeInterval(sub):
				default:
					// Drop updates under load; the client may resend.
				}
			}
		}()

		ticker := time.NewTicker(s.subscribeInterval(sub))
		defer ticker.Stop()

		var buf []float32
		for {
			// Send immediately, then on every tick.
			frame := FrameMsg{Type: "FRAME", Tick: s.src.Tick()}
			buf = s.src.Published(buf)
			frame.Outputs = buf
			b, err := json.Marshal(frame)
			if err != nil {
				log.Error("encoding frame", "error", err)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				log.Info("observer disconnected", "error", err)
				return
			}

			select {
			case <-done:
				log.Info("observer left")
				return
			case d := <-intervals:
				ticker.Reset(d)
			case <-ticker.C:
			}
		}
	}
}

// writeJSON encodes v in full before writing anything; encoding failures answer 500.
func writeJSON(rw http.ResponseWriter, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error("encoding response", "error", err)
		http.Error(rw, "encoding response", http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	b = append(b, '\n')
	_, _ = rw.Write(b)
}

// parseSubscribe validates msg against the SUBSCRIBE schema and decodes it.
func parseSubscribe(msg []byte) (SubscribeMsg, error) {
	var sub SubscribeMsg
	if err := validateJSON(subscribeSchema, msg); err != nil {
		return sub, err
	}
	err := json.Unmarshal(msg, &sub)
	return sub, err
}

// subscribeInterval returns the requested interval, or the server default when none is given.
func (s *Server) subscribeInterval(sub SubscribeMsg) time.Duration {
	if sub.IntervalMS <= 0 {
		return s.interval
	}
	return clampInterval(time.Duration(sub.IntervalMS) * time.Millisecond)
}

func clampInterval(d time.Duration) time.Duration {
	return min(max(d, minInterval), maxInterval)
}

func (s *Server) allowed(r *http.Request) bool {
	return s.allowNonLocal || isLoopbackRemote(r.RemoteAddr)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
