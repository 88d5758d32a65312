// Package server is the elemd control endpoint. Clients connect over a
// websocket and send directives; drained event batches are broadcast to
// every connected client.
//
// Text frames carry a JSON Directive. Binary frames carry a bare
// instruction batch in the session codec. Every frame is answered with a
// JSON Reply.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cwbudde/algo-elem/bridge"
	"github.com/cwbudde/algo-elem/cmd/elemd/internal/store"
	"github.com/cwbudde/algo-elem/codec"
	"github.com/cwbudde/algo-elem/engine"
)

const (
	sendQueue    = 64
	writeTimeout = 5 * time.Second
)

// Journal records what a session was given so it can be replayed.
type Journal interface {
	PutResource(ctx context.Context, r store.Resource) error
	AppendBatch(ctx context.Context, batch []byte) error
}

// Resource is a shared resource sent inline with a directive.
type Resource struct {
	Name     string    `json:"name"`
	Channels int       `json:"channels"`
	Frames   int       `json:"frames"`
	Data     []float64 `json:"data"`
}

// Directive is one control message. Resources are registered before the
// instructions are applied, so instructions may refer to them.
type Directive struct {
	Resources    []Resource      `json:"resources,omitempty"`
	Instructions json.RawMessage `json:"instructions,omitempty"`
	GC           bool            `json:"gc,omitempty"`
}

// Reply answers one directive. Status is the first non-zero code.
type Reply struct {
	Status    int            `json:"status"`
	Resources map[string]int `json:"resources,omitempty"`
	Collected []int32        `json:"collected,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Options configures a Server.
type Options struct {
	Logger       *slog.Logger
	PollInterval time.Duration
	// Journal is optional.
	Journal Journal
	// Gatherer enables /metrics when set.
	Gatherer prometheus.Gatherer
	// OnEvents, if set, sees every drained batch before it is broadcast.
	OnEvents func(batch []byte)
}

type frame struct {
	kind int
	data []byte
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan frame
}

// Server serves one session.
type Server struct {
	sess     *bridge.Session
	opts     Options
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*client
}

// New returns a server for sess.
func New(sess *bridge.Session, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = engine.NopLogger()
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second / 30
	}

	return &Server{
		sess: sess,
		opts: opts,
		log:  opts.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
}

// Handler returns the HTTP routes: the websocket on "/", "/healthz" and,
// with a Gatherer, "/metrics".
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)

	if s.opts.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	return mux
}

// Serve listens on addr and runs the event poller until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}

	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go s.Run(ctx)

	s.log.Info("server: listening", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	s.closeClients()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}

	return nil
}

// Run drains the session every PollInterval and broadcasts non-empty
// batches until ctx is done.
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	kind := websocket.BinaryMessage
	if s.sess.Codec() == codec.JSON {
		kind = websocket.TextMessage
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		data := s.sess.ProcessQueuedEvents()
		if len(data) == 0 {
			continue
		}

		if s.opts.OnEvents != nil {
			s.opts.OnEvents(data)
		}

		s.broadcast(frame{kind: kind, data: data})
	}
}

// Apply executes one directive against the session.
func (s *Server) Apply(ctx context.Context, d Directive) Reply {
	var reply Reply

	setStatus := func(code int) {
		if reply.Status == 0 {
			reply.Status = code
		}
	}

	for _, r := range d.Resources {
		code := s.sess.AddSharedResource(r.Name, r.Channels, r.Frames, r.Data)
		if reply.Resources == nil {
			reply.Resources = make(map[string]int, len(d.Resources))
		}

		reply.Resources[r.Name] = code
		setStatus(code)

		if code == 0 && s.opts.Journal != nil {
			rec := store.Resource{
				Name: r.Name, Channels: r.Channels, Frames: r.Frames,
				SampleRate: s.sess.Runtime().SampleRate(), Data: r.Data,
			}
			if err := s.opts.Journal.PutResource(ctx, rec); err != nil {
				s.log.Warn("server: persist resource", "name", r.Name, "err", err)
			}
		}
	}

	if len(d.Instructions) > 0 {
		setStatus(s.applyBatch(ctx, s.encode(d.Instructions)))
	}

	if d.GC {
		reply.Collected = s.sess.Runtime().GC()
	}

	return reply
}

// encode converts JSON instructions into the session codec. Undecodable
// input is passed through so the session reports it.
func (s *Server) encode(raw []byte) []byte {
	cdc := s.sess.Codec()
	if cdc == codec.JSON {
		return raw
	}

	batch, err := codec.JSON.DecodeInstructions(raw)
	if err != nil {
		return raw
	}

	data, err := cdc.EncodeInstructions(batch)
	if err != nil {
		return raw
	}

	return data
}

// applyBatch applies batch and journals whatever part of it took effect.
func (s *Server) applyBatch(ctx context.Context, batch []byte) int {
	code, retained := s.sess.ApplyRetained(batch)

	if len(retained) > 0 && s.opts.Journal != nil {
		if err := s.opts.Journal.AppendBatch(ctx, retained); err != nil {
			s.log.Warn("server: persist batch", "err", err)
		}
	}

	return code
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := s.sess.Stats()

	body, err := sonic.ConfigStd.Marshal(map[string]any{
		"sampleRate": st.SampleRate,
		"blockSize":  st.BlockSize,
		"nodes":      st.Nodes,
		"sampleTime": st.SampleTime,
		"clients":    s.clientCount(),
		"nodeTypes":  s.sess.Runtime().NodeTypes(),
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("server: upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := &client{id: uuid.New().String(), conn: conn, send: make(chan frame, sendQueue)}
	s.add(c)

	s.log.Info("server: client connected", "client", c.id, "remote", r.RemoteAddr)

	go s.writeLoop(c)

	s.readLoop(r.Context(), c)

	s.remove(c)
	s.log.Info("server: client disconnected", "client", c.id)
}

func (s *Server) readLoop(ctx context.Context, c *client) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var reply Reply

		switch kind {
		case websocket.TextMessage:
			var d Directive
			if err := sonic.ConfigStd.Unmarshal(data, &d); err != nil {
				reply = Reply{Status: int(engine.InvalidInstructionFormat), Error: err.Error()}
				break
			}

			reply = s.Apply(ctx, d)
		case websocket.BinaryMessage:
			reply = Reply{Status: s.applyBatch(ctx, data)}
		default:
			continue
		}

		s.log.Debug("server: directive applied", "client", c.id, "status", reply.Status)

		body, err := sonic.ConfigStd.Marshal(reply)
		if err != nil {
			s.log.Error("server: encode reply", "err", err)
			continue
		}

		s.enqueue(c, frame{kind: websocket.TextMessage, data: body})
	}
}

func (s *Server) writeLoop(c *client) {
	defer c.conn.Close()

	for f := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))

		if err := c.conn.WriteMessage(f.kind, f.data); err != nil {
			s.log.Debug("server: write failed", "client", c.id, "err", err)
			return
		}
	}

	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}

func (s *Server) add(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clients[c.id] = c
}

func (s *Server) remove(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[c.id]; ok {
		delete(s.clients, c.id)
		close(c.send)
	}
}

func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range s.clients {
		delete(s.clients, id)
		close(c.send)
	}
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.clients)
}

// enqueue hands f to c's writer without blocking. A client that cannot keep
// up loses the frame.
func (s *Server) enqueue(c *client, f frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[c.id]; !ok {
		return
	}

	select {
	case c.send <- f:
	default:
		s.log.Warn("server: client queue full, frame dropped", "client", c.id)
	}
}

func (s *Server) broadcast(f frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.clients {
		select {
		case c.send <- f:
		default:
			s.log.Warn("server: client queue full, events dropped", "client", c.id)
		}
	}
}
