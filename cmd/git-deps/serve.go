package main

import (
	"bytes"
	"compress/flate"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yuin/goldmark"

	"github.com/aspiers/git-deps"
	"github.com/aspiers/git-deps/internal/depengine"
	"github.com/aspiers/git-deps/internal/depoutput"
	"github.com/aspiers/git-deps/internal/gitcore"
)

const (
	wsWriteWait = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(_ *http.Request) bool { return true },
	EnableCompression: true,
}

// graphHub pushes each new dependency edge to every connected browser over a
// websocket as it is discovered, so the live tree view mirrors the terminal
// -recurse progress tree.
type graphHub struct {
	depengine.NoopListener

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

func newGraphHub() *graphHub {
	return &graphHub{clients: make(map[*websocket.Conn]bool)}
}

func (h *graphHub) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
}

func (h *graphHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
}

// wsEdge mirrors depoutput.DependencyRecord for the live feed; kept
// separate so the wire shape doesn't implicitly couple to the JSON
// listener's accumulation type.
type wsEdge struct {
	Parent string `json:"parent"`
	Child  string `json:"child"`
}

// NewDependency implements depengine.Listener, broadcasting edges as they
// are discovered.
func (h *graphHub) NewDependency(d, dep *gitcore.Commit, path string, line int) {
	h.broadcast("edge", wsEdge{Parent: string(d.ID), Child: string(dep.ID)})
}

// AllDone implements depengine.Listener, signaling clients that inference
// has completed so they can stop showing a loading indicator.
func (h *graphHub) AllDone() {
	h.broadcast("done", nil)
}

func (h *graphHub) broadcast(kind string, payload any) {
	msg := map[string]any{"type": kind}
	if payload != nil {
		msg["data"] = payload
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			delete(h.clients, conn)
			_ = conn.Close()
		}
	}
}

// serveGraph starts an HTTP server that exposes the embedded web UI, the
// accumulated dependency graph, and a live websocket feed of newly
// discovered edges. It blocks until the process receives a fatal error
// from the listener.
func serveGraph(addr string, repo *gitcore.Repository, jl *depoutput.JSONListener, hub *graphHub) error {
	webFS, err := gitdeps.GetWebFS()
	if err != nil {
		return fmt.Errorf("load web assets: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(webFS)))

	mux.HandleFunc("/api/graph", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(jl.Graph()); err != nil {
			http.Error(w, "failed to encode graph", http.StatusInternalServerError)
		}
	})

	mux.HandleFunc("/api/commit/body-html/", func(w http.ResponseWriter, r *http.Request) {
		sha := strings.TrimPrefix(r.URL.Path, "/api/commit/body-html/")
		if sha == "" {
			http.Error(w, "missing commit hash", http.StatusBadRequest)
			return
		}
		hash, err := gitcore.NewHash(sha)
		if err != nil {
			http.Error(w, "invalid commit hash", http.StatusBadRequest)
			return
		}
		c, err := repo.GetCommit(hash)
		if err != nil {
			http.Error(w, "commit not found", http.StatusNotFound)
			return
		}

		_, _, body := depoutput.SplitMessage(c.Message)
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(body), &buf); err != nil {
			http.Error(w, "failed to render commit body", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	})

	mux.HandleFunc("/api/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("websocket upgrade failed", "err", err)
			return
		}
		if err := conn.SetCompressionLevel(flate.BestSpeed); err != nil {
			slog.Warn("failed to set websocket compression level", "err", err)
		}
		hub.add(conn)
		defer func() {
			hub.remove(conn)
			_ = conn.Close()
		}()

		// This endpoint only pushes; drain and discard anything the client
		// sends so the read side doesn't block the connection open.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return httpServer.ListenAndServe()
}
