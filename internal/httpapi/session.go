package httpapi

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rybkr/akashica/internal/engine"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512

	broadcastChannelSize = 16
)

// BranchSession tracks one branch's current head and fans out head-change
// notifications to WebSocket clients. It is the adaptation of the
// teacher's RepoSession: instead of diffing a reloaded git.Repository
// against its predecessor, it compares commit ids observed from
// repository.WatchBranches (or from its own poll loop on adapters that
// don't support watching).
type BranchSession struct {
	branch string
	repo   *engine.Repository
	logger *slog.Logger

	mu   sync.RWMutex
	head string

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]*sync.Mutex

	broadcast chan UpdateMessage

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	clientWg sync.WaitGroup
}

// NewBranchSession constructs a session watching branch on repo.
func NewBranchSession(repo *engine.Repository, branch string, logger *slog.Logger) *BranchSession {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	head, _ := repo.CurrentCommit(branch)
	return &BranchSession{
		branch:    branch,
		repo:      repo,
		logger:    logger.With("branch", branch),
		head:      head,
		clients:   make(map[*websocket.Conn]*sync.Mutex),
		broadcast: make(chan UpdateMessage, broadcastChannelSize),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Head returns the last-observed head commit id.
func (bs *BranchSession) Head() string {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return bs.head
}

// Start launches the broadcast goroutine and, if the adapter supports it,
// a branch-watch goroutine; otherwise it falls back to a poll loop.
func (bs *BranchSession) Start() {
	bs.wg.Add(1)
	go bs.handleBroadcast()

	events, stop, ok := bs.repo.WatchBranches()
	if ok {
		bs.wg.Add(1)
		go bs.watchLoop(events, stop)
		return
	}
	bs.wg.Add(1)
	go bs.pollLoop()
}

func (bs *BranchSession) watchLoop(events <-chan struct{}, stop func()) {
	defer bs.wg.Done()
	defer stop()
	for {
		select {
		case <-bs.ctx.Done():
			return
		case <-events:
			bs.refresh()
		}
	}
}

func (bs *BranchSession) pollLoop() {
	defer bs.wg.Done()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-bs.ctx.Done():
			return
		case <-ticker.C:
			bs.refresh()
		}
	}
}

func (bs *BranchSession) refresh() {
	current, err := bs.repo.CurrentCommit(bs.branch)
	if err != nil {
		bs.logger.Debug("branch head lookup failed", "error", err)
		return
	}
	bs.mu.Lock()
	changed := current != bs.head
	bs.head = current
	bs.mu.Unlock()
	if changed {
		bs.broadcastUpdate(UpdateMessage{Branch: bs.branch, Head: current})
	}
}

// Close cancels background goroutines and closes every client connection.
func (bs *BranchSession) Close() {
	bs.cancel()
	bs.wg.Wait()

	bs.clientsMu.Lock()
	for conn := range bs.clients {
		closeMsg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
		_ = conn.Close()
	}
	bs.clients = make(map[*websocket.Conn]*sync.Mutex)
	bs.clientsMu.Unlock()

	bs.clientWg.Wait()
}

func (bs *BranchSession) handleBroadcast() {
	defer bs.wg.Done()
	for {
		select {
		case <-bs.ctx.Done():
			return
		case msg := <-bs.broadcast:
			bs.sendToAllClients(msg)
		}
	}
}

func (bs *BranchSession) broadcastUpdate(msg UpdateMessage) {
	select {
	case bs.broadcast <- msg:
	default:
		bs.logger.Warn("broadcast channel full, dropping update")
	}
}

func (bs *BranchSession) sendToAllClients(msg UpdateMessage) {
	bs.clientsMu.RLock()
	snapshot := make(map[*websocket.Conn]*sync.Mutex, len(bs.clients))
	for c, m := range bs.clients {
		snapshot[c] = m
	}
	bs.clientsMu.RUnlock()

	var failed []*websocket.Conn
	for conn, mu := range snapshot {
		mu.Lock()
		err := conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err == nil {
			err = conn.WriteJSON(msg)
		}
		mu.Unlock()
		if err != nil {
			failed = append(failed, conn)
		}
	}

	if len(failed) > 0 {
		bs.clientsMu.Lock()
		for _, conn := range failed {
			delete(bs.clients, conn)
			_ = conn.Close()
		}
		bs.clientsMu.Unlock()
	}
}

func (bs *BranchSession) registerClient(conn *websocket.Conn) *sync.Mutex {
	mu := &sync.Mutex{}
	bs.clientsMu.Lock()
	bs.clients[conn] = mu
	bs.clientsMu.Unlock()
	return mu
}

func (bs *BranchSession) removeClient(conn *websocket.Conn) {
	bs.clientsMu.Lock()
	defer bs.clientsMu.Unlock()
	if _, ok := bs.clients[conn]; ok {
		delete(bs.clients, conn)
		_ = conn.Close()
	}
}

func (bs *BranchSession) sendInitialState(conn *websocket.Conn) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(UpdateMessage{Branch: bs.branch, Head: bs.Head()})
}

func (bs *BranchSession) clientReadPump(conn *websocket.Conn, done chan struct{}) {
	defer bs.clientWg.Done()
	defer close(done)
	conn.SetReadLimit(maxMessageSize)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (bs *BranchSession) clientWritePump(conn *websocket.Conn, done chan struct{}, writeMu *sync.Mutex) {
	defer bs.clientWg.Done()
	defer bs.removeClient(conn)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			writeMu.Lock()
			err := conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err == nil {
				err = conn.WriteMessage(websocket.PingMessage, nil)
			}
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
