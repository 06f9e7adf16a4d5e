package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/aethercycle/aethercycle-protocol-sub000/aec/acmodule"
	"github.com/aethercycle/aethercycle-protocol-sub000/common/log"
)

const (
	configMaxSession     = 10
	configEventQueueSize = 100
)

func Upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// EventRequest filters the stream. Empty fields match everything.
type EventRequest struct {
	Module string `json:"module"`
	Event  string `json:"event"`
}

func (r *EventRequest) matches(ev *acmodule.Event) bool {
	if r.Module != "" && r.Module != ev.Module {
		return false
	}
	if r.Event != "" && r.Event != ev.Name {
		return false
	}
	return true
}

type wsSession struct {
	c   *websocket.Conn
	req EventRequest
	ch  chan *acmodule.Event
}

type wsSessionManager struct {
	sync.Mutex
	logger     log.Logger
	maxSession int
	sessions   []*wsSession
}

func newWSSessionManager(logger log.Logger) *wsSessionManager {
	return &wsSessionManager{
		logger:     logger.WithFields(log.Fields{log.FieldKeyModule: "WSS"}),
		maxSession: configMaxSession,
	}
}

// OnEvent fans the event out to every matching session. Slow consumers
// lose events rather than block the caller.
func (wm *wsSessionManager) OnEvent(ev *acmodule.Event) {
	wm.Lock()
	defer wm.Unlock()

	for _, wss := range wm.sessions {
		if !wss.req.matches(ev) {
			continue
		}
		select {
		case wss.ch <- ev:
		default:
			wm.logger.Debugf("drop event id=%s", ev.ID)
		}
	}
}

func (wm *wsSessionManager) NewSession(c *websocket.Conn, req EventRequest) *wsSession {
	wm.Lock()
	defer wm.Unlock()

	if len(wm.sessions) >= wm.maxSession {
		return nil
	}
	wss := &wsSession{
		c:   c,
		req: req,
		ch:  make(chan *acmodule.Event, configEventQueueSize),
	}
	wm.sessions = append(wm.sessions, wss)
	return wss
}

func (wm *wsSessionManager) stopSessionAt(i int) {
	wss := wm.sessions[i]
	if wss.c != nil {
		wss.c.Close()
		wss.c = nil
	}
	last := len(wm.sessions) - 1
	wm.sessions[i] = wm.sessions[last]
	wm.sessions[last] = nil
	wm.sessions = wm.sessions[:last]
}

func (wm *wsSessionManager) StopSession(wss *wsSession) {
	wm.Lock()
	defer wm.Unlock()

	for i := 0; i < len(wm.sessions); i++ {
		if wss == wm.sessions[i] {
			wm.stopSessionAt(i)
		}
	}
}

func (wm *wsSessionManager) StopAllSessions() {
	wm.Lock()
	defer wm.Unlock()

	for i := 0; i < len(wm.sessions); i++ {
		wss := wm.sessions[i]
		if wss.c != nil {
			wss.c.Close()
			wss.c = nil
		}
	}
	wm.sessions = nil
}

func readLoop(c *websocket.Conn, ech chan<- error) {
	for {
		if _, _, err := c.NextReader(); err != nil {
			ech <- err
			return
		}
	}
}

func (wm *wsSessionManager) RunEventSession(ctx echo.Context) error {
	upgrader := Upgrader()
	c, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		return err
	}

	_, msgBS, err := c.ReadMessage()
	if err != nil {
		c.Close()
		return err
	}
	var req EventRequest
	if err := json.Unmarshal(msgBS, &req); err != nil {
		c.Close()
		return echo.NewHTTPError(http.StatusBadRequest, "bad event request")
	}

	wss := wm.NewSession(c, req)
	if wss == nil {
		c.Close()
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many stream sessions")
	}
	defer wm.StopSession(wss)

	ech := make(chan error)
	go readLoop(c, ech)

	for {
		select {
		case err := <-ech:
			return err
		case ev := <-wss.ch:
			if err := c.WriteJSON(ev); err != nil {
				return err
			}
		}
	}
}
