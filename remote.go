package tunnel

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// maxPatchBytes bounds a single incoming patch message.
const maxPatchBytes = 64 << 10

// RemoteServer accepts parameter patches over a websocket and queues them on
// an Editor. Each connection first receives the parameters it was opened with.
type RemoteServer struct {
	editor   *Editor
	log      Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	snapshot Params
}

// NewRemoteServer seeds the snapshot from the editor's live parameters, so
// call it before the frame loop starts. The upgrader keeps gorilla's default
// origin check: browsers may only connect from the serving host.
func NewRemoteServer(editor *Editor, log Logger) *RemoteServer {
	return &RemoteServer{
		editor:   editor,
		log:      OrNop(log),
		snapshot: *editor.params,
	}
}

// Publish records the parameters sent to newly connected clients. The host
// calls it from the frame thread after applying edits.
func (s *RemoteServer) Publish(p Params) {
	s.mu.Lock()
	s.snapshot = p
	s.mu.Unlock()
}

func (s *RemoteServer) Snapshot() Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

func (s *RemoteServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxPatchBytes)

	if err := conn.WriteJSON(s.Snapshot()); err != nil {
		s.log.Warnf("websocket write: %v", err)
		return
	}

	for {
		var patch ParamsPatch
		if err := conn.ReadJSON(&patch); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warnf("websocket read: %v", err)
			}
			return
		}
		s.editor.Patch(patch)
	}
}

// ListenAndServe serves the parameter channel on addr at /params.
func (s *RemoteServer) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/params", s)
	s.log.Infof("parameter channel on ws://%s/params", addr)
	return http.ListenAndServe(addr, mux)
}
