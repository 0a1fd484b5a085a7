package server

import (
	"net/http"

	"github.com/alecthomas/log4go"
	"github.com/gorilla/websocket"

	"github.com/pixelbrawl/netcode/pkg/network"
	"github.com/pixelbrawl/netcode/pkg/packet/jsonpacket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// browser builds of the game are served from arbitrary hosts
		return true
	},
}

// WSHandler accepts sessions over websocket, e.g. mounted at /ws.
func (s *MatchServer) WSHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log4go.Warn("[router] ws upgrade from %s failed: %v", r.RemoteAddr, err)
			return
		}
		conn := network.NewConn(network.NewWSStream(ws), s.cfg.Network, &jsonpacket.MsgProtocol{}, s)
		conn.Do()
	})
}
