package proxy

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"mediabridge/logging"
)

var upgrader = websocket.Upgrader{
	// The Library Server's own native apps connect from arbitrary
	// origins; CheckOrigin delegates origin trust to whatever sits in
	// front of this proxy (nginx), matching the teacher's own
	// permissive-upgrade posture for internal collaborator traffic.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// tunnelWebSocket upgrades the inbound connection and the upstream
// connection, then pumps frames bidirectionally until either side
// closes, spec.md §4.8 "WebSocket upgrades are tunneled bidirectionally
// until either side closes."
func (h *Handler) tunnelWebSocket(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	upstreamURL := *h.upstreamURL
	upstreamURL.Scheme = wsScheme(h.upstreamURL.Scheme)
	upstreamURL.Path = r.URL.Path
	upstreamURL.RawQuery = r.URL.RawQuery

	upstreamHeader := make(http.Header)
	for k, v := range r.Header {
		if isHopByHop(k) || strings.EqualFold(k, "Upgrade") || strings.EqualFold(k, "Connection") ||
			strings.HasPrefix(strings.ToLower(k), "sec-websocket") {
			continue
		}
		upstreamHeader[k] = v
	}

	upstreamConn, resp, err := websocket.DefaultDialer.Dial(upstreamURL.String(), upstreamHeader)
	if err != nil {
		log.Warn().Err(err).Str("url", upstreamURL.String()).Msg("proxy: websocket dial to upstream failed")
		if resp != nil {
			w.WriteHeader(resp.StatusCode)
		} else {
			w.WriteHeader(http.StatusBadGateway)
		}
		return
	}
	defer upstreamConn.Close()

	clientConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("proxy: websocket upgrade of client connection failed")
		return
	}
	defer clientConn.Close()

	done := make(chan struct{}, 2)
	go pump(clientConn, upstreamConn, done)
	go pump(upstreamConn, clientConn, done)
	<-done
}

func pump(from, to *websocket.Conn, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	for {
		messageType, payload, err := from.ReadMessage()
		if err != nil {
			return
		}
		if err := to.WriteMessage(messageType, payload); err != nil {
			return
		}
	}
}

func wsScheme(httpScheme string) string {
	if httpScheme == "https" {
		return "wss"
	}
	return "ws"
}

func isHopByHop(key string) bool {
	for _, h := range hopByHopHeaders {
		if strings.EqualFold(h, key) {
			return true
		}
	}
	return false
}
