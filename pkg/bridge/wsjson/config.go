package wsjson

type Config struct {
	// Addr is the host:port the HTTP/WebSocket server binds to.
	Addr string
	// Path is the WebSocket endpoint path.
	Path string
	// SendBuf bounds each client's outbound queue. A client that falls this
	// many envelopes behind is disconnected.
	SendBuf int
	// AllowedOrigins restricts browser clients; empty allows any origin.
	AllowedOrigins []string
}

func DefaultConfig() Config {
	return Config{
		Addr:    "0.0.0.0:8765",
		Path:    "/ws",
		SendBuf: 256,
	}
}
