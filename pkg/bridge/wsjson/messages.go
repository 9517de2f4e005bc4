package wsjson

// Request types accepted from clients. Anything else is ignored and the
// connection stays open.
const (
	OpGetState = "GET_STATE"
	OpPing     = "PING"
)

type clientRequest struct {
	Type string `json:"type"`
}
