package protocol

import "encoding/json"

// Version is the protocol version tag carried by every frame.
const Version = "2.0"

// Request represents an outgoing request frame.
//
// Wire format:
//
//	{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{...}}
type Request struct {
	JSONRPC string `json:"jsonrpc"`

	// ID uniquely identifies this request for response correlation.
	// IDs are monotonically increasing per connection.
	ID int64 `json:"id"`

	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// Notification is a request without an id; the server never replies to it.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response represents an incoming response frame.
//
// Wire format for success:
//
//	{"jsonrpc":"2.0","id":1,"result":{...}}
//
// Wire format for failure:
//
//	{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"..."}}
//
// Exactly one of Result and Error is set on a well-formed response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`

	// Method is set on server-originated requests and notifications, which
	// share the envelope. The connection uses it to tell them apart from
	// responses.
	Method string `json:"method,omitempty"`
}

// ResponseError is the error member of a response frame.
type ResponseError struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
}

// IsResponse reports whether the frame is a response to one of our requests,
// as opposed to a server-originated notification.
func (r *Response) IsResponse() bool {
	return r.ID != nil && r.Method == ""
}
