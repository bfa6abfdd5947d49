package platform

// HTTPMethod is the method of a request the host performs on the core's
// behalf.
type HTTPMethod int

const (
	HTTPGet HTTPMethod = iota
	HTTPPut
	HTTPPost
	HTTPDelete
)

func (m HTTPMethod) String() string {
	switch m {
	case HTTPGet:
		return "GET"
	case HTTPPut:
		return "PUT"
	case HTTPPost:
		return "POST"
	case HTTPDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// HTTPRequest is sent through Platform.SendHTTPRequest. The host must
// answer with Manager.ReceivedHTTPResponse or Manager.HTTPRequestFailed
// carrying the same RequestID.
type HTTPRequest struct {
	RequestID uint32
	URL       string
	Method    HTTPMethod
	Headers   map[string]string
	Body      []byte
}

// HTTPResponse is the host's answer to an HTTPRequest.
type HTTPResponse struct {
	StatusCode uint16
	Body       []byte
}

// OK reports a 2xx status.
func (r HTTPResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
