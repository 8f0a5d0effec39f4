package transport

import (
	"fmt"
	"net/http"
	"strconv"
)

// StatusConnectionAuthorizationRequired is sent for requests that need a
// verified connection.
const StatusConnectionAuthorizationRequired = 470

// StatusText returns the reason phrase for a status code, including the
// HAP-specific 470.
func StatusText(code int) string {
	if code == StatusConnectionAuthorizationRequired {
		return "Connection Authorization Required"
	}
	if text := http.StatusText(code); text != "" {
		return text
	}
	return "Status " + strconv.Itoa(code)
}

// response is one reply on the wire.
type response struct {
	status      int
	contentType string
	body        []byte
}

func pairingResponse(body []byte) response {
	return response{status: http.StatusOK, contentType: ContentType, body: body}
}

func statusResponse(status int) response {
	return response{status: status}
}

// header renders the status line and headers, ending with the blank line.
func (r response) header() []byte {
	h := fmt.Sprintf("HTTP/1.1 %d %s\r\n", r.status, StatusText(r.status))
	if r.contentType != "" {
		h += "Content-Type: " + r.contentType + "\r\n"
	}
	h += "Content-Length: " + strconv.Itoa(len(r.body)) + "\r\n\r\n"
	return []byte(h)
}
