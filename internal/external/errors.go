package external

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"
)

// maxDetailBytes caps how much of an upstream body is kept for error detail
// and alerts.
const maxDetailBytes = 512

// RejectionError means the upstream answered but refused the request: a
// non-2xx status, or a 2xx without the expected acknowledgement.
type RejectionError struct {
	Status int
	Detail string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("upstream rejected request: status %d: %s", e.Status, e.Detail)
}

// NetworkError means no usable response was received.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error calling %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// readDetail reads at most maxDetailBytes of body as trimmed text, cutting on
// a rune boundary.
func readDetail(body io.Reader) string {
	buf, _ := io.ReadAll(io.LimitReader(body, maxDetailBytes+1))
	truncated := len(buf) > maxDetailBytes
	if truncated {
		buf = buf[:maxDetailBytes]
		for i := 0; i < utf8.UTFMax && len(buf) > 0 && !utf8.Valid(buf); i++ {
			buf = buf[:len(buf)-1]
		}
	}
	s := strings.TrimSpace(string(buf))
	if truncated {
		s += "..."
	}
	return s
}

// drain discards the rest of a response body so the connection can be
// reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
