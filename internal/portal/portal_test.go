package portal

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/imrishuroy/affiliate-orderflow/internal/credentials"
)

// fakeDoer answers every request with a fixed status and body and records
// what it was sent.
type fakeDoer struct {
	status int
	body   string
	err    error

	calls   int
	uri     string
	headers map[string]string
	sent    []byte
	timeout time.Duration
}

func (f *fakeDoer) DoTimeout(req *fasthttp.Request, resp *fasthttp.Response, timeout time.Duration) error {
	f.calls++
	f.uri = string(req.RequestURI())
	f.timeout = timeout
	f.sent = append([]byte(nil), req.Body()...)
	f.headers = map[string]string{}
	req.Header.VisitAll(func(k, v []byte) {
		f.headers[string(k)] = string(v)
	})
	if f.err != nil {
		return f.err
	}
	resp.SetStatusCode(f.status)
	resp.SetBodyString(f.body)
	return nil
}

func newTestClient(d Doer) *Client {
	return NewClientWithDoer(d, "https://portal.test/export", time.Second, zerolog.Nop())
}

func testHeaders() credentials.HeaderSet {
	return credentials.NewHeaderSet("sid=1", "agent/1.0", "Bearer abc", "application/json")
}
