package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/imrishuroy/affiliate-orderflow/internal/credentials"
	"github.com/imrishuroy/affiliate-orderflow/internal/validation"
)

const (
	defaultRequestTimeout = 30 * time.Second
	probeTimeout          = 10 * time.Second
)

var (
	// ErrTransport wraps network and timeout failures talking to the portal.
	ErrTransport = errors.New("portal transport error")
	// ErrUnexpectedStatus is returned for non-200 export responses.
	ErrUnexpectedStatus = errors.New("unexpected portal status")
)

// Doer is the part of *fasthttp.Client the portal client needs.
type Doer interface {
	DoTimeout(req *fasthttp.Request, resp *fasthttp.Response, timeout time.Duration) error
}

// Client talks to the vendor order export API.
type Client struct {
	doer      Doer
	exportURL string
	timeout   time.Duration
	validate  *validatorv10.Validate
	nowFunc   func() time.Time
	log       zerolog.Logger
}

// NewClient returns a Client backed by a fasthttp.Client. One client is
// reused for every call in a run.
func NewClient(exportURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return NewClientWithDoer(&fasthttp.Client{
		ReadTimeout:         timeout,
		WriteTimeout:        timeout,
		MaxIdleConnDuration: 90 * time.Second,
	}, exportURL, timeout, log)
}

// NewClientWithDoer is NewClient with an explicit transport.
func NewClientWithDoer(doer Doer, exportURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		doer:      doer,
		exportURL: exportURL,
		timeout:   timeout,
		validate:  validation.New(),
		nowFunc:   time.Now,
		log:       log.With().Str("component", "portal_client").Logger(),
	}
}

// exportRequest is the JSON body of the export call.
type exportRequest struct {
	validation.ExportWindow
	PageNum          int    `json:"pageNum"`
	VeriStatus       string `json:"veriStatus"`
	MediaID          string `json:"mediaId"`
	TrackingSourceID string `json:"trackingSourceId"`
}

// post sends one authenticated export request and returns the status code and
// a copy of the body.
func (c *Client) post(ctx context.Context, headers credentials.HeaderSet, window validation.ExportWindow, timeout time.Duration) (int, []byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	if err := c.validate.Struct(window); err != nil {
		return 0, nil, fmt.Errorf("invalid export window: %w", err)
	}

	body, err := json.Marshal(exportRequest{ExportWindow: window, PageNum: 1})
	if err != nil {
		return 0, nil, fmt.Errorf("marshal export request: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.exportURL)
	req.Header.SetMethod(fasthttp.MethodPost)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := c.doer.DoTimeout(req, resp, timeout); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	// resp is returned to the pool on exit
	out := append([]byte(nil), resp.Body()...)
	return resp.StatusCode(), out, nil
}
