package portal

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/imrishuroy/affiliate-orderflow/internal/credentials"
	"github.com/imrishuroy/affiliate-orderflow/internal/validation"
)

// Validity classifies a HeaderSet after a probe call.
type Validity int

const (
	// Unknown means the probe could not reach a verdict (network, timeout
	// or parse failure). Callers treat it as Invalid.
	Unknown Validity = iota
	Valid
	Invalid
)

func (v Validity) String() string {
	switch v {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// tokenInvalidPhrase is the message the portal returns for expired tokens.
const tokenInvalidPhrase = "Token invalid"

// ProbeWindow is a historical range that the export endpoint answers quickly.
var ProbeWindow = validation.ExportWindow{BeginDate: "2024-01-01", EndDate: "2024-01-02"}

// envelope is the JSON wrapper the portal uses for every API answer.
type envelope struct {
	Success bool            `json:"success"`
	Code    *int            `json:"code"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

// Probe makes one short, authenticated export call over ProbeWindow and
// classifies the headers. A HeaderSet without a usable token is Invalid
// without touching the network.
func (c *Client) Probe(ctx context.Context, headers credentials.HeaderSet) Validity {
	if !headers.HasToken() {
		c.log.Info().Msg("cached headers carry no usable token")
		return Invalid
	}

	status, body, err := c.post(ctx, headers, ProbeWindow, probeTimeout)
	if err != nil {
		c.log.Debug().Err(err).Msg("probe request failed")
		return Unknown
	}

	v := ClassifyProbe(status, body)
	c.log.Info().Int("status", status).Stringer("validity", v).Msg("probed cached headers")
	return v
}

// ClassifyProbe maps a probe response to a Validity. The token-invalid
// phrase anywhere in the body wins over every other field.
func ClassifyProbe(status int, body []byte) Validity {
	if status != 200 {
		return Invalid
	}
	if bytes.Contains(body, []byte(tokenInvalidPhrase)) {
		return Invalid
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Unknown
	}
	return Valid
}
