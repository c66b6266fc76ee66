package portal

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/imrishuroy/affiliate-orderflow/internal/credentials"
	"github.com/imrishuroy/affiliate-orderflow/internal/validation"
)

var (
	// ErrMalformedExportPayload means the body was neither a JSON envelope nor CSV.
	ErrMalformedExportPayload = errors.New("malformed export payload")
	// ErrExportRejected means the portal answered with an error envelope.
	ErrExportRejected = errors.New("export rejected by portal")
)

const (
	// successMarker is appended by the portal to CSV payloads and must be
	// removed before parsing.
	successMarker = `{"code":0,"msg":"Success","data":null,"success":true}`
	noDataPhrase  = "no data to export"
	csvHeaderLead = "Order No.,"

	diagnosticPrefixLen = 500
)

// ExportResult is the parsed outcome of one export call.
type ExportResult struct {
	// Rows maps vendor column name to cell value, one map per order line.
	Rows []map[string]string
	// NoData is set when the portal explicitly reported an empty range.
	NoData bool
	// CSV is the cleaned CSV payload, empty when NoData is set.
	CSV []byte
}

// WindowEndingAt returns the trailing-week-to-tomorrow window around now.
func WindowEndingAt(now time.Time) validation.ExportWindow {
	return validation.ExportWindow{
		BeginDate: now.AddDate(0, 0, -7).Format(validation.DateLayout),
		EndDate:   now.AddDate(0, 0, 1).Format(validation.DateLayout),
	}
}

// RecentWindow is WindowEndingAt for the client's clock.
func (c *Client) RecentWindow() validation.ExportWindow {
	return WindowEndingAt(c.nowFunc())
}

// FetchExport downloads and parses the order export for window.
func (c *Client) FetchExport(ctx context.Context, headers credentials.HeaderSet, window validation.ExportWindow) (*ExportResult, error) {
	c.log.Info().Str("begin", window.BeginDate).Str("end", window.EndDate).Msg("fetching orders")

	status, body, err := c.post(ctx, headers, window, c.timeout)
	if err != nil {
		return nil, err
	}
	if status != 200 {
		return nil, fmt.Errorf("%w: %d: %s", ErrUnexpectedStatus, status, prefix(body))
	}

	c.log.Debug().Int("bytes", len(body)).Str("prefix", prefix(body)).Msg("export response received")

	res, err := ParseExport(body)
	if err != nil {
		return nil, err
	}
	if res.NoData {
		c.log.Info().Msg("no orders found for the requested range")
	} else {
		c.log.Info().Int("rows", len(res.Rows)).Msg("orders fetched")
	}
	return res, nil
}

// ParseExport decodes an export response body. It accepts the JSON envelope
// with an embedded CSV blob, a raw CSV body, or an error envelope whose
// message reports that there is nothing to export.
func ParseExport(body []byte) (*ExportResult, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if strings.HasPrefix(strings.TrimSpace(string(body)), csvHeaderLead) {
			return resultFromCSV(string(body))
		}
		return nil, fmt.Errorf("%w: %s", ErrMalformedExportPayload, prefix(body))
	}

	if !env.Success || env.Code == nil || *env.Code != 0 {
		if strings.Contains(strings.ToLower(env.Msg), noDataPhrase) {
			return &ExportResult{NoData: true}, nil
		}
		if env.Msg == "" {
			env.Msg = "unknown error"
		}
		return nil, fmt.Errorf("%w: %s", ErrExportRejected, env.Msg)
	}

	var data *string
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("%w: data is not a string: %s", ErrMalformedExportPayload, prefix(env.Data))
		}
	}
	if data == nil || strings.TrimSpace(*data) == "" {
		return &ExportResult{NoData: true}, nil
	}
	return resultFromCSV(*data)
}

func resultFromCSV(payload string) (*ExportResult, error) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(payload, successMarker, ""))
	if cleaned == "" {
		return &ExportResult{NoData: true}, nil
	}
	rows, err := ParseCSV([]byte(cleaned))
	if err != nil {
		return nil, err
	}
	return &ExportResult{Rows: rows, CSV: []byte(cleaned + "\n")}, nil
}

// ParseCSV reads a header row followed by data rows. Cells beyond the header
// width are dropped and short rows keep only the columns they have.
func ParseCSV(data []byte) ([]map[string]string, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\ufeff"))))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: csv header: %v", ErrMalformedExportPayload, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []map[string]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: csv row: %v", ErrMalformedExportPayload, err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		row := make(map[string]string, len(header))
		for i, v := range rec {
			if i < len(header) {
				row[header[i]] = v
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func prefix(b []byte) string {
	if len(b) > diagnosticPrefixLen {
		b = b[:diagnosticPrefixLen]
	}
	return string(b)
}
