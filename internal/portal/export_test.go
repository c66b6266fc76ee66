package portal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/affiliate-orderflow/internal/validation"
)

func TestWindowEndingAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	w := WindowEndingAt(now)
	assert.Equal(t, "2026-02-22", w.BeginDate)
	assert.Equal(t, "2026-03-02", w.EndDate)
}

func TestParseExport(t *testing.T) {
	t.Run("envelope with csv", func(t *testing.T) {
		res, err := ParseExport([]byte(`{"success":true,"code":0,"data":"Order No.,Sale Amount(USD)\nA100,12.50\n"}`))
		require.NoError(t, err)
		assert.False(t, res.NoData)
		require.Len(t, res.Rows, 1)
		assert.Equal(t, "A100", res.Rows[0]["Order No."])
		assert.Equal(t, "12.50", res.Rows[0]["Sale Amount(USD)"])
		assert.NotEmpty(t, res.CSV)
	})

	t.Run("success marker stripped", func(t *testing.T) {
		body := `{"success":true,"code":0,"data":"Order No.,Status\nA1,paid\n` +
			`{\"code\":0,\"msg\":\"Success\",\"data\":null,\"success\":true}"}`
		res, err := ParseExport([]byte(body))
		require.NoError(t, err)
		require.Len(t, res.Rows, 1)
		assert.Equal(t, "paid", res.Rows[0]["Status"])
		assert.NotContains(t, string(res.CSV), `"success"`)
	})

	t.Run("no data message", func(t *testing.T) {
		res, err := ParseExport([]byte(`{"success":false,"msg":"No data to export for this range"}`))
		require.NoError(t, err)
		assert.True(t, res.NoData)
		assert.Empty(t, res.Rows)
	})

	t.Run("null data", func(t *testing.T) {
		res, err := ParseExport([]byte(`{"success":true,"code":0,"data":null}`))
		require.NoError(t, err)
		assert.True(t, res.NoData)
	})

	t.Run("error envelope", func(t *testing.T) {
		_, err := ParseExport([]byte(`{"success":false,"code":500,"msg":"internal"}`))
		assert.ErrorIs(t, err, ErrExportRejected)
	})

	t.Run("raw csv", func(t *testing.T) {
		res, err := ParseExport([]byte("Order No.,Status\nB2,pending\nB3,paid\n"))
		require.NoError(t, err)
		require.Len(t, res.Rows, 2)
		assert.Equal(t, "B3", res.Rows[1]["Order No."])
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ParseExport([]byte("<html>login</html>"))
		assert.ErrorIs(t, err, ErrMalformedExportPayload)
	})
}

func TestParseCSV_RaggedRowsAndBOM(t *testing.T) {
	rows, err := ParseCSV([]byte("\ufeffOrder No.,Status,pid\nA1,paid\nA2,paid,p9,extra\n"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "A1", rows[0]["Order No."])
	_, has := rows[0]["pid"]
	assert.False(t, has)
	assert.Equal(t, "p9", rows[1]["pid"])
	assert.Len(t, rows[1], 3)
}

func TestFetchExport(t *testing.T) {
	window := validation.ExportWindow{BeginDate: "2026-01-01", EndDate: "2026-01-08"}

	t.Run("ok", func(t *testing.T) {
		d := &fakeDoer{status: 200, body: `{"success":true,"code":0,"data":"Order No.\nA1\n"}`}
		res, err := newTestClient(d).FetchExport(context.Background(), testHeaders(), window)
		require.NoError(t, err)
		require.Len(t, res.Rows, 1)
		assert.Equal(t, time.Second, d.timeout)
	})

	t.Run("non 200", func(t *testing.T) {
		d := &fakeDoer{status: 403, body: "forbidden"}
		_, err := newTestClient(d).FetchExport(context.Background(), testHeaders(), window)
		assert.ErrorIs(t, err, ErrUnexpectedStatus)
	})

	t.Run("transport", func(t *testing.T) {
		d := &fakeDoer{err: errors.New("connection reset")}
		_, err := newTestClient(d).FetchExport(context.Background(), testHeaders(), window)
		assert.ErrorIs(t, err, ErrTransport)
	})

	t.Run("bad window", func(t *testing.T) {
		d := &fakeDoer{status: 200}
		_, err := newTestClient(d).FetchExport(context.Background(), testHeaders(), validation.ExportWindow{BeginDate: "2026-02-01", EndDate: "2026-01-01"})
		assert.Error(t, err)
		assert.Zero(t, d.calls)
	})
}

func TestRecentWindow_UsesClientClock(t *testing.T) {
	c := newTestClient(&fakeDoer{})
	c.nowFunc = func() time.Time { return time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC) }
	assert.Equal(t, validation.ExportWindow{BeginDate: "2026-10-12", EndDate: "2026-10-20"}, c.RecentWindow())
}

func TestClient_ReusesValidatorAcrossCalls(t *testing.T) {
	d := &fakeDoer{status: 200, body: `{"success":true,"code":0,"data":null}`}
	c := newTestClient(d)
	v := c.validate
	require.NotNil(t, v)

	_, err := c.FetchExport(context.Background(), testHeaders(), c.RecentWindow())
	require.NoError(t, err)
	c.Probe(context.Background(), testHeaders())

	assert.Same(t, v, c.validate)
	assert.Equal(t, 2, d.calls)
}
