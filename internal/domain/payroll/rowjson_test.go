package payroll

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRowByKind(t *testing.T) {
	row, err := DecodeRow([]byte(`{"kind":"hourly","employeeName":"Jane","hours":8,"rate":"20","bonus":15}`))
	require.NoError(t, err)
	hourly, ok := row.(HourlyRow)
	require.True(t, ok)
	assert.True(t, Pay(hourly).Equal(d("175")))

	row, err = DecodeRow([]byte(`{"kind":"job","amount":150,"date":"2026-03-07","jobRef":"job_1"}`))
	require.NoError(t, err)
	job := row.(JobRow)
	assert.Equal(t, time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC), job.Date)

	row, err = DecodeRow([]byte(`{"kind":"custom","amount":20,"paymentType":"Other","otherReason":"towels"}`))
	require.NoError(t, err)
	assert.Equal(t, PaymentOther, row.(CustomRow).PaymentType)
}

func TestDecodeRowRejectsUnknownKind(t *testing.T) {
	_, err := DecodeRow([]byte(`{"kind":"salary","amount":1}`))
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestDecodeRowsPrefixesIssues(t *testing.T) {
	_, err := DecodeRows([]json.RawMessage{
		json.RawMessage(`{"kind":"job","amount":1}`),
		json.RawMessage(`{"kind":"job","date":"03/07/2026"}`),
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "rows[1].date", verr.Issues[0].Field)
}

func TestWorksheetRowJSONCarriesIDAndPay(t *testing.T) {
	raw, err := json.Marshal(WorksheetRow{ID: "r1", Row: HourlyRow{EmployeeName: "Jane", Hours: d("2"), Rate: d("10")}})
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "r1", out["id"])
	assert.Equal(t, "hourly", out["kind"])
	assert.Equal(t, "20", out["pay"])
}
