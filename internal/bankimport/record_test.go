package bankimport

import (
	"strings"
	"testing"

	"housing-backend/internal/timeutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const statement = `[
  {
    "booking": "2024-03-04T00:00:00.000+0100",
    "partnerName": "Max Mustermann ",
    "partnerAccount": {"iban": "AT61 1904 3002 3457 3201"},
    "amount": {"value": 4000, "precision": 2, "currency": "EUR"},
    "reference": "Housing-k42 2400001",
    "referenceNumber": "REF-1",
    "note": ""
  },
  {
    "booking": "2024-03-05",
    "partnerName": "Refund",
    "amount": {"value": -1999, "precision": 2, "currency": "EUR"},
    "reference": "",
    "referenceNumber": "REF-2"
  },
  {
    "booking": "2024-03-05",
    "amount": {"value": 1000, "precision": 2, "currency": "USD"},
    "referenceNumber": "REF-3"
  },
  {
    "booking": "2024-03-05",
    "referenceNumber": "REF-4"
  }
]`

func TestDecodeAndParse(t *testing.T) {
	records, err := Decode(strings.NewReader(statement))
	require.NoError(t, err)
	require.Len(t, records, 4)

	tx, err := Parse(records[0], "EUR")
	require.NoError(t, err)
	assert.Equal(t, timeutil.Date(2024, 3, 4), tx.Date)
	assert.Equal(t, "Max Mustermann", tx.Partner)
	assert.Equal(t, "AT611904300234573201", tx.IBAN)
	assert.Equal(t, "40.00", tx.Amount.StringFixed(2))
	assert.Equal(t, "REF-1", tx.ReferenceNumber)

	tx, err = Parse(records[1], "EUR")
	require.NoError(t, err)
	assert.Equal(t, "-19.99", tx.Amount.StringFixed(2))
	assert.Empty(t, tx.IBAN)

	_, err = Parse(records[2], "EUR")
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Reason, "USD")

	_, err = Parse(records[3], "EUR")
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "missing amount", perr.Reason)
}

func TestParseBookingLayouts(t *testing.T) {
	for _, value := range []string{"2024-03-04T10:00:00Z", "2024-03-04T10:00:00.000+0100", "2024-03-04"} {
		got, err := parseBooking(value)
		require.NoError(t, err, value)
		assert.Equal(t, timeutil.Date(2024, 3, 4), got, value)
	}
	_, err := parseBooking("04.03.2024")
	assert.Error(t, err)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"booking": 1}`))
	assert.Error(t, err)
}
