package types

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobcost/internal/core/apperror"
)

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Quantity
	}{
		{"whole", "12", 120_000},
		{"fraction", "12.5", 125_000},
		{"four places", "0.0001", 1},
		{"trailing zeros beyond scale", "1.23450", 12_345},
		{"negative", "-2.25", -22_500},
		{"exponent", "1.5e2", 1_500_000},
		{"padded", "  7 ", 70_000},
		{"largest", "922337203685477.5807", math.MaxInt64},
		{"smallest", "-922337203685477.5807", -math.MaxInt64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseQuantity(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseQuantity_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		reason string
	}{
		{"empty", "", "empty"},
		{"garbage", "twelve", "not a decimal number"},
		{"too precise", "1.23456", "more than 4 decimal places"},
		{"too precise exponent", "1e-5", "more than 4 decimal places"},
		{"wraps int64", "1844674407370955.2", "out of range"},
		{"huge", "999999999999999999", "out of range"},
		{"huge exponent", "1e30", "out of range"},
		{"just above range", "922337203685477.5808", "out of range"},
		{"min int64", "-922337203685477.5808", "out of range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseQuantity(tt.input)
			require.Error(t, err)
			assert.True(t, apperror.IsCode(err, apperror.CodeSchemaValidation))
			appErr, ok := apperror.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, tt.reason, appErr.Details["reason"])
		})
	}
}

func TestQuantity_UnmarshalJSON(t *testing.T) {
	var body struct {
		Quantity Quantity `json:"quantity"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"quantity": 3.25}`), &body))
	assert.Equal(t, Quantity(32_500), body.Quantity)

	require.NoError(t, json.Unmarshal([]byte(`{"quantity": "0.5"}`), &body))
	assert.Equal(t, Quantity(5_000), body.Quantity)

	require.NoError(t, json.Unmarshal([]byte(`{"quantity": null}`), &body))
	assert.True(t, body.Quantity.IsZero())

	for _, raw := range []string{
		`{"quantity": "1844674407370955.2"}`,
		`{"quantity": "999999999999999999"}`,
		`{"quantity": "1.23456"}`,
		`{"quantity": 1e30}`,
	} {
		err := json.Unmarshal([]byte(raw), &body)
		assert.True(t, apperror.IsCode(err, apperror.CodeSchemaValidation), raw)
	}
}

func TestQuantity_String(t *testing.T) {
	assert.Equal(t, "0.0000", Quantity(0).String())
	assert.Equal(t, "1.2500", Quantity(12_500).String())
	assert.Equal(t, "-0.0005", Quantity(-5).String())
	assert.Equal(t, "922337203685477.5807", Quantity(math.MaxInt64).String())
	assert.Equal(t, "-922337203685477.5808", Quantity(math.MinInt64).String())
}

func TestQuantity_RoundTrip(t *testing.T) {
	q := MustQuantity("42.0625")
	b, err := json.Marshal(q)
	require.NoError(t, err)
	assert.Equal(t, "42.0625", string(b))

	var back Quantity
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, q, back)
	assert.True(t, q.Decimal().Equal(decimal.RequireFromString("42.0625")))
}
