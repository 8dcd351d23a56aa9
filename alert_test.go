package census

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind(t *testing.T) {
	assert.Equal(t, "too_many", TooMany.String())
	assert.Equal(t, "too_few", TooFew.String())
	assert.Equal(t, "unknown", Kind(0).String())

	var k Kind
	require.NoError(t, k.UnmarshalText([]byte("too_few")))
	assert.Equal(t, TooFew, k)
	assert.Error(t, k.UnmarshalText([]byte("sideways")))
}

func TestViolation_Text(t *testing.T) {
	few := Violation{State: "twopercent", Observed: 280, Bound: 300, Kind: TooFew}
	assert.Equal(t, "Too few nodes in state twopercent: 280", few.String())
	assert.Equal(t, "Too few nodes in state twopercent: 280 (min 300)", few.Detail())

	many := Violation{State: "canonical", Observed: 51, Bound: 50, Kind: TooMany}
	assert.Equal(t, "Too many nodes in state canonical: 51", many.String())
	assert.Equal(t, "Too many nodes in state canonical: 51 (max 50)", many.Detail())
}

func TestAlert_Message(t *testing.T) {
	report := counts("twopercent", 100, "canonical", 70, "acceptdonation", 60)
	alert := Evaluate(report, HistoricalPolicy())
	require.NotNil(t, alert)

	want := "Too few nodes in state twopercent: 100 (min 300)\n" +
		"Too many nodes in state acceptdonation: 60 (max 50)\n" +
		"Too many nodes in state canonical: 70 (max 50)\n" +
		"\nLookup results:\n" +
		"twopercent: 100\ncanonical: 70\nacceptdonation: 60\nTotal nodes: 230"
	assert.Equal(t, want, alert.Message())
}

func TestAlert_JSON(t *testing.T) {
	alert := Evaluate(counts("twopercent", 280, "acceptdonation", 10), HistoricalPolicy())
	require.NotNil(t, alert)

	data, err := json.Marshal(alert)
	require.NoError(t, err)

	var decoded struct {
		Primary    Violation   `json:"primary"`
		Violations []Violation `json:"violations"`
		Report     Report      `json:"report"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, alert.Violation, decoded.Primary)
	assert.Equal(t, alert.Violations, decoded.Violations)
	assert.Equal(t, 290, decoded.Report.Total())
	assert.Contains(t, string(data), `"kind":"too_few"`)
}
