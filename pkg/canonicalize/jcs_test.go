package canonicalize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJCS_KeysSortedAtEveryDepth(t *testing.T) {
	v := map[string]interface{}{
		"b": 1,
		"a": map[string]interface{}{
			"z": 1,
			"y": 2,
		},
	}
	got, err := JCSString(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"y":2,"z":1},"b":1}`, got)
}

func TestJCS_InsertionOrderIrrelevant(t *testing.T) {
	a := map[string]interface{}{"x": 1, "y": 2}
	b := map[string]interface{}{"y": 2, "x": 1}

	ga, err := JCSString(a)
	require.NoError(t, err)
	gb, err := JCSString(b)
	require.NoError(t, err)
	assert.Equal(t, ga, gb)
}

func TestJCS_NoInsignificantWhitespace(t *testing.T) {
	v := map[string]interface{}{"a": []interface{}{1, 2, 3}}
	got, err := JCSString(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a":[1,2,3]}`, got)
}

func TestJCS_NonASCIIEscaped(t *testing.T) {
	v := map[string]interface{}{"name": "café"}
	got, err := JCSString(v)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"caf\u00e9"}`, got)
}

func TestJCS_SupplementaryPlaneSurrogatePair(t *testing.T) {
	v := map[string]interface{}{"e": "\U0001F600"} // grinning face emoji
	got, err := JCSString(v)
	require.NoError(t, err)
	assert.Equal(t, `{"e":"\ud83d\ude00"}`, got)
}

func TestJCS_ArraysPreserveOrder(t *testing.T) {
	v := map[string]interface{}{"a": []interface{}{"z", "a", "m"}}
	got, err := JCSString(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a":["z","a","m"]}`, got)
}

func TestJCS_NumbersRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		num  json.Number
		want string
	}{
		{"negative", json.Number("-1"), `{"n":-1}`},
		{"fraction", json.Number("1.5"), `{"n":1.5}`},
		{"large_int", json.Number("123456789012345678"), `{"n":123456789012345678}`},
		{"zero", json.Number("0"), `{"n":0}`},
		{"negative_fraction", json.Number("-3.14159"), `{"n":-3.14159}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := map[string]interface{}{"n": tt.num}
			got, err := JCSString(v)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJCS_BooleansAndNull(t *testing.T) {
	v := map[string]interface{}{"t": true, "f": false, "n": nil}
	got, err := JCSString(v)
	require.NoError(t, err)
	assert.Equal(t, `{"f":false,"n":null,"t":true}`, got)
}
