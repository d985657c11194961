package searchdata

import (
	"os"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/symbolindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFixture(t *testing.T) {
	f, err := os.Open("testdata/all_e.js")
	require.NoError(t, err)
	defer f.Close()

	records, err := Parse(f)
	require.NoError(t, err)
	require.Len(t, records, 44)

	byName := make(map[string]symbolindex.Record, len(records))
	for _, r := range records {
		byName[r.DisplayName] = r
	}

	ship := byName["Ship"]
	want := []symbolindex.Target{
		{Scope: "Ship", Reference: "../class_ship.html"},
		{Scope: "Ship::Ship()", Reference: "../class_ship.html#a1836f4ce3f031b8490a37ac02c5ad65b"},
	}
	if diff := cmp.Diff(want, ship.Targets); diff != "" {
		t.Errorf("Ship targets mismatch (-want +got):\n%s", diff)
	}

	header, ok := byName["Ship.h"]
	require.True(t, ok)
	assert.Equal(t, "", header.Targets[0].Scope)

	_, ok = byName["StringMaker< bool >"]
	assert.True(t, ok, "display names must be HTML-unescaped")

	assert.Equal(t, "ScopedMessage", records[0].DisplayName)
	assert.Equal(t, "StringRef", records[len(records)-1].DisplayName)
}

func TestParseFixtureBuildsIndex(t *testing.T) {
	f, err := os.Open("testdata/all_e.js")
	require.NoError(t, err)
	defer f.Close()

	records, err := Parse(f)
	require.NoError(t, err)
	idx, err := symbolindex.Build(records)
	require.NoError(t, err)

	var got []string
	for e := range idx.Query("ship") {
		got = append(got, e.DisplayName)
	}
	assert.Equal(t, []string{"Ship", "Ship.h", "shipName", "shipLength", "shipSymbol"}, got)

	e, ok := idx.Get("stringmaker< r, typename std::enable_if< is_range< r >::value &&!::catch::detail::isstreaminsertable< r >::value >::type >")
	require.True(t, ok)
	assert.Equal(t, "Catch", e.Targets[0].Scope)
}

func TestParseVariants(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []symbolindex.Record
	}{
		{
			name:  "bare array",
			input: `[['a',['A',['ref',1,'S']]]]`,
			want:  []symbolindex.Record{{DisplayName: "A", Targets: []symbolindex.Target{{Scope: "S", Reference: "ref"}}}},
		},
		{
			name:  "bare array with operator=",
			input: `[['operator_3d',['operator=',['../a.html#x',1,'Catch::StringRef']]]]`,
			want:  []symbolindex.Record{{DisplayName: "operator=", Targets: []symbolindex.Target{{Scope: "Catch::StringRef", Reference: "../a.html#x"}}}},
		},
		{
			name:  "assignment with operator== in the table",
			input: "var searchData=\n[\n  ['operator_3d_3d',['operator==',['../b.html',1,'Catch']]]\n];\n",
			want:  []symbolindex.Record{{DisplayName: "operator==", Targets: []symbolindex.Target{{Scope: "Catch", Reference: "../b.html"}}}},
		},
		{
			name:  "target without scope",
			input: "var searchData=[['a',['A',['ref',0]]]];\n",
			want:  []symbolindex.Record{{DisplayName: "A", Targets: []symbolindex.Target{{Reference: "ref"}}}},
		},
		{
			name:  "escaped quote and embedded double quote",
			input: `var searchData=[['op',['operator\'"',['r.html',1,'X&amp;Y']]]];`,
			want:  []symbolindex.Record{{DisplayName: `operator'"`, Targets: []symbolindex.Target{{Scope: "X&Y", Reference: "r.html"}}}},
		},
		{
			name:  "several groups in one row",
			input: `var searchData=[['x',['X',['1',1,'a']],['x',['2',1,'b']]]];`,
			want: []symbolindex.Record{
				{DisplayName: "X", Targets: []symbolindex.Target{{Scope: "a", Reference: "1"}}},
				{DisplayName: "x", Targets: []symbolindex.Target{{Scope: "b", Reference: "2"}}},
			},
		},
		{
			name:  "empty table",
			input: "var searchData=\n[\n];",
			want:  []symbolindex.Record{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(strings.NewReader(tt.input))
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"no array", "var searchData = 42;"},
		{"unterminated string", "var searchData=[['a',['A',['ref,1,'']]]];"},
		{"trailing garbage", "var searchData=[['a',['A',['r',1,'']]]]; alert(1)"},
		{"row without symbols", "var searchData=[['a']];"},
		{"symbol without targets", "var searchData=[['a',['A']]];"},
		{"target with too many fields", "var searchData=[['a',['A',['r',1,'s','x']]]];"},
		{"row is not an array", "var searchData=['a'];"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}
}

func TestDecodeKey(t *testing.T) {
	tests := map[string]string{
		"stringmaker":                      "stringmaker",
		"ship_2eh":                         "ship.h",
		"stringmaker_3c_20bool_20_3e":      "stringmaker< bool >",
		"stringmaker_3c_20char_5bsz_5d_3e": "stringmaker< char[sz]>",
		"trailing_":                        "trailing_",
		"not_zzhex":                        "not_zzhex",
	}
	for in, want := range tests {
		assert.Equal(t, want, DecodeKey(in), "DecodeKey(%q)", in)
	}
}
