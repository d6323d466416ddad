package source

import (
	"encoding/json"
	"testing"
	"testing/fstest"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairEscapesNewlinesInStrings(t *testing.T) {
	in := "{\n  \"desc\": \"line one\nline two\",\n  \"n\": 1\n}"
	out := Repair([]byte(in))
	assert.Equal(t, "{\n  \"desc\": \"line one\\nline two\",\n  \"n\": 1\n}", string(out))
}

func TestRepairIgnoresQuotesInComments(t *testing.T) {
	in := "{\n // a \"quote\n \"a\": \"x\ny\"\n}"
	out := Repair([]byte(in))
	assert.Contains(t, string(out), `"x\ny"`)
	assert.Contains(t, string(out), "// a \"quote\n")
}

func TestRepairKeepsEscapedQuotes(t *testing.T) {
	in := "{\"a\": \"say \\\"hi\\\"\nnow\"}"
	out := Repair([]byte(in))
	assert.Equal(t, "{\"a\": \"say \\\"hi\\\"\\nnow\"}", string(out))
}

func TestParse(t *testing.T) {
	v, err := Parse([]byte(`{
		// comment
		"order": 3,
		"ratio": 1.5,
		"desc": "multi
line",
		"list": [1, 2,],
	}`))
	require.NoError(t, err)

	obj, ok := v.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, json.Number("3"), obj["order"])
	assert.Equal(t, json.Number("1.5"), obj["ratio"])
	assert.Equal(t, "multi\nline", obj["desc"])
	assert.Len(t, obj["list"], 2)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte(`{"a": `))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"a": 1} {"b": 2}`))
	assert.Error(t, err)
}

func TestDiscover(t *testing.T) {
	fsys := fstest.MapFS{
		"b.json":             {Data: []byte(`{}`)},
		"a.json":             {Data: []byte(`{}`)},
		"_data/shared.json":  {Data: []byte(`{}`)},
		".git/config":        {Data: []byte(``)},
		"nested/deep/c.json": {Data: []byte(`{}`)},
	}
	paths, err := Discover(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"_data/shared.json", "a.json", "b.json", "nested/deep/c.json"}, paths)
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "a/b.json", NormalizePath("./a/b.json"))
	assert.Equal(t, "a/b.json", NormalizePath("/a/b.json"))
	assert.Equal(t, "a/b.json", NormalizePath(`a\b.json`))
}

func TestCovers(t *testing.T) {
	assert.True(t, Covers("_data/x.json", "_data/x.json"))
	assert.True(t, Covers("_data", "_data/v2/x.json"))
	assert.False(t, Covers("_data", "_data2/x.json"))
	assert.False(t, Covers("_data/x.json", "_data"))
	assert.False(t, Covers("", "a.json"))
}

func TestLoadSettings(t *testing.T) {
	log, _ := test.NewNullLogger()
	fsys := fstest.MapFS{
		"_settings.json": {Data: []byte(`{
			"project_name": "Pets",
			"project_desc": "pet store",
			"global": {"api": {"method": "POST"}}
		}`)},
		"README.md": {Data: []byte("# Pets")},
	}
	s := LoadSettings(fsys, "", log)
	assert.Equal(t, "Pets", s.Name)
	assert.Equal(t, "pet store", s.Description)
	assert.Equal(t, "# Pets", s.ReadMe)
	assert.Equal(t, map[string]any{"api": map[string]any{"method": "POST"}}, s.Global)
}

func TestLoadSettingsMissing(t *testing.T) {
	log, hook := test.NewNullLogger()
	s := LoadSettings(fstest.MapFS{}, "", log)
	assert.Equal(t, DefaultProjectName, s.Name)
	assert.Nil(t, s.Global)
	require.NotEmpty(t, hook.Entries)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}
