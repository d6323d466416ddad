package compose

import (
	"encoding/json"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMerger(t *testing.T, fsys fstest.MapFS, opts ...MergerOption) (*Merger, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	return NewMerger(NewLoader(fsys), logger, opts...), hook
}

func obj(pairs ...any) map[string]any {
	m := make(map[string]any, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		m[pairs[i].(string)] = pairs[i+1]
	}
	return m
}

func hasCode(hook *test.Hook, code ErrorCode) bool {
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["code"] == string(code) {
			return true
		}
	}
	return false
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "abc", Stringify("abc"))
	assert.Equal(t, "42", Stringify(json.Number("42")))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, "null", Stringify(nil))
	assert.Equal(t, `{"a":1}`, Stringify(map[string]any{"a": json.Number("1")}))
}

func TestFieldResolverPrecedence(t *testing.T) {
	globals := obj("api", obj("method", "POST", "auth", true, "url", "/global"))
	r := NewFieldResolver(globals, nil)

	local := obj("method", "PUT")
	frag := obj("method", "PATCH", "url", "/frag")

	assert.Equal(t, "PUT", r.String("method", "GET", local, frag))
	assert.Equal(t, "/frag", r.String("url", "", local, frag))
	assert.Equal(t, "POST", r.String("method", "GET", nil, nil))
	assert.Equal(t, "dflt", r.String("name", "dflt", local, frag))
	assert.True(t, r.Bool("auth", false, nil, nil))
}

func TestFieldResolverGlobalOnly(t *testing.T) {
	globals := obj("api", obj(
		"name", "g-name", "desc", "g-desc", "url", "/g", "method", "DELETE",
		"body_mode", "form", "auth", true,
	))
	r := NewFieldResolver(globals, nil)
	empty := obj()
	for _, key := range []string{"name", "desc", "url", "method", "body_mode"} {
		assert.Equal(t, globals["api"].(map[string]any)[key], r.String(key, "x", empty, empty), key)
	}
	assert.True(t, r.Bool("auth", false, empty, empty))
}

func TestFieldResolverStringifiesNonStrings(t *testing.T) {
	r := NewFieldResolver(nil, nil)
	assert.Equal(t, "7", r.String("name", "", obj("name", json.Number("7")), nil))
	assert.Equal(t, "false", r.String("name", "", obj("name", false), nil))
}

func TestFieldResolverBoolFallsThroughOnWrongType(t *testing.T) {
	logger, hook := test.NewNullLogger()
	r := NewFieldResolver(obj("api", obj("auth", true)), logger)

	assert.True(t, r.Bool("auth", false, obj("auth", "yes"), nil))
	assert.True(t, hasCode(hook, TypeMismatch))

	assert.False(t, NewFieldResolver(nil, logger).Bool("auth", false, obj("auth", json.Number("1")), nil))
}

func TestLoaderResolvePath(t *testing.T) {
	l := NewLoader(fstest.MapFS{})
	cases := []struct {
		file, doc, want string
	}{
		{"./_data/shared.json", "a.json", "_data/shared.json"},
		{"./_data/shared.json", "users/list.json", "users/_data/shared.json"},
		{"/_data/shared.json", "users/list.json", "_data/shared.json"},
		{"common/x.json", "users/list.json", "common/x.json"},
		{"/common/x.json", "users/list.json", "common/x.json"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, l.ResolvePath(tc.file, tc.doc), tc.file)
	}
}

func TestLoaderLoad(t *testing.T) {
	fsys := fstest.MapFS{
		"_data/shared.json": {Data: []byte(`{"ping": {"ok": true}, "deep": {"a": {"b": 1}}}`)},
		"_data/broken.json": {Data: []byte(`{"ping": `)},
	}
	l := NewLoader(fsys)

	frag, err := l.Load("./_data/shared.json:ping", "a.json")
	require.NoError(t, err)
	assert.Equal(t, Fragment{Source: "_data/shared.json", Value: obj("ok", true), Found: true}, frag)

	frag, err = l.Load("/_data/shared.json:deep.a.b", "x/y.json")
	require.NoError(t, err)
	assert.Equal(t, json.Number("1"), frag.Value)

	frag, err = l.Load("/_data/shared.json:missing.key", "a.json")
	require.NoError(t, err)
	assert.Equal(t, "_data/shared.json", frag.Source)
	assert.False(t, frag.Found)

	frag, err = l.Load("/_data/shared.json", "a.json")
	require.NoError(t, err)
	assert.True(t, frag.Found)
	assert.Contains(t, frag.Value, "ping")

	frag, err = l.Load("./_data/nope.json:ping", "a.json")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnresolvableReference))
	assert.Equal(t, Fragment{}, frag)

	_, err = l.Load("/_data/broken.json:ping", "a.json")
	assert.ErrorIs(t, err, ErrUnresolvableReference)
}

func TestLoaderCacheAndInvalidate(t *testing.T) {
	fsys := fstest.MapFS{"_data/v.json": {Data: []byte(`{"n": 1}`)}}
	l := NewLoader(fsys)

	frag, err := l.Load("/_data/v.json:n", "a.json")
	require.NoError(t, err)
	assert.Equal(t, json.Number("1"), frag.Value)

	fsys["_data/v.json"] = &fstest.MapFile{Data: []byte(`{"n": 2}`)}
	frag, _ = l.Load("/_data/v.json:n", "a.json")
	assert.Equal(t, json.Number("1"), frag.Value, "cached parse is reused")

	l.Invalidate("./_data/v.json")
	frag, _ = l.Load("/_data/v.json:n", "a.json")
	assert.Equal(t, json.Number("2"), frag.Value)
}

func TestMergeScalarsPassThrough(t *testing.T) {
	m, _ := newTestMerger(t, fstest.MapFS{})
	for _, v := range []any{nil, "s", true, json.Number("3")} {
		deps, out := m.Merge(v, Scope{Path: "a.json"})
		assert.Empty(t, deps)
		assert.Equal(t, v, out)
	}
}

func TestMergeArrayKeepsFirstElement(t *testing.T) {
	m, hook := newTestMerger(t, fstest.MapFS{})
	in := []any{obj("a", json.Number("1")), obj("b", json.Number("2"))}
	_, out := m.Merge(obj("body", in), Scope{Path: "a.json"})
	assert.Equal(t, obj("body", []any{obj("a", json.Number("1"))}), out)

	_, out = m.Merge([]any{}, Scope{Path: "a.json"})
	assert.Equal(t, []any{}, out)
	assert.True(t, hasCode(hook, EmptyTemplate))
}

func TestMergeReferencePrecedence(t *testing.T) {
	fsys := fstest.MapFS{
		"_data/user.json": {Data: []byte(`{"user": {"id": 1, "name": "ref", "email": "e@x"}}`)},
	}
	m, _ := newTestMerger(t, fsys)

	in := obj("$ref", "./_data/user.json:user", "name", "local")
	deps, out := m.Merge(in, Scope{Path: "a.json"})

	assert.Equal(t, []string{"_data/user.json"}, deps)
	want := obj("id", json.Number("1"), "name", "local", "email", "e@x")
	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("merged mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeExclude(t *testing.T) {
	fsys := fstest.MapFS{
		"_data/user.json": {Data: []byte(`{"user": {"id": 1, "password": "x", "meta": {"a": 1, "b": 2}}}`)},
	}
	m, _ := newTestMerger(t, fsys)

	in := obj("$ref", "/_data/user.json:user", "$exclude", []any{"password", "meta.a"})
	_, out := m.Merge(in, Scope{Path: "a.json"})

	got := out.(map[string]any)
	assert.NotContains(t, got, "password")
	assert.NotContains(t, got, "$exclude")
	assert.NotContains(t, got, "$ref")
	assert.Equal(t, obj("a", json.Number("1"), "b", json.Number("2")), got["meta"], "nested excludes are not applied")
}

func TestMergeExcludeRedeclaredFieldStays(t *testing.T) {
	fsys := fstest.MapFS{"_data/u.json": {Data: []byte(`{"u": {"f": 1}}`)}}
	m, _ := newTestMerger(t, fsys)
	_, out := m.Merge(obj("$ref", "/_data/u.json:u", "$exclude", []any{"f"}, "f", "mine"), Scope{Path: "a.json"})
	assert.Equal(t, obj("f", "mine"), out)
}

func TestMergeDoesNotMutateCache(t *testing.T) {
	fsys := fstest.MapFS{"_data/u.json": {Data: []byte(`{"u": {"f": 1, "g": {"h": 2}}}`)}}
	m, _ := newTestMerger(t, fsys)
	scope := Scope{Path: "a.json"}

	_, first := m.Merge(obj("$ref", "/_data/u.json:u", "$exclude", []any{"f"}), scope)
	first.(map[string]any)["g"].(map[string]any)["h"] = "changed"

	_, second := m.Merge(obj("$ref", "/_data/u.json:u"), scope)
	assert.Equal(t, obj("f", json.Number("1"), "g", obj("h", json.Number("2"))), second)
}

func TestMergeMissingFileFallsBackToEmptyObject(t *testing.T) {
	m, hook := newTestMerger(t, fstest.MapFS{})
	deps, out := m.Merge(obj("$ref", "./_data/shared.json:ping"), Scope{Path: "a.json"})
	assert.Equal(t, []string{""}, deps)
	assert.Equal(t, map[string]any{}, out)
	assert.True(t, hasCode(hook, UnresolvableReference))
}

func TestMergeNonObjectFragment(t *testing.T) {
	fsys := fstest.MapFS{"_data/v.json": {Data: []byte(`{"list": [1, 2]}`)}}
	m, hook := newTestMerger(t, fsys)
	deps, out := m.Merge(obj("$ref", "/_data/v.json:list", "x", true), Scope{Path: "a.json"})
	assert.Equal(t, []string{"_data/v.json"}, deps)
	assert.Equal(t, obj("x", true), out)
	assert.True(t, hasCode(hook, TypeMismatch))
}

func TestSubstitute(t *testing.T) {
	m, _ := newTestMerger(t, fstest.MapFS{})
	scope := Scope{Path: "a.json", Defines: map[string]string{"HOST": "v2"}}

	assert.Equal(t, "./_data/v2/users.json", m.Substitute("./_data/$HOST/users.json", scope))
	assert.Equal(t, "./_data/$OTHER/users.json", m.Substitute("./_data/$OTHER/users.json", scope))
	assert.Equal(t, "plain.json", m.Substitute("plain.json", scope))

	multi := Scope{Path: "a.json", Defines: map[string]string{"HOST": "v2", "FILE": "users"}}
	assert.Equal(t, "./_data/v2/$FILE.json", m.Substitute("./_data/$HOST/$FILE.json", multi), "only the first token is replaced")
	assert.Equal(t, "./_data/$OTHER/$HOST.json", m.Substitute("./_data/$OTHER/$HOST.json", multi), "undefined first token leaves the ref unchanged")
}

func TestMergeCollectsUnresolvedTargets(t *testing.T) {
	fsys := fstest.MapFS{"_data/v.json": {Data: []byte(`{"n": {"x": 1}}`)}}
	m, _ := newTestMerger(t, fsys)

	var missing []string
	scope := Scope{Path: "docs/a.json", Unresolved: &missing}
	value := obj("a", obj("$ref", "./_data/shared.json:ping"), "b", obj("$ref", "/_data/v.json:n"), "c", obj("$ref", "/_data/gone.json"))
	deps, _ := m.Merge(value, scope)

	assert.Equal(t, []string{"", "_data/v.json", ""}, deps)
	assert.Equal(t, []string{"docs/_data/shared.json", "_data/gone.json"}, missing)
}

func TestLoaderInvalidateDirectory(t *testing.T) {
	fsys := fstest.MapFS{
		"_data/a.json":    {Data: []byte(`{"n": 1}`)},
		"_data/v2/b.json": {Data: []byte(`{"n": 1}`)},
		"other/c.json":    {Data: []byte(`{"n": 1}`)},
	}
	l := NewLoader(fsys)
	for _, p := range []string{"/_data/a.json:n", "/_data/v2/b.json:n", "other/c.json:n"} {
		_, err := l.Load(p, "x.json")
		require.NoError(t, err)
	}
	for k := range fsys {
		fsys[k] = &fstest.MapFile{Data: []byte(`{"n": 2}`)}
	}

	l.Invalidate("_data")
	for p, want := range map[string]json.Number{"/_data/a.json:n": "2", "/_data/v2/b.json:n": "2", "other/c.json:n": "1"} {
		frag, err := l.Load(p, "x.json")
		require.NoError(t, err)
		assert.Equal(t, want, frag.Value, p)
	}
}

func TestMergeTemplateVariable(t *testing.T) {
	fsys := fstest.MapFS{
		"_data/v2/users.json": {Data: []byte(`{"list": {"version": 2}}`)},
	}
	m, _ := newTestMerger(t, fsys)
	root := obj("define", obj("HOST", "v2"))
	scope := NewScope("a.json", root)

	deps, out := m.Merge(obj("$ref", "./_data/$HOST/users.json:list"), scope)
	assert.Equal(t, []string{"_data/v2/users.json"}, deps)
	assert.Equal(t, obj("version", json.Number("2")), out)
}

func TestMergeTransitiveDependencies(t *testing.T) {
	fsys := fstest.MapFS{
		"_data/order.json": {Data: []byte(`{"order": {"id": 1, "user": {"$ref": "/_data/user.json:user"}}}`)},
		"_data/user.json":  {Data: []byte(`{"user": {"name": "n"}}`)},
	}
	m, _ := newTestMerger(t, fsys)
	deps, out := m.Merge(obj("$ref", "/_data/order.json:order"), Scope{Path: "a.json"})

	assert.ElementsMatch(t, []string{"_data/order.json", "_data/user.json"}, deps)
	assert.Equal(t, obj("id", json.Number("1"), "user", obj("name", "n")), out)
}

func TestMergeCycleTerminates(t *testing.T) {
	fsys := fstest.MapFS{
		"_data/a.json": {Data: []byte(`{"x": {"a": 1, "next": {"$ref": "/_data/b.json:y"}}}`)},
		"_data/b.json": {Data: []byte(`{"y": {"b": 2, "next": {"$ref": "/_data/a.json:x"}}}`)},
	}
	m, hook := newTestMerger(t, fsys)
	deps, out := m.Merge(obj("$ref", "/_data/a.json:x"), Scope{Path: "doc.json"})

	assert.Contains(t, deps, "_data/a.json")
	assert.Contains(t, deps, "_data/b.json")
	want := obj("a", json.Number("1"), "next", obj("b", json.Number("2"), "next", obj()))
	assert.Equal(t, want, out)
	assert.True(t, hasCode(hook, CircularReference))
}

func TestMergeDepthLimit(t *testing.T) {
	fsys := fstest.MapFS{
		"_data/c.json": {Data: []byte(`{"a": {"$ref": "/_data/c.json:b"}, "b": {"$ref": "/_data/c.json:c"}, "c": {"v": 1}}`)},
	}
	m, hook := newTestMerger(t, fsys, WithMaxDepth(1))
	_, out := m.Merge(obj("$ref", "/_data/c.json:a"), Scope{Path: "doc.json"})
	assert.Equal(t, obj(), out)
	assert.True(t, hasCode(hook, CircularReference))
}

func TestFragment(t *testing.T) {
	fsys := fstest.MapFS{"_data/api.json": {Data: []byte(`{"login": {"url": "/login"}}`)}}
	m, _ := newTestMerger(t, fsys)
	frag, deps := m.Fragment("/_data/api.json:login", Scope{Path: "a.json"})
	assert.True(t, frag.Found)
	assert.Equal(t, []string{"_data/api.json"}, deps)
	assert.Equal(t, obj("url", "/login"), frag.Value)
}

func TestErrorIs(t *testing.T) {
	err := &Error{Code: CircularReference, Message: "cycle", Location: "a.json", Pointer: "x.json:y"}
	assert.ErrorIs(t, err, ErrCircularReference)
	assert.ErrorIs(t, err, ErrUnresolvableReference)
	assert.NotErrorIs(t, err, ErrMalformedDocument)
	assert.Equal(t, "a.json: cycle (x.json:y)", err.Error())
}
