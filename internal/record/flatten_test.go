package record

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func mustDecode(t *testing.T, s string) Value {
	t.Helper()
	v, err := Decode([]byte(s))
	require.NoError(t, err)
	return v
}

func TestFlatten_NestedListsAndContributorPrefix(t *testing.T) {
	v := mustDecode(t, `{"a": {"b": 1, "c": [1,2]}, "contributor_x": 5}`)
	got := Flatten(v)
	require.Equal(t, map[string]string{"a_b": "1", "a_c": "1, 2", "x": "5"}, got.Map())
	require.Equal(t, []string{"a_b", "a_c", "x"}, got.Keys())
}

func TestFlatten_ContributorPrefixOnlyOwnSegment(t *testing.T) {
	v := mustDecode(t, `{"contributor_score": {"contributor_sleep": 80, "rest": 3}}`)
	got := Flatten(v)
	// the parent segment loses its prefix, the merged child key keeps the parent as-is
	require.Equal(t, []string{"score_sleep", "score_rest"}, got.Keys())
	require.Equal(t, "80", got.Map()["score_sleep"])
}

func TestFlatten_CollisionLastWriteWins(t *testing.T) {
	v := mustDecode(t, `{"a_b": "first", "a": {"b": "second"}, "z": 1}`)
	got := Flatten(v)
	require.Equal(t, []string{"a_b", "z"}, got.Keys())
	require.Equal(t, "second", got.Map()["a_b"])

	v = mustDecode(t, `{"x": 1, "contributor_x": 2}`)
	got = Flatten(v)
	require.Equal(t, []string{"x"}, got.Keys())
	require.Equal(t, "2", got.Map()["x"])
}

func TestFlatten_EmptyContainers(t *testing.T) {
	v := mustDecode(t, `{"tags": [], "meta": {}, "day": "2024-01-01"}`)
	got := Flatten(v)
	require.Equal(t, []string{"tags", "day"}, got.Keys())
	s, ok := got.Get("tags")
	require.True(t, ok)
	require.Equal(t, "", s)
}

func TestFlatten_ScalarsAndNull(t *testing.T) {
	v := mustDecode(t, `{"score": 85.5, "ok": true, "label": "deep", "note": null, "mixed": [null, "a", {"k": 1}, [2]]}`)
	got := Flatten(v)
	m := got.Map()
	require.Equal(t, "85.5", m["score"])
	require.Equal(t, "true", m["ok"])
	require.Equal(t, "deep", m["label"])
	require.Equal(t, `null, a, {"k":1}, [2]`, m["mixed"])

	require.True(t, got.Has("note"))
	_, ok := got.Get("note")
	require.False(t, ok, "null is stored as NULL, not as text")
}

func TestFlatten_CustomSeparatorAndNonObject(t *testing.T) {
	v := mustDecode(t, `{"a": {"b": {"c": 1}}}`)
	got := Flattener{Separator: "."}.Flatten(v)
	require.Equal(t, []string{"a.b.c"}, got.Keys())

	require.Equal(t, 0, Flatten(Str("scalar")).Len())
}

func TestFlatten_ManualValue(t *testing.T) {
	v := Obj("day", Str("2024-02-01"), "contributors", Obj("contributor_hrv", Num("70")))
	got := Flatten(v)
	require.Equal(t, map[string]string{"day": "2024-02-01", "contributors_hrv": "70"}, got.Map())
}

func TestFlat_CloneIsIndependent(t *testing.T) {
	f := NewFlat()
	f.Set("a", "1")
	c := f.Clone()
	c.Set("b", "2")
	c.Set("a", "x")
	require.Equal(t, 1, f.Len())
	v, _ := f.Get("a")
	require.Equal(t, "1", v)
}
