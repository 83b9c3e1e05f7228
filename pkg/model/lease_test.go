package model_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucmodeler/modelstore/pkg/model"
)

func TestParseLease(t *testing.T) {
	tests := []struct {
		token                     string
		owner, session, qualifier string
	}{
		{"", "", "", ""},
		{"alice", "alice", "", ""},
		{"alice/s1", "alice", "s1", ""},
		{"alice/s1/tab2", "alice", "s1", "tab2"},
		{"alice/s1/tab2/extra", "alice", "s1", "tab2/extra"},
		{"alice/s1/", "alice", "s1", ""},
		{"alice/", "alice", "", ""},
		{"alice//tab2", "alice", "", "tab2"},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got := model.ParseLease(tt.token)
			assert.Equal(t, tt.owner, got.Owner)
			assert.Equal(t, tt.session, got.Session)
			assert.Equal(t, tt.qualifier, got.Qualifier)
			assert.Equal(t, tt.token, got.String())
		})
	}
}

func TestLease_LiteralRendersSetFields(t *testing.T) {
	assert.Equal(t, "", model.Lease{}.String())
	assert.Equal(t, "alice/s1", model.Lease{Owner: "alice", Session: "s1"}.String())
	assert.Equal(t, "alice/s1/t1", model.Lease{Owner: "alice", Session: "s1", Qualifier: "t1"}.String())
	assert.True(t, model.Lease{Owner: "alice", Session: "s1", Qualifier: "t1"}.Equal(model.ParseLease("alice/s1/t1")))
}

func TestNewLease(t *testing.T) {
	l := model.NewLease("bob", "sess/tab")
	assert.Equal(t, "bob", l.Owner)
	assert.Equal(t, "sess", l.Session)
	assert.Equal(t, "tab", l.Qualifier)
	assert.Equal(t, "bob/sess/tab", l.String())

	assert.Equal(t, "bob/sess/", model.NewLease("bob", "sess/").String())
}

func TestLease_State(t *testing.T) {
	assert.Equal(t, model.LeaseStateUnleased, model.Lease{}.State())
	assert.Equal(t, model.LeaseStateLeased, model.ParseLease("a/b").State())
}

func TestLease_HeldBySession(t *testing.T) {
	l := model.ParseLease("alice/s1/tab2")
	assert.True(t, l.HeldBySession("alice", "s1"))
	assert.False(t, l.HeldBySession("alice", "s2"))
	assert.False(t, l.HeldBySession("bob", "s1"))
	assert.False(t, l.HeldBySession("alice", "s"), "session must match exactly, not by prefix")

	unqualified := model.ParseLease("alice/s1")
	assert.False(t, unqualified.HeldBySession("alice", "s1"), "token must start with owner/session/")

	emptyTab := model.ParseLease("alice/s1/")
	assert.True(t, emptyTab.HeldBySession("alice", "s1"))
	assert.False(t, emptyTab.IsZero())
}

func TestLease_JSON(t *testing.T) {
	data, err := json.Marshal(model.ParseLease("a/b/c"))
	require.NoError(t, err)
	assert.Equal(t, `"a/b/c"`, string(data))

	var l model.Lease
	require.NoError(t, json.Unmarshal([]byte(`"x/y/z"`), &l))
	assert.Equal(t, "x/y/z", l.String())

	for _, empty := range []string{`""`, `null`, `false`} {
		l = model.ParseLease("a/b")
		require.NoError(t, json.Unmarshal([]byte(empty), &l))
		assert.True(t, l.IsZero(), "input %s", empty)
	}

	require.Error(t, json.Unmarshal([]byte(`42`), &l))
}
