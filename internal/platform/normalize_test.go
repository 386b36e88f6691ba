package platform

import (
	"testing"

	"github.com/danmuck/agentctl/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeList(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name    string
		body    string
		want    []string
		wantErr bool
	}{
		{name: "bare array", body: `[{"id":"a"},{"id":"b"}]`, want: []string{"a", "b"}},
		{name: "wrapped", body: `{"items":[{"id":"c"}]}`, want: []string{"c"}},
		{name: "wrapped without items", body: `{"next":null}`, want: []string{}},
		{name: "empty body", body: "  ", want: []string{}},
		{name: "null", body: "null", want: []string{}},
		{name: "scalar", body: `"nope"`, wantErr: true},
		{name: "malformed", body: `[{"id":`, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeList[Block]([]byte(tc.body))
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			ids := make([]string, 0, len(got))
			for _, b := range got {
				ids = append(ids, b.ID)
			}
			assert.Equal(t, tc.want, ids)
		})
	}
}

func TestRemoteErrorClassification(t *testing.T) {
	testlog.Start(t)
	notFound := &RemoteError{Method: "GET", Path: "/v1/agents/x", Status: 404}
	assert.True(t, IsNotFound(notFound))
	assert.ErrorIs(t, notFound, ErrRemote)

	server := &RemoteError{Method: "GET", Path: "/v1/blocks/", Status: 500, Body: "boom"}
	assert.False(t, IsNotFound(server))
	assert.Contains(t, server.Error(), "status 500")
	assert.Contains(t, server.Error(), "boom")

	assert.True(t, IsNotFound(NotFound("agent", "x")))
}
