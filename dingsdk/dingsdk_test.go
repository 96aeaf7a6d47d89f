package dingsdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNotify(t *testing.T) {
	var received DingNotify
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	defer server.Close()

	result, err := NewDingSdk(server.URL).Notify(context.Background(), TextNotify("swap failed"))
	require.NoError(t, err)
	require.Equal(t, "ok", result.ErrMsg)
	require.Equal(t, "text", received.MsgType)
	require.Equal(t, "swap failed", received.Text.Content)
}

func TestNotifyRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errcode":310000,"errmsg":"keywords not in content"}`))
	}))
	defer server.Close()

	_, err := NewDingSdk(server.URL).Notify(context.Background(), TextNotify("x"))
	require.ErrorContains(t, err, "310000")
}

func TestNotifyDisabled(t *testing.T) {
	sdk := NewDingSdk("")
	require.False(t, sdk.Enabled())
	result, err := sdk.Notify(context.Background(), TextNotify("x"))
	require.NoError(t, err)
	require.Nil(t, result)
}
