package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDiscord_PostsEmbed(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscord(srv.URL, zap.NewNop())
	d.Notify(context.Background(), Event{
		Title:   "Signal routed",
		Status:  "ok",
		OrderID: "tv-1",
		Fields: []Field{
			{Name: "instrument", Value: "US30_USD"},
			{Name: "units", Value: "3"},
		},
	})

	require.Len(t, got.Embeds, 1)
	embed := got.Embeds[0]
	assert.Equal(t, "Signal routed", embed.Title)
	assert.Equal(t, colorGreen, embed.Color)
	require.Len(t, embed.Fields, 2)
	assert.Equal(t, "US30_USD", embed.Fields[0].Value)
	require.NotNil(t, embed.Footer)
	assert.Equal(t, "order tv-1", embed.Footer.Text)
}

func TestDiscord_FailureIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d := NewDiscord(srv.URL, zap.NewNop())
	// Must not panic or block on a rejected webhook.
	d.Notify(context.Background(), Event{Title: "Signal rejected", Status: "rejected"})
}

func TestStatusColor(t *testing.T) {
	assert.Equal(t, colorGreen, statusColor("ok"))
	assert.Equal(t, colorYellow, statusColor("partial"))
	assert.Equal(t, colorYellow, statusColor("skipped"))
	assert.Equal(t, colorRed, statusColor("error"))
	assert.Equal(t, colorRed, statusColor("rejected"))
	assert.Equal(t, colorGrey, statusColor("ignored"))
}

type recordingNotifier struct {
	events []Event
}

func (r *recordingNotifier) Notify(_ context.Context, ev Event) {
	r.events = append(r.events, ev)
}

func TestMulti_FansOut(t *testing.T) {
	a := &recordingNotifier{}
	b := &recordingNotifier{}
	m := Multi{a, b, Noop{}}

	m.Notify(context.Background(), Event{Title: "t", Status: "ok"})

	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}
