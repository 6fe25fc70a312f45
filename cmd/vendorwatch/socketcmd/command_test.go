package socketcmd

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quailyquaily/vendorwatch/llm"
	"github.com/quailyquaily/vendorwatch/pipeline"
)

type staticResolver struct {
	names map[string]string
}

func (s *staticResolver) ChannelName(ctx context.Context, channelID string) (string, error) {
	return s.names[channelID], nil
}

type staticLLM struct {
	text string
}

func (s *staticLLM) Chat(ctx context.Context, req llm.Request) (llm.Response, error) {
	return llm.Response{Text: s.text}, nil
}

type postCall struct {
	channelID string
	text      string
	threadTS  string
}

type recordingPoster struct {
	calls []postCall
}

func (p *recordingPoster) PostMessage(ctx context.Context, channelID, text, threadTS string) error {
	p.calls = append(p.calls, postCall{channelID: channelID, text: text, threadTS: threadTS})
	return nil
}

func TestConsumeSocketAcksEveryEnvelopeAndDispatchesMessages(t *testing.T) {
	t.Parallel()

	envelopes := []string{
		`{"type":"hello"}`,
		`{"envelope_id":"env-1","type":"slash_commands","payload":{}}`,
		`{"envelope_id":"env-2","type":"events_api","payload":{"event":{"type":"reaction_added","channel":"C1"}}}`,
		`{"envelope_id":"env-3","type":"events_api","payload":{"event":{"type":"message","channel":"C1","user":"U1","text":"AWS maintenance tonight","ts":"1699999999.000100"}}}`,
		`{"type":"disconnect"}`,
	}

	acks := make(chan string, len(envelopes))
	var upgrader websocket.Upgrader
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for _, env := range envelopes {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(env)); err != nil {
				t.Errorf("write envelope: %v", err)
				return
			}
		}
		for i := 0; i < 3; i++ {
			var ack struct {
				EnvelopeID string `json:"envelope_id"`
			}
			if err := conn.ReadJSON(&ack); err != nil {
				t.Errorf("read ack: %v", err)
				return
			}
			acks <- ack.EnvelopeID
		}
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	poster := &recordingPoster{}
	handler, err := pipeline.NewHandler(pipeline.HandlerOptions{
		Config: pipeline.Config{
			WorkspaceDomain:   "acme",
			MonitoredChannels: []string{"vendor-alerts"},
		},
		Resolver:   &staticResolver{names: map[string]string{"C1": "vendor-alerts"}},
		Classifier: pipeline.NewClassifier(&staticLLM{text: `{"is_vendor_announcement":true,"summary":"AWS maintenance"}`}, "gpt-4o-mini", logger),
		Alerts:     pipeline.NewAlertPublisher(poster, logger),
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	if err := consumeSocket(context.Background(), conn, handler, logger); err != nil {
		t.Fatalf("consumeSocket() error = %v, want nil on requested disconnect", err)
	}

	got := map[string]bool{}
	for i := 0; i < 3; i++ {
		select {
		case id := <-acks:
			got[id] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d acks, want 3", i)
		}
	}
	for _, id := range []string{"env-1", "env-2", "env-3"} {
		if !got[id] {
			t.Fatalf("envelope %s was not acked; acks = %v", id, got)
		}
	}

	if len(poster.calls) != 1 {
		t.Fatalf("post calls = %d, want exactly 1 (ignored envelopes must not dispatch)", len(poster.calls))
	}
	if poster.calls[0].channelID != "C1" {
		t.Fatalf("channel = %q, want C1", poster.calls[0].channelID)
	}
	if poster.calls[0].threadTS != "1699999999.000100" {
		t.Fatalf("thread_ts = %q, want original message ts", poster.calls[0].threadTS)
	}
}
