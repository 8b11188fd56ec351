// Package tts adapts third-party and in-house speech-synthesis backends to
// dialog.TTSProvider.
package tts

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vox-dialog/dialogd/pkg/dialog"
)

const lokutorSampleRate = 24000

// LokutorTTS streams speech over a persistent websocket connection to the
// Lokutor synthesis service, implementing dialog.TTSProvider's single
// streaming Synthesize plus an Abort that tears the connection down so a
// barge-in can silence an in-flight utterance immediately.
type LokutorTTS struct {
	apiKey string
	host   string
	scheme string

	mu      sync.Mutex
	conn    *websocket.Conn
	aborted bool
}

func NewLokutorTTS(apiKey string) *LokutorTTS {
	return &LokutorTTS{apiKey: apiKey, host: "api.lokutor.com", scheme: "wss"}
}

func (t *LokutorTTS) getConn(ctx context.Context) (*websocket.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return t.conn, nil
	}

	u := url.URL{Scheme: t.scheme, Host: t.host, Path: "/ws", RawQuery: "api_key=" + t.apiKey}
	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to lokutor: %v", dialog.ErrProviderUnavailable, err)
	}

	t.aborted = false
	t.conn = conn
	return conn, nil
}

func (t *LokutorTTS) Synthesize(ctx context.Context, text string, voice dialog.Voice, lang dialog.Language, onChunk func(chunk []byte, codec string, sampleRate int) error) error {
	conn, err := t.getConn(ctx)
	if err != nil {
		return err
	}

	req := map[string]interface{}{
		"text":    text,
		"voice":   string(voice),
		"lang":    string(lang),
		"speed":   1.05,
		"steps":   5,
		"version": "versa-1.0",
	}
	if err := wsjson.Write(ctx, conn, req); err != nil {
		t.dropConn(conn)
		return fmt.Errorf("%w: failed to send synthesis request: %v", dialog.ErrProviderTransient, err)
	}

	for {
		t.mu.Lock()
		aborted := t.aborted
		t.mu.Unlock()
		if aborted {
			return nil
		}

		messageType, payload, err := conn.Read(ctx)
		if err != nil {
			t.mu.Lock()
			wasAborted := t.aborted
			t.mu.Unlock()
			t.dropConn(conn)
			if wasAborted {
				return nil
			}
			return fmt.Errorf("%w: failed to read from lokutor: %v", dialog.ErrProviderTransient, err)
		}

		switch messageType {
		case websocket.MessageBinary:
			if err := onChunk(payload, "pcm16", lokutorSampleRate); err != nil {
				return err
			}
		case websocket.MessageText:
			msg := string(payload)
			if msg == "EOS" {
				return nil
			}
			if len(msg) >= 4 && msg[:4] == "ERR:" {
				return fmt.Errorf("%w: lokutor error: %s", dialog.ErrProviderTransient, msg)
			}
		}
	}
}

func (t *LokutorTTS) dropConn(conn *websocket.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == conn {
		conn.Close(websocket.StatusAbnormalClosure, "closing")
		t.conn = nil
	}
}

// Abort closes the active connection, unblocking any in-flight Read in
// Synthesize so a barge-in stops playback immediately rather than waiting
// for the current sentence to finish streaming.
func (t *LokutorTTS) Abort() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.aborted = true
	if t.conn != nil {
		err := t.conn.Close(websocket.StatusNormalClosure, "aborted")
		t.conn = nil
		return err
	}
	return nil
}

func (t *LokutorTTS) Name() string { return "lokutor" }

func (t *LokutorTTS) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		err := t.conn.Close(websocket.StatusNormalClosure, "")
		t.conn = nil
		return err
	}
	return nil
}
