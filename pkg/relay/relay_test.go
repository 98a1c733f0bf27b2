package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gembot/pkg/bus"
	"gembot/pkg/config"
	"gembot/pkg/provider/types"
)

type transportCall struct {
	op        string
	chatID    int64
	messageID int
	text      string
	mode      RenderMode
}

type fakeTransport struct {
	mu    sync.Mutex
	calls []transportCall

	sendErr        error
	editErr        error
	editErrOnce    bool
	fetchErr       error
	attachment     []byte
	fetchedFileIDs []string

	nextMessageID int
}

func (f *fakeTransport) Send(_ context.Context, chatID int64, text string, mode RenderMode) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, transportCall{op: "send", chatID: chatID, text: text, mode: mode})
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	f.nextMessageID++
	return f.nextMessageID, nil
}

func (f *fakeTransport) Edit(_ context.Context, chatID int64, messageID int, text string, mode RenderMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, transportCall{op: "edit", chatID: chatID, messageID: messageID, text: text, mode: mode})
	if f.editErr != nil {
		err := f.editErr
		if f.editErrOnce {
			f.editErr = nil
		}
		return err
	}
	return nil
}

func (f *fakeTransport) FetchAttachment(_ context.Context, fileID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchedFileIDs = append(f.fetchedFileIDs, fileID)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.attachment, nil
}

func (f *fakeTransport) callsByOp(op string) []transportCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []transportCall
	for _, call := range f.calls {
		if call.op == op {
			out = append(out, call)
		}
	}
	return out
}

type fakeCompleter struct {
	mu         sync.Mutex
	textCalls  int
	imageCalls int

	text      string
	err       error
	lastImage []byte
	lastMIME  string
	lastText  string
}

func (f *fakeCompleter) CompleteText(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.textCalls++
	f.lastText = prompt
	return f.text, f.err
}

func (f *fakeCompleter) CompleteImage(_ context.Context, image []byte, mimeType string, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imageCalls++
	f.lastImage = image
	f.lastMIME = mimeType
	f.lastText = prompt
	return f.text, f.err
}

func (f *fakeCompleter) backendCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.textCalls + f.imageCalls
}

func newTestOrchestrator(transport *fakeTransport, completer *fakeCompleter) *Orchestrator {
	return New(transport, completer, config.RelayConfig{}, nil)
}

func TestSuccessfulTextRelay(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	completer := &fakeCompleter{text: "Hi there!"}
	orch := newTestOrchestrator(transport, completer)

	orch.HandleEvent(context.Background(), bus.InboundEvent{ChatID: 42, Text: "Hello"})

	require.Len(t, transport.calls, 2, "exactly one send and one edit")
	assert.Equal(t, "send", transport.calls[0].op)
	assert.Equal(t, typingPlaceholder, transport.calls[0].text)
	assert.Equal(t, RenderPlain, transport.calls[0].mode)

	assert.Equal(t, "edit", transport.calls[1].op)
	assert.Equal(t, int64(42), transport.calls[1].chatID)
	assert.Equal(t, "Hi there!", transport.calls[1].text)
	assert.Equal(t, RenderMarkdown, transport.calls[1].mode)
	assert.Equal(t, 1, transport.calls[1].messageID)

	assert.Equal(t, "Hello", completer.lastText)
	assert.Equal(t, 1, completer.backendCalls())
}

func TestStartCommandSendsWelcomeWithoutBackend(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	completer := &fakeCompleter{}
	orch := newTestOrchestrator(transport, completer)

	orch.HandleEvent(context.Background(), bus.InboundEvent{ChatID: 1, Text: "/start", SenderName: "Ada"})

	sends := transport.callsByOp("send")
	if len(sends) != 1 {
		t.Fatalf("sends = %d, want exactly one welcome", len(sends))
	}
	if !strings.HasPrefix(sends[0].text, "Hello Ada!") {
		t.Fatalf("welcome = %q, want sender name", sends[0].text)
	}
	if sends[0].mode != RenderPlain {
		t.Fatalf("welcome mode = %q, want plain", sends[0].mode)
	}
	if completer.backendCalls() != 0 {
		t.Fatal("welcome path must not call the backend")
	}
}

func TestWelcomeFallsBackToGenericName(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	orch := newTestOrchestrator(transport, &fakeCompleter{})

	orch.HandleEvent(context.Background(), bus.InboundEvent{ChatID: 1, Text: "/start"})

	sends := transport.callsByOp("send")
	if len(sends) != 1 || !strings.HasPrefix(sends[0].text, "Hello there!") {
		t.Fatalf("welcome = %+v, want generic fallback name", sends)
	}
}

func TestUnknownCommandIsSilent(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	completer := &fakeCompleter{}
	orch := newTestOrchestrator(transport, completer)

	orch.HandleEvent(context.Background(), bus.InboundEvent{ChatID: 1, Text: "/help"})

	if len(transport.calls) != 0 {
		t.Fatalf("calls = %+v, want none", transport.calls)
	}
	if completer.backendCalls() != 0 {
		t.Fatal("ignored command must not call the backend")
	}
}

func TestUnsupportedMediaNoticeIsIdenticalAcrossKinds(t *testing.T) {
	t.Parallel()

	events := []bus.InboundEvent{
		{ChatID: 7, Document: &bus.DocumentRef{FileID: "d", MIMEType: "application/zip", FileName: "a.zip"}},
		{ChatID: 7, OtherMedia: true},
	}

	var notices []string
	for _, event := range events {
		transport := &fakeTransport{}
		completer := &fakeCompleter{}
		orch := newTestOrchestrator(transport, completer)

		orch.HandleEvent(context.Background(), event)

		sends := transport.callsByOp("send")
		if len(sends) != 1 {
			t.Fatalf("sends = %d, want exactly one notice", len(sends))
		}
		if sends[0].mode != RenderPlain {
			t.Fatalf("notice mode = %q, want plain", sends[0].mode)
		}
		if completer.backendCalls() != 0 {
			t.Fatal("unsupported media must not call the backend")
		}
		notices = append(notices, sends[0].text)
	}

	if notices[0] != notices[1] {
		t.Fatalf("notice texts differ: %q vs %q", notices[0], notices[1])
	}
	if notices[0] != "Sorry, the bot only supports images right now." {
		t.Fatalf("notice = %q", notices[0])
	}
}

func TestPhotoRelayFetchesHighestResolution(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{attachment: []byte{1, 2, 3}}
	completer := &fakeCompleter{text: "a sunset"}
	orch := newTestOrchestrator(transport, completer)

	orch.HandleEvent(context.Background(), bus.InboundEvent{
		ChatID:  9,
		Photos:  []bus.AttachmentRef{{FileID: "low"}, {FileID: "mid"}, {FileID: "high"}},
		Caption: "what is this?",
	})

	require.Equal(t, []string{"high"}, transport.fetchedFileIDs)
	assert.Equal(t, "what is this?", completer.lastText, "caption overrides the default prompt")
	assert.Equal(t, "image/jpeg", completer.lastMIME)
	assert.Equal(t, []byte{1, 2, 3}, completer.lastImage)

	edits := transport.callsByOp("edit")
	require.Len(t, edits, 1)
	assert.Equal(t, "a sunset", edits[0].text)
}

func TestImageRelayDefaultsPrompt(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{attachment: []byte{1}}
	completer := &fakeCompleter{text: "ok"}
	orch := newTestOrchestrator(transport, completer)

	orch.HandleEvent(context.Background(), bus.InboundEvent{
		ChatID:   9,
		Document: &bus.DocumentRef{FileID: "doc", MIMEType: "image/png"},
	})

	if completer.lastText != defaultImagePrompt {
		t.Fatalf("prompt = %q, want default", completer.lastText)
	}
	if completer.lastMIME != "image/png" {
		t.Fatalf("mime = %q, want declared type", completer.lastMIME)
	}
}

func TestPlaceholderFailureAbortsSilently(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{sendErr: errors.New("network down")}
	completer := &fakeCompleter{}
	orch := newTestOrchestrator(transport, completer)

	orch.HandleEvent(context.Background(), bus.InboundEvent{ChatID: 1, Text: "Hello"})

	if completer.backendCalls() != 0 {
		t.Fatal("no backend call after failed placeholder")
	}
	if edits := transport.callsByOp("edit"); len(edits) != 0 {
		t.Fatalf("edits = %+v, want none", edits)
	}
}

func TestRateLimitedRelayEditsBusyMessageOnce(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	completer := &fakeCompleter{err: &types.Error{Kind: types.KindRateLimited, HTTPStatus: 429}}
	orch := newTestOrchestrator(transport, completer)

	orch.HandleEvent(context.Background(), bus.InboundEvent{ChatID: 1, Text: "Hello"})

	edits := transport.callsByOp("edit")
	require.Len(t, edits, 1, "exactly one terminal edit")
	assert.Equal(t, busyText, edits[0].text)
	assert.Equal(t, RenderPlain, edits[0].mode)
}

func TestBackendErrorSurfacedVerbatim(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	completer := &fakeCompleter{err: &types.Error{Kind: types.KindBackendError, HTTPStatus: 500, Body: `{"error":"internal"}`}}
	orch := newTestOrchestrator(transport, completer)

	orch.HandleEvent(context.Background(), bus.InboundEvent{ChatID: 1, Text: "Hello"})

	edits := transport.callsByOp("edit")
	require.Len(t, edits, 1)
	assert.Equal(t, `HTTP 500: {"error":"internal"}`, edits[0].text)
	assert.Equal(t, RenderPlain, edits[0].mode)
}

func TestTimeoutEditsRetryMessage(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	completer := &fakeCompleter{err: &types.Error{Kind: types.KindTimeout, Message: "deadline"}}
	orch := newTestOrchestrator(transport, completer)

	orch.HandleEvent(context.Background(), bus.InboundEvent{ChatID: 1, Text: "Hello"})

	edits := transport.callsByOp("edit")
	require.Len(t, edits, 1)
	assert.Equal(t, timeoutText, edits[0].text)
}

func TestAttachmentFailureBecomesGenericError(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{fetchErr: errors.New("getFile failed")}
	completer := &fakeCompleter{}
	orch := newTestOrchestrator(transport, completer)

	orch.HandleEvent(context.Background(), bus.InboundEvent{ChatID: 1, Photos: []bus.AttachmentRef{{FileID: "p"}}})

	if completer.backendCalls() != 0 {
		t.Fatal("no backend call after failed fetch")
	}

	edits := transport.callsByOp("edit")
	require.Len(t, edits, 1)
	assert.True(t, strings.HasPrefix(edits[0].text, "An error occurred:"), "edit = %q", edits[0].text)
	assert.Equal(t, RenderPlain, edits[0].mode)
}

func TestRejectedMarkupEditRetriesPlainOnce(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{editErr: errors.New("can't parse entities"), editErrOnce: true}
	completer := &fakeCompleter{text: "*broken _markup"}
	orch := newTestOrchestrator(transport, completer)

	orch.HandleEvent(context.Background(), bus.InboundEvent{ChatID: 1, Text: "Hello"})

	edits := transport.callsByOp("edit")
	require.Len(t, edits, 2, "markup edit then one plain retry")
	assert.Equal(t, RenderMarkdown, edits[0].mode)
	assert.Equal(t, RenderPlain, edits[1].mode)
	assert.Equal(t, edits[0].text, edits[1].text)
}
