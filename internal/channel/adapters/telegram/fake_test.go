package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/memohai/relay/internal/channel"
	"github.com/memohai/relay/internal/media"
)

var (
	errParse     = fmt.Errorf("%w: Bad Request: can't parse entities", channel.ErrMarkupRejected)
	errTransport = errors.New("connection reset by peer")
)

type fakeCall struct {
	method    string
	chatID    int64
	messageID int
	text      string
	parseMode string
	silent    bool
	voice     Voice
}

// fakeClient records every call. Queued errors are consumed one per call of the matching method.
type fakeClient struct {
	mu        sync.Mutex
	calls     []fakeCall
	sendErrs  []error
	editErrs  []error
	deleteErr error
	voiceErr  error

	files       map[string]media.RemoteFile
	fileErr     error
	downloads   map[string][]byte
	downloadErr error

	nextID int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		files:     map[string]media.RemoteFile{},
		downloads: map[string][]byte{},
		nextID:    100,
	}
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (f *fakeClient) SendText(ctx context.Context, chatID int64, text string, opts TextOptions) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fakeCall{method: "send", chatID: chatID, text: text, parseMode: opts.ParseMode, silent: opts.Silent})
	if err := pop(&f.sendErrs); err != nil {
		return 0, err
	}
	f.nextID++
	return f.nextID, nil
}

func (f *fakeClient) EditText(ctx context.Context, chatID int64, messageID int, text string, parseMode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fakeCall{method: "edit", chatID: chatID, messageID: messageID, text: text, parseMode: parseMode})
	return pop(&f.editErrs)
}

func (f *fakeClient) Delete(ctx context.Context, chatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fakeCall{method: "delete", chatID: chatID, messageID: messageID})
	return f.deleteErr
}

func (f *fakeClient) SendVoice(ctx context.Context, chatID int64, voice Voice) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fakeCall{method: "voice", chatID: chatID, voice: voice})
	if f.voiceErr != nil {
		return 0, f.voiceErr
	}
	f.nextID++
	return f.nextID, nil
}

func (f *fakeClient) GetFile(ctx context.Context, fileID string) (media.RemoteFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fakeCall{method: "get_file", text: fileID})
	if f.fileErr != nil {
		return media.RemoteFile{}, f.fileErr
	}
	file, ok := f.files[fileID]
	if !ok {
		return media.RemoteFile{}, fmt.Errorf("file %s not found", fileID)
	}
	return file, nil
}

func (f *fakeClient) Download(ctx context.Context, url string, maxBytes int64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fakeCall{method: "download", text: url})
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	data := f.downloads[url]
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: max %d bytes", media.ErrAssetTooLarge, maxBytes)
	}
	return data, nil
}

func (f *fakeClient) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.method)
	}
	return out
}

func (f *fakeClient) callsOf(method string) []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakeCall
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}
