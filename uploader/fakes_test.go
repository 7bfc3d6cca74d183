package uploader

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/bitrise-io/go-objectupload/network"
)

var errUnexpectedCall = errors.New("unexpected call")

type uploadedFile struct {
	name     string
	settings network.FileSettings
	content  []byte
}

type fakeClient struct {
	mu       sync.Mutex
	uploaded []uploadedFile

	// block makes single uploads wait until their context is done
	block   bool
	started chan struct{}
}

func (f *fakeClient) OpenMultipartSession(context.Context, network.SessionRequest) (string, error) {
	return "", errUnexpectedCall
}

func (f *fakeClient) GetPartUploadSlot(context.Context, string) (network.Slot, error) {
	return network.Slot{}, errUnexpectedCall
}

func (f *fakeClient) UploadPart(context.Context, network.Slot, network.PartRequest) error {
	return errUnexpectedCall
}

func (f *fakeClient) FinishMultipartSession(context.Context, string, []string) (*network.File, error) {
	return nil, errUnexpectedCall
}

func (f *fakeClient) CancelMultipartSession(context.Context, string) error {
	return errUnexpectedCall
}

func (f *fakeClient) GetSingleUploadSlot(context.Context, string) (network.Slot, error) {
	return network.Slot{URL: "single", Token: "token"}, nil
}

func (f *fakeClient) UploadSingle(ctx context.Context, _ network.Slot, request network.SingleRequest) (*network.File, error) {
	if f.block {
		close(f.started)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	content, err := io.ReadAll(request.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded = append(f.uploaded, uploadedFile{name: request.FileName, settings: request.Settings, content: content})
	return &network.File{
		FileName:      request.FileName,
		ContentLength: int64(len(content)),
		ContentSHA1:   request.ContentSHA1,
		ContentType:   request.Settings.ContentType,
	}, nil
}

func (f *fakeClient) files() []uploadedFile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uploadedFile(nil), f.uploaded...)
}
