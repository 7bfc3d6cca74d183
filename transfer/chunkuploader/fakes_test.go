package chunkuploader

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/bitrise-io/go-objectupload/network"
)

type uploadedPart struct {
	number int
	slot   network.Slot
	sha1   string
	data   []byte
}

// fakeClient records the part uploads of a session. busyResponses tells how many times
// a given part number is rejected as busy before it is accepted.
type fakeClient struct {
	mu            sync.Mutex
	slotCalls     int
	uploads       []uploadedPart
	busyResponses map[int]int
	failPart      int
	failErr       error
	// blockPart makes the upload of that part wait for ctx to be done
	blockPart int
}

func (f *fakeClient) OpenMultipartSession(context.Context, network.SessionRequest) (string, error) {
	return "session", nil
}

func (f *fakeClient) GetPartUploadSlot(_ context.Context, sessionID string) (network.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slotCalls++
	return network.Slot{URL: fmt.Sprintf("%s/slot-%d", sessionID, f.slotCalls), Token: "token"}, nil
}

func (f *fakeClient) UploadPart(ctx context.Context, slot network.Slot, request network.PartRequest) error {
	if request.PartNumber == f.blockPart {
		<-ctx.Done()
		return ctx.Err()
	}

	data, err := io.ReadAll(request.Body)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if request.PartNumber == f.failPart {
		return f.failErr
	}
	if f.busyResponses[request.PartNumber] > 0 {
		f.busyResponses[request.PartNumber]--
		return &network.RequestError{Status: 503, Code: "service_unavailable", Message: "no tomes available"}
	}

	f.uploads = append(f.uploads, uploadedPart{number: request.PartNumber, slot: slot, sha1: request.ContentSHA1, data: data})
	return nil
}

func (f *fakeClient) FinishMultipartSession(context.Context, string, []string) (*network.File, error) {
	return &network.File{}, nil
}

func (f *fakeClient) CancelMultipartSession(context.Context, string) error {
	return nil
}

func (f *fakeClient) GetSingleUploadSlot(context.Context, string) (network.Slot, error) {
	return network.Slot{}, nil
}

func (f *fakeClient) UploadSingle(context.Context, network.Slot, network.SingleRequest) (*network.File, error) {
	return &network.File{}, nil
}
