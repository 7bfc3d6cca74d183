package transfer

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/bitrise-io/go-objectupload/network"
)

// patternReader is a seekable source of the given size that doesn't keep its content in memory.
type patternReader struct {
	size   int64
	offset int64
}

func (r *patternReader) Read(p []byte) (int, error) {
	if r.offset >= r.size {
		return 0, io.EOF
	}
	n := int(min(int64(len(p)), r.size-r.offset))
	for i := 0; i < n; i++ {
		p[i] = byte((r.offset + int64(i)) % 251)
	}
	r.offset += int64(n)
	return n, nil
}

func (r *patternReader) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		r.offset = offset
	case io.SeekCurrent:
		r.offset += offset
	case io.SeekEnd:
		r.offset = r.size + offset
	}
	return r.offset, nil
}

type fakeClient struct {
	mu sync.Mutex

	openCalls       int
	partSlotCalls   int
	partCalls       int
	partBytes       int64
	finishCalls     int
	finishedSums    [][]string
	cancelled       []string
	singleSlotCalls int
	singleCalls     int
	singleBytes     int64

	// busy tells how many times a part number is rejected as busy
	busy map[int]int
	// partErrs are returned by the first UploadPart calls, one per call
	partErrs []error
	// singleErrs are returned by the first UploadSingle calls, one per call
	singleErrs []error
	cancelErr  error
	// blockParts makes part uploads wait until their context is done
	blockParts  bool
	partStarted chan struct{}
	startedOnce sync.Once
	// failParts fail the given part numbers once another part is blocked, if blocked is set
	failParts   map[int]error
	blocked     chan struct{}
	blockedOnce sync.Once
	// afterPart runs after a part was uploaded successfully
	afterPart func(partNumber int)
}

func (f *fakeClient) OpenMultipartSession(context.Context, network.SessionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openCalls++
	return fmt.Sprintf("session-%d", f.openCalls), nil
}

func (f *fakeClient) GetPartUploadSlot(_ context.Context, sessionID string) (network.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.partSlotCalls++
	return network.Slot{URL: sessionID, Token: fmt.Sprintf("token-%d", f.partSlotCalls)}, nil
}

func (f *fakeClient) UploadPart(ctx context.Context, _ network.Slot, request network.PartRequest) error {
	if f.partStarted != nil {
		f.startedOnce.Do(func() { close(f.partStarted) })
	}
	if err, ok := f.failParts[request.PartNumber]; ok {
		if f.blocked != nil {
			select {
			case <-f.blocked:
			case <-ctx.Done():
			}
		}
		return err
	}
	if f.blockParts {
		if f.blocked != nil {
			f.blockedOnce.Do(func() { close(f.blocked) })
		}
		<-ctx.Done()
		return ctx.Err()
	}

	n, err := io.Copy(io.Discard, request.Body)
	if err != nil {
		return err
	}

	if f.afterPart != nil {
		defer f.afterPart(request.PartNumber)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.partCalls++

	if len(f.partErrs) > 0 {
		err := f.partErrs[0]
		f.partErrs = f.partErrs[1:]
		return err
	}
	if f.busy[request.PartNumber] > 0 {
		f.busy[request.PartNumber]--
		return &network.RequestError{Status: 503, Code: "service_unavailable"}
	}
	if n != request.ContentLength {
		return fmt.Errorf("part %d: read %d bytes, expected %d", request.PartNumber, n, request.ContentLength)
	}
	f.partBytes += n
	return nil
}

func (f *fakeClient) FinishMultipartSession(_ context.Context, sessionID string, sums []string) (*network.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finishCalls++
	f.finishedSums = append(f.finishedSums, sums)
	return &network.File{FileID: sessionID, ContentLength: f.partBytes}, nil
}

func (f *fakeClient) CancelMultipartSession(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, sessionID)
	return f.cancelErr
}

func (f *fakeClient) GetSingleUploadSlot(context.Context, string) (network.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.singleSlotCalls++
	return network.Slot{URL: "single", Token: "token"}, nil
}

func (f *fakeClient) UploadSingle(_ context.Context, _ network.Slot, request network.SingleRequest) (*network.File, error) {
	n, err := io.Copy(io.Discard, request.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.singleCalls++

	if len(f.singleErrs) > 0 {
		err := f.singleErrs[0]
		f.singleErrs = f.singleErrs[1:]
		return nil, err
	}
	f.singleBytes = n
	return &network.File{FileID: "single-file", FileName: request.FileName, ContentLength: n, ContentSHA1: request.ContentSHA1}, nil
}

func (f *fakeClient) cancelledSessions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}
