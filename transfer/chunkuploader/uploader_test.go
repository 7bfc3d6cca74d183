package chunkuploader

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitrise-io/go-objectupload/network"
	"github.com/bitrise-io/go-objectupload/progress"
	"github.com/bitrise-io/go-objectupload/throttle"
)

func testData(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func sha1Hex(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

func newTestJob(data []byte, partSize int64) (GroupJob, []PartSpec) {
	parts := Parts(int64(len(data)), partSize)
	return GroupJob{
		SessionID: "session",
		Parts:     parts,
		Source:    NewSource(bytes.NewReader(data), int64(len(data))),
		Checksums: NewChecksumTable(len(parts)),
	}, parts
}

func testConfig() Config {
	return Config{BusyPause: time.Millisecond, StreamChunkSize: 64}
}

func TestUploader_UploadGroup_Success(t *testing.T) {
	data := testData(1000)
	job, parts := newTestJob(data, 300)
	client := &fakeClient{}
	tracker := progress.NewTracker(int64(len(data)))

	uploader := New(client, tracker, nil, testConfig(), log.NewLogger())
	require.NoError(t, uploader.UploadGroup(context.Background(), job))

	require.Len(t, client.uploads, len(parts))
	assert.Equal(t, 1, client.slotCalls)
	for i, upload := range client.uploads {
		part := parts[i]
		assert.Equal(t, part.Number, upload.number)
		assert.Equal(t, data[part.Start:part.End], upload.data)
		assert.Equal(t, sha1Hex(data[part.Start:part.End]), upload.sha1)
		assert.Equal(t, "session/slot-1", upload.slot.URL)
	}

	sums, err := job.Checksums.List()
	require.NoError(t, err)
	assert.Len(t, sums, len(parts))
	assert.Equal(t, int64(len(data)), tracker.Done())
	assert.Equal(t, int64(len(parts)), uploader.Stats().FinishedCount())
}

func TestUploader_UploadGroup_BusyRefreshesSlot(t *testing.T) {
	data := testData(900)
	job, parts := newTestJob(data, 300)
	client := &fakeClient{busyResponses: map[int]int{2: 2}}
	tracker := progress.NewTracker(int64(len(data)))

	uploader := New(client, tracker, nil, testConfig(), log.NewLogger())
	require.NoError(t, uploader.UploadGroup(context.Background(), job))

	// one slot for the group plus one per busy response
	assert.Equal(t, 3, client.slotCalls)
	require.Len(t, client.uploads, len(parts))
	assert.Equal(t, "session/slot-1", client.uploads[0].slot.URL)
	assert.Equal(t, "session/slot-3", client.uploads[1].slot.URL)
	assert.Equal(t, "session/slot-3", client.uploads[2].slot.URL)

	assert.Equal(t, int64(len(data)), tracker.Done())
	assert.Equal(t, int64(2), uploader.Stats().BusyCount())
}

func TestUploader_UploadGroup_FatalErrorStopsGroup(t *testing.T) {
	data := testData(900)
	job, _ := newTestJob(data, 300)
	wantErr := &network.RequestError{Status: 400, Code: "bad_request", Message: "nope"}
	client := &fakeClient{failPart: 2, failErr: wantErr}

	uploader := New(client, progress.NewTracker(int64(len(data))), nil, testConfig(), log.NewLogger())
	err := uploader.UploadGroup(context.Background(), job)

	var requestErr *network.RequestError
	require.ErrorAs(t, err, &requestErr)
	assert.Equal(t, "bad_request", requestErr.Code)
	assert.Len(t, client.uploads, 1)
	assert.Equal(t, 1, client.slotCalls)
}

func TestUploader_UploadGroup_SourceReadError(t *testing.T) {
	data := testData(900)
	job, _ := newTestJob(data, 300)
	job.Source = NewSource(bytes.NewReader(data[:400]), 900)
	client := &fakeClient{}

	uploader := New(client, nil, nil, testConfig(), log.NewLogger())
	err := uploader.UploadGroup(context.Background(), job)

	var readErr *SourceReadError
	assert.ErrorAs(t, err, &readErr)
	assert.Len(t, client.uploads, 1)
}

func TestUploader_UploadGroup_Cancelled(t *testing.T) {
	data := testData(900)
	job, _ := newTestJob(data, 300)
	client := &fakeClient{blockPart: 2}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	uploader := New(client, nil, nil, testConfig(), log.NewLogger())
	err := uploader.UploadGroup(ctx, job)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, client.uploads, 1)
}

func TestUploader_UploadGroup_Empty(t *testing.T) {
	client := &fakeClient{}
	uploader := New(client, nil, nil, testConfig(), log.NewLogger())

	require.NoError(t, uploader.UploadGroup(context.Background(), GroupJob{SessionID: "session"}))
	assert.Equal(t, 0, client.slotCalls)
}

func TestStream_CreditsChunks(t *testing.T) {
	data := testData(1000)
	tracker := progress.NewTracker(1000)
	stream := NewStream(context.Background(), data, 128, nil, tracker)

	buf := make([]byte, 4096)
	n, err := stream.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 128, n)
	assert.Equal(t, int64(128), tracker.Done())

	rest := new(bytes.Buffer)
	_, err = rest.ReadFrom(stream)
	require.NoError(t, err)
	assert.Equal(t, data[128:], rest.Bytes())
	assert.Equal(t, int64(1000), stream.Sent())
	assert.Equal(t, int64(1000), tracker.Done())
}

func TestStream_RewindTakesBackCredit(t *testing.T) {
	data := testData(1000)
	tracker := progress.NewTracker(1000)
	limiter := throttle.New(10000, time.Hour)
	stream := NewStream(context.Background(), data, 128, limiter, tracker)

	size, err := stream.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), size)
	_, err = stream.Seek(0, io.SeekStart)
	require.NoError(t, err)

	first, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, data, first)
	assert.Equal(t, int64(1000), tracker.Done())

	position, err := stream.Seek(0, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(0), position)
	assert.Equal(t, int64(0), stream.Sent())
	assert.Equal(t, int64(0), tracker.Done())

	second, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, data, second)
	assert.Equal(t, int64(1000), stream.Sent())
	assert.Equal(t, int64(1000), tracker.Done())
	assert.Equal(t, int64(9000), limiter.Remaining())

	_, err = stream.Seek(-1, io.SeekStart)
	assert.Error(t, err)
}

func TestStream_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stream := NewStream(ctx, testData(100), 10, nil, nil)

	buf := make([]byte, 10)
	_, err := stream.Read(buf)
	require.NoError(t, err)

	cancel()
	_, err = stream.Read(buf)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, int64(10), stream.Sent())
}

func TestStats(t *testing.T) {
	stats := NewStats()

	if stats.FinishedCount() != 0 {
		t.Errorf("Expected 0 finished, got %d", stats.FinishedCount())
	}

	if stats.Average() != 0 {
		t.Errorf("Expected 0 average, got %v", stats.Average())
	}

	stats.Update(100*time.Millisecond, 10)
	stats.Update(200*time.Millisecond, 10)
	stats.Update(300*time.Millisecond, 5)

	if stats.FinishedCount() != 3 {
		t.Errorf("Expected 3 finished, got %d", stats.FinishedCount())
	}

	expectedAvg := 200 * time.Millisecond
	if stats.Average() != expectedAvg {
		t.Errorf("Expected %v average, got %v", expectedAvg, stats.Average())
	}

	if stats.Bytes() != 25 {
		t.Errorf("Expected 25 bytes, got %d", stats.Bytes())
	}
}
