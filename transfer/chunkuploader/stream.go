package chunkuploader

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/bitrise-io/go-objectupload/progress"
	"github.com/bitrise-io/go-objectupload/throttle"
)

// Stream is a request body over an in-memory part. It hands out at most chunkSize
// bytes per Read, waits on the limiter before each chunk and credits the chunk to the
// tracker. Reads fail once ctx is done, which stops the request early.
//
// Stream is seekable so HTTP clients can rewind it. Rewinding takes back the bytes
// credited past the new position; the limiter is charged only once per byte.
type Stream struct {
	ctx       context.Context
	data      []byte
	offset    int64
	paid      int64
	chunkSize int
	limiter   *throttle.Throttle
	tracker   *progress.Tracker
	sent      atomic.Int64
}

// NewStream creates a body for data. limiter and tracker are optional.
func NewStream(ctx context.Context, data []byte, chunkSize int, limiter *throttle.Throttle, tracker *progress.Tracker) *Stream {
	if chunkSize <= 0 {
		chunkSize = len(data)
	}
	return &Stream{
		ctx:       ctx,
		data:      data,
		chunkSize: chunkSize,
		limiter:   limiter,
		tracker:   tracker,
	}
}

func (s *Stream) Read(p []byte) (int, error) {
	if s.offset >= int64(len(s.data)) {
		return 0, io.EOF
	}
	if err := s.ctx.Err(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}

	n := min(len(p), s.chunkSize, len(s.data)-int(s.offset))
	if end := s.offset + int64(n); end > s.paid {
		if s.limiter != nil {
			if _, err := s.limiter.AdvanceBy(s.ctx, end-s.paid); err != nil {
				return 0, err
			}
		}
		s.paid = end
	}

	copy(p, s.data[s.offset:s.offset+int64(n)])
	s.offset += int64(n)
	s.sent.Add(int64(n))
	if s.tracker != nil {
		s.tracker.AddDoneBytes(int64(n))
	}
	return n, nil
}

// Seek implements io.Seeker.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	var position int64
	switch whence {
	case io.SeekStart:
		position = offset
	case io.SeekCurrent:
		position = s.offset + offset
	case io.SeekEnd:
		position = int64(len(s.data)) + offset
	default:
		return 0, errors.New("chunkuploader.Stream.Seek: invalid whence")
	}
	if position < 0 {
		return 0, errors.New("chunkuploader.Stream.Seek: negative position")
	}

	if position < s.offset {
		rewound := min(s.offset-position, s.sent.Load())
		s.sent.Add(-rewound)
		if s.tracker != nil {
			s.tracker.SubDoneBytes(rewound)
		}
	}
	s.offset = position
	return position, nil
}

// Sent returns the number of bytes currently credited to the tracker.
func (s *Stream) Sent() int64 {
	return s.sent.Load()
}
