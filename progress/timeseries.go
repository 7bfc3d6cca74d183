package progress

import "time"

// DataPoint is a value recorded at a point in time.
type DataPoint struct {
	Value int64
	Time  time.Time
}

// RollingTimeSeries keeps at most a fixed number of data points and ignores the ones
// older than maxAge. It is not safe for concurrent use.
type RollingTimeSeries struct {
	points []DataPoint
	used   []bool
	maxAge time.Duration
	now    func() time.Time
}

// NewRollingTimeSeries creates a series with room for capacity points.
func NewRollingTimeSeries(capacity int, maxAge time.Duration) *RollingTimeSeries {
	return &RollingTimeSeries{
		points: make([]DataPoint, capacity),
		used:   make([]bool, capacity),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// ValidPoints returns the points younger than maxAge.
func (s *RollingTimeSeries) ValidPoints() []DataPoint {
	now := s.now()
	var valid []DataPoint
	for i, p := range s.points {
		if s.used[i] && now.Sub(p.Time) < s.maxAge {
			valid = append(valid, p)
		}
	}
	return valid
}

// AddValue stores value in the first free or aged out slot, or over the oldest point
// when every slot holds a valid point.
func (s *RollingTimeSeries) AddValue(value int64) {
	now := s.now()
	point := DataPoint{Value: value, Time: now}

	oldest := -1
	for i, p := range s.points {
		if !s.used[i] || now.Sub(p.Time) >= s.maxAge {
			s.points[i] = point
			s.used[i] = true
			return
		}
		if oldest == -1 || p.Time.Before(s.points[oldest].Time) {
			oldest = i
		}
	}

	if oldest != -1 {
		s.points[oldest] = point
	}
}
