package investigation

import (
	"strconv"
	"sync"
	"time"
)

// IDSequence hands out time-based ids that never repeat within one sequence.
type IDSequence struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewIDSequence creates a sequence seeded above every numeric id in data.
func NewIDSequence(data InvestigationData) *IDSequence {
	seq := &IDSequence{now: time.Now}
	for _, day := range data.ObservationDays {
		seq.observe(day.ID)
	}
	for _, photo := range data.Photos {
		seq.observe(photo.ID)
	}
	return seq
}

func (s *IDSequence) observe(id string) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return
	}
	if n > s.last {
		s.last = n
	}
}

// Next returns the current time in milliseconds, bumped past the last issued id.
func (s *IDSequence) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.now().UnixMilli()
	if n <= s.last {
		n = s.last + 1
	}
	s.last = n
	return strconv.FormatInt(n, 10)
}
