package log

import (
	"os"
	"time"

	"github.com/mash-protocol/mle-go/pkg/mle"
)

// Filter selects events. Empty or nil fields match everything.
type Filter struct {
	Interface *mle.InterfaceID
	AttemptID string
	Direction *Direction
	Category  *Category
	Command   *mle.Command
	Peer      string

	// TimeStart matches events at or after this time.
	TimeStart *time.Time

	// TimeEnd matches events before this time.
	TimeEnd *time.Time
}

// Matches reports whether event satisfies all criteria.
func (f *Filter) Matches(event Event) bool {
	if f.Interface != nil && event.Interface != *f.Interface {
		return false
	}
	if f.AttemptID != "" && event.AttemptID != f.AttemptID {
		return false
	}
	if f.Direction != nil && event.Direction != *f.Direction {
		return false
	}
	if f.Category != nil && event.Category != *f.Category {
		return false
	}
	if f.Command != nil && (event.Message == nil || event.Message.Command != *f.Command) {
		return false
	}
	if f.Peer != "" && event.Peer != f.Peer {
		return false
	}
	if f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart) {
		return false
	}
	if f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd) {
		return false
	}
	return true
}

// Reader streams events from a capture file.
type Reader struct {
	file    *os.File
	scanner *eventScanner
	filter  Filter
}

// NewReader opens a capture file and reads all events.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens a capture file and reads matching events.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{file: f, scanner: newEventScanner(f), filter: filter}, nil
}

// Next returns the next matching event, or io.EOF at the end of the file.
func (r *Reader) Next() (Event, error) {
	for {
		event, err := r.scanner.next()
		if err != nil {
			return Event{}, err
		}
		if r.filter.Matches(event) {
			return event, nil
		}
	}
}

// Close closes the file.
func (r *Reader) Close() error {
	return r.file.Close()
}
