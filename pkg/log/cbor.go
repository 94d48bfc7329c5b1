package log

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// ErrMalformedEvent is returned for events carrying more than one payload.
var ErrMalformedEvent = errors.New("log: event carries more than one payload")

// A capture file is a plain sequence of CBOR maps, one per Event, keyed by
// the small integers of the Event tags. Maps are written canonically so
// identical events produce identical bytes.
var (
	captureEnc = mustEncMode(cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	})
	// Unknown and duplicate keys are tolerated.
	captureDec = mustDecMode(cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	})
)

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	m, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("capture encoder options: %v", err))
	}
	return m
}

func mustDecMode(opts cbor.DecOptions) cbor.DecMode {
	m, err := opts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("capture decoder options: %v", err))
	}
	return m
}

func (e *Event) payloads() int {
	n := 0
	if e.Message != nil {
		n++
	}
	if e.Timeout != nil {
		n++
	}
	if e.StateChange != nil {
		n++
	}
	if e.Error != nil {
		n++
	}
	return n
}

// EncodeEvent returns the capture record of event.
func EncodeEvent(event Event) ([]byte, error) {
	if event.payloads() > 1 {
		return nil, ErrMalformedEvent
	}
	return captureEnc.Marshal(event)
}

// DecodeEvent parses a single capture record.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := captureDec.Unmarshal(data, &event); err != nil {
		return Event{}, err
	}
	if event.payloads() > 1 {
		return Event{}, ErrMalformedEvent
	}
	return event, nil
}

type eventWriter struct {
	enc *cbor.Encoder
}

func newEventWriter(w io.Writer) *eventWriter {
	return &eventWriter{enc: captureEnc.NewEncoder(w)}
}

func (w *eventWriter) write(event Event) error {
	if event.payloads() > 1 {
		return ErrMalformedEvent
	}
	return w.enc.Encode(event)
}

type eventScanner struct {
	dec *cbor.Decoder
}

func newEventScanner(r io.Reader) *eventScanner {
	return &eventScanner{dec: captureDec.NewDecoder(r)}
}

// next returns io.EOF only at a record boundary.
func (s *eventScanner) next() (Event, error) {
	var event Event
	if err := s.dec.Decode(&event); err != nil {
		if errors.Is(err, io.EOF) {
			return Event{}, io.EOF
		}
		return Event{}, err
	}
	if event.payloads() > 1 {
		return Event{}, ErrMalformedEvent
	}
	return event, nil
}
