package events

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Log appends events to a JSONL file and republishes them on the bus.
// Appends happen after the originating transaction commits; a failed file
// write is logged and dropped because listing history stays recoverable
// from the ledger itself.
type Log struct {
	mu  sync.Mutex
	f   *os.File
	bus evbus.Bus
}

// Open opens (or creates) the append-only log file. bus may be nil when no
// live subscribers are wanted.
func Open(path string, bus evbus.Bus) (*Log, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open the event log")
	}
	return &Log{f: f, bus: bus}, nil
}

// Record stamps the event with an id and timestamp, appends it and
// publishes it.
func (l *Log) Record(ev Event) {
	if l == nil {
		return
	}

	ev.ID = uuid.NewString()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	line, err := json.Marshal(ev)
	if err != nil {
		logrus.Warnf("unable to encode %s event for listing %d: %v", ev.Type, ev.ListingID, err)
		return
	}

	l.mu.Lock()
	_, err = l.f.Write(append(line, '\n'))
	l.mu.Unlock()
	if err != nil {
		logrus.Warnf("unable to append %s event for listing %d: %v", ev.Type, ev.ListingID, err)
	}

	if l.bus != nil {
		l.bus.Publish(Topic, ev)
	}
}

func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	return l.f.Close()
}

// Read replays a log file in append order.
func Read(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open the event log")
	}
	defer f.Close()

	var out []Event
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		out = append(out, ev)
	}
	return out, scanner.Err()
}
