// Package replication reads and writes osmosis replication state and maps it
// onto the replication fields of a PBF header.
package replication

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wegman-software/osmhuge/internal/pbf"
)

// ErrNoReplication is returned by FromHeader for headers without a
// replication timestamp or sequence.
var ErrNoReplication = errors.New("replication: header carries no replication state")

// State is a position in a replication stream.
type State struct {
	SequenceNumber int64
	Timestamp      time.Time
}

// String returns the state in a human-readable format
func (s State) String() string {
	return fmt.Sprintf("Sequence: %d, Timestamp: %s", s.SequenceNumber, s.Timestamp.Format(time.RFC3339))
}

// timestampFormats are tried in order after colon unescaping.
var timestampFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// ParseState parses a state.txt file content
// Format:
//
//	#comment line
//	sequenceNumber=12345
//	timestamp=2024-01-15T12\:00\:00Z
func ParseState(r io.Reader) (*State, error) {
	state := &State{}
	var haveSeq, haveTS bool
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "sequenceNumber":
			seq, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid sequence number: %w", err)
			}
			state.SequenceNumber = seq
			haveSeq = true

		case "timestamp":
			// java properties escape colons
			value = strings.ReplaceAll(value, `\:`, ":")
			t, err := parseTimestamp(value)
			if err != nil {
				return nil, err
			}
			state.Timestamp = t
			haveTS = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading state: %w", err)
	}
	if !haveSeq && !haveTS {
		return nil, fmt.Errorf("state has neither sequenceNumber nor timestamp")
	}
	return state, nil
}

func parseTimestamp(value string) (time.Time, error) {
	var err error
	for _, format := range timestampFormats {
		var t time.Time
		if t, err = time.Parse(format, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", value, err)
}

// ParseStateFile reads and parses a state file from disk
func ParseStateFile(filename string) (*State, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open state file: %w", err)
	}
	defer f.Close()

	return ParseState(f)
}

// WriteState writes a state in state.txt form
func WriteState(w io.Writer, state *State) error {
	ts := state.Timestamp.UTC().Format("2006-01-02T15:04:05Z")
	ts = strings.ReplaceAll(ts, ":", `\:`)

	_, err := fmt.Fprintf(w, "# osmhuge replication state\nsequenceNumber=%d\ntimestamp=%s\n", state.SequenceNumber, ts)
	return err
}

// WriteStateFile writes a state to a file
func WriteStateFile(filename string, state *State) (err error) {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create state file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return WriteState(f, state)
}

// FromHeader extracts the replication state recorded in a PBF header.
func FromHeader(h *pbf.HeaderBlock) (*State, error) {
	if h == nil || (h.ReplicationSequence == 0 && h.ReplicationTimestamp.IsZero()) {
		return nil, ErrNoReplication
	}
	return &State{SequenceNumber: h.ReplicationSequence, Timestamp: h.ReplicationTimestamp}, nil
}

// Header returns the header fields for this state in the stream at baseURL.
func (s State) Header(baseURL string) pbf.Replication {
	return pbf.Replication{Timestamp: s.Timestamp, Sequence: s.SequenceNumber, BaseURL: baseURL}
}

// SequenceToPath converts a sequence number to a path like "000/000/001"
// This is the standard OSM replication directory structure
func SequenceToPath(seq int64) string {
	return fmt.Sprintf("%03d/%03d/%03d",
		seq/1000000,
		(seq/1000)%1000,
		seq%1000)
}
