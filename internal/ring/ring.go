// Package ring implements the sequence-numbered in-memory log store: an
// ordered event buffer with dual line/byte eviction, an incremental cursor
// protocol, filtered queries, and a bounded-poll readiness-wait primitive.
package ring

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bbatchelder/tap/internal/validate"
)

// Stream identifies which child output stream a LogEvent came from, or
// "combined" for PTY mode and for runner-injected markers.
type Stream string

const (
	Combined Stream = "combined"
	Stdout   Stream = "stdout"
	Stderr   Stream = "stderr"
)

const (
	DefaultMaxLines = 5000
	DefaultMaxBytes = 10_000_000

	defaultQueryMaxLines = 80
	defaultQueryMaxBytes = 32_768

	pollInterval = 200 * time.Millisecond
)

// LogEvent is the unit of capture and query.
type LogEvent struct {
	Seq    uint64 `json:"seq"`
	TS     int64  `json:"ts"`
	Stream Stream `json:"stream"`
	Text   string `json:"text"`
}

// Buffer is the ordered, sequence-numbered event store. Zero value is not
// usable; construct with New.
type Buffer struct {
	mu sync.Mutex

	events   []LogEvent
	nextSeq  uint64
	lowest   uint64
	total    int
	maxLines int
	maxBytes int
}

// New constructs a buffer with the given caps. A cap of 0 uses the spec
// default for that dimension.
func New(maxLines, maxBytes int) *Buffer {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Buffer{
		nextSeq:  1,
		lowest:   1,
		maxLines: maxLines,
		maxBytes: maxBytes,
	}
}

// Append assigns the next sequence number, stores the event, and evicts
// until both caps hold. Append never fails.
func (b *Buffer) Append(text string, stream Stream) LogEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.appendLocked(text, stream, nowMS())
}

func (b *Buffer) appendLocked(text string, stream Stream, ts int64) LogEvent {
	ev := LogEvent{
		Seq:    b.nextSeq,
		TS:     ts,
		Stream: stream,
		Text:   text,
	}
	b.nextSeq++
	b.events = append(b.events, ev)
	b.total += len(text)

	for len(b.events) > b.maxLines || b.total > b.maxBytes {
		dropped := b.events[0]
		b.events = b.events[1:]
		b.total -= len(dropped.Text)
	}

	if len(b.events) > 0 {
		b.lowest = b.events[0].Seq
	} else {
		b.lowest = b.nextSeq
	}
	return ev
}

// InsertMarker appends a combined-stream event with a caller-supplied
// sentinel text. Markers are ordinary events; consumers distinguish them by
// text content only.
func (b *Buffer) InsertMarker(text string) LogEvent {
	return b.Append(text, Combined)
}

// Clear drops all retained events. next_seq is not reset.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
	b.total = 0
	b.lowest = b.nextSeq
}

// NextSeq returns the sequence number that would be assigned to the next
// appended event.
func (b *Buffer) NextSeq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextSeq
}

// Stats summarizes current retention for status reporting.
type Stats struct {
	MaxLines     int `json:"max_lines"`
	MaxBytes     int `json:"max_bytes"`
	CurrentLines int `json:"current_lines"`
	CurrentBytes int `json:"current_bytes"`
}

func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		MaxLines:     b.maxLines,
		MaxBytes:     b.maxBytes,
		CurrentLines: len(b.events),
		CurrentBytes: b.total,
	}
}

// QueryOptions selects and filters events for Query. At most one window
// selector should be set; SinceCursor takes precedence over SinceMS, which
// takes precedence over Last, matching spec.md's evaluation order.
type QueryOptions struct {
	SinceCursor *uint64
	SinceMS     *int64
	Last        *int

	Stream Stream // "" or Combined is a no-op; Stdout/Stderr filters

	Grep           string
	GrepRegex      bool
	GrepInvert     bool
	GrepIgnoreCase bool

	MaxLines int
	MaxBytes int
}

// QueryResult is the outcome of a Query call.
type QueryResult struct {
	Events     []LogEvent
	CursorNext uint64
	Truncated  bool
	Dropped    bool
}

// Query evaluates a window selector, then filters, then limits, in the order
// specified by spec.md §4.1. Query is synchronous and must not suspend.
func (b *Buffer) Query(opts QueryOptions) (QueryResult, error) {
	b.mu.Lock()
	snapshot := make([]LogEvent, len(b.events))
	copy(snapshot, b.events)
	lowest := b.lowest
	nextSeq := b.nextSeq
	b.mu.Unlock()

	windowed, dropped := applyWindow(snapshot, opts, lowest)
	filtered, err := applyFilters(windowed, opts)
	if err != nil {
		return QueryResult{}, err
	}
	limited, truncated := applyLimits(filtered, opts)

	cursorNext := nextSeq
	if len(limited) > 0 {
		cursorNext = limited[len(limited)-1].Seq + 1
	}

	return QueryResult{
		Events:     limited,
		CursorNext: cursorNext,
		Truncated:  truncated,
		Dropped:    dropped,
	}, nil
}

func applyWindow(events []LogEvent, opts QueryOptions, lowest uint64) (out []LogEvent, dropped bool) {
	switch {
	case opts.SinceCursor != nil:
		c := *opts.SinceCursor
		if c < lowest {
			dropped = true
		}
		for _, ev := range events {
			if ev.Seq >= c {
				out = append(out, ev)
			}
		}
		return out, dropped
	case opts.SinceMS != nil:
		threshold := nowMS() - *opts.SinceMS
		for _, ev := range events {
			if ev.TS >= threshold {
				out = append(out, ev)
			}
		}
		return out, false
	case opts.Last != nil:
		n := *opts.Last
		if n < 0 {
			n = 0
		}
		if n >= len(events) {
			return events, false
		}
		return events[len(events)-n:], false
	default:
		return events, false
	}
}

func applyFilters(events []LogEvent, opts QueryOptions) ([]LogEvent, error) {
	out := events
	if opts.Stream == Stdout || opts.Stream == Stderr {
		filtered := out[:0:0]
		for _, ev := range out {
			if ev.Stream == opts.Stream {
				filtered = append(filtered, ev)
			}
		}
		out = filtered
	}

	if opts.Grep == "" {
		return out, nil
	}

	matcher, err := buildMatcher(opts)
	if err != nil {
		return nil, err
	}

	filtered := out[:0:0]
	for _, ev := range out {
		m := matcher(ev.Text)
		if opts.GrepInvert {
			m = !m
		}
		if m {
			filtered = append(filtered, ev)
		}
	}
	return filtered, nil
}

func buildMatcher(opts QueryOptions) (func(string) bool, error) {
	if opts.GrepRegex {
		re, err := validate.PatternCaseInsensitive(opts.Grep, opts.GrepIgnoreCase)
		if err != nil {
			return nil, err
		}
		return re.MatchString, nil
	}
	needle := opts.Grep
	if opts.GrepIgnoreCase {
		needle = strings.ToLower(needle)
		return func(s string) bool { return strings.Contains(strings.ToLower(s), needle) }, nil
	}
	return func(s string) bool { return strings.Contains(s, needle) }, nil
}

func applyLimits(events []LogEvent, opts QueryOptions) (out []LogEvent, truncated bool) {
	maxLines := opts.MaxLines
	if maxLines <= 0 {
		maxLines = defaultQueryMaxLines
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultQueryMaxBytes
	}

	bytes := 0
	for i, ev := range events {
		nextBytes := bytes + len(ev.Text)
		if i > 0 && (i+1 > maxLines || nextBytes > maxBytes) {
			return events[:i], true
		}
		out = append(out, ev)
		bytes = nextBytes
		if i+1 >= maxLines || bytes >= maxBytes {
			if i+1 < len(events) {
				return out, true
			}
			return out, false
		}
	}
	return out, false
}

// WaitResult is the outcome of WaitForMatch.
type WaitResult struct {
	Matched   bool
	MatchText string
	Snippet   []string
}

// WaitForMatch polls the buffer at a bounded interval for an event matching
// pattern, scanning events with seq >= afterCursor in order. It returns on
// the first match, on timeout, or when ctx is cancelled (treated as a
// timeout).
func (b *Buffer) WaitForMatch(ctx context.Context, pattern string, isRegex, caseSensitive bool, afterCursor uint64, timeout time.Duration) (WaitResult, error) {
	var matcher func(string) bool
	if isRegex {
		re, err := validate.PatternCaseInsensitive(pattern, !caseSensitive)
		if err != nil {
			return WaitResult{}, err
		}
		matcher = re.MatchString
	} else if caseSensitive {
		matcher = func(s string) bool { return strings.Contains(s, pattern) }
	} else {
		needle := strings.ToLower(pattern)
		matcher = func(s string) bool { return strings.Contains(strings.ToLower(s), needle) }
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		matched, text, snippet := b.scanOnce(matcher, afterCursor)
		if matched {
			return WaitResult{Matched: true, MatchText: text, Snippet: snippet}, nil
		}
		if !time.Now().Before(deadline) {
			return WaitResult{Matched: false, Snippet: snippet}, nil
		}

		remaining := time.Until(deadline)
		wait := pollInterval
		if remaining < wait {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			_, _, snippet := b.scanOnce(matcher, afterCursor)
			return WaitResult{Matched: false, Snippet: snippet}, nil
		case <-timer.C:
		}
	}
}

func (b *Buffer) scanOnce(matcher func(string) bool, afterCursor uint64) (matched bool, matchText string, snippet []string) {
	b.mu.Lock()
	events := make([]LogEvent, len(b.events))
	copy(events, b.events)
	b.mu.Unlock()

	var considered []string
	for _, ev := range events {
		if ev.Seq < afterCursor {
			continue
		}
		considered = append(considered, ev.Text)
		if !matched && matcher(ev.Text) {
			matched = true
			matchText = ev.Text
		}
	}
	if len(considered) > 10 {
		considered = considered[len(considered)-10:]
	}
	return matched, matchText, considered
}

func nowMS() int64 {
	return time.Now().UnixMilli()
}
