package ring

import (
	"context"
	"testing"
	"time"
)

func u64p(v uint64) *uint64 { return &v }
func intp(v int) *int       { return &v }

func TestAppendAssignsMonotonicSeq(t *testing.T) {
	b := New(0, 0)
	e1 := b.Append("one", Stdout)
	e2 := b.Append("two", Stdout)
	if e1.Seq != 1 || e2.Seq != 2 {
		t.Fatalf("got seq %d, %d want 1, 2", e1.Seq, e2.Seq)
	}
	if b.NextSeq() != 3 {
		t.Fatalf("NextSeq() = %d, want 3", b.NextSeq())
	}
}

func TestLineCapEviction(t *testing.T) {
	b := New(2, 0)
	b.Append("a", Stdout)
	b.Append("b", Stdout)
	b.Append("c", Stdout)
	res, err := b.Query(QueryOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Events) != 2 {
		t.Fatalf("got %d events, want 2", len(res.Events))
	}
	if res.Events[0].Text != "b" || res.Events[1].Text != "c" {
		t.Fatalf("unexpected retained events: %+v", res.Events)
	}
}

func TestByteCapEviction(t *testing.T) {
	b := New(0, 12)
	for _, s := range []string{"12345", "67890", "abcde", "fghij"} {
		b.Append(s, Stdout)
	}
	res, err := b.Query(QueryOptions{})
	if err != nil {
		t.Fatal(err)
	}
	total := 0
	for _, ev := range res.Events {
		total += len(ev.Text)
	}
	if total > 12 {
		t.Fatalf("total bytes %d exceeds cap", total)
	}
	if len(res.Events) > 2 {
		t.Fatalf("expected at least two lines evicted, got %d retained", len(res.Events))
	}
	if res.Events[0].Seq < 3 {
		t.Fatalf("lowest retained seq = %d, want >= 3", res.Events[0].Seq)
	}
}

func TestCursorContinuityUnderEviction(t *testing.T) {
	b := New(2, 0)
	b.Append("a", Stdout)
	b.Append("b", Stdout)
	b.Append("c", Stdout)

	res, err := b.Query(QueryOptions{SinceCursor: u64p(1)})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Dropped {
		t.Fatal("expected dropped=true")
	}
	if len(res.Events) == 0 || res.Events[0].Seq != 2 {
		t.Fatalf("expected first event seq=2, got %+v", res.Events)
	}
}

func TestQuerySinceCursorNeverReturnsEarlierSeq(t *testing.T) {
	b := New(0, 0)
	for i := 0; i < 5; i++ {
		b.Append("x", Stdout)
	}
	res, err := b.Query(QueryOptions{SinceCursor: u64p(3)})
	if err != nil {
		t.Fatal(err)
	}
	for _, ev := range res.Events {
		if ev.Seq < 3 {
			t.Fatalf("got seq %d < 3", ev.Seq)
		}
	}
}

func TestRepeatedQueryMonotoneProgress(t *testing.T) {
	b := New(0, 0)
	for i := 0; i < 10; i++ {
		b.Append("x", Stdout)
	}
	first, err := b.Query(QueryOptions{Last: intp(5)})
	if err != nil {
		t.Fatal(err)
	}
	second, err := b.Query(QueryOptions{SinceCursor: &first.CursorNext})
	if err != nil {
		t.Fatal(err)
	}
	seen := map[uint64]bool{}
	for _, ev := range first.Events {
		seen[ev.Seq] = true
	}
	for _, ev := range second.Events {
		if seen[ev.Seq] {
			t.Fatalf("seq %d returned twice", ev.Seq)
		}
	}
}

func TestClearPreservesNextSeq(t *testing.T) {
	b := New(0, 0)
	b.Append("a", Stdout)
	b.Append("b", Stdout)
	before := b.NextSeq()
	b.Clear()
	if b.NextSeq() != before {
		t.Fatalf("NextSeq changed after Clear: %d != %d", b.NextSeq(), before)
	}
	ev := b.Append("c", Stdout)
	if ev.Seq != before {
		t.Fatalf("got seq %d, want %d", ev.Seq, before)
	}
}

func TestStreamFilter(t *testing.T) {
	b := New(0, 0)
	b.Append("out", Stdout)
	b.Append("err", Stderr)
	res, err := b.Query(QueryOptions{Stream: Stdout})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Events) != 1 || res.Events[0].Text != "out" {
		t.Fatalf("unexpected events: %+v", res.Events)
	}
}

func TestGrepSubstringInvert(t *testing.T) {
	b := New(0, 0)
	b.Append("hello world", Stdout)
	b.Append("goodbye", Stdout)
	res, err := b.Query(QueryOptions{Grep: "hello", GrepInvert: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Events) != 1 || res.Events[0].Text != "goodbye" {
		t.Fatalf("unexpected events: %+v", res.Events)
	}
}

func TestQueryLimitsTruncate(t *testing.T) {
	b := New(0, 0)
	for i := 0; i < 5; i++ {
		b.Append("line", Stdout)
	}
	res, err := b.Query(QueryOptions{MaxLines: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Events) != 2 {
		t.Fatalf("got %d events, want 2", len(res.Events))
	}
	if !res.Truncated {
		t.Fatal("expected truncated=true")
	}
}

func TestQueryOversizeSingleEventMakesProgress(t *testing.T) {
	b := New(0, 0)
	big := make([]byte, 100)
	for i := range big {
		big[i] = 'x'
	}
	b.Append(string(big), Stdout)
	b.Append("more", Stdout)
	res, err := b.Query(QueryOptions{MaxBytes: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Events) != 1 {
		t.Fatalf("expected exactly one event despite oversize cap, got %d", len(res.Events))
	}
	if !res.Truncated {
		t.Fatal("expected truncated=true")
	}
}

func TestWaitForMatchFindsEvent(t *testing.T) {
	b := New(0, 0)
	b.Append("booting", Stdout)
	go func() {
		time.Sleep(50 * time.Millisecond)
		b.Append("RESTARTED_READY", Stdout)
	}()
	res, err := b.WaitForMatch(context.Background(), "RESTARTED_READY", false, true, 1, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Matched || res.MatchText != "RESTARTED_READY" {
		t.Fatalf("got %+v", res)
	}
}

func TestWaitForMatchTimesOut(t *testing.T) {
	b := New(0, 0)
	b.Append("booting", Stdout)
	res, err := b.WaitForMatch(context.Background(), "NEVER", false, true, 1, 150*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if res.Matched {
		t.Fatal("expected no match")
	}
}

func TestWaitForMatchCancellable(t *testing.T) {
	b := New(0, 0)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	res, err := b.WaitForMatch(ctx, "NEVER", false, true, 1, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if res.Matched {
		t.Fatal("expected no match on cancellation")
	}
}
