package validate

import "testing"

func TestPatternRejectsDangerous(t *testing.T) {
	dangerous := []string{
		".*.*",
		"(a|b)+",
		"a{1,10}{1,10}",
	}
	for _, p := range dangerous {
		if _, err := Pattern(p); err == nil {
			t.Errorf("Pattern(%q) expected error, got nil", p)
		}
	}
}

func TestPatternAcceptsReasonable(t *testing.T) {
	ok := []string{
		"error",
		"^listening on",
		"ready|started",
	}
	for _, p := range ok {
		if _, err := Pattern(p); err != nil {
			t.Errorf("Pattern(%q) unexpected error: %v", p, err)
		}
	}
}

func TestPatternTooLong(t *testing.T) {
	long := make([]byte, 201)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := Pattern(string(long)); err == nil {
		t.Fatal("expected error for over-long pattern")
	}
}

func TestPatternCaseInsensitive(t *testing.T) {
	re, err := PatternCaseInsensitive("ready", true)
	if err != nil {
		t.Fatal(err)
	}
	if !re.MatchString("READY") {
		t.Fatal("expected case-insensitive match")
	}
}
