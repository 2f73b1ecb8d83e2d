package validate

import "testing"

func TestServiceName(t *testing.T) {
	cases := []struct {
		name    string
		wantErr bool
	}{
		{"frontend:api", false},
		{"worker", false},
		{"../etc/passwd", true},
		{"", true},
		{"a/b:c", false},
		{"bad name", true},
	}
	for _, c := range cases {
		err := ServiceName(c.name)
		if (err != nil) != c.wantErr {
			t.Errorf("ServiceName(%q) err=%v, wantErr=%v", c.name, err, c.wantErr)
		}
	}
}

func TestServiceNameSegmentLength(t *testing.T) {
	long := make([]byte, 65)
	for i := range long {
		long[i] = 'a'
	}
	if err := ServiceName(string(long)); err == nil {
		t.Fatal("expected error for 65-char segment")
	}
}

func TestSplitName(t *testing.T) {
	prefix, base := SplitName("frontend:api")
	if prefix != "frontend" || base != "api" {
		t.Fatalf("got prefix=%q base=%q", prefix, base)
	}
	prefix, base = SplitName("worker")
	if prefix != "" || base != "worker" {
		t.Fatalf("got prefix=%q base=%q", prefix, base)
	}
	prefix, base = SplitName("a/b:c")
	if prefix != "a/b" || base != "c" {
		t.Fatalf("got prefix=%q base=%q", prefix, base)
	}
}
