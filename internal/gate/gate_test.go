package gate

import (
	"testing"
	"time"

	"github.com/ASKEROS1449/router-auto-connect/internal/probe"
	"github.com/ASKEROS1449/router-auto-connect/internal/rank"
)

func best(url string) *rank.Scored {
	return &rank.Scored{
		Outcome: probe.Outcome{URL: url, Scheme: "https", Port: 443, Status: probe.StatusOpen},
		Score:   113,
	}
}

func TestDecideRedirectThenSuppressWithinCooldown(t *testing.T) {
	g := New(time.Hour)
	target := best("https://192.0.2.1:443")

	first := g.Decide("tab1", "192.0.2.1", "http://192.0.2.1/", target)
	if !first.Redirect || first.TargetURL != "https://192.0.2.1:443" {
		t.Fatalf("first decision: got %+v, want redirect", first)
	}

	second := g.Decide("tab1", "192.0.2.1", "http://192.0.2.1/", target)
	if second.Redirect || second.Reason != ReasonLocked {
		t.Fatalf("second decision: got %+v, want locked suppression", second)
	}
}

func TestDecideRedirectsAgainAfterCooldown(t *testing.T) {
	g := New(50 * time.Millisecond)
	target := best("https://192.0.2.1:443")

	if d := g.Decide("tab1", "192.0.2.1", "http://192.0.2.1/", target); !d.Redirect {
		t.Fatalf("first decision: got %+v, want redirect", d)
	}

	time.Sleep(80 * time.Millisecond)

	if d := g.Decide("tab1", "192.0.2.1", "http://192.0.2.1/", target); !d.Redirect {
		t.Fatalf("post-cooldown decision: got %+v, want redirect", d)
	}
}

func TestDecideSuppressesWithoutCandidate(t *testing.T) {
	g := New(time.Hour)

	d := g.Decide("tab1", "192.0.2.1", "http://192.0.2.1/", nil)
	if d.Redirect || d.Reason != ReasonNoEndpoint {
		t.Fatalf("got %+v, want no_endpoint suppression", d)
	}

	// A no-candidate decision must not lock the key.
	if g.Locked(Key("tab1", "192.0.2.1")) {
		t.Fatal("key locked after no_endpoint suppression")
	}
}

func TestDecideSuppressesWhenAlreadyAtBest(t *testing.T) {
	g := New(time.Hour)
	target := best("https://192.0.2.1:443")

	d := g.Decide("tab1", "192.0.2.1", "https://192.0.2.1:443/status", target)
	if d.Redirect || d.Reason != ReasonAlreadyBest {
		t.Fatalf("got %+v, want already_best suppression", d)
	}
}

func TestLockedRefreshesExpiry(t *testing.T) {
	g := New(100 * time.Millisecond)
	target := best("https://192.0.2.1:443")

	if d := g.Decide("tab1", "192.0.2.1", "http://192.0.2.1/", target); !d.Redirect {
		t.Fatalf("got %+v, want redirect", d)
	}

	// Repeated hits keep pushing the expiry out.
	for i := 0; i < 3; i++ {
		time.Sleep(60 * time.Millisecond)
		if !g.Locked(Key("tab1", "192.0.2.1")) {
			t.Fatalf("lock expired despite refresh on hit %d", i)
		}
	}

	time.Sleep(150 * time.Millisecond)
	if g.Locked(Key("tab1", "192.0.2.1")) {
		t.Fatal("lock still held after refreshed cooldown elapsed")
	}
}

func TestLocksAreIndependentPerHostAndContext(t *testing.T) {
	g := New(time.Hour)

	if d := g.Decide("tab1", "192.0.2.1", "http://192.0.2.1/", best("https://192.0.2.1:443")); !d.Redirect {
		t.Fatalf("got %+v, want redirect", d)
	}

	// Same context, different host.
	if d := g.Decide("tab1", "192.0.2.2", "http://192.0.2.2/", best("https://192.0.2.2:443")); !d.Redirect {
		t.Fatalf("different host blocked: %+v", d)
	}
	// Same host, different context.
	if d := g.Decide("tab2", "192.0.2.1", "http://192.0.2.1/", best("https://192.0.2.1:443")); !d.Redirect {
		t.Fatalf("different context blocked: %+v", d)
	}
}

func TestPinned(t *testing.T) {
	cases := []struct {
		scheme, port string
		want         bool
	}{
		{"http", "", false},
		{"http", "80", false},
		{"http", "8080", true},
		{"https", "", true},
		{"https", "443", true},
		{"ftp", "", true},
	}
	for _, tc := range cases {
		if got := Pinned(tc.scheme, tc.port); got != tc.want {
			t.Fatalf("Pinned(%q, %q) = %v, want %v", tc.scheme, tc.port, got, tc.want)
		}
	}
}
