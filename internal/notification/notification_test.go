package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/congo-pay/custody/internal/logging"
)

type recorder struct {
	got []Message
	err error
}

func (r *recorder) Send(_ context.Context, m Message) error {
	r.got = append(r.got, m)
	return r.err
}

func TestFanoutDeliversToAll(t *testing.T) {
	failing := &recorder{err: errors.New("down")}
	ok := &recorder{}
	f := Fanout{NewLoggerNotifier(logging.Discard()), failing, nil, ok}

	err := f.Send(context.Background(), Message{Kind: KindTransitionCommitted, Destination: "gateway"})
	if err == nil || err.Error() != "down" {
		t.Fatalf("expected the failing notifier's error, got %v", err)
	}
	if len(ok.got) != 1 || len(failing.got) != 1 {
		t.Fatalf("expected every notifier to receive the message")
	}
}

func TestSubject(t *testing.T) {
	cases := map[string]string{
		"gateway":        "custody.gateway",
		"o=Bank.L=Lagos": "custody.o=Bank_L=Lagos",
		"a b*c>":         "custody.a_b_c_",
	}
	for dest, want := range cases {
		if got := Subject("custody", dest); got != want {
			t.Fatalf("Subject(%q) = %q, want %q", dest, got, want)
		}
	}
	if got := Subject("", "gateway"); got != "gateway" {
		t.Fatalf("expected bare destination, got %q", got)
	}
}

func TestNilLoggerNotifier(t *testing.T) {
	var n *LoggerNotifier
	if err := n.Send(context.Background(), Message{}); err != nil {
		t.Fatalf("nil notifier should be a no-op, got %v", err)
	}
}
