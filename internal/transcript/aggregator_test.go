// ABOUTME: Tests for the transcript aggregator
// ABOUTME: Covers turn flushing order, accumulation and close behaviour
package transcript

import (
	"fmt"
	"testing"
	"time"

	"github.com/Ashama-AI/ashama-go/internal/live"
)

func fixed() Option {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return WithClock(func() time.Time { return ts })
}

func counter() Option {
	n := 0
	return WithIDs(func() string {
		n++
		return fmt.Sprintf("m%d", n)
	})
}

func TestFragmentsJoinIntoOneMessage(t *testing.T) {
	a := New(fixed(), counter())

	a.Append(live.RoleAssistant, "Na")
	a.Append(live.RoleAssistant, "gaa")

	msgs := a.Flush()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Role != live.RoleAssistant || msgs[0].Content != "Nagaa" {
		t.Errorf("unexpected message %+v", msgs[0])
	}

	user, assistant := a.Pending()
	if user != "" || assistant != "" {
		t.Errorf("accumulators not cleared: %q %q", user, assistant)
	}
}

func TestFlushAssistantBeforeUser(t *testing.T) {
	a := New(fixed(), counter())

	a.Append(live.RoleUser, "Akkam")
	a.Append(live.RoleAssistant, "Nagaa")
	a.Append(live.RoleUser, " jirta?")

	msgs := a.Flush()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != live.RoleAssistant || msgs[0].Content != "Nagaa" {
		t.Errorf("first message = %+v, want assistant Nagaa", msgs[0])
	}
	if msgs[1].Role != live.RoleUser || msgs[1].Content != "Akkam jirta?" {
		t.Errorf("second message = %+v, want user 'Akkam jirta?'", msgs[1])
	}
	if msgs[0].ID == msgs[1].ID {
		t.Error("messages share an id")
	}
	if !msgs[0].Timestamp.Equal(msgs[1].Timestamp) {
		t.Error("messages of one turn should share a timestamp")
	}
}

func TestFlushEmptyTurn(t *testing.T) {
	a := New()
	if msgs := a.Flush(); len(msgs) != 0 {
		t.Errorf("expected no messages, got %v", msgs)
	}
}

func TestNoDeduplication(t *testing.T) {
	a := New()
	a.Append(live.RoleUser, "haa ")
	a.Append(live.RoleUser, "haa ")

	msgs := a.Flush()
	if len(msgs) != 1 || msgs[0].Content != "haa haa " {
		t.Errorf("unexpected %+v", msgs)
	}
}

func TestUnknownRoleIgnored(t *testing.T) {
	a := New()
	a.Append(live.Role("system"), "x")

	user, assistant := a.Pending()
	if user != "" || assistant != "" {
		t.Error("unknown role should not be buffered")
	}
}

func TestCloseDiscardsByDefault(t *testing.T) {
	a := New()
	a.Append(live.RoleAssistant, "half a sent")

	if msgs := a.Close(); msgs != nil {
		t.Errorf("expected discard, got %v", msgs)
	}
	if _, assistant := a.Pending(); assistant != "" {
		t.Error("pending text survived close")
	}
}

func TestCloseFlushesWhenEnabled(t *testing.T) {
	a := New(WithFlushOnClose(true))
	a.Append(live.RoleUser, "galatoomi")

	msgs := a.Close()
	if len(msgs) != 1 || msgs[0].Content != "galatoomi" {
		t.Errorf("unexpected %+v", msgs)
	}
}

func TestDiscardReportsBytes(t *testing.T) {
	a := New()
	a.Append(live.RoleUser, "abc")
	a.Append(live.RoleAssistant, "de")

	if n := a.Discard(); n != 5 {
		t.Errorf("expected 5, got %d", n)
	}
}
