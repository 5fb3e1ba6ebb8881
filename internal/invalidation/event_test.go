package invalidation

import (
	"testing"
	"time"
)

func validEvent() Event {
	return Event{Version: 1, Op: "update", Category: "skincare", TS: time.Now()}
}

func TestEventValidate(t *testing.T) {
	if err := validEvent().Validate(); err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Event)
	}{
		{"wrong version", func(e *Event) { e.Version = 2 }},
		{"unknown op", func(e *Event) { e.Op = "upsert" }},
		{"blank category", func(e *Event) { e.Category = "   " }},
		{"zero ts", func(e *Event) { e.TS = time.Time{} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := validEvent()
			tc.mutate(&ev)
			if err := ev.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
