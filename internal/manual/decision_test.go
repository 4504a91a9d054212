package manual

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/k4lls/zt100/internal/interfaces"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_ShouldFetch(t *testing.T) {
	properties := gopter.NewProperties(nil)
	token := gen.OneGenOf(gen.Const(""), gen.AlphaString())

	properties.Property("missing cache always fetches", prop.ForAll(
		func(se, sl, re, rl string) bool {
			return ShouldFetch(false, Validators{se, sl}, Validators{re, rl})
		},
		token, token, token, token,
	))

	properties.Property("etag decides whenever the server sends one", prop.ForAll(
		func(stored, remote, sl, rl string) bool {
			if remote == "" {
				return true
			}
			got := ShouldFetch(true, Validators{stored, sl}, Validators{remote, rl})
			return got == (stored != remote)
		},
		token, token, token, token,
	))

	properties.Property("last-modified decides without an etag", prop.ForAll(
		func(se, stored, remote string) bool {
			if remote == "" {
				return true
			}
			got := ShouldFetch(true, Validators{se, stored}, Validators{"", remote})
			return got == (stored != remote)
		},
		token, token, token,
	))

	properties.Property("no validators always fetches", prop.ForAll(
		func(se, sl string) bool {
			return ShouldFetch(true, Validators{se, sl}, Validators{})
		},
		token, token,
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestShouldFetch_EtagWinsOverLastModified(t *testing.T) {
	stored := Validators{ETag: `"a"`, LastModified: "Mon, 01 Jan 2024 00:00:00 GMT"}

	sameTagNewDate := Validators{ETag: `"a"`, LastModified: "Tue, 02 Jan 2024 00:00:00 GMT"}
	if ShouldFetch(true, stored, sameTagNewDate) {
		t.Error("Expected matching etag to skip the download despite a new date")
	}

	newTagSameDate := Validators{ETag: `"b"`, LastModified: stored.LastModified}
	if !ShouldFetch(true, stored, newTagSameDate) {
		t.Error("Expected a new etag to force the download despite a matching date")
	}
}

func TestValidatorsOrElse(t *testing.T) {
	probe := Validators{ETag: `"p"`, LastModified: "probe-date"}

	if got := (Validators{ETag: `"g"`}).orElse(probe); got.ETag != `"g"` || got.LastModified != "probe-date" {
		t.Errorf("Unexpected merge: %+v", got)
	}
	if got := (Validators{}).orElse(probe); got != probe {
		t.Errorf("Expected probe validators, got %+v", got)
	}
	if !(Validators{}).Empty() || probe.Empty() {
		t.Error("Empty reported the wrong value")
	}
}

func TestValidatorsFromHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("ETag", `  W/"xyz"  `)
	h.Set("Last-Modified", "Wed, 03 Jan 2024 10:00:00 GMT")

	v := validatorsFrom(h)
	if v.ETag != `W/"xyz"` || v.LastModified != "Wed, 03 Jan 2024 10:00:00 GMT" {
		t.Errorf("Unexpected validators: %+v", v)
	}
}

func TestWatch(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan interfaces.SyncResult, 4)
	done := make(chan error, 1)
	go func() {
		done <- f.manager.Watch(ctx, time.Minute, func(r interfaces.SyncResult) { results <- r })
	}()

	select {
	case r := <-results:
		assertOutcome(t, r, interfaces.OutcomeInstalled)
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for the first check")
	}

	if err := f.clock.WaitAdvance(time.Minute, 5*time.Second, 1); err != nil {
		t.Fatalf("WaitAdvance failed: %v", err)
	}

	select {
	case r := <-results:
		assertOutcome(t, r, interfaces.OutcomeThrottled)
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for the second check")
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not stop after cancel")
	}
}
