package queue

import (
	"testing"
	"time"
)

func TestRecencyTrackerWithinWindow(t *testing.T) {
	tracker := newRecencyTracker(time.Minute)
	base := time.Now()

	tracker.Record("http://nfce/a", base)

	if !tracker.WithinWindow("http://nfce/a", 3*time.Second, base.Add(2*time.Second)) {
		t.Error("submission 2s after record should be inside a 3s window")
	}
	if tracker.WithinWindow("http://nfce/a", 3*time.Second, base.Add(3*time.Second)) {
		t.Error("submission exactly at the window edge should pass")
	}
	if tracker.WithinWindow("http://nfce/b", 3*time.Second, base) {
		t.Error("unknown URL should never be inside the window")
	}
}

func TestRecencyTrackerPrunesPastHorizon(t *testing.T) {
	tracker := newRecencyTracker(time.Minute)
	base := time.Now()

	tracker.Record("http://nfce/old", base)
	tracker.Record("http://nfce/new", base.Add(50*time.Second))

	// Checking at base+61s prunes the first record but keeps the second.
	tracker.WithinWindow("http://nfce/other", 3*time.Second, base.Add(61*time.Second))

	if _, ok := tracker.lastSeen["http://nfce/old"]; ok {
		t.Error("record past the horizon should be pruned")
	}
	if _, ok := tracker.lastSeen["http://nfce/new"]; !ok {
		t.Error("record inside the horizon should survive pruning")
	}
}

func TestRecencyTrackerRerecordRefreshesWindow(t *testing.T) {
	tracker := newRecencyTracker(time.Minute)
	base := time.Now()

	tracker.Record("http://nfce/a", base)
	tracker.Record("http://nfce/a", base.Add(10*time.Second))

	if !tracker.WithinWindow("http://nfce/a", 3*time.Second, base.Add(12*time.Second)) {
		t.Error("window should be measured from the latest record")
	}
}
