package models

import (
	"os"
	"testing"
	"time"
)

func TestPexFromMode(t *testing.T) {
	tests := []struct {
		mode os.FileMode
		want Pex
	}{
		{0o754, Pex{7, 5, 4}},
		{0o644, Pex{6, 4, 4}},
		{0o000, Pex{0, 0, 0}},
		{0o777, Pex{7, 7, 7}},
	}

	for _, tt := range tests {
		if got := PexFromMode(tt.mode); got != tt.want {
			t.Errorf("PexFromMode(%o) = %+v, want %+v", tt.mode, got, tt.want)
		}
	}
}

func TestPexModeRoundTrip(t *testing.T) {
	p := Pex{7, 5, 0}
	if got := PexFromMode(p.Mode()); got != p {
		t.Errorf("round trip = %+v, want %+v", got, p)
	}
}

func TestSortEntries(t *testing.T) {
	now := time.Now()
	entries := []Entry{
		NewFile("/b.txt", "b.txt", 1, now, nil),
		NewDirectory("/zdir", "zdir", now, nil),
		NewFile("/a.txt", "a.txt", 1, now, nil),
		NewDirectory("/adir", "adir", now, nil),
	}

	SortEntries(entries, true)

	wantOrder := []string{"adir", "zdir", "a.txt", "b.txt"}
	for i, want := range wantOrder {
		if entries[i].Name != want {
			t.Errorf("grouped order[%d] = %s, want %s", i, entries[i].Name, want)
		}
	}

	SortEntries(entries, false)
	wantOrder = []string{"a.txt", "adir", "b.txt", "zdir"}
	for i, want := range wantOrder {
		if entries[i].Name != want {
			t.Errorf("flat order[%d] = %s, want %s", i, entries[i].Name, want)
		}
	}
}
