package config

import "testing"

func TestDiffOptionsNoChanges(t *testing.T) {
	a := Options{Soulseek: SoulseekOptions{Username: "alice", ListenPort: 12345}}
	if diffs := DiffOptions(a, a); len(diffs) != 0 {
		t.Fatalf("expected no diffs for identical snapshots, got %+v", diffs)
	}
}

func TestDiffOptionsS6ListenPortChange(t *testing.T) {
	a := Options{Soulseek: SoulseekOptions{Username: "alice", ListenPort: 12345}}
	b := Options{Soulseek: SoulseekOptions{Username: "bob", ListenPort: 54321}}

	diffs := DiffOptions(a, b)
	if len(diffs) != 2 {
		t.Fatalf("expected 2 diffs (username, listenPort), got %d: %+v", len(diffs), diffs)
	}

	var sawPort, sawUsername bool
	for _, d := range diffs {
		if d.Path != "soulseek.listenPort" && d.Path != "soulseek.username" {
			t.Fatalf("unexpected diff path %q", d.Path)
		}
		if !d.SoulseekScoped {
			t.Fatalf("diff %q should be soulseek-scoped", d.Path)
		}
		switch d.Path {
		case "soulseek.listenPort":
			sawPort = true
			if !d.RequiresRestart {
				t.Fatalf("listenPort diff must require restart")
			}
			if d.Before.(int) != 12345 || d.After.(int) != 54321 {
				t.Fatalf("got before=%v after=%v, want 12345/54321", d.Before, d.After)
			}
		case "soulseek.username":
			sawUsername = true
			if d.RequiresRestart {
				t.Fatalf("username diff must not require restart")
			}
		}
	}
	if !sawPort || !sawUsername {
		t.Fatalf("missing expected diffs: sawPort=%v sawUsername=%v", sawPort, sawUsername)
	}
}

func TestDiffOptionsNonSoulseekFieldNotScoped(t *testing.T) {
	a := Options{Web: WebOptions{ListenPort: 5000}}
	b := Options{Web: WebOptions{ListenPort: 5001}}

	diffs := DiffOptions(a, b)
	if len(diffs) != 1 {
		t.Fatalf("expected 1 diff, got %d", len(diffs))
	}
	if diffs[0].SoulseekScoped {
		t.Fatalf("web.listenPort must not be soulseek-scoped")
	}
	if !diffs[0].RequiresRestart {
		t.Fatalf("web.listenPort is tagged requires-restart")
	}
}

func TestDiffOptionsSliceFieldComparesWhole(t *testing.T) {
	a := Options{Shares: SharesOptions{Directories: []string{"/a", "/b"}}}
	b := Options{Shares: SharesOptions{Directories: []string{"/a", "/c"}}}

	diffs := DiffOptions(a, b)
	if len(diffs) != 1 || diffs[0].Path != "shares.directories" {
		t.Fatalf("expected single shares.directories diff, got %+v", diffs)
	}
}
