package search

import (
	"testing"

	"github.com/slskd/slskd/internal/shareindex"
)

type memRepo struct{ files []shareindex.File }

func (r *memRepo) Files() []shareindex.File { return r.files }
func (r *memRepo) Resolve(string) (string, bool) { return "", false }

type stubStats struct {
	free  bool
	queue int
}

func (s stubStats) HasFreeNonLeecherSlot() bool { return s.free }
func (s stubStats) QueueLength() int            { return s.queue }

func newResolverIndex(files ...shareindex.File) *shareindex.ShareIndex {
	si := shareindex.New(shareindex.Options{MaxSearchResults: 100})
	si.AddOrUpdateHost(shareindex.LocalHostName, nil, &memRepo{files: files})
	return si
}

func TestResolveReturnsNilForNoMatches(t *testing.T) {
	r := &Resolver{Index: newResolverIndex(shareindex.File{Path: `\local\a.mp3`}), Username: "me"}
	if got := r.Resolve("nomatch", "peer", 1); got != nil {
		t.Fatalf("expected nil response, got %+v", got)
	}
}

func TestResolvePopulatesSlotsAndSpeed(t *testing.T) {
	r := &Resolver{
		Index:       newResolverIndex(shareindex.File{Path: `\local\beatles\song.mp3`}),
		Uploads:     stubStats{free: true, queue: 4},
		UploadSpeed: func() int64 { return 1024 },
		Username:    "me",
	}
	got := r.Resolve("beatles", "peer", 42)
	if got == nil {
		t.Fatalf("expected a response")
	}
	if got.Token != 42 || got.Username != "me" || got.UploadSpeed != 1024 || got.QueueLength != 4 || got.FreeUploadSlots != 1 {
		t.Fatalf("unexpected response: %+v", got)
	}
	if len(got.Files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(got.Files))
	}
}

func TestResolveCapsFilesPerResponse(t *testing.T) {
	r := &Resolver{
		Index: newResolverIndex(
			shareindex.File{Path: `\local\beatles\1.mp3`},
			shareindex.File{Path: `\local\beatles\2.mp3`},
			shareindex.File{Path: `\local\beatles\3.mp3`},
		),
		MaxFilesPerResponse: 2,
		Username:            "me",
	}
	got := r.Resolve("beatles", "peer", 1)
	if got == nil || len(got.Files) != 2 {
		t.Fatalf("expected response capped at 2 files, got %+v", got)
	}
}
