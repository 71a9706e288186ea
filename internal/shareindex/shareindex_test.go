package shareindex

import (
	"strings"
	"sync"
	"testing"

	"github.com/slskd/slskd/internal/slskderrors"
)

type memRepo struct {
	prefix string
	files  []File
}

func (r *memRepo) Files() []File { return r.files }

func (r *memRepo) Resolve(virtualPath string) (string, bool) {
	if !strings.HasPrefix(virtualPath, r.prefix) {
		return "", false
	}
	return "/srv/" + strings.ReplaceAll(strings.TrimPrefix(virtualPath, r.prefix), `\`, "/"), true
}

func TestAddResolveRemoveHost(t *testing.T) {
	si := New(Options{MaxSearchResults: 10})
	repo := &memRepo{prefix: `\local\`}
	si.AddOrUpdateHost(LocalHostName, []string{"/srv"}, repo)

	host, real, err := si.Resolve(`\local\music\song.mp3`)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if host.Name != LocalHostName || real != "/srv/music/song.mp3" {
		t.Fatalf("got host=%q real=%q", host.Name, real)
	}

	si.RemoveHost(LocalHostName)
	if _, _, err := si.Resolve(`\local\music\song.mp3`); !slskderrors.Is(err, slskderrors.KindNotFound) {
		t.Fatalf("expected NotFound after RemoveHost, got %v", err)
	}
}

func TestSearchUnionsHostsWithTiebreaker(t *testing.T) {
	si := New(Options{MaxSearchResults: 10})
	si.AddOrUpdateHost("zzz-agent", nil, &memRepo{files: []File{{Path: `\zzz\beatles\a.mp3`}}})
	si.AddOrUpdateHost(LocalHostName, nil, &memRepo{files: []File{{Path: `\local\beatles\b.mp3`}}})

	results := si.Search("beatles", "")
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	// "local" sorts before "zzz-agent".
	if !strings.Contains(results[0].Path, "local") {
		t.Fatalf("expected local host first, got %q", results[0].Path)
	}
}

func TestSearchRejectsShortQueryAndBot(t *testing.T) {
	si := New(Options{MaxSearchResults: 10, MinQueryChars: 3, BotUsernames: map[string]bool{"bot1": true}})
	si.AddOrUpdateHost(LocalHostName, nil, &memRepo{files: []File{{Path: `\local\ab.mp3`}}})

	if got := si.Search("ab", ""); got != nil {
		t.Fatalf("expected nil for too-short query, got %v", got)
	}
	if got := si.Search("music stuff", "bot1"); got != nil {
		t.Fatalf("expected nil for blacklisted username, got %v", got)
	}
}

func TestSearchCapsResults(t *testing.T) {
	si := New(Options{MaxSearchResults: 2})
	si.AddOrUpdateHost(LocalHostName, nil, &memRepo{files: []File{
		{Path: `\local\beatles\1.mp3`},
		{Path: `\local\beatles\2.mp3`},
		{Path: `\local\beatles\3.mp3`},
	}})
	if got := si.Search("beatles", ""); len(got) != 2 {
		t.Fatalf("got %d results, want capped at 2", len(got))
	}
}

func TestFillSingleWriter(t *testing.T) {
	si := New(Options{})
	start := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		si.Fill(LocalHostName, nil, func() (ShareRepository, error) {
			close(start)
			<-release
			return &memRepo{}, nil
		})
	}()
	<-start
	err := si.Fill(LocalHostName, nil, func() (ShareRepository, error) {
		return &memRepo{}, nil
	})
	if !slskderrors.Is(err, slskderrors.KindScanAlreadyInProgress) {
		t.Fatalf("expected ScanAlreadyInProgress, got %v", err)
	}
	close(release)
	wg.Wait()
}
