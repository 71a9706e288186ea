package relay

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/slskd/slskd/internal/slskderrors"
	"github.com/slskd/slskd/internal/tokencache"
	"github.com/slskd/slskd/internal/waiter"
)

type fakeLink struct {
	mu   sync.Mutex
	msgs []struct {
		connID string
		typ    string
		payload any
	}
}

func (f *fakeLink) Push(connID, msgType string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, struct {
		connID string
		typ    string
		payload any
	}{connID, msgType, payload})
	return nil
}

func (f *fakeLink) last() (connID, typ string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		return "", "", nil
	}
	m := f.msgs[len(f.msgs)-1]
	return m.connID, m.typ, m.payload
}

type fakeSecrets map[string]string

func (f fakeSecrets) SecretFor(agentName string) (string, bool) {
	s, ok := f[agentName]
	return s, ok
}

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeLink) {
	t.Helper()
	cache, err := tokencache.New()
	if err != nil {
		t.Fatalf("tokencache.New: %v", err)
	}
	t.Cleanup(func() { cache.Close() })
	link := &fakeLink{}
	c := NewCoordinator(link, NewTokenStore(cache), fakeSecrets{"A": "agent-secret"}, waiter.New(),
		func(sharesJSON, db []byte) (RemoteRepository, error) { return nil, nil },
		func(agentName string, repo RemoteRepository) {},
	)
	return c, link
}

func TestHandshakeAndLogin(t *testing.T) {
	c, link := newTestCoordinator(t)
	if err := c.BeginHandshake("conn-1"); err != nil {
		t.Fatalf("BeginHandshake: %v", err)
	}
	_, typ, payload := link.last()
	if typ != "Challenge" {
		t.Fatalf("expected Challenge push, got %s", typ)
	}
	authToken := payload.(map[string]string)["authToken"]
	tokenBytes, err := decodeBase62(authToken)
	if err != nil {
		t.Fatalf("decodeBase62: %v", err)
	}

	cred, err := ComputeCredential("agent-secret", "A", tokenBytes)
	if err != nil {
		t.Fatalf("ComputeCredential: %v", err)
	}
	ok, err := c.HandleLogin("conn-1", "A", base64.StdEncoding.EncodeToString(cred))
	if err != nil || !ok {
		t.Fatalf("HandleLogin: ok=%v err=%v", ok, err)
	}
}

func TestLoginTwiceWithSameTokenFailsSecondTime(t *testing.T) {
	c, link := newTestCoordinator(t)
	c.BeginHandshake("conn-1")
	_, _, payload := link.last()
	authToken := payload.(map[string]string)["authToken"]
	tokenBytes, _ := decodeBase62(authToken)
	cred, _ := ComputeCredential("agent-secret", "A", tokenBytes)
	credB64 := base64.StdEncoding.EncodeToString(cred)

	if ok, err := c.HandleLogin("conn-1", "A", credB64); err != nil || !ok {
		t.Fatalf("first login should succeed: ok=%v err=%v", ok, err)
	}
	if ok, _ := c.HandleLogin("conn-1", "A", credB64); ok {
		t.Fatalf("second login with the same one-shot token must fail")
	}
}

func loginAgent(t *testing.T, c *Coordinator, link *fakeLink, connID, agentName, secret string) {
	t.Helper()
	c.BeginHandshake(connID)
	_, _, payload := link.last()
	authToken := payload.(map[string]string)["authToken"]
	tokenBytes, _ := decodeBase62(authToken)
	cred, _ := ComputeCredential(secret, agentName, tokenBytes)
	if ok, err := c.HandleLogin(connID, agentName, base64.StdEncoding.EncodeToString(cred)); err != nil || !ok {
		t.Fatalf("login failed: ok=%v err=%v", ok, err)
	}
}

type nopCloser struct{ io.Reader }

func (nopCloser) Close() error { return nil }

func TestS3RelayHappyPath(t *testing.T) {
	c, link := newTestCoordinator(t)
	loginAgent(t, c, link, "conn-A", "A", "agent-secret")

	var stream io.ReadCloser
	var getErr error
	done := make(chan struct{})
	go func() {
		stream, getErr = c.GetFileStream(context.Background(), "A", "/x/y.mp3", 0, 123, 10*time.Second)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	body := nopCloser{bytes.NewReader([]byte{0xDE, 0xAD, 0xBE, 0xEF})}

	recvDone := make(chan error, 1)
	go func() {
		recvDone <- c.ReceiveFileStream(context.Background(), 123, body)
	}()

	<-done
	if getErr != nil {
		t.Fatalf("GetFileStream: %v", getErr)
	}
	data, _ := io.ReadAll(stream)
	if !bytes.Equal(data, []byte{0xDE, 0xAD, 0xBE, 0xEF}) {
		t.Fatalf("got %x, want DEADBEEF", data)
	}

	if err := c.TryCloseFileStream(123, nil); err != nil {
		t.Fatalf("TryCloseFileStream: %v", err)
	}
	if err := <-recvDone; err != nil {
		t.Fatalf("ReceiveFileStream returned error: %v", err)
	}
}

func TestS4RelayFailure(t *testing.T) {
	c, link := newTestCoordinator(t)
	loginAgent(t, c, link, "conn-A", "A", "agent-secret")

	var getErr error
	done := make(chan struct{})
	go func() {
		_, getErr = c.GetFileStream(context.Background(), "A", "/x/y.mp3", 0, 123, 10*time.Second)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	if err := c.HandleStreamUploadFailed(123); err != nil {
		t.Fatalf("HandleStreamUploadFailed: %v", err)
	}
	<-done

	if getErr == nil || !slskderrors.Is(getErr, slskderrors.KindRemoteAgent) {
		t.Fatalf("expected RemoteAgent error, got %v", getErr)
	}

	// capability token for 123 was revoked; a subsequent validation must fail.
	if c.tokens.Validate(KindFileStream, "123", "agent-secret", "A", []byte("anything")) {
		t.Fatalf("expected revoked token to fail validation")
	}
}

func TestUnsolicitedFileInfoResponseIsNotFound(t *testing.T) {
	c, link := newTestCoordinator(t)
	loginAgent(t, c, link, "conn-A", "A", "agent-secret")

	err := c.HandleFileInfoResponse("A", 999, true, 42)
	if !slskderrors.Is(err, slskderrors.KindNotFound) {
		t.Fatalf("expected NotFound for unsolicited response, got %v", err)
	}
}

func TestGetFileInfoRoundTrip(t *testing.T) {
	c, link := newTestCoordinator(t)
	loginAgent(t, c, link, "conn-A", "A", "agent-secret")

	var res FileInfoResult
	var err error
	done := make(chan struct{})
	go func() {
		res, err = c.GetFileInfo(context.Background(), "A", "/x/y.mp3", 7, time.Second)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	if hErr := c.HandleFileInfoResponse("A", 7, true, 1024); hErr != nil {
		t.Fatalf("HandleFileInfoResponse: %v", hErr)
	}
	<-done
	if err != nil {
		t.Fatalf("GetFileInfo: %v", err)
	}
	if !res.Exists || res.Length != 1024 {
		t.Fatalf("got %+v, want Exists=true Length=1024", res)
	}
}

func TestNotifyDownloadCompletedBroadcastsToRegisteredAgents(t *testing.T) {
	c, link := newTestCoordinator(t)
	loginAgent(t, c, link, "conn-A", "A", "agent-secret")

	if err := c.NotifyDownloadCompleted("/x/y.mp3", 1); err != nil {
		t.Fatalf("NotifyDownloadCompleted: %v", err)
	}
	connID, typ, _ := link.last()
	if connID != "conn-A" || typ != "NotifyFileDownloadCompleted" {
		t.Fatalf("expected NotifyFileDownloadCompleted pushed to conn-A, got connID=%s typ=%s", connID, typ)
	}
}
