package services

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/neighborwatch/internal/client/backend"
	"github.com/dmitrijs2005/neighborwatch/internal/client/backend/backendtest"
	"github.com/dmitrijs2005/neighborwatch/internal/client/notify"
	"github.com/dmitrijs2005/neighborwatch/internal/logging"
)

func setup(t *testing.T) (*backend.Client, *backendtest.Server) {
	t.Helper()
	srv := backendtest.NewServer()
	t.Cleanup(srv.Close)

	c, err := backend.New(backend.Options{URL: srv.URL, Key: backendtest.Key}, nil, logging.Nop())
	require.NoError(t, err)
	return c, srv
}

func author(first, last string) backendtest.Row {
	return backendtest.Row{"users": backendtest.Row{"first_name": first, "last_name": last}}
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
	Err  error
}

func (n *fakeNotifier) Notify(_ context.Context, note notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return n.Err
}

type fakeRealtime struct {
	LastFilter  backend.ChangeFilter
	LastHandler backend.ChangeHandler
	Err         error
}

func (r *fakeRealtime) Subscribe(_ context.Context, f backend.ChangeFilter, h backend.ChangeHandler) (*backend.Channel, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.LastFilter, r.LastHandler = f, h
	return nil, nil
}

type fakeUploader struct {
	LastKey         string
	LastBody        string
	LastContentType string
	LastTTL         time.Duration
	UploadErr       error
}

func (u *fakeUploader) Upload(_ context.Context, key string, body io.Reader, contentType string) error {
	if u.UploadErr != nil {
		return u.UploadErr
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	u.LastKey, u.LastBody, u.LastContentType = key, string(b), contentType
	return nil
}

func (u *fakeUploader) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	u.LastTTL = ttl
	return "https://files.example.test/" + key + "?sig=abc", nil
}
