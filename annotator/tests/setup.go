package tests

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"falldetect/annotator/auth"
	"falldetect/annotator/metadata"
	"falldetect/annotator/schema"
	"falldetect/annotator/services"

	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	backend services.Backend
	api     chi.Router
	db      *gorm.DB
	prober  *proberStub
}

const testSecret = "290zcv02ai249"

// proberStub stands in for ffprobe. Paths listed in fail cause a probe error
// so the best-effort import path is exercised without media tooling.
type proberStub struct {
	fail map[string]bool
}

func (p *proberStub) Probe(ctx context.Context, path string) (metadata.Metadata, error) {
	if p.fail[path] {
		return metadata.Metadata{}, errors.New("probe failed")
	}
	resolution := "1920x1080"
	framerate := 30.0
	duration := 12.5
	return metadata.Metadata{Resolution: &resolution, Framerate: &framerate, Duration: &duration}, nil
}

func setupTestEnv(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}

	if err := schema.Migrate(db); err != nil {
		t.Fatal(err)
	}

	userAuth, err := auth.NewProvider(
		db,
		auth.NewAuditLogger(new(bytes.Buffer)),
		auth.ProviderArgs{
			Secret: []byte(testSecret),
			Policy: auth.LockoutPolicy{
				MaxAttempts:       5,
				LockDuration:      15 * time.Minute,
				MinPasswordLength: 8,
			},
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	prober := &proberStub{fail: make(map[string]bool)}
	backend := services.NewBackend(db, userAuth, prober)

	return &testEnv{backend: backend, api: backend.Routes(), db: db, prober: prober}
}

func (t *testEnv) newClient() client {
	return client{api: t.api}
}

func (t *testEnv) newUser(username string) (client, error) {
	c := t.newClient()
	login, err := c.signup(username, username+"@mail.com", username+"_password")
	if err != nil {
		return client{}, err
	}

	err = c.login(login)
	if err != nil {
		return client{}, err
	}

	return c, nil
}

func (t *testEnv) adminClient() (client, error) {
	c := t.newClient()
	err := c.login(loginInfo{Username: auth.DefaultAdminUsername, Password: auth.DefaultAdminPassword})
	return c, err
}
