package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"filevault/pkg/auth"
	"filevault/pkg/config"
	"filevault/pkg/content/badger"
	"filevault/pkg/content/fs"
	"filevault/pkg/content/memory"

	"github.com/stretchr/testify/suite"
)

type CommandTestSuite struct {
	suite.Suite
	dir string
}

func (s *CommandTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.T().Chdir(s.dir)
	cfgFile = ""
}

func (s *CommandTestSuite) loadConfig() *config.Config {
	cfg, err := config.Load("", nil)
	s.Require().NoError(err)
	return cfg
}

func (s *CommandTestSuite) TestContentStores() {
	ctx := context.Background()
	cfg := s.loadConfig()

	cfg.Content.Type = "memory"
	store, closeStore, err := openContentStore(ctx, cfg)
	s.Require().NoError(err)
	s.IsType(&memory.Store{}, store)
	closeStore()

	cfg.Content.Type = "fs"
	cfg.Content.FS.Root = filepath.Join(s.dir, "content")
	store, closeStore, err = openContentStore(ctx, cfg)
	s.Require().NoError(err)
	s.IsType(&fs.Store{}, store)
	closeStore()

	cfg.Content.Type = "badger"
	cfg.Content.Badger.Dir = filepath.Join(s.dir, "badger")
	store, closeStore, err = openContentStore(ctx, cfg)
	s.Require().NoError(err)
	s.IsType(&badger.Store{}, store)
	closeStore()

	cfg.Content.Type = "tape"
	_, _, err = openContentStore(ctx, cfg)
	s.Error(err)
}

func (s *CommandTestSuite) TestOwnerResolvers() {
	r, err := newOwnerResolver(config.AuthConfig{Mode: "static", StaticOwner: "ops"})
	s.Require().NoError(err)
	owner, err := r.ResolveOwner(context.Background(), "")
	s.Require().NoError(err)
	s.Equal("ops", owner)

	_, err = newOwnerResolver(config.AuthConfig{Mode: "jwt"})
	s.Error(err)

	r, err = newOwnerResolver(config.AuthConfig{Mode: "jwt", Secret: "0123456789abcdef"})
	s.Require().NoError(err)
	_, err = r.ResolveOwner(context.Background(), "")
	s.ErrorIs(err, auth.ErrUnauthorized)

	_, err = newOwnerResolver(config.AuthConfig{Mode: "ldap"})
	s.Error(err)
}

func (s *CommandTestSuite) TestResilienceConfig() {
	cfg := s.loadConfig()
	rc := resilienceConfig(cfg.Share)

	s.Equal("share", rc.Name)
	s.Equal(cfg.Share.MaxAttempts, rc.MaxAttempts)
	s.Equal(cfg.Share.OpenTimeout, rc.OpenTimeout)
	s.Equal(cfg.Share.HalfOpenRequests, rc.HalfOpenRequests)
	s.Equal(100*time.Millisecond, rc.InitialBackoff)
}

func (s *CommandTestSuite) TestOpenDatabaseCreatesDirectory() {
	cfg := s.loadConfig()
	cfg.Database.DSN = filepath.Join(s.dir, "nested", "vault.db")

	db, err := openDatabase(context.Background(), cfg)
	s.Require().NoError(err)
	s.NoError(db.Close())
	s.FileExists(cfg.Database.DSN)
}

func (s *CommandTestSuite) TestMigrateCommand() {
	dsn := filepath.Join(s.dir, "data", "vault.db")

	root := newRootCmd()
	root.SetArgs([]string{"migrate", "--db-dsn", dsn, "--log-format", "json"})
	s.Require().NoError(root.Execute())
	s.FileExists(dsn)
}

func (s *CommandTestSuite) TestTokenCommand() {
	secret := "0123456789abcdef"
	s.T().Setenv("FILEVAULT_AUTH_SECRET", secret)

	out := &bytes.Buffer{}
	root := newRootCmd()
	root.SetOut(out)
	root.SetArgs([]string{"token", "--owner", "alice", "--ttl", "5m"})
	s.Require().NoError(root.Execute())

	owner, err := auth.NewJWTResolver([]byte(secret)).ResolveOwner(context.Background(), strings.TrimSpace(out.String()))
	s.Require().NoError(err)
	s.Equal("alice", owner)
}

func (s *CommandTestSuite) TestTokenCommandWithoutSecret() {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"token", "--owner", "alice"})
	s.Error(root.Execute())
}

func TestCommandTestSuite(t *testing.T) {
	suite.Run(t, new(CommandTestSuite))
}
