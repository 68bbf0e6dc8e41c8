package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Tonytonyy/onedev/internal/authz"
	"github.com/Tonytonyy/onedev/internal/config"
	"github.com/Tonytonyy/onedev/internal/db"
	"github.com/Tonytonyy/onedev/internal/events"
	"github.com/Tonytonyy/onedev/internal/project"
	"github.com/Tonytonyy/onedev/internal/storage"
)

func TestRegistry(t *testing.T) {
	log := zaptest.NewLogger(t)
	d, err := db.Open(":memory:", log)
	require.NoError(t, err)

	cfg := &config.Config{}
	bus := events.NewBus()
	storageMgr := storage.NewManager(t.TempDir())
	authzSvc := authz.NewService(d)
	store := project.NewStore(d)
	mgr, err := project.NewManager(d, store, storageMgr, authzSvc, bus, log)
	require.NoError(t, err)

	reg := NewRegistry(Options{
		Config:   cfg,
		DB:       d,
		Bus:      bus,
		Storage:  storageMgr,
		Authz:    authzSvc,
		Projects: mgr,
	})

	assert.Same(t, cfg, reg.Config())
	assert.Same(t, d, reg.DB())
	assert.Same(t, bus, reg.Bus())
	assert.Same(t, storageMgr, reg.Storage())
	assert.Same(t, authzSvc, reg.Authz())
	assert.Same(t, mgr, reg.Projects())

	require.NoError(t, reg.Close())
}
