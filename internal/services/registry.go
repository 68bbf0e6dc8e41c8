// Package services holds the long-lived singletons built by the
// composition root. Request handling code receives the registry by
// reference; Close tears the process state down in one place.
package services

import (
	"github.com/Tonytonyy/onedev/internal/authz"
	"github.com/Tonytonyy/onedev/internal/config"
	"github.com/Tonytonyy/onedev/internal/db"
	"github.com/Tonytonyy/onedev/internal/events"
	"github.com/Tonytonyy/onedev/internal/project"
	"github.com/Tonytonyy/onedev/internal/storage"
)

// Registry provides access to the process-wide services.
type Registry interface {
	Config() *config.Config
	DB() *db.DB
	Bus() *events.Bus
	Storage() *storage.Manager
	Authz() *authz.Service
	Projects() *project.Manager

	// Close releases everything the registry owns, in reverse construction
	// order.
	Close() error
}

// Options configures the registry with service instances.
type Options struct {
	Config   *config.Config
	DB       *db.DB
	Bus      *events.Bus
	Storage  *storage.Manager
	Authz    *authz.Service
	Projects *project.Manager
}

type registry struct {
	config   *config.Config
	db       *db.DB
	bus      *events.Bus
	storage  *storage.Manager
	authz    *authz.Service
	projects *project.Manager
}

// NewRegistry creates a new service registry.
func NewRegistry(opts Options) Registry {
	return &registry{
		config:   opts.Config,
		db:       opts.DB,
		bus:      opts.Bus,
		storage:  opts.Storage,
		authz:    opts.Authz,
		projects: opts.Projects,
	}
}

func (r *registry) Config() *config.Config     { return r.config }
func (r *registry) DB() *db.DB                 { return r.db }
func (r *registry) Bus() *events.Bus           { return r.bus }
func (r *registry) Storage() *storage.Manager  { return r.storage }
func (r *registry) Authz() *authz.Service      { return r.authz }
func (r *registry) Projects() *project.Manager { return r.projects }

func (r *registry) Close() error {
	return r.db.Close()
}
