// Package project is the consistency core of the server: it keeps the
// in-memory name index and the pool of open repository handles exactly
// consistent with the committed state of the entity store, and repairs the
// on-disk repository layout.
package project

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Tonytonyy/onedev/internal/authz"
	"github.com/Tonytonyy/onedev/internal/db"
	"github.com/Tonytonyy/onedev/internal/events"
	"github.com/Tonytonyy/onedev/internal/gitserver"
	"github.com/Tonytonyy/onedev/internal/storage"
)

// Manager owns the project registry and the repository handle cache. One
// instance lives for the whole process; request handling code receives it
// by reference from the composition root.
type Manager struct {
	db      *db.DB
	store   *Store
	storage *storage.Manager
	authz   *authz.Service
	bus     *events.Bus
	log     *zap.Logger

	// receiveHook is the hook template, loaded once at construction and
	// parameterized per hook with a callback identifier.
	receiveHook string

	// nameToID and idToName form a bijection over live projects, mutated
	// together under idLock and only after the owning transaction commits.
	idLock   sync.RWMutex
	nameToID map[string]int64
	idToName map[int64]string

	// repos caches at most one open handle per project id. openMu makes
	// open, close and evict mutually exclusive.
	repos  sync.Map
	openMu sync.Mutex
}

// NewManager creates the project manager and registers its event handlers
// on the bus.
func NewManager(d *db.DB, store *Store, storageMgr *storage.Manager, authzSvc *authz.Service, bus *events.Bus, log *zap.Logger) (*Manager, error) {
	if !strings.Contains(receiveHookTemplate, hookMarker) {
		return nil, fmt.Errorf("receive hook template lacks the %s marker", hookMarker)
	}
	if !strings.Contains(receiveHookTemplate, "%s") {
		return nil, fmt.Errorf("receive hook template lacks the callback placeholder")
	}
	m := &Manager{
		db:          d,
		store:       store,
		storage:     storageMgr,
		authz:       authzSvc,
		bus:         bus,
		log:         log,
		receiveHook: receiveHookTemplate,
		nameToID:    make(map[string]int64),
		idToName:    make(map[int64]string),
	}
	bus.OnSystemStarting(m.systemStarting)
	bus.OnSystemStarted(m.systemStarted)
	bus.OnSystemStopping(m.systemStopping)
	bus.OnRefUpdated(m.refUpdated)
	return m, nil
}

// Find resolves a project name through the in-memory index, then loads the
// entity from the store outside the lock. An unknown name returns
// (nil, nil).
func (m *Manager) Find(ctx context.Context, name string) (*Project, error) {
	m.idLock.RLock()
	id, ok := m.nameToID[name]
	m.idLock.RUnlock()
	if !ok {
		registryLookups.WithLabelValues("miss").Inc()
		return nil, nil
	}
	registryLookups.WithLabelValues("hit").Inc()
	return m.store.Load(ctx, id)
}

// Repository returns the open handle for the project's bare repository,
// opening it on first access. At most one handle per project id exists at
// any time.
func (m *Manager) Repository(p *Project) (*gitserver.Repository, error) {
	if v, ok := m.repos.Load(p.ID); ok {
		return v.(*gitserver.Repository), nil
	}
	m.openMu.Lock()
	defer m.openMu.Unlock()
	if v, ok := m.repos.Load(p.ID); ok {
		return v.(*gitserver.Repository), nil
	}
	repo, err := gitserver.Open(m.storage.GitDir(p.ID))
	if err != nil {
		return nil, err
	}
	repositoryOpens.Inc()
	m.repos.Store(p.ID, repo)
	return repo, nil
}

// Save persists the project in one transaction, granting the creating
// actor admin privilege on a new project unless the actor already holds
// system administration. The registry is updated, and for a new project
// the directory reconciled, only after the commit. Pass the previous name
// as oldName when renaming; a rename notification is emitted post-commit.
func (m *Manager) Save(ctx context.Context, p *Project, oldName string, actor *authz.User) error {
	isNew := p.IsNew()
	renamed := oldName != "" && oldName != p.Name
	return m.db.Transaction(ctx, func(tx *db.Tx) error {
		if err := m.store.Persist(ctx, tx, p); err != nil {
			return err
		}
		if isNew && actor != nil && !actor.Admin {
			if err := m.authz.GrantUser(ctx, tx, actor.ID, p.ID, authz.PrivilegeAdmin); err != nil {
				return err
			}
		}
		tx.AfterCommit(func() {
			m.idLock.Lock()
			if old, ok := m.idToName[p.ID]; ok {
				delete(m.nameToID, old)
			}
			m.idToName[p.ID] = p.Name
			m.nameToID[p.Name] = p.ID
			m.idLock.Unlock()

			if renamed {
				if err := m.bus.PublishProjectRenamed(ctx, events.ProjectRenamed{
					ProjectID: p.ID,
					OldName:   oldName,
					NewName:   p.Name,
				}); err != nil {
					m.log.Error("rename notification failed", zap.Error(err))
				}
			}
			if isNew {
				if err := m.CheckDirectory(p); err != nil {
					m.log.Error("directory check failed after create",
						zap.Int64("project", p.ID), zap.Error(err))
				}
			}
		})
		return nil
	})
}

// Delete removes the project row and nulls fork back-references pointing at
// it in one transaction. Post-commit the registry entry is dropped, the
// cached handle closed and evicted, and a deletion notification emitted.
func (m *Manager) Delete(ctx context.Context, p *Project) error {
	return m.db.Transaction(ctx, func(tx *db.Tx) error {
		if err := m.store.ClearForkRefs(ctx, tx, p.ID); err != nil {
			return err
		}
		if err := m.store.Remove(ctx, tx, p); err != nil {
			return err
		}
		tx.AfterCommit(func() {
			m.idLock.Lock()
			if name, ok := m.idToName[p.ID]; ok {
				delete(m.nameToID, name)
				delete(m.idToName, p.ID)
			}
			m.idLock.Unlock()

			m.openMu.Lock()
			if v, ok := m.repos.LoadAndDelete(p.ID); ok {
				if err := v.(*gitserver.Repository).Close(); err != nil {
					m.log.Error("closing evicted repository handle failed",
						zap.Int64("project", p.ID), zap.Error(err))
				}
			}
			m.openMu.Unlock()

			if err := m.bus.PublishProjectDeleted(ctx, events.ProjectDeleted{
				ProjectID: p.ID,
				Name:      p.Name,
			}); err != nil {
				m.log.Error("deletion notification failed", zap.Error(err))
			}
		})
		return nil
	})
}

// Fork saves to as a fork of from and mirror-clones from's repository into
// to's git directory.
func (m *Manager) Fork(ctx context.Context, from, to *Project, actor *authz.User) error {
	forkedFrom := from.ID
	to.ForkedFrom = &forkedFrom
	if err := m.Save(ctx, to, "", actor); err != nil {
		return err
	}
	dst := m.storage.GitDir(to.ID)
	// Save's post-commit reconciliation initialized an empty repository
	// there; the mirror clone replaces it wholesale.
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("clean fork destination %s: %w", dst, err)
	}
	return gitserver.MirrorClone(ctx, m.storage.GitDir(from.ID), dst)
}

// Accessible computes the set of projects visible to the actor, fresh from
// the entity store on every call. A nil actor is anonymous and sees only
// public-read projects; a system administrator sees everything; anyone
// else sees the union of direct grants, group grants and public-read
// projects.
func (m *Manager) Accessible(ctx context.Context, actor *authz.User) ([]*Project, error) {
	all, err := m.store.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		var visible []*Project
		for _, p := range all {
			if p.PublicRead {
				visible = append(visible, p)
			}
		}
		return visible, nil
	}
	if actor.Admin {
		return all, nil
	}

	authorized := make(map[int64]bool)
	direct, err := m.authz.AuthorizedProjectIDs(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	for _, id := range direct {
		authorized[id] = true
	}
	viaGroups, err := m.authz.GroupAuthorizedProjectIDs(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	for _, id := range viaGroups {
		authorized[id] = true
	}

	var visible []*Project
	for _, p := range all {
		if p.PublicRead || authorized[p.ID] {
			visible = append(visible, p)
		}
	}
	return visible, nil
}

// systemStarting populates the registry from every persisted project.
func (m *Manager) systemStarting(ctx context.Context) error {
	projects, err := m.store.FindAll(ctx)
	if err != nil {
		return err
	}
	m.idLock.Lock()
	defer m.idLock.Unlock()
	for _, p := range projects {
		m.nameToID[p.Name] = p.ID
		m.idToName[p.ID] = p.Name
	}
	return nil
}

// systemStarted runs the recovery sweep over every project directory.
func (m *Manager) systemStarted(ctx context.Context) error {
	projects, err := m.store.FindAll(ctx)
	if err != nil {
		return err
	}
	for _, p := range projects {
		m.log.Info("checking project", zap.String("name", p.Name), zap.Int64("id", p.ID))
		if err := m.CheckDirectory(p); err != nil {
			return fmt.Errorf("check project %s: %w", p.Name, err)
		}
	}
	return nil
}

// systemStopping closes every cached repository handle.
func (m *Manager) systemStopping(ctx context.Context) error {
	m.openMu.Lock()
	defer m.openMu.Unlock()
	var firstErr error
	m.repos.Range(func(key, value any) bool {
		if err := value.(*gitserver.Repository).Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.repos.Delete(key)
		return true
	})
	return firstErr
}
