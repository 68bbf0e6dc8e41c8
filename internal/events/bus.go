// Package events provides the in-process event bus.
//
// The event set is closed: each kind has its own registration and publish
// method, so dispatch is static rather than driven by runtime type
// inspection. Handlers run synchronously on the publishing goroutine, which
// lets a handler for RefUpdated take part in the publisher's transaction.
package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/Tonytonyy/onedev/internal/db"
)

// RefUpdated is published by the receive-hook callback after a ref changes.
// A deletion carries plumbing.ZeroHash as NewObjectID. Tx is the transaction
// the update is being processed in; handlers may write through it.
type RefUpdated struct {
	Tx          *db.Tx
	ProjectID   int64
	RefName     string
	OldObjectID plumbing.Hash
	NewObjectID plumbing.Hash
}

// ProjectRenamed is published when a save changes a project's name.
type ProjectRenamed struct {
	ProjectID int64
	OldName   string
	NewName   string
}

// ProjectDeleted is published when a project row is removed.
type ProjectDeleted struct {
	ProjectID int64
	Name      string
}

// Bus dispatches lifecycle and domain events to statically registered
// handlers. Registration normally happens once at composition time but is
// safe concurrently with publishing.
type Bus struct {
	mu             sync.RWMutex
	systemStarting []func(context.Context) error
	systemStarted  []func(context.Context) error
	systemStopping []func(context.Context) error
	refUpdated     []func(context.Context, RefUpdated) error
	projectRenamed []func(context.Context, ProjectRenamed) error
	projectDeleted []func(context.Context, ProjectDeleted) error
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) OnSystemStarting(h func(context.Context) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.systemStarting = append(b.systemStarting, h)
}

func (b *Bus) OnSystemStarted(h func(context.Context) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.systemStarted = append(b.systemStarted, h)
}

func (b *Bus) OnSystemStopping(h func(context.Context) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.systemStopping = append(b.systemStopping, h)
}

func (b *Bus) OnRefUpdated(h func(context.Context, RefUpdated) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refUpdated = append(b.refUpdated, h)
}

func (b *Bus) OnProjectRenamed(h func(context.Context, ProjectRenamed) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.projectRenamed = append(b.projectRenamed, h)
}

func (b *Bus) OnProjectDeleted(h func(context.Context, ProjectDeleted) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.projectDeleted = append(b.projectDeleted, h)
}

// PublishSystemStarting runs the startup-begin handlers in registration
// order, stopping at the first failure.
func (b *Bus) PublishSystemStarting(ctx context.Context) error {
	b.mu.RLock()
	handlers := b.systemStarting
	b.mu.RUnlock()
	for _, h := range handlers {
		if err := h(ctx); err != nil {
			return fmt.Errorf("system starting: %w", err)
		}
	}
	return nil
}

// PublishSystemStarted runs the startup-complete handlers.
func (b *Bus) PublishSystemStarted(ctx context.Context) error {
	b.mu.RLock()
	handlers := b.systemStarted
	b.mu.RUnlock()
	for _, h := range handlers {
		if err := h(ctx); err != nil {
			return fmt.Errorf("system started: %w", err)
		}
	}
	return nil
}

// PublishSystemStopping runs the shutdown-begin handlers.
func (b *Bus) PublishSystemStopping(ctx context.Context) error {
	b.mu.RLock()
	handlers := b.systemStopping
	b.mu.RUnlock()
	for _, h := range handlers {
		if err := h(ctx); err != nil {
			return fmt.Errorf("system stopping: %w", err)
		}
	}
	return nil
}

// PublishRefUpdated dispatches a ref-update notification. The caller is
// expected to publish from within the transaction carried by the event.
func (b *Bus) PublishRefUpdated(ctx context.Context, ev RefUpdated) error {
	b.mu.RLock()
	handlers := b.refUpdated
	b.mu.RUnlock()
	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			return fmt.Errorf("ref updated %s: %w", ev.RefName, err)
		}
	}
	return nil
}

// PublishProjectRenamed dispatches a rename notification.
func (b *Bus) PublishProjectRenamed(ctx context.Context, ev ProjectRenamed) error {
	b.mu.RLock()
	handlers := b.projectRenamed
	b.mu.RUnlock()
	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			return fmt.Errorf("project renamed: %w", err)
		}
	}
	return nil
}

// PublishProjectDeleted dispatches a deletion notification.
func (b *Bus) PublishProjectDeleted(ctx context.Context, ev ProjectDeleted) error {
	b.mu.RLock()
	handlers := b.projectDeleted
	b.mu.RUnlock()
	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			return fmt.Errorf("project deleted: %w", err)
		}
	}
	return nil
}
