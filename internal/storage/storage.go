// Package storage resolves the on-disk layout of the site directory.
//
// Layout:
//
//	<site>/projects/<id>/git   bare repository
//	<site>/projects/<id>/info  derived commit info (rebuildable)
package storage

import (
	"path/filepath"
	"strconv"
)

// Manager maps project ids to their directories under one site root.
type Manager struct {
	siteDir string
}

// NewManager creates a layout manager rooted at siteDir.
func NewManager(siteDir string) *Manager {
	return &Manager{siteDir: siteDir}
}

// SiteDir returns the site root.
func (m *Manager) SiteDir() string {
	return m.siteDir
}

// ProjectDir returns the storage directory of a project.
func (m *Manager) ProjectDir(projectID int64) string {
	return filepath.Join(m.siteDir, "projects", strconv.FormatInt(projectID, 10))
}

// GitDir returns the bare git directory of a project.
func (m *Manager) GitDir(projectID int64) string {
	return filepath.Join(m.ProjectDir(projectID), "git")
}

// InfoDir returns the derived-info directory of a project.
func (m *Manager) InfoDir(projectID int64) string {
	return filepath.Join(m.ProjectDir(projectID), "info")
}
