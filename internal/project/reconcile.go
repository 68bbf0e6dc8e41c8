package project

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Tonytonyy/onedev/internal/gitserver"
)

// infoVersion is the expected on-disk format of the derived-info directory.
// Bump it when the commit-info rebuilder changes its format; reconciliation
// then wipes stale info so it gets rebuilt from scratch.
const infoVersion = 3

// hookMarker proves a hook script was generated by this server rather than
// placed by hand.
const hookMarker = "ONEDEV_USER_ID"

const (
	preReceiveCallback  = "git-prereceive-callback"
	postReceiveCallback = "git-postreceive-callback"
)

//go:embed git-receive-hook.sh
var receiveHookTemplate string

// CheckDirectory repairs the on-disk state of one project: bare repository
// structure, server-side hooks, and the derived-info version gate. It is
// idempotent and makes no mutation when everything is already well-formed.
func (m *Manager) CheckDirectory(p *Project) error {
	gitDir := m.storage.GitDir(p.ID)

	if _, err := os.Stat(gitDir); err == nil {
		if !gitserver.IsValid(gitDir) {
			// A directory failing the validity check was never a usable
			// repository, so destructive recovery loses nothing.
			m.log.Warn("directory is not a valid git repository, removing",
				zap.String("dir", gitDir), zap.Int64("project", p.ID))
			if err := os.RemoveAll(gitDir); err != nil {
				return fmt.Errorf("remove invalid git directory %s: %w", gitDir, err)
			}
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat git directory %s: %w", gitDir, err)
	}

	if _, err := os.Stat(gitDir); os.IsNotExist(err) {
		m.log.Warn("initializing git repository",
			zap.String("dir", gitDir), zap.Int64("project", p.ID))
		if err := os.MkdirAll(gitDir, 0o755); err != nil {
			return fmt.Errorf("create git directory %s: %w", gitDir, err)
		}
		if err := gitserver.InitBare(gitDir); err != nil {
			return err
		}
	}

	preValid, err := m.isHookValid(gitDir, "pre-receive")
	if err != nil {
		return err
	}
	postValid, err := m.isHookValid(gitDir, "post-receive")
	if err != nil {
		return err
	}
	if !preValid || !postValid {
		if err := m.writeHook(gitDir, "pre-receive", preReceiveCallback); err != nil {
			return err
		}
		if err := m.writeHook(gitDir, "post-receive", postReceiveCallback); err != nil {
			return err
		}
	}

	return m.checkInfoVersion(p)
}

// isHookValid checks existence, the generation marker, and the executable
// bit of one server-side hook.
func (m *Manager) isHookValid(gitDir, hookName string) (bool, error) {
	hookFile := filepath.Join(gitDir, "hooks", hookName)
	info, err := os.Stat(hookFile)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat hook %s: %w", hookFile, err)
	}
	content, err := os.ReadFile(hookFile)
	if err != nil {
		return false, fmt.Errorf("read hook %s: %w", hookFile, err)
	}
	if !strings.Contains(string(content), hookMarker) {
		return false, nil
	}
	if info.Mode()&0o100 == 0 {
		return false, nil
	}
	return true, nil
}

func (m *Manager) writeHook(gitDir, hookName, callback string) error {
	hooksDir := filepath.Join(gitDir, "hooks")
	if err := os.MkdirAll(hooksDir, 0o755); err != nil {
		return fmt.Errorf("create hooks directory %s: %w", hooksDir, err)
	}
	hookFile := filepath.Join(hooksDir, hookName)
	content := fmt.Sprintf(m.receiveHook, callback)
	if err := os.WriteFile(hookFile, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write hook %s: %w", hookFile, err)
	}
	if err := os.Chmod(hookFile, 0o755); err != nil {
		return fmt.Errorf("mark hook %s executable: %w", hookFile, err)
	}
	return nil
}

// checkInfoVersion compares the stored derived-info format version against
// infoVersion and wipes the info directory on mismatch so the rebuilder
// starts from a clean slate.
func (m *Manager) checkInfoVersion(p *Project) error {
	infoDir := m.storage.InfoDir(p.ID)
	versionFile := filepath.Join(infoDir, "version.txt")

	stored := 0
	content, err := os.ReadFile(versionFile)
	if err == nil {
		stored, err = strconv.Atoi(strings.TrimSpace(string(content)))
		if err != nil {
			stored = 0
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read info version %s: %w", versionFile, err)
	}

	if stored == infoVersion {
		return nil
	}
	if err := os.RemoveAll(infoDir); err != nil {
		return fmt.Errorf("wipe info directory %s: %w", infoDir, err)
	}
	if err := os.MkdirAll(infoDir, 0o755); err != nil {
		return fmt.Errorf("create info directory %s: %w", infoDir, err)
	}
	if err := os.WriteFile(versionFile, []byte(strconv.Itoa(infoVersion)), 0o644); err != nil {
		return fmt.Errorf("write info version %s: %w", versionFile, err)
	}
	return nil
}
