// Package copy uploads local files and directory trees to the remote host.
package copy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/eniac111/mla/internal/modules"
	"github.com/eniac111/mla/internal/runner"
	"github.com/eniac111/mla/internal/types"
)

// Params are the copy todo parameters. Dest is the remote directory that
// receives src.
type Params struct {
	Src    string `yaml:"src" validate:"required"`
	Dest   string `yaml:"dest" validate:"required"`
	Backup bool   `yaml:"backup"`
}

// Module copies one file or directory.
type Module struct {
	params Params
	log    zerolog.Logger
	now    func() time.Time
}

// New decodes and validates the todo parameters.
func New(todo types.Todo, log zerolog.Logger) (*Module, error) {
	var p Params
	if err := modules.DecodeParams(todo, &p); err != nil {
		return nil, err
	}
	return &Module{
		params: p,
		log:    log.With().Str("src", p.Src).Str("dest", p.Dest).Logger(),
		now:    time.Now,
	}, nil
}

// Reconcile uploads every file whose remote checksum differs from the local one.
func (m *Module) Reconcile(ctx context.Context, target modules.Target) types.Outcome {
	if target.Files == nil {
		m.log.Error().Msg("No file transfer channel available.")
		return types.Failed
	}

	src, err := filepath.Abs(m.params.Src)
	if err != nil {
		m.log.Error().Err(err).Msg("Failed to resolve the source path.")
		return types.Failed
	}
	info, err := os.Stat(src)
	if err != nil {
		m.log.Error().Err(err).Msg("Source path is not accessible.")
		return types.Failed
	}

	var changed bool
	if info.IsDir() {
		changed, err = m.copyTree(ctx, target, src)
	} else {
		changed, err = m.copyFile(ctx, target, src, m.params.Dest)
	}
	if err != nil {
		m.log.Error().Err(err).Msg("Copy failed.")
		return types.Failed
	}
	if changed {
		return types.Changed
	}
	return types.Unchanged
}

func (m *Module) copyTree(ctx context.Context, target modules.Target, root string) (bool, error) {
	remoteRoot := path.Join(m.params.Dest, filepath.Base(root))
	changed := false

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		remote := path.Join(remoteRoot, filepath.ToSlash(rel))

		if d.IsDir() {
			return target.Files.MkdirAll(ctx, remote)
		}
		if !d.Type().IsRegular() {
			m.log.Warn().Str("path", p).Msg("Skipping non-regular file.")
			return nil
		}
		fileChanged, err := m.syncFile(ctx, target, p, remote)
		changed = changed || fileChanged
		return err
	})
	return changed, err
}

func (m *Module) copyFile(ctx context.Context, target modules.Target, src, destDir string) (bool, error) {
	if err := target.Files.MkdirAll(ctx, destDir); err != nil {
		return false, err
	}
	return m.syncFile(ctx, target, src, path.Join(destDir, filepath.Base(src)))
}

// syncFile uploads local to remote unless the remote content already matches.
func (m *Module) syncFile(ctx context.Context, target modules.Target, local, remote string) (bool, error) {
	localSum, err := checksum(local)
	if err != nil {
		return false, err
	}

	res, err := target.Runner.Run(ctx, "sha256sum "+runner.Arg(remote))
	if err != nil {
		return false, err
	}
	exists := res.ExitCode == 0
	if exists {
		if remoteSum, _, _ := strings.Cut(res.Stdout, " "); remoteSum == localSum {
			m.log.Debug().Str("remote", remote).Msg("File is up to date.")
			return false, nil
		}
		if m.params.Backup {
			backup := BackupName(remote, m.now())
			if err := target.Files.Rename(ctx, remote, backup); err != nil {
				return false, fmt.Errorf("backup %s: %w", remote, err)
			}
			m.log.Info().Str("backup", backup).Msg("Backed up remote file.")
		}
	}

	if err := target.Files.Upload(ctx, local, remote); err != nil {
		return false, fmt.Errorf("upload %s: %w", local, err)
	}
	m.log.Debug().Str("local", local).Str("remote", remote).Msg("File uploaded.")
	return true, nil
}

// BackupName is the name an overwritten remote file is moved to.
func BackupName(remote string, at time.Time) string {
	return fmt.Sprintf("%s.%d~", remote, at.Unix())
}

func checksum(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
