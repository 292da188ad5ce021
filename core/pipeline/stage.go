package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/khaes-kth/drr-execdiff/schema"
)

// staging holds the per-depth working locations of one run.
type staging struct {
	original      string // pre-patch tree
	patched       string // post-patch tree
	oldSrc        string // directory holding the pre-patch changed file
	newSrc        string // directory holding the post-patch changed file
	bugDir        string // bug directory inside the repository, e.g. Time-5
	changed       string // changed file relative to the repository root
	changedInTree string // changed file relative to the bug directory
}

func newStaging(work string, bug schema.BugID, changed string) staging {
	bugDir := bug.String()
	inTree := changed
	if rest, ok := strings.CutPrefix(filepath.ToSlash(changed), bugDir+"/"); ok {
		inTree = rest
	}
	return staging{
		original:      filepath.Join(work, "original"),
		patched:       filepath.Join(work, "patched"),
		oldSrc:        filepath.Join(work, "old-src"),
		newSrc:        filepath.Join(work, "new-src"),
		bugDir:        bugDir,
		changed:       changed,
		changedInTree: inTree,
	}
}

func (s staging) oldSrcFile() string { return filepath.Join(s.oldSrc, filepath.Base(s.changed)) }
func (s staging) newSrcFile() string { return filepath.Join(s.newSrc, filepath.Base(s.changed)) }

// materialize stages the changed file from both sides of the patch commit and,
// when withTrees is set, copies the bug directory into the original and
// patched trees. The repository is left checked out at commit.
func (d *Driver) materialize(ctx context.Context, repo, commit string, st staging, withTrees bool) error {
	for _, dir := range []string{st.oldSrc, st.newSrc} {
		if err := resetDir(dir); err != nil {
			return err
		}
	}

	side := func(tree, srcFile string) error {
		if err := copyFile(filepath.Join(repo, st.changed), srcFile, true); err != nil {
			return err
		}
		if !withTrees {
			return nil
		}
		if err := resetDir(tree); err != nil {
			return err
		}
		if err := os.CopyFS(tree, os.DirFS(filepath.Join(repo, st.bugDir))); err != nil {
			return fmt.Errorf("materialize %s: %w", tree, err)
		}
		return d.rewritePin(tree)
	}

	if err := side(st.patched, st.newSrcFile()); err != nil {
		return err
	}
	if err := d.git.Checkout(ctx, repo, commit+"~1"); err != nil {
		return fmt.Errorf("checkout parent of %s: %w", commit, err)
	}
	if err := side(st.original, st.oldSrcFile()); err != nil {
		return err
	}
	if err := d.git.Checkout(ctx, repo, commit); err != nil {
		return fmt.Errorf("restore %s: %w", commit, err)
	}
	return nil
}

// rewritePin replaces the first occurrence of the pin on every line of the
// pin file. A tree without the file is left alone.
func (d *Driver) rewritePin(tree string) error {
	pin := d.cfg.Pin
	if pin.File == "" || pin.From == "" {
		return nil
	}
	path := filepath.Join(tree, pin.File)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	lines := strings.SplitAfter(string(data), "\n")
	for i, line := range lines {
		lines[i] = strings.Replace(line, pin.From, pin.To, 1)
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strings.Join(lines, "")), info.Mode().Perm())
}

// stageReferenceDiff copies the reference diff of a patch into the work
// directory. A missing source is reported with ErrNoReferenceDiff.
func (d *Driver) stageReferenceDiff(repo, work string, patch schema.PatchID, depth schema.Depth) (string, error) {
	src := strings.NewReplacer(
		"{repo}", repo,
		"{patch}", patch.Name,
		"{depth}", strconv.Itoa(int(depth)),
	).Replace(d.cfg.ReferenceDiff)
	dst := filepath.Join(work, "reference", "gh_full_"+patch.Name+".html")

	err := copyFile(src, dst, false)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNoReferenceDiff, src)
	}
	if err != nil {
		return "", err
	}
	return dst, nil
}

func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clear %s: %w", dir, err)
	}
	return os.MkdirAll(dir, 0o755)
}

// copyFile copies src to dst, creating parent directories. With allowMissing
// an absent source yields an empty dst, which is how a file added by a patch
// looks on the original side.
func copyFile(src, dst string, allowMissing bool) error {
	in, err := os.Open(src)
	if errors.Is(err, fs.ErrNotExist) && allowMissing {
		in = nil
	} else if err != nil {
		return err
	}
	if in != nil {
		defer func() { _ = in.Close() }()
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if in != nil {
		if _, err := io.Copy(out, in); err != nil {
			_ = out.Close()
			return fmt.Errorf("copy %s: %w", src, err)
		}
	}
	return out.Close()
}
