package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/agentic-research/taxotree/internal/config"
	"github.com/agentic-research/taxotree/internal/tree"
	billy "github.com/go-git/go-billy/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// outputMode is the permission of written trees. Temp files start out 0600.
const outputMode os.FileMode = 0o644

// FormatFor resolves config.FormatAuto from the output file extension.
// Unknown extensions get JSON.
func FormatFor(p, format string) string {
	if format != "" && format != config.FormatAuto {
		return format
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".nwk", ".newick", ".tre", ".tree":
		return config.FormatNewick
	case ".db", ".sqlite", ".sqlite3":
		return config.FormatSQLite
	default:
		return config.FormatJSON
	}
}

// Export writes the sealed tree to p. Output goes to a temporary file that
// is renamed over p only once it is complete, so a failed write leaves p
// untouched. SQLite output is added to p as a new build when p already
// exists.
func (e *Engine) Export(b *tree.Builder, p, format string, indent int) error {
	format = FormatFor(p, format)
	switch format {
	case config.FormatJSON:
		return e.writeFile(p, func(w io.Writer) error {
			return WriteJSON(w, b.Export(), indent)
		})
	case config.FormatNewick:
		return e.writeFile(p, func(w io.Writer) error {
			return WriteNewick(w, b.Root())
		})
	case config.FormatSQLite:
		return e.writeSQLite(p, b)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func (e *Engine) writeFile(p string, write func(io.Writer) error) error {
	dir := path.Dir(p)
	tmp, err := e.FS.TempFile(dir, ".taxotree-")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		_ = e.FS.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = e.FS.Remove(tmpName)
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if ch, ok := e.FS.(billy.Chmod); ok {
		if err := ch.Chmod(tmpName, outputMode); err != nil {
			_ = e.FS.Remove(tmpName)
			return fmt.Errorf("chmod %s: %w", tmpName, err)
		}
	}
	if err := e.FS.Rename(tmpName, p); err != nil {
		_ = e.FS.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", p, err)
	}
	e.Log.Info("wrote tree", zap.String("path", p))
	return nil
}

func (e *Engine) writeSQLite(p string, b *tree.Builder) error {
	final := e.osPath(p)
	tmp := final + ".tmp-" + uuid.NewString()

	appended, err := copyIfExists(final, tmp)
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	w, err := NewSQLiteWriter(tmp)
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	w.Log = e.Log
	buildID, err := w.Write(b)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, outputMode); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("chmod %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", final, err)
	}
	e.Log.Info("wrote tree",
		zap.String("path", final),
		zap.String("build", buildID),
		zap.Bool("appended", appended),
	)
	return nil
}

// copyIfExists copies src to dst and reports whether src existed.
func copyIfExists(src, dst string) (bool, error) {
	in, err := os.Open(src)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }() // read-only

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, outputMode)
	if err != nil {
		return false, fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return false, fmt.Errorf("copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return false, fmt.Errorf("close %s: %w", dst, err)
	}
	return true, nil
}
