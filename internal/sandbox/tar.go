package sandbox

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"

	lberrors "github.com/litterbox-sh/litterbox/internal/errors"
)

// packTar writes srcPath into w as a tar archive. A file becomes a single
// entry named entryName; a directory becomes entries prefixed with
// entryName.
func packTar(w io.Writer, srcPath, entryName string) error {
	tw := tar.NewWriter(w)

	info, err := os.Stat(srcPath)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		if err := writeTarFile(tw, srcPath, entryName, info); err != nil {
			return err
		}
		return tw.Close()
	}

	err = filepath.Walk(srcPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(srcPath, path)
		if err != nil {
			return err
		}
		name := entryName
		if rel != "." {
			name = filepath.ToSlash(filepath.Join(entryName, rel))
		}

		if info.IsDir() {
			hdr := &tar.Header{
				Name:     name + "/",
				Mode:     int64(info.Mode().Perm()),
				Typeflag: tar.TypeDir,
				ModTime:  info.ModTime(),
			}
			return tw.WriteHeader(hdr)
		}
		if !info.Mode().IsRegular() {
			// Sockets, devices, and symlinks have no place in a source
			// transfer.
			return nil
		}
		return writeTarFile(tw, path, name, info)
	})
	if err != nil {
		return err
	}

	return tw.Close()
}

func writeTarFile(tw *tar.Writer, path, name string, info os.FileInfo) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    int64(info.Mode().Perm()),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(tw, f)
	return err
}

// unpackTar extracts a tar stream into destDir. strip, when non-empty, is
// a path prefix removed from every entry (the directory name docker cp
// roots its archives at). Entry paths are joined with securejoin so a
// crafted archive cannot escape destDir.
func unpackTar(r io.Reader, destDir, strip string) error {
	tr := tar.NewReader(r)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return lberrors.ComputeFailed("untar", err)
		}

		entryName := filepath.ToSlash(hdr.Name)
		if strip != "" {
			stripped := strings.TrimPrefix(entryName, strip)
			stripped = strings.TrimPrefix(stripped, "/")
			if stripped == "" {
				if hdr.Typeflag != tar.TypeReg {
					continue
				}
				// A single-file archive: the entry IS the stripped name.
				stripped = entryName
			}
			entryName = stripped
		}

		target, err := securejoin.SecureJoin(destDir, entryName)
		if err != nil {
			return lberrors.ComputeFailed("untar",
				fmt.Errorf("entry %q escapes destination: %w", hdr.Name, err))
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode).Perm()|0700); err != nil {
				return lberrors.ComputeFailed("untar", err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return lberrors.ComputeFailed("untar", err)
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode).Perm())
			if err != nil {
				return lberrors.ComputeFailed("untar", err)
			}
			if _, err := io.Copy(f, tr); err != nil {
				_ = f.Close()
				return lberrors.ComputeFailed("untar", err)
			}
			if err := f.Close(); err != nil {
				return lberrors.ComputeFailed("untar", err)
			}
		default:
			// Links and special files are dropped rather than recreated
			// on the host.
		}
	}
}
