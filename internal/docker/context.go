package docker

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CreateBuildContext streams a tar archive of the build context directory with
// the Dockerfile injected at the archive root under its canonical name. The
// Dockerfile may live outside the context directory; either way the daemon
// sees it as "Dockerfile". Symlinks and non-regular files are skipped, as is
// the .git directory, which the daemon never needs.
//
// Returns an io.ReadCloser that streams the archive. The caller must close it
// to release the pipe. Errors during archiving surface as read errors on the
// returned reader.
func CreateBuildContext(contextDir, dockerfilePath string) (io.ReadCloser, error) {
	dockerfile, err := os.ReadFile(dockerfilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read Dockerfile at %q: %w\nCheck that the file exists and is readable", dockerfilePath, err)
	}

	info, err := os.Stat(contextDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read build context directory %q: %w", contextDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("build context %q is not a directory", contextDir)
	}

	pr, pw := io.Pipe()

	archive := func(tw *tar.Writer) error {
		header := &tar.Header{
			Name: "Dockerfile",
			Mode: 0644,
			Size: int64(len(dockerfile)),
		}
		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("failed to write tar header for Dockerfile: %w", err)
		}
		if _, err := tw.Write(dockerfile); err != nil {
			return fmt.Errorf("failed to write Dockerfile to tar archive: %w", err)
		}

		return addDirectoryToArchive(tw, contextDir, dockerfilePath)
	}

	go func() {
		tw := tar.NewWriter(pw)

		err := archive(tw)
		if closeErr := tw.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			pw.CloseWithError(fmt.Errorf("failed to create build context archive: %w", err))
		} else {
			pw.Close()
		}
	}()

	return &contextCloser{pr: pr}, nil
}

// contextCloser wraps the pipe reader to ensure proper cleanup
type contextCloser struct {
	pr *io.PipeReader
}

func (c *contextCloser) Read(p []byte) (int, error) {
	return c.pr.Read(p)
}

func (c *contextCloser) Close() error {
	return c.pr.Close()
}

func addDirectoryToArchive(tw *tar.Writer, srcDir, excludePath string) error {
	exclude, err := filepath.Abs(excludePath)
	if err != nil {
		exclude = excludePath
	}

	return filepath.Walk(srcDir, func(filePath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(srcDir, filePath)
		if err != nil {
			return fmt.Errorf("failed to get relative path: %w", err)
		}
		if relPath == "." {
			return nil
		}

		if info.IsDir() && info.Name() == ".git" {
			return filepath.SkipDir
		}

		// The Dockerfile already entered the archive under its canonical name.
		if abs, err := filepath.Abs(filePath); err == nil && abs == exclude {
			return nil
		}

		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}

		tarPath := filepath.ToSlash(relPath)

		if info.IsDir() {
			header := &tar.Header{
				Name:     tarPath + "/",
				Mode:     int64(info.Mode()),
				ModTime:  info.ModTime(),
				Typeflag: tar.TypeDir,
			}
			return tw.WriteHeader(header)
		}

		if !info.Mode().IsRegular() {
			return nil
		}

		file, err := os.Open(filePath)
		if err != nil {
			return fmt.Errorf("failed to open file %s: %w", tarPath, err)
		}
		defer file.Close()

		header := &tar.Header{
			Name:    tarPath,
			Mode:    int64(info.Mode()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}

		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("failed to write header for %s: %w", tarPath, err)
		}

		if _, err := io.Copy(tw, file); err != nil {
			return fmt.Errorf("failed to write file %s: %w", tarPath, err)
		}

		return nil
	})
}
