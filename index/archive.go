package index

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"

	"procdocs/config"
	"procdocs/extract"
)

// maxMemberSize bounds the uncompressed bytes read from one archive member
const maxMemberSize = 256 << 20

// MsgRARUnsupported is the body of RAR archives, which are recognized but not expanded
const MsgRARUnsupported = "[Формат RAR не поддерживается]"

// archiveMember is one extracted document inside a container
type archiveMember struct {
	Title  string
	Format string
	Body   string
	Size   int64
	Err    error
}

// expandZip extracts every supported document inside a zip archive. Members
// are visited in name order and titled zip://<archive>/<member>.
func expandZip(reg *extract.Registry, archivePath, archiveRel string) ([]archiveMember, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer zr.Close()

	files := make([]*zip.File, 0, len(zr.File))
	for _, f := range zr.File {
		name := path.Clean(f.Name)
		if f.FileInfo().IsDir() || !config.IsDocumentFile(name) || config.IsLockFile(name) {
			continue
		}
		files = append(files, f)
	}
	sort.SliceStable(files, func(i, j int) bool { return path.Clean(files[i].Name) < path.Clean(files[j].Name) })

	tmpDir, err := os.MkdirTemp("", "procdocs_zip_*")
	if err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	members := make([]archiveMember, 0, len(files))
	seen := make(map[string]int, len(files))
	for i, f := range files {
		name := path.Clean(f.Name)
		m := archiveMember{
			Title:  memberTitle(archiveRel, name, seen),
			Format: config.FormatTag(name),
			Size:   int64(f.UncompressedSize64),
		}

		// numbered temp names keep members with equal base names apart
		tmp := filepath.Join(tmpDir, fmt.Sprintf("%04d_%s", i, path.Base(name)))
		if err := copyMember(f, tmp); err != nil {
			m.Err = err
			members = append(members, m)
			continue
		}
		m.Body, _ = reg.Extract(tmp)
		members = append(members, m)
	}
	return members, nil
}

// memberTitle names a zip member zip://<archive>/<member>. Repeated member
// names, which zip permits, get a "#n" suffix in archive order.
func memberTitle(archiveRel, name string, seen map[string]int) string {
	title := "zip://" + archiveRel + "/" + name
	seen[name]++
	if n := seen[name]; n > 1 {
		title += fmt.Sprintf("#%d", n)
	}
	return title
}

func copyMember(f *zip.File, dst string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, io.LimitReader(rc, maxMemberSize)); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
