package datum

import (
	"hash/fnv"
	"io/fs"

	"github.com/warpfork/go-fsx"
)

// File is the filesystem datum variant: the pointer is a slash-separated
// path within an fsx.FS (rooted the same way the CLI roots its
// filesystem handles, so tests can substitute a fstest.MapFS).
//
// Format validation is path well-formedness; availability is a stat;
// clearing removes the file when the filesystem supports removal.
// The quickhash folds the path with the file's size and mtime, which is
// enough to notice rewrites without reading content.
type File struct {
	Base
	fsys fsx.FS
}

// NewFile returns an EMPTY handle over the given filesystem.
func NewFile(fsys fsx.FS) *File {
	d := &File{fsys: fsys}
	d.Base = NewBase(d)
	return d
}

// NewFilePath returns a handle already pointed at path.
// The handle is AVAILABLE if the file exists at construction.
//
// Errors:
//
//    - dagger-error-invalid-format -- when the path is not well-formed
func NewFilePath(fsys fsx.FS, path string) (*File, error) {
	d := NewFile(fsys)
	b, err := NewPopulatedBase(d, path)
	if err != nil {
		return nil, err
	}
	d.Base = b
	return d, nil
}

func (d *File) ValidateFormat(pointer interface{}) bool {
	path, ok := pointer.(string)
	return ok && fs.ValidPath(path)
}

func (d *File) VerifyAvailable(pointer interface{}) bool {
	path, ok := pointer.(string)
	if !ok {
		return false
	}
	_, err := fs.Stat(d.fsys, path)
	return err == nil
}

func (d *File) ClearLogic(pointer interface{}) error {
	path, ok := pointer.(string)
	if !ok {
		return nil
	}
	remover, ok := d.fsys.(interface{ Remove(name string) error })
	if !ok {
		// read-only filesystem; nothing we own to delete
		return nil
	}
	if err := remover.Remove(path); err != nil {
		if _, statErr := fs.Stat(d.fsys, path); statErr != nil {
			// already gone
			return nil
		}
		return err
	}
	return nil
}

func (d *File) QuickhashLogic(pointer interface{}) uint64 {
	path, ok := pointer.(string)
	if !ok {
		return 0
	}
	h := fnv.New64a()
	h.Write([]byte(path))
	if fi, err := fs.Stat(d.fsys, path); err == nil {
		var buf [16]byte
		size := uint64(fi.Size())
		mtime := uint64(fi.ModTime().UnixNano())
		for i := 0; i < 8; i++ {
			buf[i] = byte(size >> (8 * i))
			buf[8+i] = byte(mtime >> (8 * i))
		}
		h.Write(buf[:])
	}
	return h.Sum64()
}

// Path returns the held path, or "" when the handle is EMPTY.
func (d *File) Path() string {
	if p, ok := d.Pointer().(string); ok {
		return p
	}
	return ""
}
