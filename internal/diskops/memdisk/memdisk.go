// Package memdisk is a small in-memory reference implementation of the
// mount.DiskOps contract (spec.md §6), usable as a mount-point backend in
// tests and as a runnable example of what a host-supplied backend must
// implement. A real host backs a mount with an actual disk directory;
// memdisk backs it with plain Go maps instead, to the same contract.
package memdisk

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/picofs/picofs/internal/archive"
	"github.com/picofs/picofs/internal/mount"
	"github.com/picofs/picofs/pkg/errors"
)

type entry struct {
	isDir      bool
	data       []byte
	modifiedAt time.Time
	xattrs     map[string][]byte
}

type trashItem struct {
	id           string
	originalPath string
	deletedAt    time.Time
	entry        entry
	isDir        bool
	children     map[string]*entry // only set when the trashed item was a directory
}

// Disk is an in-memory DiskOps backend.
type Disk struct {
	mu      sync.Mutex
	entries map[string]*entry
	trash   map[string]*trashItem
}

// New creates an empty Disk with just the root directory present.
func New() *Disk {
	d := &Disk{entries: make(map[string]*entry), trash: make(map[string]*trashItem)}
	d.entries["/"] = &entry{isDir: true, modifiedAt: time.Now(), xattrs: make(map[string][]byte)}
	return d
}

func clean(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}

func parentOf(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return "/"
	}
	return path[:idx]
}

func (d *Disk) CreateFile(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	path = clean(path)
	if _, ok := d.entries[path]; ok {
		return errors.AlreadyExists(path)
	}
	if p, ok := d.entries[parentOf(path)]; !ok || !p.isDir {
		return errors.NotDirectory(parentOf(path))
	}
	d.entries[path] = &entry{modifiedAt: time.Now(), xattrs: make(map[string][]byte)}
	return nil
}

func (d *Disk) CreateDir(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	path = clean(path)
	if _, ok := d.entries[path]; ok {
		return errors.AlreadyExists(path)
	}
	d.entries[path] = &entry{isDir: true, modifiedAt: time.Now(), xattrs: make(map[string][]byte)}
	return nil
}

func (d *Disk) ReadFile(path string, offset int64, length int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[clean(path)]
	if !ok {
		return nil, errors.NotFound(path)
	}
	if e.isDir {
		return nil, errors.NotFile(path)
	}
	if offset >= int64(len(e.data)) {
		return nil, nil
	}
	end := offset + int64(length)
	if end > int64(len(e.data)) {
		end = int64(len(e.data))
	}
	out := make([]byte, end-offset)
	copy(out, e.data[offset:end])
	return out, nil
}

func (d *Disk) WriteFile(path string, offset int64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[clean(path)]
	if !ok {
		return errors.NotFound(path)
	}
	if e.isDir {
		return errors.NotFile(path)
	}
	end := int(offset) + len(data)
	if len(e.data) < end {
		grown := make([]byte, end)
		copy(grown, e.data)
		e.data = grown
	}
	copy(e.data[offset:end], data)
	e.modifiedAt = time.Now()
	return nil
}

func (d *Disk) Delete(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	path = clean(path)
	if _, ok := d.entries[path]; !ok {
		return errors.NotFound(path)
	}
	delete(d.entries, path)
	return nil
}

func (d *Disk) List(path string) ([]mount.DiskEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	path = clean(path)
	parent, ok := d.entries[path]
	if !ok || !parent.isDir {
		return nil, errors.NotDirectory(path)
	}
	prefix := path
	if prefix != "/" {
		prefix += "/"
	}
	var names []string
	seen := make(map[string]bool)
	for p := range d.entries {
		if p == path || !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if idx := strings.Index(rest, "/"); idx >= 0 {
			rest = rest[:idx]
		}
		if !seen[rest] {
			seen[rest] = true
			names = append(names, rest)
		}
	}
	sort.Strings(names)
	out := make([]mount.DiskEntry, 0, len(names))
	for _, n := range names {
		child := d.entries[prefix+n]
		out = append(out, mount.DiskEntry{Name: n, IsDir: child != nil && child.isDir})
	}
	return out, nil
}

func (d *Disk) Stat(path string) (mount.DiskMeta, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[clean(path)]
	if !ok {
		return mount.DiskMeta{}, errors.NotFound(path)
	}
	return mount.DiskMeta{Size: int64(len(e.data)), IsDir: e.isDir, ModifiedAt: e.modifiedAt}, nil
}

func (d *Disk) Exists(path string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.entries[clean(path)]
	return ok, nil
}

func (d *Disk) SetXattr(path, key string, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[clean(path)]
	if !ok {
		return errors.NotFound(path)
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	e.xattrs[key] = cp
	return nil
}

func (d *Disk) GetXattr(path, key string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[clean(path)]
	if !ok {
		return nil, errors.NotFound(path)
	}
	v, ok := e.xattrs[key]
	if !ok {
		return nil, errors.NotFound(key)
	}
	return v, nil
}

func (d *Disk) RemoveXattr(path, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[clean(path)]
	if !ok {
		return errors.NotFound(path)
	}
	delete(e.xattrs, key)
	return nil
}

func (d *Disk) ListXattrs(path string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[clean(path)]
	if !ok {
		return nil, errors.NotFound(path)
	}
	out := make([]string, 0, len(e.xattrs))
	for k := range e.xattrs {
		out = append(out, k)
	}
	return out, nil
}

// Compress archives paths into destPath using internal/archive, reading
// content directly out of the in-memory map.
func (d *Disk) Compress(paths []string, destPath string, format string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var entries []archive.Entry
	for _, p := range paths {
		d.collectForArchive(clean(p), &entries)
	}

	var blob []byte
	var err error
	switch archive.Format(format) {
	case archive.FormatZip:
		blob, err = archive.EncodeZip(entries)
	case archive.FormatTar:
		blob, err = archive.EncodeTar(entries)
	default:
		return errors.InvalidPath(destPath).WithDetail("reason", "unknown archive format")
	}
	if err != nil {
		return err
	}
	dest := clean(destPath)
	d.entries[dest] = &entry{data: blob, modifiedAt: time.Now(), xattrs: make(map[string][]byte)}
	return nil
}

func (d *Disk) collectForArchive(path string, out *[]archive.Entry) {
	e, ok := d.entries[path]
	if !ok {
		return
	}
	name := strings.TrimPrefix(path, "/")
	if e.isDir {
		*out = append(*out, archive.Entry{Name: name + "/", IsDir: true, ModifiedAt: e.modifiedAt})
		prefix := path
		if prefix != "/" {
			prefix += "/"
		}
		var children []string
		for p := range d.entries {
			if p != path && strings.HasPrefix(p, prefix) && !strings.Contains(strings.TrimPrefix(p, prefix), "/") {
				children = append(children, p)
			}
		}
		sort.Strings(children)
		for _, c := range children {
			d.collectForArchive(c, out)
		}
		return
	}
	*out = append(*out, archive.Entry{Name: name, Data: e.data, ModifiedAt: e.modifiedAt})
}

// Extract decodes archivePath and writes its entries under destPath.
func (d *Disk) Extract(archivePath, destPath string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	src, ok := d.entries[clean(archivePath)]
	if !ok {
		return errors.NotFound(archivePath)
	}
	format, err := archive.DetectFormat(src.data)
	if err != nil {
		return err
	}
	var entries []archive.Entry
	switch format {
	case archive.FormatZip:
		entries, err = archive.DecodeZip(src.data)
	case archive.FormatTar:
		entries, err = archive.DecodeTar(src.data)
	default:
		return errors.InvalidPath(archivePath).WithDetail("reason", "unknown archive format")
	}
	if err != nil {
		return err
	}

	base := clean(destPath)
	for _, e := range entries {
		full := base + "/" + strings.TrimSuffix(e.Name, "/")
		full = clean(full)
		if e.IsDir {
			d.entries[full] = &entry{isDir: true, modifiedAt: e.ModifiedAt, xattrs: make(map[string][]byte)}
			continue
		}
		parent := parentOf(full)
		if _, ok := d.entries[parent]; !ok {
			d.entries[parent] = &entry{isDir: true, modifiedAt: time.Now(), xattrs: make(map[string][]byte)}
		}
		d.entries[full] = &entry{data: e.Data, modifiedAt: e.ModifiedAt, xattrs: make(map[string][]byte)}
	}
	return nil
}

func (d *Disk) ListArchive(archivePath string) ([]mount.DiskArchiveEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	src, ok := d.entries[clean(archivePath)]
	if !ok {
		return nil, errors.NotFound(archivePath)
	}
	format, err := archive.DetectFormat(src.data)
	if err != nil {
		return nil, err
	}
	var entries []archive.Entry
	switch format {
	case archive.FormatZip:
		entries, err = archive.DecodeZip(src.data)
	case archive.FormatTar:
		entries, err = archive.DecodeTar(src.data)
	default:
		return nil, errors.InvalidPath(archivePath).WithDetail("reason", "unknown archive format")
	}
	if err != nil {
		return nil, err
	}
	out := make([]mount.DiskArchiveEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, mount.DiskArchiveEntry{Name: e.Name, Size: int64(len(e.Data)), IsDir: e.IsDir})
	}
	return out, nil
}

func (d *Disk) MoveToTrash(path string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	path = clean(path)
	e, ok := d.entries[path]
	if !ok {
		return "", errors.NotFound(path)
	}
	id := uuid.NewString()
	item := &trashItem{id: id, originalPath: path, deletedAt: time.Now(), entry: *e, isDir: e.isDir}
	if e.isDir {
		item.children = make(map[string]*entry)
		prefix := path + "/"
		for p, child := range d.entries {
			if strings.HasPrefix(p, prefix) {
				item.children[strings.TrimPrefix(p, prefix)] = child
				delete(d.entries, p)
			}
		}
	}
	d.trash[id] = item
	delete(d.entries, path)
	return id, nil
}

func (d *Disk) RestoreFromTrash(trashID, destPath string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	item, ok := d.trash[trashID]
	if !ok {
		return errors.NotFound(trashID)
	}
	dest := clean(destPath)
	if _, exists := d.entries[dest]; exists {
		return errors.AlreadyExists(dest)
	}
	ent := item.entry
	d.entries[dest] = &ent
	if item.isDir {
		for rel, child := range item.children {
			d.entries[dest+"/"+rel] = child
		}
	}
	delete(d.trash, trashID)
	return nil
}

func (d *Disk) ListTrash() ([]mount.DiskTrashEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]mount.DiskTrashEntry, 0, len(d.trash))
	for _, item := range d.trash {
		out = append(out, mount.DiskTrashEntry{
			TrashID:      item.id,
			OriginalPath: item.originalPath,
			DeletedAt:    item.deletedAt,
			Size:         int64(len(item.entry.data)),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeletedAt.After(out[j].DeletedAt) })
	return out, nil
}

func (d *Disk) PurgeTrash(trashID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.trash[trashID]; !ok {
		return errors.NotFound(trashID)
	}
	delete(d.trash, trashID)
	return nil
}

func (d *Disk) PurgeAllTrash() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.trash = make(map[string]*trashItem)
	return nil
}

var _ mount.DiskOps = (*Disk)(nil)
