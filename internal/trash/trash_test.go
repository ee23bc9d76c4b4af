package trash

import (
	"testing"

	"github.com/picofs/picofs/internal/circuit"
	"github.com/picofs/picofs/internal/diskops/memdisk"
	"github.com/picofs/picofs/internal/mount"
	"github.com/picofs/picofs/internal/node"
	"github.com/picofs/picofs/internal/tree"
)

func TestMoveToTrashAndRestoreInMemory(t *testing.T) {
	ts := tree.New(nil)
	if err := ts.CreateFile("/a.txt", node.FullPermissions()); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	h, err := ts.Open("/a.txt", tree.WriteOnly)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := ts.WriteAt(h, 0, []byte("hello")); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	ts.Close(h)

	mgr := New(ts, mount.New(circuit.Config{}, false), nil)
	id, err := mgr.MoveToTrash("/a.txt")
	if err != nil {
		t.Fatalf("MoveToTrash: %v", err)
	}
	if _, err := ts.Stat("/a.txt"); err == nil {
		t.Fatal("expected /a.txt to be gone after trash")
	}

	list := mgr.List()
	if len(list) != 1 || list[0].TrashID != id || list[0].Size != 5 {
		t.Fatalf("List = %+v", list)
	}

	if err := mgr.Restore(id); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	meta, err := ts.Stat("/a.txt")
	if err != nil || meta.Size != 5 {
		t.Fatalf("Stat after restore = %+v, %v", meta, err)
	}
	if len(mgr.List()) != 0 {
		t.Fatalf("expected empty trash after restore")
	}
}

func TestRestoreFailsIfOriginalPathOccupied(t *testing.T) {
	ts := tree.New(nil)
	_ = ts.CreateFile("/a.txt", node.FullPermissions())
	mgr := New(ts, mount.New(circuit.Config{}, false), nil)
	id, err := mgr.MoveToTrash("/a.txt")
	if err != nil {
		t.Fatalf("MoveToTrash: %v", err)
	}
	_ = ts.CreateFile("/a.txt", node.FullPermissions())
	if err := mgr.Restore(id); err == nil {
		t.Fatal("expected AlreadyExists restoring over an occupied path")
	}
}

func TestRestoreRecreatesMissingParents(t *testing.T) {
	ts := tree.New(nil)
	_ = ts.CreateDirRecursive("/a/b", node.FullPermissions())
	_ = ts.CreateFile("/a/b/c.txt", node.FullPermissions())
	mgr := New(ts, mount.New(circuit.Config{}, false), nil)
	id, err := mgr.MoveToTrash("/a/b/c.txt")
	if err != nil {
		t.Fatalf("MoveToTrash: %v", err)
	}
	_ = ts.DeleteRecursive("/a")
	if err := mgr.Restore(id); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if _, err := ts.Stat("/a/b/c.txt"); err != nil {
		t.Fatalf("expected /a/b/c.txt restored with recreated parents: %v", err)
	}
}

func TestPurgeReleasesQuota(t *testing.T) {
	ts := tree.New(nil)
	_ = ts.CreateFile("/a.txt", node.FullPermissions())
	h, _ := ts.Open("/a.txt", tree.WriteOnly)
	_ = ts.WriteAt(h, 0, []byte("hello"))
	ts.Close(h)

	var released int64
	mgr := New(ts, mount.New(circuit.Config{}, false), &Hooks{ReleaseQuota: func(freed int64) { released = freed }})
	id, err := mgr.MoveToTrash("/a.txt")
	if err != nil {
		t.Fatalf("MoveToTrash: %v", err)
	}
	if err := mgr.Purge(id); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if released != 5 {
		t.Fatalf("released = %d, want 5", released)
	}
	if len(mgr.List()) != 0 {
		t.Fatal("expected empty trash after purge")
	}
}

func TestMoveToTrashMountedPathDelegatesToDiskOps(t *testing.T) {
	ts := tree.New(nil)
	router := mount.New(circuit.Config{}, false)
	disk := memdisk.New()
	if err := router.Add("/mnt", "/", false, disk); err != nil {
		t.Fatalf("Add mount: %v", err)
	}
	_ = disk.CreateFile("/f.txt")
	_ = disk.WriteFile("/f.txt", 0, []byte("x"))

	mgr := New(ts, router, nil)
	id, err := mgr.MoveToTrash("/mnt/f.txt")
	if err != nil {
		t.Fatalf("MoveToTrash: %v", err)
	}
	list := mgr.List()
	if len(list) != 1 || !list[0].IsMounted || list[0].TrashID != id {
		t.Fatalf("List = %+v", list)
	}
	if err := mgr.Restore(id); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	got, err := disk.ReadFile("/f.txt", 0, 1)
	if err != nil || string(got) != "x" {
		t.Fatalf("restored content = %q, %v", got, err)
	}
}

func TestMoveToTrashFailsOnMissingPath(t *testing.T) {
	ts := tree.New(nil)
	mgr := New(ts, mount.New(circuit.Config{}, false), nil)
	if _, err := mgr.MoveToTrash("/missing.txt"); err == nil {
		t.Fatal("expected NotFound")
	}
}

func TestMoveToTrashFailsOnRoot(t *testing.T) {
	ts := tree.New(nil)
	mgr := New(ts, mount.New(circuit.Config{}, false), nil)
	if _, err := mgr.MoveToTrash("/"); err == nil {
		t.Fatal("expected InvalidPath for root")
	}
}
