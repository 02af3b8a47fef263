package adapter

import (
	"os"
	"path/filepath"
	"testing"

	m "gooze.dev/pkg/rebundle/internal/model"
)

func TestLocalRuntimeFSAdapter_ReadHead(t *testing.T) {
	adapter := NewLocalRuntimeFSAdapter()

	root := t.TempDir()
	path := filepath.Join(root, "activate")
	writeTestFile(t, path, "#!/bin/bash\necho hi\n")

	t.Run("truncates to n bytes", func(t *testing.T) {
		got, err := adapter.ReadHead(m.Path(path), 4)
		if err != nil {
			t.Fatalf("ReadHead() error = %v", err)
		}

		if string(got) != "#!/b" {
			t.Fatalf("ReadHead() = %q, want %q", got, "#!/b")
		}
	})

	t.Run("short file returns whole content", func(t *testing.T) {
		got, err := adapter.ReadHead(m.Path(path), 4096)
		if err != nil {
			t.Fatalf("ReadHead() error = %v", err)
		}

		if string(got) != "#!/bin/bash\necho hi\n" {
			t.Fatalf("ReadHead() = %q", got)
		}
	})
}

func TestLocalRuntimeFSAdapter_Overwrite(t *testing.T) {
	adapter := NewLocalRuntimeFSAdapter()

	root := t.TempDir()
	path := filepath.Join(root, "site.cfg")
	writeTestFile(t, path, "prefix=/build/old/app\n")

	if err := os.Chmod(path, 0o640); err != nil {
		t.Fatalf("chmod: %v", err)
	}

	if err := adapter.Overwrite(m.Path(path), []byte("prefix=/opt\n")); err != nil {
		t.Fatalf("Overwrite() error = %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if string(got) != "prefix=/opt\n" {
		t.Fatalf("Overwrite() left %q", got)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	if info.Mode().Perm() != 0o640 {
		t.Fatalf("Overwrite() changed mode to %o", info.Mode().Perm())
	}
}

func TestLocalRuntimeFSAdapter_WriteInPlace(t *testing.T) {
	adapter := NewLocalRuntimeFSAdapter()

	root := t.TempDir()
	path := filepath.Join(root, "lib.so")
	writeTestBytes(t, path, []byte("abcdef"))

	t.Run("same length is written", func(t *testing.T) {
		if err := adapter.WriteInPlace(m.Path(path), []byte("uvwxyz")); err != nil {
			t.Fatalf("WriteInPlace() error = %v", err)
		}

		got, _ := os.ReadFile(path)
		if string(got) != "uvwxyz" {
			t.Fatalf("WriteInPlace() left %q", got)
		}
	})

	t.Run("length mismatch is refused", func(t *testing.T) {
		if err := adapter.WriteInPlace(m.Path(path), []byte("short")); err == nil {
			t.Fatalf("WriteInPlace() expected error on length mismatch")
		}

		got, _ := os.ReadFile(path)
		if string(got) != "uvwxyz" {
			t.Fatalf("WriteInPlace() modified file on refusal: %q", got)
		}
	})
}

func TestLocalRuntimeFSAdapter_WriteFileAtomic(t *testing.T) {
	adapter := NewLocalRuntimeFSAdapter()

	root := t.TempDir()
	path := filepath.Join(root, "application_path_prefix")
	writeTestFile(t, path, "/Applications/Old.app")

	if err := adapter.WriteFileAtomic(m.Path(path), []byte("/Applications/New.app"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic() error = %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if string(got) != "/Applications/New.app" {
		t.Fatalf("WriteFileAtomic() left %q", got)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("WriteFileAtomic() left %d entries, want 1", len(entries))
	}
}

func TestLocalRuntimeFSAdapter_CopyDir(t *testing.T) {
	adapter := NewLocalRuntimeFSAdapter()

	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "copy")

	subDir := filepath.Join(src, "sub")
	mustMkdir(t, subDir)
	writeTestFile(t, filepath.Join(subDir, "mod.py"), "import os\n")

	if err := os.Symlink("sub/mod.py", filepath.Join(src, "alias.py")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	if err := adapter.CopyDir(m.Path(src), m.Path(dst)); err != nil {
		t.Fatalf("CopyDir() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dst, "sub", "mod.py")); err != nil {
		t.Fatalf("CopyDir() did not copy nested file: %v", err)
	}

	target, err := os.Readlink(filepath.Join(dst, "alias.py"))
	if err != nil {
		t.Fatalf("CopyDir() did not recreate symlink: %v", err)
	}

	if target != "sub/mod.py" {
		t.Fatalf("CopyDir() symlink target = %s, want sub/mod.py", target)
	}
}

func TestLocalRuntimeFSAdapter_CopyDirKeepsEscapingLinksReachable(t *testing.T) {
	adapter := NewLocalRuntimeFSAdapter()

	outside := t.TempDir()
	src := filepath.Join(outside, "pkg")
	dst := filepath.Join(t.TempDir(), "copy")

	mustMkdir(t, src)
	writeTestFile(t, filepath.Join(outside, "data.txt"), "data\n")
	writeTestFile(t, filepath.Join(src, "a.txt"), "a\n")

	if err := os.Symlink("../data.txt", filepath.Join(src, "d.txt")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	if err := os.Symlink("a.txt", filepath.Join(src, "e.txt")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	if err := adapter.CopyDir(m.Path(src), m.Path(dst)); err != nil {
		t.Fatalf("CopyDir() error = %v", err)
	}

	escaping, err := os.Readlink(filepath.Join(dst, "d.txt"))
	if err != nil {
		t.Fatalf("Readlink() error = %v", err)
	}

	if escaping != filepath.Join(outside, "data.txt") {
		t.Fatalf("escaping link = %s, want %s", escaping, filepath.Join(outside, "data.txt"))
	}

	local, err := os.Readlink(filepath.Join(dst, "e.txt"))
	if err != nil {
		t.Fatalf("Readlink() error = %v", err)
	}

	if local != "a.txt" {
		t.Fatalf("local link = %s, want a.txt", local)
	}

	data, err := os.ReadFile(filepath.Join(dst, "d.txt"))
	if err != nil || string(data) != "data\n" {
		t.Fatalf("ReadFile(d.txt) = %q, %v", data, err)
	}
}

func TestLocalRuntimeFSAdapter_CopyFileKeepsMode(t *testing.T) {
	adapter := NewLocalRuntimeFSAdapter()

	root := t.TempDir()
	src := filepath.Join(root, "python")
	writeTestFile(t, src, "#!/bin/sh\n")

	if err := os.Chmod(src, 0o755); err != nil {
		t.Fatalf("chmod: %v", err)
	}

	dst := filepath.Join(root, "nested", "python")
	if err := adapter.CopyFile(m.Path(src), m.Path(dst)); err != nil {
		t.Fatalf("CopyFile() error = %v", err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	if info.Mode().Perm() != 0o755 {
		t.Fatalf("CopyFile() mode = %o, want 755", info.Mode().Perm())
	}
}

func TestLocalRuntimeFSAdapter_Writable(t *testing.T) {
	adapter := NewLocalRuntimeFSAdapter()

	root := t.TempDir()
	if !adapter.Writable(m.Path(root)) {
		t.Fatalf("Writable() = false for fresh temp dir")
	}

	if adapter.Writable(m.Path(filepath.Join(root, "missing"))) {
		t.Fatalf("Writable() = true for missing path")
	}
}

func TestLocalRuntimeFSAdapter_Symlinks(t *testing.T) {
	adapter := NewLocalRuntimeFSAdapter()

	root := t.TempDir()
	target := filepath.Join(root, "target.txt")
	writeTestFile(t, target, "hello")

	link := m.Path(filepath.Join(root, "link.txt"))
	if err := adapter.Symlink(target, link); err != nil {
		t.Fatalf("Symlink() error = %v", err)
	}

	got, err := adapter.Readlink(link)
	if err != nil {
		t.Fatalf("Readlink() error = %v", err)
	}

	if got != target {
		t.Fatalf("Readlink() = %s, want %s", got, target)
	}

	if err := adapter.Remove(link); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	if _, err := os.Lstat(string(link)); !os.IsNotExist(err) {
		t.Fatalf("Remove() left link behind")
	}
}

func writeTestFile(t *testing.T, path, contents string) {
	t.Helper()
	writeTestBytes(t, path, []byte(contents))
}

func writeTestBytes(t *testing.T, path string, contents []byte) {
	t.Helper()
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func mustMkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("failed to create dir %s: %v", path, err)
	}
}
