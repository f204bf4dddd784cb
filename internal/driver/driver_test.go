package driver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JostBaron/fal-database/internal/common"
	"github.com/JostBaron/fal-database/internal/storage"
)

func newTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.EnsureStorage(context.Background(), 1, "test"))
	return db
}

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	d := New(newTestDB(t), 1, WithTempDir(t.TempDir()))
	t.Cleanup(func() { d.Close() })
	return d
}

func TestRootFolder(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	root, err := d.RootFolder(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/", root)

	exists, err := d.FolderExists(ctx, "/")
	require.NoError(t, err)
	assert.True(t, exists)

	// Idempotent.
	root, err = d.RootFolder(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/", root)
}

func TestCreateFolder(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	id, err := d.CreateFolder(ctx, "docs", "/", false)
	require.NoError(t, err)
	assert.Equal(t, "/docs/", id)

	folderExists, err := d.FolderExists(ctx, id)
	require.NoError(t, err)
	assert.True(t, folderExists)

	// A folder identifier never satisfies a file existence check.
	fileExists, err := d.FileExists(ctx, id)
	require.NoError(t, err)
	assert.False(t, fileExists)
}

func TestCreateFolderNormalizesExistenceChecks(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	_, err := d.CreateFolder(ctx, "docs", "/", false)
	require.NoError(t, err)

	// Missing trailing slash is appended before checking.
	exists, err := d.FolderExists(ctx, "/docs")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCreateFolderRecursive(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	id, err := d.CreateFolder(ctx, "a/b/c", "/", true)
	require.NoError(t, err)
	assert.Equal(t, "/a/b/c/", id)

	for _, folder := range []string{"/a/", "/a/b/", "/a/b/c/"} {
		exists, err := d.FolderExists(ctx, folder)
		require.NoError(t, err)
		assert.True(t, exists, "folder %s", folder)
	}
}

func TestCreateFolderBackfillsRootInSameTransaction(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// No prior RootFolder call: the root row is created together with the
	// folder.
	d := New(db, 1, WithTempDir(t.TempDir()))
	t.Cleanup(func() { d.Close() })
	_, err := d.CreateFolder(ctx, "docs", "/", false)
	require.NoError(t, err)
	for _, id := range []string{"/", "/docs/"} {
		n, err := db.EntryCount(ctx, 1, id)
		require.NoError(t, err)
		assert.Equal(t, 1, n, id)
	}

	// An unregistered storage makes the insert fail; the root row must not
	// survive the rolled-back transaction.
	orphan := New(db, 99, WithTempDir(t.TempDir()))
	t.Cleanup(func() { orphan.Close() })
	_, err = orphan.CreateFolder(ctx, "docs", "/", false)
	require.Error(t, err)
	n, err := db.EntryCount(ctx, 99, "/")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreateFolderMissingParent(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	_, err := d.CreateFolder(ctx, "sub", "/missing/", false)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestCreateFolderMultiSegmentNonRecursive(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	// Sanitizing strips the slash from a single-segment name.
	id, err := d.CreateFolder(ctx, "a/b", "/", false)
	require.NoError(t, err)
	assert.Equal(t, "/ab/", id)
}

func TestIsFolderEmpty(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	folder, err := d.CreateFolder(ctx, "docs", "/", false)
	require.NoError(t, err)

	empty, err := d.IsFolderEmpty(ctx, folder)
	require.NoError(t, err)
	assert.True(t, empty)

	_, err = d.CreateFile(ctx, "a.txt", folder)
	require.NoError(t, err)

	empty, err = d.IsFolderEmpty(ctx, folder)
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestDeleteFolderNotFound(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	_, err := d.DeleteFolder(ctx, "/missing/", false)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestDeleteFolderNonRecursiveNonEmpty(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	folder, err := d.CreateFolder(ctx, "docs", "/", false)
	require.NoError(t, err)
	fileID, err := d.CreateFile(ctx, "a.txt", folder)
	require.NoError(t, err)

	// Safe no-op, not an error: false return, all rows untouched.
	ok, err := d.DeleteFolder(ctx, folder, false)
	require.NoError(t, err)
	assert.False(t, ok)

	for _, id := range []string{folder, fileID} {
		exists, err := d.entryExists(ctx, id)
		require.NoError(t, err)
		assert.True(t, exists, "entry %s must survive the failed delete", id)
	}
}

func TestDeleteFolderNonRecursiveEmpty(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	folder, err := d.CreateFolder(ctx, "docs", "/", false)
	require.NoError(t, err)

	ok, err := d.DeleteFolder(ctx, folder, false)
	require.NoError(t, err)
	assert.True(t, ok)

	exists, err := d.FolderExists(ctx, folder)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDeleteFolderRecursive(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	_, err := d.CreateFolder(ctx, "a/sub", "/", true)
	require.NoError(t, err)
	_, err = d.CreateFile(ctx, "1.txt", "/a/")
	require.NoError(t, err)
	_, err = d.CreateFile(ctx, "2.txt", "/a/sub/")
	require.NoError(t, err)
	// Sibling whose name shares a byte prefix but not a path prefix.
	_, err = d.CreateFolder(ctx, "ab", "/", false)
	require.NoError(t, err)

	ok, err := d.DeleteFolder(ctx, "/a/", true)
	require.NoError(t, err)
	assert.True(t, ok)

	for _, id := range []string{"/a/", "/a/1.txt", "/a/sub/", "/a/sub/2.txt"} {
		exists, err := d.entryExists(ctx, id)
		require.NoError(t, err)
		assert.False(t, exists, "entry %s must be gone", id)
	}
	exists, err := d.FolderExists(ctx, "/ab/")
	require.NoError(t, err)
	assert.True(t, exists, "prefix-similar sibling must survive")
}

func TestAddFileRoundTrip(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()
	content := []byte("hello fal-database\x00\x01\x02")

	localPath := filepath.Join(t.TempDir(), "upload.bin")
	require.NoError(t, os.WriteFile(localPath, content, 0600))

	folder, err := d.CreateFolder(ctx, "docs", "/", false)
	require.NoError(t, err)

	id, err := d.AddFile(ctx, localPath, folder, "x.txt", false)
	require.NoError(t, err)
	assert.Equal(t, "/docs/x.txt", id)

	got, err := d.GetFileContents(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// Local source kept without removeOriginal.
	_, err = os.Stat(localPath)
	assert.NoError(t, err)
}

func TestAddFileRemoveOriginal(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	localPath := filepath.Join(t.TempDir(), "upload.txt")
	require.NoError(t, os.WriteFile(localPath, []byte("consumed"), 0600))

	folder, err := d.CreateFolder(ctx, "docs", "/", false)
	require.NoError(t, err)

	_, err = d.AddFile(ctx, localPath, folder, "x.txt", true)
	require.NoError(t, err)

	_, err = os.Stat(localPath)
	assert.True(t, os.IsNotExist(err), "local source must be consumed")
}

func TestAddFileErrors(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	localPath := filepath.Join(t.TempDir(), "upload.txt")
	require.NoError(t, os.WriteFile(localPath, []byte("x"), 0600))

	_, err := d.AddFile(ctx, localPath, "/missing/", "x.txt", false)
	assert.ErrorIs(t, err, common.ErrNotFound)

	folder, err := d.CreateFolder(ctx, "docs", "/", false)
	require.NoError(t, err)
	_, err = d.AddFile(ctx, localPath, folder, "x.txt", false)
	require.NoError(t, err)

	_, err = d.AddFile(ctx, localPath, folder, "x.txt", false)
	assert.ErrorIs(t, err, common.ErrConflict)

	_, err = d.AddFile(ctx, filepath.Join(t.TempDir(), "nope"), folder, "y.txt", false)
	assert.ErrorIs(t, err, common.ErrOperationFailed)
}

func TestCreateFile(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	folder, err := d.CreateFolder(ctx, "docs", "/", false)
	require.NoError(t, err)

	id, err := d.CreateFile(ctx, "empty.txt", folder)
	require.NoError(t, err)
	assert.Equal(t, "/docs/empty.txt", id)

	content, err := d.GetFileContents(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestReplaceFile(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	id, err := d.CreateFile(ctx, "a.txt", "/")
	require.NoError(t, err)

	require.NoError(t, d.ReplaceFile(ctx, id, []byte("v2")))
	content, err := d.GetFileContents(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), content)

	err = d.ReplaceFile(ctx, "/missing.txt", []byte("x"))
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestDeleteFile(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	id, err := d.CreateFile(ctx, "a.txt", "/")
	require.NoError(t, err)

	ok, err := d.DeleteFile(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	exists, err := d.FileExists(ctx, id)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = d.DeleteFile(ctx, id)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRenameFile(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	id, err := d.CreateFile(ctx, "a.txt", "/")
	require.NoError(t, err)

	newID, err := d.RenameFile(ctx, id, "b.txt")
	require.NoError(t, err)
	assert.Equal(t, "/b.txt", newID)

	oldExists, err := d.FileExists(ctx, id)
	require.NoError(t, err)
	assert.False(t, oldExists)
	newExists, err := d.FileExists(ctx, newID)
	require.NoError(t, err)
	assert.True(t, newExists)
}

func TestRenameFileNoop(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	id, err := d.CreateFile(ctx, "a.txt", "/")
	require.NoError(t, err)

	same, err := d.RenameFile(ctx, id, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, id, same)
}

func TestRenameFileConflict(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	id, err := d.CreateFile(ctx, "a.txt", "/")
	require.NoError(t, err)
	_, err = d.CreateFile(ctx, "b.txt", "/")
	require.NoError(t, err)

	_, err = d.RenameFile(ctx, id, "b.txt")
	assert.ErrorIs(t, err, common.ErrConflict)
}

func TestCopyFileWithinStorage(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	id, err := d.CreateFile(ctx, "a.txt", "/")
	require.NoError(t, err)
	require.NoError(t, d.ReplaceFile(ctx, id, []byte("payload")))
	folder, err := d.CreateFolder(ctx, "copies", "/", false)
	require.NoError(t, err)

	copyID, err := d.CopyFileWithinStorage(ctx, id, folder, "a-copy.txt")
	require.NoError(t, err)
	assert.Equal(t, "/copies/a-copy.txt", copyID)

	original, err := d.GetFileContents(ctx, id)
	require.NoError(t, err)
	copied, err := d.GetFileContents(ctx, copyID)
	require.NoError(t, err)
	assert.Equal(t, original, copied)

	_, err = d.CopyFileWithinStorage(ctx, "/missing.txt", folder, "x.txt")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestMoveFileWithinStorage(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	id, err := d.CreateFile(ctx, "a.txt", "/")
	require.NoError(t, err)
	require.NoError(t, d.ReplaceFile(ctx, id, []byte("payload")))
	folder, err := d.CreateFolder(ctx, "moved", "/", false)
	require.NoError(t, err)

	newID, err := d.MoveFileWithinStorage(ctx, id, folder, "b.txt")
	require.NoError(t, err)
	assert.Equal(t, "/moved/b.txt", newID)

	oldExists, err := d.FileExists(ctx, id)
	require.NoError(t, err)
	assert.False(t, oldExists)

	content, err := d.GetFileContents(ctx, newID)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), content)
}

func TestMoveFolderWithinStorage(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	_, err := d.CreateFolder(ctx, "a/sub", "/", true)
	require.NoError(t, err)
	_, err = d.CreateFile(ctx, "1.txt", "/a/")
	require.NoError(t, err)
	_, err = d.CreateFile(ctx, "2.txt", "/a/sub/")
	require.NoError(t, err)
	_, err = d.CreateFolder(ctx, "b", "/", false)
	require.NoError(t, err)

	moved, err := d.MoveFolderWithinStorage(ctx, "/a/", "/b/", "c")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"/a/":          "/b/c/",
		"/a/1.txt":     "/b/c/1.txt",
		"/a/sub/":      "/b/c/sub/",
		"/a/sub/2.txt": "/b/c/sub/2.txt",
	}, moved)

	for old, new := range moved {
		oldExists, err := d.entryExists(ctx, old)
		require.NoError(t, err)
		assert.False(t, oldExists, "old identifier %s must be absent", old)
		newExists, err := d.entryExists(ctx, new)
		require.NoError(t, err)
		assert.True(t, newExists, "new identifier %s must exist", new)
	}
}

func TestMoveFolderConflict(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	_, err := d.CreateFolder(ctx, "a", "/", false)
	require.NoError(t, err)
	_, err = d.CreateFolder(ctx, "b/a", "/", true)
	require.NoError(t, err)

	_, err = d.MoveFolderWithinStorage(ctx, "/a/", "/b/", "a")
	assert.ErrorIs(t, err, common.ErrConflict)
}

func TestMoveFolderRollsBackOnRowCollision(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	_, err := d.CreateFolder(ctx, "a", "/", false)
	require.NoError(t, err)
	_, err = d.CreateFile(ctx, "1.txt", "/a/")
	require.NoError(t, err)
	_, err = d.CreateFolder(ctx, "b", "/", false)
	require.NoError(t, err)

	// Occupy a destination descendant slot without its folder row: the
	// precheck on "/b/a/" passes, the per-row update of "/a/1.txt" then
	// collides inside the transaction.
	affected, err := d.DB().InsertEntryWith(d.DB().DB, ctx, &storage.EntryModel{
		EntryID: "/b/a/1.txt",
		Storage: 1,
		Data:    []byte("squatter"),
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, affected)

	_, err = d.MoveFolderWithinStorage(ctx, "/a/", "/b/", "a")
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrConflict)

	// Full rollback: the source tree survives, nothing landed under the
	// destination prefix.
	for _, id := range []string{"/a/", "/a/1.txt"} {
		exists, err := d.entryExists(ctx, id)
		require.NoError(t, err)
		assert.True(t, exists, "source entry %s must survive the failed move", id)
	}
	exists, err := d.FolderExists(ctx, "/b/a/")
	require.NoError(t, err)
	assert.False(t, exists)

	content, err := d.GetFileContents(ctx, "/b/a/1.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("squatter"), content)
}

func TestRenameFolder(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	_, err := d.CreateFolder(ctx, "old", "/", false)
	require.NoError(t, err)
	_, err = d.CreateFile(ctx, "1.txt", "/old/")
	require.NoError(t, err)

	renamed, err := d.RenameFolder(ctx, "/old/", "new")
	require.NoError(t, err)
	assert.Equal(t, "/new/", renamed["/old/"])
	assert.Equal(t, "/new/1.txt", renamed["/old/1.txt"])

	// Same name is a no-op.
	same, err := d.RenameFolder(ctx, "/new/", "new")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"/new/": "/new/"}, same)
}

func TestCopyFolderWithinStorage(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	_, err := d.CreateFolder(ctx, "a/sub", "/", true)
	require.NoError(t, err)
	fileID, err := d.CreateFile(ctx, "1.txt", "/a/")
	require.NoError(t, err)
	require.NoError(t, d.ReplaceFile(ctx, fileID, []byte("copy me")))
	_, err = d.CreateFolder(ctx, "b", "/", false)
	require.NoError(t, err)

	newID, ok, err := d.CopyFolderWithinStorage(ctx, "/a/", "/b/", "c")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/b/c/", newID)

	content, err := d.GetFileContents(ctx, "/b/c/1.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("copy me"), content)

	subExists, err := d.FolderExists(ctx, "/b/c/sub/")
	require.NoError(t, err)
	assert.True(t, subExists)

	// Source untouched.
	srcContent, err := d.GetFileContents(ctx, fileID)
	require.NoError(t, err)
	assert.Equal(t, []byte("copy me"), srcContent)
}

func TestCopyFolderCollision(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	_, err := d.CreateFolder(ctx, "a", "/", false)
	require.NoError(t, err)
	_, err = d.CreateFile(ctx, "1.txt", "/a/")
	require.NoError(t, err)
	_, err = d.CreateFolder(ctx, "b/a", "/", true)
	require.NoError(t, err)

	_, _, err = d.CopyFolderWithinStorage(ctx, "/a/", "/b/", "a")
	assert.ErrorIs(t, err, common.ErrConflict)

	// Neither a partial copy nor source damage.
	count, err := d.CountFilesInFolder(ctx, "/a/", true)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	empty, err := d.IsFolderEmpty(ctx, "/b/a/")
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestCacheConsistencyAfterMutations(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	// Seed the cache with the opposite stale answer, then mutate: every
	// existence check after the mutation must reflect the new state.
	d.ExistenceCache().Set(1, "/docs/", false)
	folder, err := d.CreateFolder(ctx, "docs", "/", false)
	require.NoError(t, err)
	exists, err := d.FolderExists(ctx, folder)
	require.NoError(t, err)
	assert.True(t, exists)

	id, err := d.CreateFile(ctx, "a.txt", folder)
	require.NoError(t, err)
	d.ExistenceCache().Set(1, id, false)
	// Stale "false" is overwritten by the next mutation touching the id.
	newID, err := d.RenameFile(ctx, id, "b.txt")
	require.NoError(t, err)
	exists, err = d.FileExists(ctx, newID)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = d.FileExists(ctx, id)
	require.NoError(t, err)
	assert.False(t, exists)
}
