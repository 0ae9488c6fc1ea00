package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/l0lsec/XRayViewer/internal/cache"
	"github.com/l0lsec/XRayViewer/internal/database"
	"github.com/l0lsec/XRayViewer/internal/models"
	"github.com/l0lsec/XRayViewer/internal/repository"
)

// fakeLoader maps file payloads to canned metadata and records the
// order in which bytes are registered, so tests can assert on load
// ordering.
type fakeLoader struct {
	metaByPayload map[string]*models.MetadataRecord
	metaByHandle  map[string]*models.MetadataRecord
	registered    [][]byte
	nextHandle    int
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		metaByPayload: make(map[string]*models.MetadataRecord),
		metaByHandle:  make(map[string]*models.MetadataRecord),
	}
}

func (f *fakeLoader) RegisterFile(ctx context.Context, data []byte) (string, error) {
	f.nextHandle++
	handle := fmt.Sprintf("handle-%d", f.nextHandle)
	f.registered = append(f.registered, data)
	if rec, ok := f.metaByPayload[string(data)]; ok {
		f.metaByHandle[handle] = rec
	}
	return handle, nil
}

func (f *fakeLoader) ExtractMetadata(ctx context.Context, handle string) (*models.MetadataRecord, error) {
	rec, ok := f.metaByHandle[handle]
	if !ok {
		return nil, fmt.Errorf("no metadata for handle %s", handle)
	}
	return rec, nil
}

func (f *fakeLoader) ModuleMetadata(ctx context.Context, module, handle string) (map[string]interface{}, error) {
	return nil, nil
}

func (f *fakeLoader) FileBytes(ctx context.Context, handle string) ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}

type testEnv struct {
	client  *database.Client
	loader  *fakeLoader
	library *LibraryService
	images  *repository.ImageRepository
	prefs   *PreferenceService
}

func newTestEnv(t *testing.T, cfg LibraryConfig) *testEnv {
	t.Helper()

	client := database.NewClient(database.Config{
		Driver:   "sqlite",
		Path:     ":memory:",
		LogLevel: "silent",
	})
	t.Cleanup(func() { client.Close() })

	studyRepo := repository.NewStudyRepository(client)
	imageRepo := repository.NewImageRepository(client)
	prefRepo := repository.NewPreferenceRepository(client)
	thumbRepo := repository.NewThumbnailRepository(client)

	loader := newFakeLoader()
	mem := cache.NewMemoryCache()
	t.Cleanup(func() { mem.Close() })

	library := NewLibraryService(studyRepo, imageRepo, prefRepo, loader, mem, client, cfg)
	prefs := NewPreferenceService(prefRepo, studyRepo, imageRepo, thumbRepo, 10)

	return &testEnv{
		client:  client,
		loader:  loader,
		library: library,
		images:  imageRepo,
		prefs:   prefs,
	}
}

func instanceMeta(study, series, sop string, instance int) *models.MetadataRecord {
	return &models.MetadataRecord{
		StudyInstanceUID:  study,
		SeriesInstanceUID: series,
		SOPInstanceUID:    sop,
		InstanceNumber:    &instance,
	}
}

func TestSaveAndLoadStudyRoundTrip(t *testing.T) {
	env := newTestEnv(t, LibraryConfig{WarnThreshold: 0.9})
	ctx := context.Background()

	// Files arrive with instance numbers [3, 1, 2].
	files := [][]byte{[]byte("payload-three"), []byte("payload-one"), []byte("payload-two")}
	env.loader.metaByPayload["payload-three"] = instanceMeta("1.2.3", "1.2.3.1", "sop-3", 3)
	env.loader.metaByPayload["payload-one"] = instanceMeta("1.2.3", "1.2.3.1", "sop-1", 1)
	env.loader.metaByPayload["payload-two"] = instanceMeta("1.2.3", "1.2.3.1", "sop-2", 2)

	saved, err := env.library.SaveStudy(ctx, files, models.StudyMeta{
		StudyInstanceUID: "1.2.3",
		PatientName:      "DOE^JANE",
	})
	if err != nil {
		t.Fatalf("SaveStudy failed: %v", err)
	}
	if saved.ImageCount != 3 {
		t.Errorf("ImageCount = %d, want 3", saved.ImageCount)
	}
	wantSize := int64(len("payload-three") + len("payload-one") + len("payload-two"))
	if saved.TotalSize != wantSize {
		t.Errorf("TotalSize = %d, want %d", saved.TotalSize, wantSize)
	}

	env.loader.registered = nil

	loaded, err := env.library.LoadStudy(ctx, "1.2.3")
	if err != nil {
		t.Fatalf("LoadStudy failed: %v", err)
	}
	if len(loaded.ImageHandles) != 3 {
		t.Fatalf("got %d handles, want 3", len(loaded.ImageHandles))
	}

	// Instance-number order means bytes arrive as [1, 2, 3].
	want := [][]byte{[]byte("payload-one"), []byte("payload-two"), []byte("payload-three")}
	for i, w := range want {
		if !bytes.Equal(env.loader.registered[i], w) {
			t.Errorf("registered[%d] = %q, want %q", i, env.loader.registered[i], w)
		}
	}
}

func TestResaveStudyReplacesImageSet(t *testing.T) {
	env := newTestEnv(t, LibraryConfig{WarnThreshold: 0.9})
	ctx := context.Background()

	env.loader.metaByPayload["old-a"] = instanceMeta("re-study", "s1", "sop-a", 1)
	env.loader.metaByPayload["old-b"] = instanceMeta("re-study", "s1", "sop-b", 2)
	env.loader.metaByPayload["old-c"] = instanceMeta("re-study", "s1", "sop-c", 3)
	firstFiles := [][]byte{[]byte("old-a"), []byte("old-b"), []byte("old-c")}
	if _, err := env.library.SaveStudy(ctx, firstFiles, models.StudyMeta{StudyInstanceUID: "re-study"}); err != nil {
		t.Fatalf("SaveStudy failed: %v", err)
	}

	// Re-importing the same study with a different file set fully
	// replaces its image rows, leaving nothing from the first save.
	env.loader.metaByPayload["new-only"] = instanceMeta("re-study", "s1", "sop-d", 1)
	saved, err := env.library.SaveStudy(ctx, [][]byte{[]byte("new-only")}, models.StudyMeta{StudyInstanceUID: "re-study"})
	if err != nil {
		t.Fatalf("second SaveStudy failed: %v", err)
	}
	if saved.ImageCount != 1 {
		t.Errorf("ImageCount = %d, want 1", saved.ImageCount)
	}

	count, err := env.images.CountByStudyID(ctx, "re-study")
	if err != nil {
		t.Fatalf("CountByStudyID failed: %v", err)
	}
	if count != 1 {
		t.Errorf("got %d StoredImage rows, want exactly the study's image count of 1", count)
	}

	env.loader.registered = nil
	loaded, err := env.library.LoadStudy(ctx, "re-study")
	if err != nil {
		t.Fatalf("LoadStudy failed: %v", err)
	}
	if len(loaded.ImageHandles) != 1 {
		t.Fatalf("got %d handles, want 1", len(loaded.ImageHandles))
	}
	if !bytes.Equal(env.loader.registered[0], []byte("new-only")) {
		t.Errorf("loaded bytes = %q, want new-only", env.loader.registered[0])
	}
}

func TestSaveStudyPositionalFallback(t *testing.T) {
	env := newTestEnv(t, LibraryConfig{WarnThreshold: 0.9})
	ctx := context.Background()

	// No metadata registered for any payload: every file falls back.
	files := [][]byte{[]byte("raw-a"), []byte("raw-b")}
	if _, err := env.library.SaveStudy(ctx, files, models.StudyMeta{StudyInstanceUID: "9.9.9"}); err != nil {
		t.Fatalf("SaveStudy failed: %v", err)
	}

	images, err := env.images.GetByStudyID(ctx, "9.9.9")
	if err != nil {
		t.Fatalf("GetByStudyID failed: %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("got %d images, want 2", len(images))
	}
	for i, img := range images {
		if img.InstanceNumber != i {
			t.Errorf("image %d InstanceNumber = %d, want %d", i, img.InstanceNumber, i)
		}
		wantID := fmt.Sprintf("9.9.9-%d", i)
		if img.ImageID != wantID {
			t.Errorf("image %d ImageID = %s, want %s", i, img.ImageID, wantID)
		}
		if img.SeriesID != "unknown-series" {
			t.Errorf("image %d SeriesID = %s, want unknown-series", i, img.SeriesID)
		}
	}
}

func TestDeleteStudyCompleteAndIdempotent(t *testing.T) {
	env := newTestEnv(t, LibraryConfig{WarnThreshold: 0.9})
	ctx := context.Background()

	env.loader.metaByPayload["one"] = instanceMeta("del-study", "s1", "sop-a", 1)
	if _, err := env.library.SaveStudy(ctx, [][]byte{[]byte("one")}, models.StudyMeta{StudyInstanceUID: "del-study"}); err != nil {
		t.Fatalf("SaveStudy failed: %v", err)
	}
	if !env.library.IsInLibrary(ctx, "del-study") {
		t.Fatalf("study should be in library after save")
	}

	if err := env.library.DeleteStudy(ctx, "del-study"); err != nil {
		t.Fatalf("DeleteStudy failed: %v", err)
	}
	if env.library.IsInLibrary(ctx, "del-study") {
		t.Errorf("study still in library after delete")
	}
	count, err := env.images.CountByStudyID(ctx, "del-study")
	if err != nil {
		t.Fatalf("CountByStudyID failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no image rows after delete, got %d", count)
	}

	// Second delete of the same id is a no-op, not an error.
	if err := env.library.DeleteStudy(ctx, "del-study"); err != nil {
		t.Errorf("second DeleteStudy errored: %v", err)
	}
}

func TestLoadStudyNotFound(t *testing.T) {
	env := newTestEnv(t, LibraryConfig{WarnThreshold: 0.9})

	_, err := env.library.LoadStudy(context.Background(), "nope")
	if !errors.Is(err, ErrStudyNotFound) {
		t.Errorf("expected ErrStudyNotFound, got %v", err)
	}
}

func TestSaveStudyQuotaExceeded(t *testing.T) {
	env := newTestEnv(t, LibraryConfig{QuotaBytes: 4, WarnThreshold: 0.9})

	_, err := env.library.SaveStudy(context.Background(), [][]byte{[]byte("larger-than-quota")}, models.StudyMeta{StudyInstanceUID: "q"})
	if !errors.Is(err, ErrStorageFull) {
		t.Errorf("expected ErrStorageFull, got %v", err)
	}
	if env.library.IsInLibrary(context.Background(), "q") {
		t.Errorf("study must not be persisted when over quota")
	}
}

func TestGetStatsAggregates(t *testing.T) {
	env := newTestEnv(t, LibraryConfig{QuotaBytes: 1 << 30, WarnThreshold: 0.9})
	ctx := context.Background()

	env.loader.metaByPayload["s1f1"] = instanceMeta("stats-1", "s", "sop-1", 1)
	env.loader.metaByPayload["s2f1"] = instanceMeta("stats-2", "s", "sop-2", 1)
	env.loader.metaByPayload["s2f2"] = instanceMeta("stats-2", "s", "sop-3", 2)

	if _, err := env.library.SaveStudy(ctx, [][]byte{[]byte("s1f1")}, models.StudyMeta{StudyInstanceUID: "stats-1"}); err != nil {
		t.Fatalf("SaveStudy failed: %v", err)
	}
	if _, err := env.library.SaveStudy(ctx, [][]byte{[]byte("s2f1"), []byte("s2f2")}, models.StudyMeta{StudyInstanceUID: "stats-2"}); err != nil {
		t.Fatalf("SaveStudy failed: %v", err)
	}

	stats := env.library.GetStats(ctx)
	if stats.StudyCount != 2 {
		t.Errorf("StudyCount = %d, want 2", stats.StudyCount)
	}
	if stats.TotalImages != 3 {
		t.Errorf("TotalImages = %d, want 3", stats.TotalImages)
	}
	wantSize := int64(len("s1f1") + len("s2f1") + len("s2f2"))
	if stats.TotalSize != wantSize {
		t.Errorf("TotalSize = %d, want %d", stats.TotalSize, wantSize)
	}
	if stats.StorageQuota != 1<<30 {
		t.Errorf("StorageQuota = %d, want %d", stats.StorageQuota, int64(1<<30))
	}
}

func TestSaveStudyRecordsRecentFile(t *testing.T) {
	env := newTestEnv(t, LibraryConfig{WarnThreshold: 0.9})
	ctx := context.Background()

	env.loader.metaByPayload["rf"] = instanceMeta("recent-1", "s", "sop-1", 1)
	if _, err := env.library.SaveStudy(ctx, [][]byte{[]byte("rf")}, models.StudyMeta{
		StudyInstanceUID: "recent-1",
		StudyDescription: "CT CHEST",
	}); err != nil {
		t.Fatalf("SaveStudy failed: %v", err)
	}

	recents := env.prefs.GetRecentFiles(ctx, 5)
	if len(recents) != 1 {
		t.Fatalf("got %d recent entries, want 1", len(recents))
	}
	if recents[0].ID != "recent-1" || !recents[0].IsInLibrary {
		t.Errorf("unexpected recent entry: %+v", recents[0])
	}
	if recents[0].Name != "CT CHEST" {
		t.Errorf("Name = %s, want CT CHEST", recents[0].Name)
	}
}

func TestSweepOrphans(t *testing.T) {
	env := newTestEnv(t, LibraryConfig{WarnThreshold: 0.9})
	ctx := context.Background()

	env.loader.metaByPayload["orphan"] = instanceMeta("gone-study", "s", "sop-1", 1)
	if _, err := env.library.SaveStudy(ctx, [][]byte{[]byte("orphan")}, models.StudyMeta{StudyInstanceUID: "gone-study"}); err != nil {
		t.Fatalf("SaveStudy failed: %v", err)
	}

	// Simulate a delete interrupted after phase one: the study row is
	// gone but its image rows remain.
	studyRepo := repository.NewStudyRepository(env.client)
	if err := studyRepo.Delete(ctx, "gone-study"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	count, _ := env.images.CountByStudyID(ctx, "gone-study")
	if count != 1 {
		t.Fatalf("expected 1 orphaned image row, got %d", count)
	}

	if err := env.library.SweepOrphans(ctx); err != nil {
		t.Fatalf("SweepOrphans failed: %v", err)
	}
	count, _ = env.images.CountByStudyID(ctx, "gone-study")
	if count != 0 {
		t.Errorf("expected orphans swept, got %d rows", count)
	}
}

func TestClearLibrary(t *testing.T) {
	env := newTestEnv(t, LibraryConfig{WarnThreshold: 0.9})
	ctx := context.Background()

	env.loader.metaByPayload["c1"] = instanceMeta("clear-1", "s", "sop-1", 1)
	if _, err := env.library.SaveStudy(ctx, [][]byte{[]byte("c1")}, models.StudyMeta{StudyInstanceUID: "clear-1"}); err != nil {
		t.Fatalf("SaveStudy failed: %v", err)
	}

	if err := env.library.ClearLibrary(ctx); err != nil {
		t.Fatalf("ClearLibrary failed: %v", err)
	}
	if got := env.library.ListStudies(ctx); len(got) != 0 {
		t.Errorf("expected empty library, got %d studies", len(got))
	}
	count, _ := env.images.CountByStudyID(ctx, "clear-1")
	if count != 0 {
		t.Errorf("expected image store cleared, got %d rows", count)
	}
}
