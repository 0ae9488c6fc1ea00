package services

import (
	"context"
	"image"
	"image/color"
	"strings"
	"testing"
	"time"

	"github.com/l0lsec/XRayViewer/internal/cache"
	"github.com/l0lsec/XRayViewer/internal/database"
	"github.com/l0lsec/XRayViewer/internal/models"
	"github.com/l0lsec/XRayViewer/internal/repository"
)

func newThumbnailService(t *testing.T) (*ThumbnailService, *repository.ThumbnailRepository) {
	t.Helper()

	client := database.NewClient(database.Config{
		Driver:   "sqlite",
		Path:     ":memory:",
		LogLevel: "silent",
	})
	t.Cleanup(func() { client.Close() })

	thumbRepo := repository.NewThumbnailRepository(client)
	mem := cache.NewMemoryCache()
	t.Cleanup(func() { mem.Close() })

	return NewThumbnailService(thumbRepo, mem, 80), thumbRepo
}

func grayRect(w, h int) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x + y) % 256)})
		}
	}
	return img
}

func TestFitWithin(t *testing.T) {
	cases := []struct {
		srcW, srcH, maxSize int
		wantW, wantH        int
	}{
		{200, 100, 128, 128, 64},
		{100, 200, 128, 64, 128},
		{100, 100, 128, 128, 128},
		{300, 100, 128, 128, 43},
		{1, 1000, 128, 1, 128},
	}
	for _, tc := range cases {
		gotW, gotH := FitWithin(tc.srcW, tc.srcH, tc.maxSize)
		if gotW != tc.wantW || gotH != tc.wantH {
			t.Errorf("FitWithin(%d, %d, %d) = %dx%d, want %dx%d",
				tc.srcW, tc.srcH, tc.maxSize, gotW, gotH, tc.wantW, tc.wantH)
		}
	}
}

func TestGenerateThumbnailAspect(t *testing.T) {
	svc, _ := newThumbnailService(t)

	dataURL, w, h, err := svc.GenerateThumbnail(grayRect(200, 100), 128)
	if err != nil {
		t.Fatalf("GenerateThumbnail failed: %v", err)
	}
	if w != 128 || h != 64 {
		t.Errorf("dimensions = %dx%d, want 128x64", w, h)
	}
	if !strings.HasPrefix(dataURL, "data:image/jpeg;base64,") {
		t.Errorf("unexpected data URL prefix: %.40s", dataURL)
	}

	_, w, h, err = svc.GenerateThumbnail(grayRect(100, 200), 128)
	if err != nil {
		t.Fatalf("GenerateThumbnail failed: %v", err)
	}
	if w != 64 || h != 128 {
		t.Errorf("dimensions = %dx%d, want 64x128", w, h)
	}
}

func TestSaveAndGetStudyThumbnails(t *testing.T) {
	svc, _ := newThumbnailService(t)
	ctx := context.Background()

	if err := svc.SaveThumbnail(ctx, "img-1", "data:image/jpeg;base64,AAAA", 128, 64, "study-1"); err != nil {
		t.Fatalf("SaveThumbnail failed: %v", err)
	}
	if err := svc.SaveThumbnail(ctx, "img-2", "data:image/jpeg;base64,BBBB", 64, 128, "study-1"); err != nil {
		t.Fatalf("SaveThumbnail failed: %v", err)
	}

	got := svc.GetStudyThumbnails(ctx, "study-1")
	if len(got) != 2 {
		t.Fatalf("got %d thumbnails, want 2", len(got))
	}

	// Unknown studies yield an empty list, never an error state.
	if got := svc.GetStudyThumbnails(ctx, "no-such-study"); len(got) != 0 {
		t.Errorf("expected empty result, got %d", len(got))
	}
}

func TestSaveThumbnailUpserts(t *testing.T) {
	svc, _ := newThumbnailService(t)
	ctx := context.Background()

	if err := svc.SaveThumbnail(ctx, "img-1", "data:image/jpeg;base64,OLD", 128, 64, "study-1"); err != nil {
		t.Fatalf("SaveThumbnail failed: %v", err)
	}
	if err := svc.SaveThumbnail(ctx, "img-1", "data:image/jpeg;base64,NEW", 128, 64, "study-1"); err != nil {
		t.Fatalf("SaveThumbnail upsert failed: %v", err)
	}

	got := svc.GetStudyThumbnails(ctx, "study-1")
	if len(got) != 1 {
		t.Fatalf("got %d thumbnails, want 1 after upsert", len(got))
	}
	if got[0].DataURL != "data:image/jpeg;base64,NEW" {
		t.Errorf("thumbnail not replaced: %s", got[0].DataURL)
	}
}

func TestClearOldThumbnails(t *testing.T) {
	svc, repo := newThumbnailService(t)
	ctx := context.Background()

	old := &models.ThumbnailEntry{
		ImageID:   "img-old",
		StudyID:   "study-1",
		DataURL:   "data:image/jpeg;base64,OLD",
		Timestamp: time.Now().UTC().AddDate(0, 0, -40),
	}
	if err := repo.Upsert(ctx, old); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := svc.SaveThumbnail(ctx, "img-new", "data:image/jpeg;base64,NEW", 10, 10, "study-1"); err != nil {
		t.Fatalf("SaveThumbnail failed: %v", err)
	}

	removed, err := svc.ClearOldThumbnails(ctx, 30)
	if err != nil {
		t.Fatalf("ClearOldThumbnails failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	got := svc.GetStudyThumbnails(ctx, "study-1")
	if len(got) != 1 || got[0].ImageID != "img-new" {
		t.Errorf("unexpected survivors: %+v", got)
	}
}
