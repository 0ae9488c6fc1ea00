package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/l0lsec/XRayViewer/internal/models"
)

func TestGetPreferencesFreshStoreReturnsDefaults(t *testing.T) {
	env := newTestEnv(t, LibraryConfig{WarnThreshold: 0.9})

	got := env.prefs.GetPreferences(context.Background())
	if got != models.DefaultPreferences() {
		t.Errorf("fresh store preferences = %+v, want defaults %+v", got, models.DefaultPreferences())
	}
}

func TestSetPreferenceMergesOverDefaults(t *testing.T) {
	env := newTestEnv(t, LibraryConfig{WarnThreshold: 0.9})
	ctx := context.Background()

	if err := env.prefs.SetPreference(ctx, "showPhiData", true); err != nil {
		t.Fatalf("SetPreference failed: %v", err)
	}

	got := env.prefs.GetPreferences(ctx)
	want := models.DefaultPreferences()
	want.ShowPhiData = true
	if got != want {
		t.Errorf("preferences = %+v, want %+v", got, want)
	}
}

func TestSavePreferencesPartial(t *testing.T) {
	env := newTestEnv(t, LibraryConfig{WarnThreshold: 0.9})
	ctx := context.Background()

	partial := map[string]interface{}{
		"defaultTool":     "pan",
		"measurementUnit": "cm",
	}
	if err := env.prefs.SavePreferences(ctx, partial); err != nil {
		t.Fatalf("SavePreferences failed: %v", err)
	}
	// A later single-key write keeps earlier overrides.
	if err := env.prefs.SetPreference(ctx, "showToolbar", false); err != nil {
		t.Fatalf("SetPreference failed: %v", err)
	}

	got := env.prefs.GetPreferences(ctx)
	if got.DefaultTool != "pan" || got.MeasurementUnit != "cm" || got.ShowToolbar {
		t.Errorf("merged preferences wrong: %+v", got)
	}
	if got.ShowSidePanel != models.DefaultPreferences().ShowSidePanel {
		t.Errorf("untouched key drifted from default")
	}
}

func TestGetRecentFilesBound(t *testing.T) {
	env := newTestEnv(t, LibraryConfig{WarnThreshold: 0.9})
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 15; i++ {
		entry := models.RecentFile{
			Name:      fmt.Sprintf("file-%02d", i),
			StudyID:   fmt.Sprintf("study-%02d", i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
		if err := env.prefs.AddRecentFile(ctx, entry); err != nil {
			t.Fatalf("AddRecentFile failed: %v", err)
		}
	}

	got := env.prefs.GetRecentFiles(ctx, 10)
	if len(got) != 10 {
		t.Fatalf("got %d entries, want 10", len(got))
	}
	// Newest first.
	for i := 0; i < len(got)-1; i++ {
		if got[i].Timestamp.Before(got[i+1].Timestamp) {
			t.Errorf("entries not ordered newest-first at %d", i)
		}
	}
	if got[0].StudyID != "study-14" {
		t.Errorf("newest entry = %s, want study-14", got[0].StudyID)
	}
}

func TestAddRecentFileDedupesByStudyID(t *testing.T) {
	env := newTestEnv(t, LibraryConfig{WarnThreshold: 0.9})
	ctx := context.Background()

	first := models.RecentFile{Name: "scan", StudyID: "dup-study", Timestamp: time.Now().UTC().Add(-time.Minute)}
	second := models.RecentFile{Name: "scan again", StudyID: "dup-study", Timestamp: time.Now().UTC()}

	if err := env.prefs.AddRecentFile(ctx, first); err != nil {
		t.Fatalf("AddRecentFile failed: %v", err)
	}
	if err := env.prefs.AddRecentFile(ctx, second); err != nil {
		t.Fatalf("AddRecentFile failed: %v", err)
	}

	got := env.prefs.GetRecentFiles(ctx, 10)
	if len(got) != 1 {
		t.Fatalf("got %d entries, want 1 after dedupe", len(got))
	}
	if got[0].Name != "scan again" {
		t.Errorf("entry not refreshed: %+v", got[0])
	}
}

func TestClearAllStorageEmptiesEveryStore(t *testing.T) {
	env := newTestEnv(t, LibraryConfig{WarnThreshold: 0.9})
	ctx := context.Background()

	env.loader.metaByPayload["cas"] = instanceMeta("cas-study", "s", "sop-1", 1)
	if _, err := env.library.SaveStudy(ctx, [][]byte{[]byte("cas")}, models.StudyMeta{StudyInstanceUID: "cas-study"}); err != nil {
		t.Fatalf("SaveStudy failed: %v", err)
	}
	if err := env.prefs.SetPreference(ctx, "showPhiData", true); err != nil {
		t.Fatalf("SetPreference failed: %v", err)
	}

	if err := env.prefs.ClearAllStorage(ctx); err != nil {
		t.Fatalf("ClearAllStorage failed: %v", err)
	}

	if env.library.IsInLibrary(ctx, "cas-study") {
		t.Errorf("study survived full clear")
	}
	if len(env.prefs.GetRecentFiles(ctx, 10)) != 0 {
		t.Errorf("recent files survived full clear")
	}
	if env.prefs.GetPreferences(ctx) != models.DefaultPreferences() {
		t.Errorf("preferences survived full clear")
	}
}
