package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/marquee/internal/db"
	"github.com/friendsincode/marquee/internal/models"
)

func openSQLite(t *testing.T, dsn string) *gorm.DB {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return database
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	database := openSQLite(t, ":memory:")
	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewStore(database, zerolog.Nop())
}

func TestAssetsAndMarker(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	before, _ := store.ChangeMarker(ctx)
	for i, id := range []string{"b", "a", "c"} {
		asset := models.Asset{ID: id, Name: id, MimeType: "image", Duration: 10, IsEnabled: id != "c", PlayOrder: i}
		if err := store.SaveAsset(ctx, &asset); err != nil {
			t.Fatalf("save asset: %v", err)
		}
	}
	after, _ := store.ChangeMarker(ctx)
	if after == before {
		t.Fatal("writes must change the marker")
	}

	enabled, err := store.ListAssets(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(enabled) != 2 || enabled[0].ID != "b" || enabled[1].ID != "a" {
		t.Fatalf("enabled assets = %+v", enabled)
	}
	all, _ := store.ListAssets(ctx, false)
	if len(all) != 3 {
		t.Fatalf("all assets = %d, want 3", len(all))
	}

	if _, err := store.GetAsset(ctx, "missing"); !errors.Is(err, ErrAssetNotFound) {
		t.Fatalf("err = %v, want ErrAssetNotFound", err)
	}
	if err := store.DeleteAsset(ctx, "missing"); !errors.Is(err, ErrAssetNotFound) {
		t.Fatalf("delete err = %v", err)
	}
}

func TestSaveSlotValidation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	morning := &models.ScheduleSlot{Name: "morning", SlotType: models.SlotTypeTime,
		TimeFrom: models.MustTimeOfDay("08:00"), TimeTo: models.MustTimeOfDay("12:00")}
	if err := store.SaveSlot(ctx, morning); err != nil {
		t.Fatalf("save morning: %v", err)
	}
	if morning.ID == "" {
		t.Fatal("id not generated")
	}

	tests := []struct {
		name string
		slot models.ScheduleSlot
		want error
	}{
		{"overlap", models.ScheduleSlot{Name: "brunch", SlotType: models.SlotTypeTime,
			TimeFrom: models.MustTimeOfDay("11:00"), TimeTo: models.MustTimeOfDay("13:00")}, models.ErrInvalidSlot},
		{"zero length", models.ScheduleSlot{Name: "empty", SlotType: models.SlotTypeTime,
			TimeFrom: models.MustTimeOfDay("14:00"), TimeTo: models.MustTimeOfDay("14:00")}, models.ErrInvalidSlot},
		{"bad days", models.ScheduleSlot{Name: "days", SlotType: models.SlotTypeTime, DaysOfWeek: "mon",
			TimeFrom: models.MustTimeOfDay("14:00"), TimeTo: models.MustTimeOfDay("15:00")}, models.ErrInvalidSlot},
		{"event may overlap", models.ScheduleSlot{Name: "launch", SlotType: models.SlotTypeEvent,
			TimeFrom: models.MustTimeOfDay("09:00"), TimeTo: models.MustTimeOfDay("09:00")}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slot := tt.slot
			err := store.SaveSlot(ctx, &slot)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	first := &models.ScheduleSlot{Name: "fallback", SlotType: models.SlotTypeDefault}
	if err := store.SaveSlot(ctx, first); err != nil {
		t.Fatalf("first default: %v", err)
	}
	second := &models.ScheduleSlot{Name: "fallback 2", SlotType: models.SlotTypeDefault}
	if err := store.SaveSlot(ctx, second); !errors.Is(err, models.ErrDefaultExists) {
		t.Fatalf("err = %v, want ErrDefaultExists", err)
	}
}

func TestSetSlotItemsRecalculatesEventEnd(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, a := range []models.Asset{
		{ID: "a", Name: "a", MimeType: "image", Duration: 30, IsEnabled: true},
		{ID: "b", Name: "b", MimeType: "video", Duration: 90, IsEnabled: true},
	} {
		asset := a
		if err := store.SaveAsset(ctx, &asset); err != nil {
			t.Fatal(err)
		}
	}

	event := &models.ScheduleSlot{ID: "ev", Name: "launch", SlotType: models.SlotTypeEvent,
		TimeFrom: models.MustTimeOfDay("09:00"), TimeTo: models.MustTimeOfDay("09:00"), DaysOfWeek: "[]"}
	if err := store.SaveSlot(ctx, event); err != nil {
		t.Fatal(err)
	}

	override := int64(60)
	items := []models.ScheduleSlotItem{{AssetID: "b"}, {AssetID: "a", DurationOverride: &override}}
	if err := store.SetSlotItems(ctx, "ev", items); err != nil {
		t.Fatalf("set items: %v", err)
	}

	slot, err := store.GetSlot(ctx, "ev")
	if err != nil {
		t.Fatal(err)
	}
	if want := models.MustTimeOfDay("09:02:30"); slot.TimeTo != want {
		t.Fatalf("event end = %s, want %s", slot.TimeTo, want)
	}
	if len(slot.Items) != 2 || slot.Items[0].AssetID != "b" || slot.Items[0].Asset == nil {
		t.Fatalf("items = %+v", slot.Items)
	}
	if !slot.NoLoop || slot.IsDefault {
		t.Fatal("event flags not normalized")
	}

	if err := store.SetSlotItems(ctx, "ev", []models.ScheduleSlotItem{{AssetID: "zzz"}}); !errors.Is(err, ErrAssetNotFound) {
		t.Fatalf("err = %v, want ErrAssetNotFound", err)
	}

	slots, err := store.ListSlots(ctx)
	if err != nil || len(slots) != 1 || len(slots[0].Items) != 2 {
		t.Fatalf("failed item replace must roll back: %+v %v", slots, err)
	}
}

func TestPlaybackLog(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		entry := models.PlaybackLog{AssetID: id, AssetName: id, MimeType: "image", StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.AppendPlaybackLog(ctx, entry); err != nil {
			t.Fatal(err)
		}
	}
	recent, err := store.RecentPlayback(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].AssetID != "c" || recent[1].AssetID != "b" {
		t.Fatalf("recent = %+v", recent)
	}

	n, err := store.PrunePlaybackLog(ctx, base.Add(90*time.Second))
	if err != nil || n != 2 {
		t.Fatalf("pruned %d, err %v", n, err)
	}
}

func TestImportSeed(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	path := filepath.Join(t.TempDir(), "seed.yaml")
	seed := `
assets:
  - id: welcome
    name: Welcome
    uri: https://example.com/welcome.png
    mimetype: image
    duration: 15
  - id: menu
    name: Menu
    uri: https://example.com/menu
    mimetype: webpage
    duration: 20
slots:
  - id: lunch
    name: Lunch
    type: time
    from: "11:00"
    to: "14:00"
    days: [1, 2, 3, 4, 5]
    items:
      - asset: menu
      - asset: welcome
        duration: 5
        volume: 20
  - id: fallback
    name: Fallback
    type: default
    items:
      - asset: welcome
`
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}
	parsed, err := LoadSeed(path)
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	if err := store.Import(ctx, parsed); err != nil {
		t.Fatalf("import: %v", err)
	}

	slots, err := store.ListSlots(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 2 {
		t.Fatalf("slots = %d, want 2", len(slots))
	}
	var lunch *models.ScheduleSlot
	for i := range slots {
		if slots[i].ID == "lunch" {
			lunch = &slots[i]
		}
	}
	if lunch == nil || len(lunch.Items) != 2 || lunch.Items[0].AssetID != "menu" {
		t.Fatalf("lunch = %+v", lunch)
	}
	if v := lunch.Items[1].Volume; v == nil || *v != 20 {
		t.Fatalf("volume override lost: %v", v)
	}
	if days := lunch.Days(); len(days) != 5 {
		t.Fatalf("days = %v", days)
	}
}

func TestPollDetectsExternalWrites(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = store.Poll(ctx, 20*time.Millisecond)
	}()
	time.Sleep(30 * time.Millisecond)

	before, _ := store.ChangeMarker(ctx)
	// Write around the store, as the management UI would.
	if err := store.db.Create(&models.Asset{ID: "x", Name: "x", MimeType: "image"}).Error; err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m, _ := store.ChangeMarker(ctx); m != before {
			cancel()
			<-done
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("poller did not observe the external write")
}

func TestWatchFileBumpsMarker(t *testing.T) {
	store := newTestStore(t)
	path := filepath.Join(t.TempDir(), "marquee.db")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = store.WatchFile(ctx, path) }()
	time.Sleep(50 * time.Millisecond)

	before, _ := store.ChangeMarker(ctx)
	if err := os.WriteFile(path+"-wal", []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if m, _ := store.ChangeMarker(ctx); m != before {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("file watcher did not bump the marker")
}

func TestFingerprintCoversPlaybackFields(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.SaveAsset(ctx, &models.Asset{ID: "a", Name: "a", URI: "https://example.com/a.png", MimeType: "image", Duration: 10, IsEnabled: true}); err != nil {
		t.Fatal(err)
	}
	slot := &models.ScheduleSlot{ID: "s", Name: "s", SlotType: models.SlotTypeTime,
		TimeFrom: models.MustTimeOfDay("08:00"), TimeTo: models.MustTimeOfDay("12:00")}
	if err := store.SaveSlot(ctx, slot); err != nil {
		t.Fatal(err)
	}
	if err := store.SetSlotItems(ctx, "s", []models.ScheduleSlotItem{{AssetID: "a"}}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		model  any
		where  string
		column string
		value  any
	}{
		{"asset duration", &models.Asset{}, "asset_id = 'a'", "duration", 30},
		{"asset uri", &models.Asset{}, "asset_id = 'a'", "uri", "https://example.com/b.png"},
		{"asset mimetype", &models.Asset{}, "asset_id = 'a'", "mimetype", "video"},
		{"item duration override", &models.ScheduleSlotItem{}, "slot_id = 's'", "duration_override", 5},
		{"item volume", &models.ScheduleSlotItem{}, "slot_id = 's'", "volume", 40},
		{"item mute", &models.ScheduleSlotItem{}, "slot_id = 's'", "mute", true},
		{"item sort order", &models.ScheduleSlotItem{}, "slot_id = 's'", "sort_order", 3},
		{"slot start date", &models.ScheduleSlot{}, "slot_id = 's'", "start_date", "2026-03-04"},
		{"slot end date", &models.ScheduleSlot{}, "slot_id = 's'", "end_date", "2026-03-06"},
		{"slot no loop", &models.ScheduleSlot{}, "slot_id = 's'", "no_loop", true},
		{"slot default flag", &models.ScheduleSlot{}, "slot_id = 's'", "is_default", true},
		{"slot type", &models.ScheduleSlot{}, "slot_id = 's'", "slot_type", "event"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before, err := store.Fingerprint(ctx)
			if err != nil {
				t.Fatal(err)
			}
			// Write around the store, as the management UI would.
			if err := store.db.Model(tt.model).Where(tt.where).Update(tt.column, tt.value).Error; err != nil {
				t.Fatal(err)
			}
			after, err := store.Fingerprint(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if after == before {
				t.Fatalf("fingerprint unchanged after %s update", tt.column)
			}
		})
	}

	before, _ := store.Fingerprint(ctx)
	if err := store.AppendPlaybackLog(ctx, models.PlaybackLog{AssetID: "a", StartedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if after, _ := store.Fingerprint(ctx); after != before {
		t.Fatal("playback log entries must not change the fingerprint")
	}
}

func TestWatchFileIgnoresPlaybackLog(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	path := filepath.Join(dir, "marquee.db")
	catalogue := openSQLite(t, path)
	if err := db.Migrate(catalogue); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	viewlog := openSQLite(t, filepath.Join(dir, "viewlog.db"))
	if err := db.MigratePlaybackLog(viewlog); err != nil {
		t.Fatalf("migrate playback log: %v", err)
	}
	store := NewStore(catalogue, zerolog.Nop())
	store.UsePlaybackLog(viewlog)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = store.WatchFile(ctx, path)
	}()
	defer func() {
		cancel()
		<-done
	}()
	time.Sleep(50 * time.Millisecond)

	before, _ := store.ChangeMarker(ctx)
	for i := 0; i < 3; i++ {
		entry := models.PlaybackLog{AssetID: "a", AssetName: "a", MimeType: "image", StartedAt: time.Now()}
		if err := store.AppendPlaybackLog(ctx, entry); err != nil {
			t.Fatal(err)
		}
	}
	time.Sleep(3 * debounce)
	if m, _ := store.ChangeMarker(ctx); m != before {
		t.Fatal("playback log writes must not bump the marker")
	}
	if recent, err := store.RecentPlayback(ctx, 10); err != nil || len(recent) != 3 {
		t.Fatalf("recent = %d entries, err %v", len(recent), err)
	}
	var n int64
	if err := catalogue.Model(&models.PlaybackLog{}).Count(&n).Error; err != nil || n != 0 {
		t.Fatalf("catalogue database holds %d playback rows, err %v", n, err)
	}

	// A catalogue write from another process is still seen.
	if err := catalogue.Create(&models.Asset{ID: "x", Name: "x", MimeType: "image"}).Error; err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if m, _ := store.ChangeMarker(ctx); m != before {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("file watcher did not bump the marker for a catalogue write")
}
