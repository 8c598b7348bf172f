package match

import (
	"testing"
	"time"

	"github.com/openterrain/resolver/internal/core/model"
)

func file(path string, size int64, minLat, maxLat, minLon, maxLon float64) model.FileEntry {
	return model.FileEntry{
		Path:      path,
		SizeBytes: size,
		Bounds:    model.GeoBounds{MinLat: minLat, MaxLat: maxLat, MinLon: minLon, MaxLon: maxLon},
	}
}

func TestFilesFor_ContainmentFilter(t *testing.T) {
	c := &model.Collection{
		ID: "c",
		Files: []model.FileEntry{
			file("north.hgt", 100, -27, -26, 153, 154),
			file("south.hgt", 100, -29, -28, 153, 154),
		},
	}
	got := FilesFor(c, -28.5, 153.5)
	if len(got) != 1 || got[0].Path != "south.hgt" {
		t.Fatalf("got %v", got)
	}
}

func TestFilesFor_EmptyIsNormal(t *testing.T) {
	c := &model.Collection{ID: "c", Files: []model.FileEntry{
		file("a.hgt", 1, -27, -26, 153, 154),
	}}
	if got := FilesFor(c, 10, 10); len(got) != 0 {
		t.Fatalf("expected no matches, got %v", got)
	}
}

func TestFilesFor_DefaultOrderIsAscendingSize(t *testing.T) {
	c := &model.Collection{ID: "c", Files: []model.FileEntry{
		file("large.hgt", 3000, -29, -26, 152, 155),
		file("small.hgt", 100, -28, -27, 153, 154),
		file("medium.hgt", 800, -28.5, -26.5, 152.5, 154.5),
	}}
	got := FilesFor(c, -27.5, 153.5)
	want := []string{"small.hgt", "medium.hgt", "large.hgt"}
	for i := range want {
		if got[i].Path != want[i] {
			t.Fatalf("order[%d]=%s want %s", i, got[i].Path, want[i])
		}
	}
}

func TestFilesFor_RecencyOrder(t *testing.T) {
	old := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	fOld := file("old.hgt", 100, -28, -27, 153, 154)
	fOld.LastModified = old
	fNew := file("new.hgt", 900, -28, -27, 153, 154)
	fNew.LastModified = newer

	c := &model.Collection{
		ID:             "c",
		PreferredOrder: model.OrderByRecency,
		Files:          []model.FileEntry{fOld, fNew},
	}
	got := FilesFor(c, -27.5, 153.5)
	if got[0].Path != "new.hgt" {
		t.Fatalf("recency order should try the newest first, got %v", got[0].Path)
	}
}

func TestFilesFor_BoundaryPoint(t *testing.T) {
	c := &model.Collection{ID: "c", Files: []model.FileEntry{
		file("a.hgt", 1, -28, -27, 153, 154),
	}}
	if got := FilesFor(c, -28, 153); len(got) != 1 {
		t.Fatalf("file edge should be inclusive")
	}
}
