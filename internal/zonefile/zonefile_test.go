package zonefile

import (
	"os"
	"path/filepath"
	"testing"

	"firedrone/internal/model"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "zones.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoad_ParsesZonesSkippingCommentsAndBlanks(t *testing.T) {
	path := writeTemp(t, "# zoneId x1 y1 x2 y2\n\n1 0 0 10 10\n2 10 0 20 10\n")
	zones, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(zones) != 2 {
		t.Fatalf("expected 2 zones, got %d", len(zones))
	}
	if zones[0].ID != 1 || zones[0].TopLeft != (model.Location{X: 0, Y: 0}) || zones[0].BottomRight != (model.Location{X: 10, Y: 10}) {
		t.Fatalf("unexpected zone 0: %+v", zones[0])
	}
	if got, want := zones[0].Center(), (model.Location{X: 5, Y: 5}); got != want {
		t.Fatalf("center = %+v, want %+v", got, want)
	}
}

func TestLoad_RejectsMalformedLine(t *testing.T) {
	path := writeTemp(t, "1 0 0 10\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for malformed line")
	}
}

func TestToMap(t *testing.T) {
	zones := []model.Zone{{ID: 3}, {ID: 1}}
	m := ToMap(zones)
	if len(m) != 2 || m[3].ID != 3 || m[1].ID != 1 {
		t.Fatalf("unexpected map: %+v", m)
	}
}
