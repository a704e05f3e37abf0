package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/denix0/applaunchd/internal/domain/catalog"
	"github.com/denix0/applaunchd/internal/infrastructure/logging"
)

func writeEntry(t *testing.T, dir, name, content string) {
	t.Helper()
	appsDir := filepath.Join(dir, "applications")
	if err := os.MkdirAll(appsDir, 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(appsDir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func scan(t *testing.T, dir string, useUnits bool) *catalog.Catalog {
	t.Helper()
	cat := catalog.New()
	s := NewScanner(dir, useUnits, logging.NewNop())
	if err := s.Populate(cat); err != nil {
		t.Fatalf("Populate failed: %v", err)
	}
	return cat
}

func TestPopulate(t *testing.T) {
	dir := t.TempDir()
	writeEntry(t, dir, "clock.desktop", `[Desktop Entry]
Type=Application
Name=Clock
Exec=clock --tray %f
Terminal=false
`)
	writeEntry(t, dir, "htop.desktop", `[Desktop Entry]
Type=Application
Name=Htop
Exec=htop
Terminal=true
`)

	cat := scan(t, dir, false)
	if cat.Len() != 2 {
		t.Fatalf("expected 2 applications, got %d", cat.Len())
	}

	clock, err := cat.Lookup("clock")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if clock.Command != "clock --tray" {
		t.Errorf("expected field codes stripped, got %q", clock.Command)
	}
	if clock.Activation != catalog.ActivationProcess {
		t.Errorf("expected process activation, got %s", clock.Activation)
	}
	if !clock.Graphical {
		t.Error("expected clock to be graphical")
	}

	htop, err := cat.Lookup("htop")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if htop.Graphical {
		t.Error("terminal applications are not graphical")
	}
}

func TestPopulatePreservesPercentEscapes(t *testing.T) {
	dir := t.TempDir()
	writeEntry(t, dir, "dimmer.desktop", `[Desktop Entry]
Type=Application
Name=Dimmer
Exec=dimmer --level=50%% %u
`)

	cat := scan(t, dir, false)
	rec, err := cat.Lookup("dimmer")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	// %% escapes a literal percent; only real field codes are stripped.
	if rec.Command != "dimmer --level=50%" {
		t.Errorf("expected escaped percent preserved, got %q", rec.Command)
	}
}

func TestPopulateSkipsHiddenEntries(t *testing.T) {
	dir := t.TempDir()
	writeEntry(t, dir, "hidden.desktop", `[Desktop Entry]
Type=Application
Name=Hidden
Exec=hidden
Hidden=true
`)
	writeEntry(t, dir, "nodisplay.desktop", `[Desktop Entry]
Type=Application
Name=NoDisplay
Exec=nodisplay
NoDisplay=true
`)
	writeEntry(t, dir, "link.desktop", `[Desktop Entry]
Type=Link
Name=Link
`)

	cat := scan(t, dir, false)
	if cat.Len() != 0 {
		t.Fatalf("expected no applications, got %d", cat.Len())
	}
}

func TestPopulateUsesStartupWMClass(t *testing.T) {
	dir := t.TempDir()
	writeEntry(t, dir, "notes-bin.desktop", `[Desktop Entry]
Type=Application
Name=Notes
Exec=notes-bin
StartupWMClass=org.example.Notes
`)

	cat := scan(t, dir, false)
	if _, err := cat.Lookup("org.example.Notes"); err != nil {
		t.Fatalf("expected id from StartupWMClass: %v", err)
	}
}

func TestPopulateDetectsBusActivation(t *testing.T) {
	dir := t.TempDir()
	writeEntry(t, dir, "org.example.Notes.desktop", `[Desktop Entry]
Type=Application
Name=Notes
Exec=notes %u
DBusActivatable=true
`)

	cat := scan(t, dir, false)
	rec, err := cat.Lookup("org.example.Notes")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if rec.Activation != catalog.ActivationBus {
		t.Errorf("expected bus activation, got %s", rec.Activation)
	}
}

func TestPopulateDetectsServiceFile(t *testing.T) {
	dir := t.TempDir()
	writeEntry(t, dir, "org.example.Radio.desktop", `[Desktop Entry]
Type=Application
Name=Radio
Exec=radio
`)
	servicesDir := filepath.Join(dir, "dbus-1", "services")
	if err := os.MkdirAll(servicesDir, 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	service := filepath.Join(servicesDir, "org.example.Radio.service")
	if err := os.WriteFile(service, []byte("[D-BUS Service]\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cat := scan(t, dir, false)
	rec, err := cat.Lookup("org.example.Radio")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if rec.Activation != catalog.ActivationBus {
		t.Errorf("expected bus activation via service file, got %s", rec.Activation)
	}
}

func TestPopulateDelegatesToUnits(t *testing.T) {
	dir := t.TempDir()
	writeEntry(t, dir, "clock.desktop", `[Desktop Entry]
Type=Application
Name=Clock
Exec=clock
`)

	cat := scan(t, dir, true)
	rec, err := cat.Lookup("clock")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if rec.Activation != catalog.ActivationUnit {
		t.Errorf("expected unit activation, got %s", rec.Activation)
	}
}
