package discovery

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/ini.v1"

	"github.com/denix0/applaunchd/internal/domain/catalog"
	"github.com/denix0/applaunchd/internal/infrastructure/logging"
)

const (
	desktopSection = "Desktop Entry"
	desktopSuffix  = ".desktop"

	defaultDataDirs = "/usr/local/share:/usr/share"
)

// Scanner discovers launchable applications from desktop entries in the
// XDG data directories and populates the catalog with them, once, before
// the daemon starts serving requests.
type Scanner struct {
	dirs     []string
	useUnits bool
	log      *logging.Logger
}

// NewScanner creates a scanner over the given colon-separated data
// directories. An empty value falls back to XDG_DATA_DIRS, then to the
// standard system directories. When useUnits is set, applications that are
// not bus-activatable are delegated to templated systemd units instead of
// direct spawning.
func NewScanner(dataDirs string, useUnits bool, log *logging.Logger) *Scanner {
	if dataDirs == "" {
		dataDirs = os.Getenv("XDG_DATA_DIRS")
	}
	if dataDirs == "" {
		dataDirs = defaultDataDirs
	}

	var dirs []string
	for _, d := range strings.Split(dataDirs, ":") {
		if d != "" {
			dirs = append(dirs, d)
		}
	}

	return &Scanner{dirs: dirs, useUnits: useUnits, log: log}
}

// Populate scans all data directories and adds every visible application
// to the catalog. Entries found in earlier directories shadow later ones
// with the same id.
func (s *Scanner) Populate(cat *catalog.Catalog) error {
	for _, dir := range s.dirs {
		pattern := filepath.Join(dir, "applications", "*"+desktopSuffix)
		paths, err := filepath.Glob(pattern)
		if err != nil {
			return err
		}

		for _, path := range paths {
			rec, ok := s.parse(dir, path)
			if !ok {
				continue
			}
			if err := cat.Add(rec); err != nil {
				s.log.Debug("skipping shadowed desktop entry",
					zap.String("path", path),
					zap.Error(err),
				)
				continue
			}
			s.log.Debug("added application",
				zap.String("app_id", rec.ID),
				zap.String("backend", rec.Activation.String()),
			)
		}
	}

	return nil
}

// parse reads one desktop entry and converts it into a catalog record.
// Entries that should not be launchable (hidden, NoDisplay, wrong type)
// are dropped.
func (s *Scanner) parse(dataDir, path string) (*catalog.Record, bool) {
	file, err := ini.Load(path)
	if err != nil {
		s.log.Warn("unreadable desktop entry", zap.String("path", path), zap.Error(err))
		return nil, false
	}

	section := file.Section(desktopSection)
	if section.Key("Type").String() != "Application" {
		return nil, false
	}
	if section.Key("Hidden").MustBool(false) || section.Key("NoDisplay").MustBool(false) {
		return nil, false
	}

	// The id is usually the .desktop file name. A common practice is that
	// .desktop files are named after the executable, in which case
	// StartupWMClass carries the real application id.
	id := section.Key("StartupWMClass").String()
	if id == "" {
		id = strings.TrimSuffix(filepath.Base(path), desktopSuffix)
	}

	command := stripFieldCodes(section.Key("Exec").String())

	busActivatable := section.Key("DBusActivatable").MustBool(false)
	if !busActivatable {
		// An application is also bus-activatable when it ships a D-Bus
		// service file next to its desktop entry.
		service := filepath.Join(dataDir, "dbus-1", "services", id+".service")
		if _, err := os.Stat(service); err == nil {
			busActivatable = true
		}
	}

	activation := catalog.ActivationProcess
	switch {
	case busActivatable:
		activation = catalog.ActivationBus
	case s.useUnits:
		activation = catalog.ActivationUnit
	}

	if activation != catalog.ActivationBus && command == "" {
		return nil, false
	}

	return &catalog.Record{
		ID:         id,
		Name:       section.Key("Name").String(),
		IconPath:   s.iconPath(section.Key("Icon").String()),
		Command:    command,
		Activation: activation,
		// Terminal applications are not graphical apps.
		Graphical: !section.Key("Terminal").MustBool(false),
		Status:    catalog.StatusInactive,
	}, true
}

// stripFieldCodes removes the %f/%u style placeholders desktop entries may
// carry in their Exec line. A doubled %% is the escape for a literal
// percent, not a field code.
func stripFieldCodes(exec string) string {
	fields := strings.Fields(exec)
	cleaned := fields[:0]
	for _, f := range fields {
		if strings.HasPrefix(f, "%") && !strings.HasPrefix(f, "%%") {
			continue
		}
		cleaned = append(cleaned, strings.ReplaceAll(f, "%%", "%"))
	}
	return strings.Join(cleaned, " ")
}

// iconPath resolves an icon reference to a file path. Absolute references
// are used as-is; themed names are looked up in the hicolor theme and
// pixmaps directories of the data dirs.
func (s *Scanner) iconPath(icon string) string {
	if icon == "" {
		return ""
	}
	if filepath.IsAbs(icon) {
		return icon
	}

	for _, dir := range s.dirs {
		patterns := []string{
			filepath.Join(dir, "icons", "hicolor", "*", "apps", icon+".*"),
			filepath.Join(dir, "pixmaps", icon+".*"),
		}
		for _, pattern := range patterns {
			if matches, err := filepath.Glob(pattern); err == nil && len(matches) > 0 {
				return matches[0]
			}
		}
	}

	return ""
}
