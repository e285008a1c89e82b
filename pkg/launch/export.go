package launch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"

	"github.com/provide-io/launchkit/pkg/archive"
	"github.com/provide-io/launchkit/pkg/instance"
)

// ExportCrashReport writes a zip at dest holding the game log, the
// descriptor, the instance record and a script that repeats the launch
// command of attempt id.
func (s *Sequencer) ExportCrashReport(id int64, dest string) error {
	st, err := s.States.Get(id)
	if err != nil {
		return err
	}
	layout := st.Instance.Layout(st.Game.VersionIsolation)

	entries := make(map[string][]byte)
	files := map[string]string{
		"game.log":                st.LogPath,
		st.Instance.Name + ".json": layout.Descriptor(),
		instance.ConfigFileName:   layout.ConfigFile(),
	}
	for name, path := range files {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			s.logger().Debug("⚠️ crash report file missing", "entry", name, "path", path)
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		entries[name] = data
	}
	if st.FullCommand != "" {
		script := "launch.sh"
		if runtime.GOOS == "windows" {
			script = "launch.bat"
		}
		entries[script] = []byte(st.FullCommand)
	}

	if err := archive.WriteEntries(dest, entries); err != nil {
		return fmt.Errorf("write crash report: %w", err)
	}
	s.logger().Info("📦 crash report exported", "attempt", id, "dest", dest, "entries", len(entries))
	return nil
}
