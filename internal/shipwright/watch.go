package shipwright

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch re-invokes rebuild whenever portDir's CONTROL or portfile.cmake
// changes, for local port development — the teacher's port-edit loop
// (`hokuto edit`/`hokuto cd`) made continuous rather than manual.
func Watch(portDir string, rebuild func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(portDir); err != nil {
		return err
	}

	colArrow.Print("-> ")
	colInfo.Printf("watching %s for changes (ctrl-c to stop)\n", portDir)

	interesting := map[string]bool{"CONTROL": true, "portfile.cmake": true}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !interesting[filepath.Base(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			colArrow.Print("-> ")
			colInfo.Printf("%s changed, rebuilding\n", filepath.Base(event.Name))
			if err := rebuild(); err != nil {
				colError.Printf("rebuild failed: %v\n", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			Log.Warn("watch error", "error", err)
		}
	}
}
