package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch re-reads and re-validates the config file at path on every
// write event, invoking onChange with the new value only after it
// passes Validate. The returned stop function closes the underlying
// fsnotify watcher.
func Watch(path string, log *slog.Logger, onChange func(Config)) (stop func() error, err error) {
	if log == nil {
		log = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					log.Warn("config_reload_failed", slog.Any("err", err))
					continue
				}
				if res := Validate(cfg); !res.OK {
					log.Warn("config_reload_invalid", slog.Any("errors", res.Errors))
					continue
				}
				log.Info("config_reloaded", slog.String("path", path))
				onChange(cfg)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("config_watch_error", slog.Any("err", err))
			}
		}
	}()

	stop = func() error {
		err := w.Close()
		<-done
		return err
	}
	return stop, nil
}
