package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joshuapare/pmemkit/internal/format"
	"github.com/joshuapare/pmemkit/internal/logger"
	"github.com/joshuapare/pmemkit/pobj"
	"github.com/joshuapare/pmemkit/queue"
	"github.com/joshuapare/pmemkit/region"
	"github.com/joshuapare/pmemkit/region/dirty"
	"github.com/spf13/pflag"
	"gopkg.in/ini.v1"
)

// Settings is the merged result of the config file and command line.
//
//	[pool]
//	layout     = queue
//	size       = 8388608
//	log_size   = 65536
//	flush_mode = auto
//
//	[log]
//	enabled = true
//	dir     = /var/log/pmemq
//	level   = debug
type Settings struct {
	Layout    string
	HeapSize  int
	LogSize   int
	FlushMode dirty.FlushMode

	LogEnabled bool
	LogDir     string
	LogLevel   slog.Level
}

func defaultSettings() Settings {
	return Settings{
		Layout:    queue.Layout,
		HeapSize:  format.DefaultHeapSize,
		LogSize:   format.DefaultLogSize,
		FlushMode: dirty.FlushAuto,
		LogLevel:  slog.LevelInfo,
	}
}

// readSettings loads path over the defaults. An empty path yields the
// defaults unchanged.
func readSettings(path string) (Settings, error) {
	s := defaultSettings()
	if path == "" {
		return s, nil
	}
	if _, err := os.Stat(path); err != nil {
		return s, fmt.Errorf("failed to read config: %w", err)
	}
	f, err := ini.Load(path)
	if err != nil {
		return s, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := s.parsePool(f.Section("pool")); err != nil {
		return s, fmt.Errorf("config %s: %w", path, err)
	}
	if err := s.parseLog(f.Section("log")); err != nil {
		return s, fmt.Errorf("config %s: %w", path, err)
	}
	return s, nil
}

func (s *Settings) parsePool(section *ini.Section) error {
	if section.HasKey("layout") {
		s.Layout = section.Key("layout").String()
	}
	if section.HasKey("size") {
		n, err := section.Key("size").Int()
		if err != nil {
			return fmt.Errorf("[pool] size: %w", err)
		}
		s.HeapSize = n
	}
	if section.HasKey("log_size") {
		n, err := section.Key("log_size").Int()
		if err != nil {
			return fmt.Errorf("[pool] log_size: %w", err)
		}
		s.LogSize = n
	}
	if section.HasKey("flush_mode") {
		m, err := dirty.ParseFlushMode(section.Key("flush_mode").String())
		if err != nil {
			return fmt.Errorf("[pool] flush_mode: %w", err)
		}
		s.FlushMode = m
	}
	if s.Layout == "" {
		return errors.New("[pool] layout must not be empty")
	}
	return nil
}

func (s *Settings) parseLog(section *ini.Section) error {
	if section.HasKey("enabled") {
		on, err := section.Key("enabled").Bool()
		if err != nil {
			return fmt.Errorf("[log] enabled: %w", err)
		}
		s.LogEnabled = on
	}
	s.LogDir = section.Key("dir").MustString(s.LogDir)
	if section.HasKey("level") {
		s.LogLevel = logger.ParseLevel(section.Key("level").String())
	}
	return nil
}

// applyFlags lets explicitly set persistent flags override the file.
func (s *Settings) applyFlags(fs *pflag.FlagSet) error {
	if f := fs.Lookup("flush-mode"); f != nil && f.Changed {
		m, err := dirty.ParseFlushMode(f.Value.String())
		if err != nil {
			return err
		}
		s.FlushMode = m
	}
	if f := fs.Lookup("log-level"); f != nil && f.Changed {
		s.LogEnabled = true
		s.LogLevel = logger.ParseLevel(f.Value.String())
	}
	return nil
}

func (s Settings) createOptions() region.CreateOptions {
	opts := region.DefaultCreateOptions()
	opts.HeapSize = s.HeapSize
	opts.LogSize = s.LogSize
	return opts
}

func (s Settings) poolOptions() pobj.Options {
	var opts pobj.Options
	opts.Tx.FlushMode = s.FlushMode
	return opts
}
