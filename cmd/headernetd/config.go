package main

import (
	"bufio"
	"errors"
	"os"
	"reflect"

	"github.com/naoina/toml"

	"github.com/unicity-labs/headernet/log"
	"github.com/unicity-labs/headernet/network"
)

// tomlSettings mirrors the teacher's own TOML configuration, keeping Go
// struct field names as-is for TOML keys rather than lower-casing them.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		log.Warn("unknown config field ignored", "type", rt.String(), "field", field)
		return nil
	},
}

// daemonConfig is the on-disk configuration file's root.
type daemonConfig struct {
	Network network.Config
}

func defaultDaemonConfig() daemonConfig {
	return daemonConfig{Network: network.DefaultConfig()}
}

// loadConfig reads and decodes a TOML configuration file, starting from
// defaults so a file only needs to override what it cares about.
func loadConfig(path string) (daemonConfig, error) {
	cfg := defaultDaemonConfig()
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(&cfg)
	var lineErr *toml.LineError
	if errors.As(err, &lineErr) {
		return cfg, errors.New(path + ", " + err.Error())
	}
	return cfg, err
}
