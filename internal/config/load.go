package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment override. A double underscore nests:
// SURVEYETL_STORAGE__DSN sets storage.dsn.
const EnvPrefix = "SURVEYETL_"

// flagKeys maps override flags to configuration keys.
var flagKeys = map[string]string{
	"job":           "job",
	"source-dir":    "source.local.dir",
	"decoder":       "decoder.kind",
	"storage-kind":  "storage.kind",
	"storage-dsn":   "storage.dsn",
	"singer":        "singer.enabled",
	"singer-output": "singer.output",
	"state":         "state.path",
	"workers":       "runtime.file_workers",
	"on-file-error": "runtime.on_file_error",
}

// BindFlags registers the configuration override flags on fs.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("job", "", "job name (overrides job)")
	fs.String("source-dir", "", "local source directory (overrides source.local.dir)")
	fs.String("decoder", "", "decoder kind: csv|json (overrides decoder.kind)")
	fs.String("storage-kind", "", "storage backend: sqlite|postgres|mssql (overrides storage.kind)")
	fs.String("storage-dsn", "", "storage DSN (overrides storage.dsn)")
	fs.Bool("singer", false, "emit singer messages (overrides singer.enabled)")
	fs.String("singer-output", "", "singer output path or - for stdout (overrides singer.output)")
	fs.String("state", "", "bookmark state file (overrides state.path)")
	fs.Int("workers", 0, "files processed in parallel (overrides runtime.file_workers)")
	fs.String("on-file-error", "", "fail|skip (overrides runtime.on_file_error)")
}

// envKey turns SURVEYETL_RUNTIME__FILE_WORKERS into runtime.file_workers.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Load builds a Pipeline. Precedence, lowest to highest: defaults, the file
// at path (YAML or JSON; optional when path is empty), SURVEYETL_* variables,
// then flags in fs that were explicitly set. fs may be nil.
func Load(path string, fs *pflag.FlagSet) (Pipeline, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return Pipeline{}, fmt.Errorf("config: load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Pipeline{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Pipeline{}, fmt.Errorf("config: load env: %w", err)
	}

	if fs != nil {
		cb := func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		}
		if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, cb), nil); err != nil {
			return Pipeline{}, fmt.Errorf("config: load flags: %w", err)
		}
	}

	var p Pipeline
	err := k.UnmarshalWithConf("", &p, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToSliceHookFunc(","),
			),
			WeaklyTypedInput: true,
			TagName:          "koanf",
			Result:           &p,
		},
	})
	if err != nil {
		return Pipeline{}, fmt.Errorf("config: decode: %w", err)
	}

	p.Storage.DSN = os.ExpandEnv(p.Storage.DSN)
	p.Source.GCS.Credentials = os.ExpandEnv(p.Source.GCS.Credentials)
	return p, nil
}
