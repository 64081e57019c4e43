package config

import "time"

type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Output   OutputConfig   `mapstructure:"output"`
	Schema   SchemaConfig   `mapstructure:"schema"`
	Limits   LimitsConfig   `mapstructure:"limits"`
	Layout   LayoutConfig   `mapstructure:"layout"`
	History  HistoryConfig  `mapstructure:"history"`
	Server   ServerConfig   `mapstructure:"server"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Log      LogConfig      `mapstructure:"log"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type OutputConfig struct {
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// SchemaConfig filters what introspection reads. Empty include lists mean
// everything.
type SchemaConfig struct {
	IncludeViews  bool     `mapstructure:"include_views"`
	ExcludeTables []string `mapstructure:"exclude_tables"`
	IncludeTables []string `mapstructure:"include_tables"`
	Namespaces    []string `mapstructure:"namespaces"`
}

type LimitsConfig struct {
	MaxTables        int `mapstructure:"max_tables"`
	MaxColumns       int `mapstructure:"max_columns"`
	MaxRelationships int `mapstructure:"max_relationships"`
}

type LayoutConfig struct {
	PerColumn int     `mapstructure:"per_column"`
	SpacingX  float64 `mapstructure:"spacing_x"`
	SpacingY  float64 `mapstructure:"spacing_y"`
	OriginX   float64 `mapstructure:"origin_x"`
	OriginY   float64 `mapstructure:"origin_y"`
}

type HistoryConfig struct {
	MaxEntries int `mapstructure:"max_entries"`
}

type ServerConfig struct {
	Addr         string   `mapstructure:"addr"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Default() Config {
	return Config{
		Output: OutputConfig{Format: "mermaid"},
		Limits: LimitsConfig{
			MaxTables:        500,
			MaxColumns:       200,
			MaxRelationships: 2000,
		},
		Layout: LayoutConfig{
			PerColumn: 5,
			SpacingX:  320,
			SpacingY:  240,
		},
		History: HistoryConfig{MaxEntries: 50},
		Server: ServerConfig{
			Addr:         ":8080",
			AllowOrigins: []string{"*"},
		},
		Watch: WatchConfig{Debounce: 150 * time.Millisecond},
		Log:   LogConfig{Level: "info", Format: "text"},
	}
}
