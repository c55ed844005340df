package config

const (
	defaultDataDir   = "~/.local/share/skycat/catalogs"
	defaultLogDir    = "~/.local/share/skycat/logs"
	defaultRunLedger = "~/.local/share/skycat/runs.db"
	defaultNSide     = 8
	defaultChunkRows = 50000
	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			LogDir:    defaultLogDir,
			RunLedger: defaultRunLedger,
		},
		Store: Store{
			NSide:     defaultNSide,
			ChunkRows: defaultChunkRows,
			Compress:  true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
