package config

import "path/filepath"

const (
	// Global layout under COMPAS_HOME.
	ConfigFilePath = "config.toml"
	EnvFilePath    = ".env"
	DataDirPath    = "data"
	LogsDirPath    = "logs"

	// Data directory layout under COMPAS_HOME/data/.
	ProfileFilePath         = "profile.json"
	MemoryFilePath          = "memory.json"
	LedgerFilePath          = "compas.db"
	ReflectionLogFilePath   = "reflection_log.json"
	ConnectionIdeasFilePath = "connection_ideas.json"
	KindnessFilePath        = "kindness_exercises.json"
	CostsFileName           = "costs.jsonl"
)

func homeConfigPath(home string) string {
	return filepath.Join(home, ConfigFilePath)
}

func homeEnvPath(home string) string {
	return filepath.Join(home, EnvFilePath)
}

func defaultHomePath(home string) string {
	return filepath.Join(home, ".compas")
}

func homeDataPath(home string) string {
	return filepath.Join(home, DataDirPath)
}

func (c *Config) ConfigPath() string {
	return homeConfigPath(c.HomeDir)
}

func (c *Config) DataDir() string {
	return homeDataPath(c.HomeDir)
}

func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir(), LogsDirPath)
}

func (c *Config) CostsPath() string {
	return filepath.Join(c.LogsDir(), CostsFileName)
}

func (c *Config) ProfilePath() string {
	return filepath.Join(c.DataDir(), ProfileFilePath)
}

func (c *Config) MemoryPath() string {
	return filepath.Join(c.DataDir(), MemoryFilePath)
}

func (c *Config) LedgerPath() string {
	return filepath.Join(c.DataDir(), LedgerFilePath)
}

func (c *Config) ReflectionLogPath() string {
	return filepath.Join(c.DataDir(), ReflectionLogFilePath)
}

func (c *Config) ConnectionIdeasPath() string {
	return filepath.Join(c.DataDir(), ConnectionIdeasFilePath)
}

func (c *Config) KindnessPath() string {
	return filepath.Join(c.DataDir(), KindnessFilePath)
}
