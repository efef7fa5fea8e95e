package config

type Config struct {
	Server  ServerConfig
	Ollama  OllamaConfig
	Storage StorageConfig
	Form    FormConfig
	API     APIConfig
	Chat    ChatConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port    int
	MCPPort int
}

type OllamaConfig struct {
	BaseURL   string
	ChatModel string
}

type StorageConfig struct {
	DataDir string
}

type FormConfig struct {
	// SchemaPath points at a YAML form definition. Empty means the
	// embedded default form.
	SchemaPath string
}

type APIConfig struct {
	// Token enables bearer auth on the HTTP API when non-empty.
	Token string
}

type ChatConfig struct {
	// SkipKeywords overrides the built-in advance vocabulary.
	SkipKeywords []string
	// HistoryWindow caps how many turns feed the composer prompt.
	HistoryWindow int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:    4000,
			MCPPort: 4001,
		},
		Ollama: OllamaConfig{
			BaseURL:   "http://localhost:11434",
			ChatModel: "llama3.2",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Chat: ChatConfig{
			HistoryWindow: 6,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON config file at
// $XDG_CONFIG_HOME/daftar/config.json, then applies DAFTAR_* environment
// variable overrides. Everything has a default; nothing is required.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}
