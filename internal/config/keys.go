package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kStringList
)

type keySpec struct {
	key   string
	typ   keyType
	env   string
	apply func(cfg *Config, v any)
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "DAFTAR_SERVER_PORT",
		apply: func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
	},
	{
		key: "server.mcp_port", typ: kInt, env: "DAFTAR_SERVER_MCP_PORT",
		apply: func(cfg *Config, v any) { cfg.Server.MCPPort = v.(int) },
	},
	{
		key: "ollama.base_url", typ: kString, env: "DAFTAR_OLLAMA_BASE_URL",
		apply: func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
	},
	{
		key: "ollama.chat_model", typ: kString, env: "DAFTAR_OLLAMA_CHAT_MODEL",
		apply: func(cfg *Config, v any) { cfg.Ollama.ChatModel = v.(string) },
	},
	{
		key: "storage.data_dir", typ: kString, env: "DAFTAR_STORAGE_DATA_DIR",
		apply: func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
	},
	{
		key: "form.schema_path", typ: kString, env: "DAFTAR_FORM_SCHEMA_PATH",
		apply: func(cfg *Config, v any) { cfg.Form.SchemaPath = v.(string) },
	},
	{
		key: "api.token", typ: kString, env: "DAFTAR_API_TOKEN",
		apply: func(cfg *Config, v any) { cfg.API.Token = v.(string) },
	},
	{
		key: "chat.skip_keywords", typ: kStringList, env: "DAFTAR_CHAT_SKIP_KEYWORDS",
		apply: func(cfg *Config, v any) { cfg.Chat.SkipKeywords = v.([]string) },
	},
	{
		key: "chat.history_window", typ: kInt, env: "DAFTAR_CHAT_HISTORY_WINDOW",
		apply: func(cfg *Config, v any) { cfg.Chat.HistoryWindow = v.(int) },
	},
	{
		key: "log.level", typ: kString, env: "DAFTAR_LOG_LEVEL",
		apply: func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kStringList:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				s.apply(cfg, splitList(v))
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kStringList:
			s.apply(cfg, splitList(raw))
		}
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
