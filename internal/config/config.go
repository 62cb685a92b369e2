package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Model is one entry of the selectable model catalog. The backend routes
// by provider and model id; "auto" (the zero selection) lets it decide.
type Model struct {
	ProviderID string `toml:"provider"`
	ModelID    string `toml:"model"`
	Label      string `toml:"label"`
}

type Config struct {
	Server struct {
		BaseURL        string `toml:"base_url"`
		TimeoutSeconds int    `toml:"timeout_seconds"`
	} `toml:"server"`
	Chats struct {
		PageSize int `toml:"page_size"`
	} `toml:"chats"`
	Defaults struct {
		Profile string `toml:"profile"`
		Model   string `toml:"model"`
	} `toml:"defaults"`
	Models []Model `toml:"models"`
}

func GetConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "prpo", "config.toml")
}

func Load() (*Config, error) {
	return LoadFrom(GetConfigPath())
}

func LoadFrom(path string) (*Config, error) {
	var cfg Config

	cfg.Server.BaseURL = "https://api.prpo.dev"
	cfg.Server.TimeoutSeconds = 120
	cfg.Chats.PageSize = 50
	cfg.Defaults.Profile = "default"
	cfg.Defaults.Model = "auto"
	cfg.Models = []Model{
		{ProviderID: "openai", ModelID: "gpt-5-mini", Label: "GPT-5 mini"},
		{ProviderID: "openai", ModelID: "gpt-5.2", Label: "GPT-5.2"},
		{ProviderID: "anthropic", ModelID: "claude-sonnet-4-5", Label: "Claude Sonnet 4.5"},
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &cfg, nil
	}
	_, err := toml.DecodeFile(path, &cfg)
	return &cfg, err
}

func (c *Config) Save() error {
	return c.SaveTo(GetConfigPath())
}

func (c *Config) SaveTo(path string) error {
	os.MkdirAll(filepath.Dir(path), 0755)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(c)
}

// FindModel resolves a model id from the catalog. An empty id or "auto"
// resolves to the zero Model.
func (c *Config) FindModel(id string) (Model, bool) {
	if id == "" || id == "auto" {
		return Model{}, true
	}
	for _, m := range c.Models {
		if m.ModelID == id {
			return m, true
		}
	}
	return Model{}, false
}
