package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"bankchain/crypto"
	"bankchain/storage"

	"github.com/BurntSushi/toml"
)

// ErrPassphraseRequired is returned when Load has to create an admin keystore
// but no passphrase was supplied.
var ErrPassphraseRequired = errors.New("config: keystore passphrase required to create admin key")

type Config struct {
	ListenAddress     string    `toml:"ListenAddress"`
	DataDir           string    `toml:"DataDir"`
	Backend           string    `toml:"Backend"`
	NetworkName       string    `toml:"NetworkName"`
	AdminAddress      string    `toml:"AdminAddress"`
	AdminKeystorePath string    `toml:"AdminKeystorePath"`
	PolicyFile        string    `toml:"PolicyFile"`
	LogFile           string    `toml:"LogFile"`
	LogLevel          string    `toml:"LogLevel"`
	Env               string    `toml:"Env"`
	ReadTimeout       int       `toml:"ReadTimeout"`
	WriteTimeout      int       `toml:"WriteTimeout"`
	Pauses            Pauses    `toml:"pauses"`
	RateLimit         RateLimit `toml:"rate_limit"`
	Telemetry         Telemetry `toml:"telemetry"`
}

type loadOptions struct {
	passphrase string
	source     func() (string, error)
}

func (o loadOptions) resolvePassphrase() (string, error) {
	if o.passphrase != "" {
		return o.passphrase, nil
	}
	if o.source == nil {
		return "", ErrPassphraseRequired
	}
	passphrase, err := o.source()
	if err != nil {
		return "", err
	}
	if passphrase == "" {
		return "", ErrPassphraseRequired
	}
	return passphrase, nil
}

// LoadOption customises Load.
type LoadOption func(*loadOptions)

// WithKeystorePassphrase supplies the passphrase used when Load generates the
// admin keystore.
func WithKeystorePassphrase(passphrase string) LoadOption {
	return func(o *loadOptions) { o.passphrase = passphrase }
}

// WithKeystorePassphraseSource defers passphrase resolution until a keystore
// actually has to be created, so operators are only prompted when needed.
func WithKeystorePassphraseSource(source func() (string, error)) LoadOption {
	return func(o *loadOptions) { o.source = source }
}

// Load loads the configuration from the given path. A missing file is created
// with defaults and a freshly generated admin keystore.
func Load(path string, opts ...LoadOption) (*Config, error) {
	options := loadOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path, options)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	if strings.TrimSpace(cfg.AdminAddress) == "" {
		if err := ensureKeystore(path, cfg, options); err != nil {
			return nil, err
		}
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./bank-data"
	}
	if strings.TrimSpace(cfg.Backend) == "" {
		cfg.Backend = storage.BackendLevelDB
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "bank-local"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 15
	}
	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = 600
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 60
	}
}

// ensureKeystore fills AdminAddress from the admin keystore, generating the
// keystore first when it does not exist.
func ensureKeystore(configPath string, cfg *Config, options loadOptions) error {
	keystorePath := cfg.AdminKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		passphrase, passErr := options.resolvePassphrase()
		if passErr != nil {
			return passErr
		}
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, passphrase); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	admin, err := crypto.KeystoreAddress(keystorePath)
	if err != nil {
		return err
	}
	cfg.AdminKeystorePath = keystorePath
	cfg.AdminAddress = crypto.FromCommon(admin).String()
	return persist(configPath, cfg)
}

// createDefault creates and saves a default configuration file.
func createDefault(path string, options loadOptions) (*Config, error) {
	passphrase, err := options.resolvePassphrase()
	if err != nil {
		return nil, err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, passphrase); err != nil {
		return nil, err
	}

	cfg := &Config{
		ListenAddress:     ":8080",
		DataDir:           "./bank-data",
		Backend:           storage.BackendLevelDB,
		NetworkName:       "bank-local",
		AdminAddress:      key.PubKey().Address().String(),
		AdminKeystorePath: keystorePath,
		PolicyFile:        "",
		Env:               "local",
	}
	applyDefaults(cfg)

	if err := persist(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "admin.keystore")
}
