package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del proceso.
type Config struct {
	Scanner     ScannerConfig    `yaml:"scanner"`
	Odds        OddsConfig       `yaml:"odds"`
	Simulations SimulationConfig `yaml:"simulations"`
	Storage     StorageConfig    `yaml:"storage"`
	Policy      PolicyConfig     `yaml:"policy"`
	Roles       RolesConfig      `yaml:"roles"`
	Dispatch    DispatchConfig   `yaml:"dispatch"`
	HTTP        HTTPConfig       `yaml:"http"`
	Log         LogConfig        `yaml:"log"`
}

// ScannerConfig controla el loop de polls.
type ScannerConfig struct {
	IntervalSeconds     int      `yaml:"interval_seconds"`
	Workers             int      `yaml:"workers"` // 0 = NumCPU × 2
	CycleTimeoutSeconds int      `yaml:"cycle_timeout_seconds"`
	IOTimeoutSeconds    int      `yaml:"io_timeout_seconds"`
	AutoLog             *bool    `yaml:"auto_log"` // nil = true
	Markets             []string `yaml:"markets"`  // filtro; vacío = todos
	MaxHoursToGame      float64  `yaml:"max_hours_to_game"`
	MinBooks            int      `yaml:"min_books"`
	VisibilityMinutes   int      `yaml:"visibility_minutes"`
	CarryHours          int      `yaml:"carry_hours"`
	BaselineMaxAgeHours int      `yaml:"baseline_max_age_hours"`
}

// OddsConfig contiene el endpoint de precios.
type OddsConfig struct {
	BaseURL    string   `yaml:"base_url"`
	APIKey     string   `yaml:"api_key"` // mejor vía ODDS_API_KEY
	Sport      string   `yaml:"sport"`
	Regions    []string `yaml:"regions"`
	Markets    []string `yaml:"markets"`
	Bookmakers []string `yaml:"bookmakers"`
	RatePerSec float64  `yaml:"rate_per_sec"`
}

// SimulationConfig indica dónde deja sus salidas el motor de simulación.
type SimulationConfig struct {
	Dir string `yaml:"dir"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DataDir            string `yaml:"data_dir"`
	LedgerDSN          string `yaml:"ledger_dsn"` // ruta al SQLite del bet log, o ":memory:"
	LockTimeoutSeconds int    `yaml:"lock_timeout_seconds"`
	RetentionDays      int    `yaml:"retention_days"`
}

// PolicyConfig sobreescribe los umbrales del motor de decisión.
type PolicyConfig struct {
	MinPrice             float64            `yaml:"min_price"`
	MaxPrice             float64            `yaml:"max_price"`
	MinFirstStake        float64            `yaml:"min_first_stake"`
	MinTopUpStake        float64            `yaml:"min_topup_stake"`
	LowLiquidityMaxHours float64            `yaml:"low_liquidity_max_hours"`
	DefaultMinEV         float64            `yaml:"default_min_ev"`
	MinEV                map[string]float64 `yaml:"min_ev"`
}

// RolesConfig define las vistas del dispatcher.
type RolesConfig struct {
	PopularBooks  []string `yaml:"popular_books"`
	PersonalBooks []string `yaml:"personal_books"`
	LiveMinEV     float64  `yaml:"live_min_ev"`
	FVDropMinEV   float64  `yaml:"fv_drop_min_ev"`
}

// DispatchConfig controla a dónde van las filas visibles.
type DispatchConfig struct {
	Console      bool   `yaml:"console"`
	Table        bool   `yaml:"table"`
	RedisAddr    string `yaml:"redis_addr"` // vacío = sin Redis
	RedisStream  string `yaml:"redis_stream"`
	StreamMaxLen int64  `yaml:"stream_max_len"`
}

// HTTPConfig controla el API de estado.
type HTTPConfig struct {
	Addr string `yaml:"addr"` // vacío = deshabilitado
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las variables de entorno sobreescriben los valores del YAML.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// PollInterval devuelve el intervalo entre polls.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Scanner.IntervalSeconds) * time.Second
}

// CycleTimeout devuelve el timeout de un ciclo completo.
func (c *Config) CycleTimeout() time.Duration {
	return time.Duration(c.Scanner.CycleTimeoutSeconds) * time.Second
}

// IOTimeout devuelve el timeout por llamada de I/O.
func (c *Config) IOTimeout() time.Duration {
	return time.Duration(c.Scanner.IOTimeoutSeconds) * time.Second
}

// LockTimeout devuelve el timeout de los locks de archivo.
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.Storage.LockTimeoutSeconds) * time.Second
}

// Retention devuelve la ventana del bet log.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Storage.RetentionDays) * 24 * time.Hour
}

// AutoLog reporta si el scanner registra las apuestas aceptadas en el poll.
func (c *Config) AutoLog() bool {
	return c.Scanner.AutoLog == nil || *c.Scanner.AutoLog
}

// DataPath devuelve la ruta de un archivo dentro del data dir.
func (c *Config) DataPath(name string) string {
	return filepath.Join(c.Storage.DataDir, name)
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ODDS_API_KEY"); v != "" {
		cfg.Odds.APIKey = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Dispatch.RedisAddr = v
	}
	if v := os.Getenv("SHARPLINE_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
// Los umbrales de policy en cero se dejan así: el motor usa los suyos.
func setDefaults(cfg *Config) {
	if cfg.Scanner.IntervalSeconds <= 0 {
		cfg.Scanner.IntervalSeconds = 300
	}
	if cfg.Scanner.CycleTimeoutSeconds <= 0 {
		cfg.Scanner.CycleTimeoutSeconds = 120
	}
	if cfg.Scanner.IOTimeoutSeconds <= 0 {
		cfg.Scanner.IOTimeoutSeconds = 30
	}
	if cfg.Scanner.MaxHoursToGame <= 0 {
		cfg.Scanner.MaxHoursToGame = 48
	}
	if cfg.Scanner.VisibilityMinutes <= 0 {
		cfg.Scanner.VisibilityMinutes = 30
	}
	if cfg.Scanner.CarryHours <= 0 {
		cfg.Scanner.CarryHours = 24
	}
	if cfg.Scanner.BaselineMaxAgeHours <= 0 {
		cfg.Scanner.BaselineMaxAgeHours = 72
	}
	// Un anchor debe sobrevivir a toda la ventana del filtro hasta el partido.
	if minAge := int(math.Ceil(cfg.Scanner.MaxHoursToGame)) + 24; cfg.Scanner.BaselineMaxAgeHours < minAge {
		cfg.Scanner.BaselineMaxAgeHours = minAge
	}
	if cfg.Odds.BaseURL == "" {
		cfg.Odds.BaseURL = "https://api.the-odds-api.com"
	}
	if cfg.Odds.Sport == "" {
		cfg.Odds.Sport = "baseball_mlb"
	}
	if len(cfg.Odds.Regions) == 0 {
		cfg.Odds.Regions = []string{"us"}
	}
	if len(cfg.Odds.Markets) == 0 {
		cfg.Odds.Markets = []string{"h2h", "spreads", "totals"}
	}
	if cfg.Odds.RatePerSec <= 0 {
		cfg.Odds.RatePerSec = 2
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Simulations.Dir == "" {
		cfg.Simulations.Dir = filepath.Join(cfg.Storage.DataDir, "simulations")
	}
	if cfg.Storage.LedgerDSN == "" {
		cfg.Storage.LedgerDSN = filepath.Join(cfg.Storage.DataDir, "bets.db")
	}
	if cfg.Storage.LockTimeoutSeconds <= 0 {
		cfg.Storage.LockTimeoutSeconds = 5
	}
	if cfg.Storage.RetentionDays <= 0 {
		cfg.Storage.RetentionDays = 30
	}
	if cfg.Roles.LiveMinEV <= 0 {
		cfg.Roles.LiveMinEV = 3
	}
	if cfg.Roles.FVDropMinEV <= 0 {
		cfg.Roles.FVDropMinEV = 5
	}
	if cfg.Dispatch.RedisStream == "" {
		cfg.Dispatch.RedisStream = "snapshot.rows"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
