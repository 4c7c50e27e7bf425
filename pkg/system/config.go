// Package system implements the System Manager of spec.md §4.8 (component
// C8): it loads accounts and strategies, builds and caches adapters per
// account, performs health checks that distinguish required venues (the
// market-making primary) from optional ones (the hedge venue), and
// supervises reconnection.
package system

import (
	"fmt"
	"os"

	"github.com/codingconcepts/env"
	"github.com/joho/godotenv"

	"github.com/quantcore/permaker/pkg/arbitrage"
	"github.com/quantcore/permaker/pkg/executor"
	"github.com/quantcore/permaker/pkg/hedge"
	"github.com/quantcore/permaker/pkg/monitor"
	"github.com/quantcore/permaker/pkg/types"
)

// AccountConfig is one venue credential/network entry in the account pool,
// grounded on the account/strategy handling inlined in
// original_source/src/web/system_manager.py (account id, venue name,
// credentials, optional proxy settings per configured account).
type AccountConfig struct {
	ID         string `env:"ID,required"`
	Venue      string `env:"VENUE,required"`
	APIKey     string `env:"API_KEY"`
	APISecret  string `env:"API_SECRET"`
	Passphrase string `env:"PASSPHRASE"`
	Testnet    bool   `env:"TESTNET"`

	ProxyURL      string `env:"PROXY_URL"`
	ProxyUsername string `env:"PROXY_USERNAME"`
	ProxyPassword string `env:"PROXY_PASSWORD"`
}

func (a AccountConfig) HasProxy() bool { return a.ProxyURL != "" }

// StrategyConfig pairs a main/hedge account with the trading params of
// spec.md §6, grounded on system_manager.py's RunningStrategy construction
// (main_account_id/hedge_account_id + enabled flag per strategy).
type StrategyConfig struct {
	ID            string `env:"ID,required"`
	Name          string `env:"NAME"`
	Enabled       bool   `env:"ENABLED"`
	MainAccountID string `env:"MAIN_ACCOUNT_ID,required"`
	HedgeAccountID string `env:"HEDGE_ACCOUNT_ID"`

	Symbol      types.Symbol `env:"SYMBOL,required"`
	HedgeSymbol types.Symbol `env:"HEDGE_SYMBOL"`

	Executor  executor.Config
	Hedge     hedge.Config
	Monitor   monitor.Config
	Arbitrage arbitrage.Config
}

// HasHedge reports whether this strategy names a hedge account, matching
// spec.md §6's `hedge_exchange == "none"` sentinel.
func (s StrategyConfig) HasHedge() bool {
	return s.HedgeAccountID != "" && s.HedgeAccountID != "none"
}

// Config is the top-level load result: the account pool plus every
// configured strategy referencing it (the Manager skips strategies whose
// Enabled flag is false), mirroring
// original_source/src/config/account_config.py's AccountPoolManager.load().
type Config struct {
	Accounts   []AccountConfig
	Strategies []StrategyConfig
}

func (c Config) account(id string) (AccountConfig, bool) {
	for _, a := range c.Accounts {
		if a.ID == id {
			return a, true
		}
	}
	return AccountConfig{}, false
}

// LoadEnv loads a .env file (if present) into the process environment,
// then populates a single struct from env vars via struct tags, matching
// the teacher's godotenv.Load()+env.Set(&cfg) idiom. envFile may be empty
// to skip file loading and read only the already-set process environment.
func LoadEnv(envFile string, dst interface{}) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("system: load env file %q: %w", envFile, err)
		}
	}
	if err := env.Set(dst); err != nil {
		return fmt.Errorf("system: populate config from environment: %w", err)
	}
	return nil
}
