package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合系统运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Venues    VenuesConfig    `mapstructure:"venues"`
	Agents    []AgentConfig   `mapstructure:"agents"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Sizing    SizingConfig    `mapstructure:"sizing"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// OpenAIConfig 描述大模型调用参数。
type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// VenuesConfig 汇总各交易所的接入凭证。
type VenuesConfig struct {
	Hyperliquid HyperliquidConfig `mapstructure:"hyperliquid"`
	BingX       BingXConfig       `mapstructure:"bingx"`
}

// HyperliquidConfig 描述 Hyperliquid 接入信息（EIP-191 签名由 ccxt 封装）。
type HyperliquidConfig struct {
	Wallet     string `mapstructure:"wallet_address"`
	PrivateKey string `mapstructure:"private_key"`
	UseSandbox bool   `mapstructure:"use_sandbox"`
}

// BingXConfig 描述 BingX 接入信息（HMAC 签名由 ccxt 封装）。
type BingXConfig struct {
	APIKey     string `mapstructure:"api_key"`
	APISecret  string `mapstructure:"api_secret"`
	UseSandbox bool   `mapstructure:"use_sandbox"`
}

// AgentConfig 定义单个交易代理。每个代理独占自己的交易所客户端与订单注册表。
type AgentConfig struct {
	Name     string        `mapstructure:"name"`
	Venue    string        `mapstructure:"venue"`
	Markets  []string      `mapstructure:"markets"`
	Interval time.Duration `mapstructure:"interval"`
	RiskUSD  float64       `mapstructure:"risk_usd"`
	Leverage int           `mapstructure:"leverage"`
}

// ExecutionConfig 控制下单行为。
type ExecutionConfig struct {
	LimitOffset float64 `mapstructure:"limit_offset"`
	DryRun      bool    `mapstructure:"dry_run"`
}

// SizingConfig 控制风险仓位计算所用的K线参数。
type SizingConfig struct {
	Interval   string `mapstructure:"interval"`
	KlineLimit int    `mapstructure:"kline_limit"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// MonitorConfig 控制监控查询接口。
type MonitorConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// 当前支持的交易所。
const (
	VenueHyperliquid = "hyperliquid"
	VenueBingX       = "bingx"
)

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.OpenAI.APIKey == "" {
		err = multierr.Append(err, errors.New("openai.api_key 不能为空"))
	}
	if c.OpenAI.Model == "" {
		err = multierr.Append(err, errors.New("openai.model 不能为空"))
	}
	if c.OpenAI.Timeout <= 0 {
		err = multierr.Append(err, errors.New("openai.timeout 必须大于0"))
	}
	if len(c.Agents) == 0 {
		err = multierr.Append(err, errors.New("agents 至少需要配置一个交易代理"))
	}

	seen := make(map[string]struct{}, len(c.Agents))
	for i, agent := range c.Agents {
		prefix := fmt.Sprintf("agents[%d]", i)
		if agent.Name == "" {
			err = multierr.Append(err, fmt.Errorf("%s.name 不能为空", prefix))
		}
		if _, dup := seen[agent.Name]; dup {
			err = multierr.Append(err, fmt.Errorf("%s.name 重复: %s", prefix, agent.Name))
		}
		seen[agent.Name] = struct{}{}

		switch strings.ToLower(agent.Venue) {
		case VenueHyperliquid:
			if c.Venues.Hyperliquid.Wallet == "" || c.Venues.Hyperliquid.PrivateKey == "" {
				err = multierr.Append(err, fmt.Errorf("%s 使用 hyperliquid 需要配置 wallet_address 与 private_key", prefix))
			}
		case VenueBingX:
			if c.Venues.BingX.APIKey == "" || c.Venues.BingX.APISecret == "" {
				err = multierr.Append(err, fmt.Errorf("%s 使用 bingx 需要配置 api_key 与 api_secret", prefix))
			}
		default:
			err = multierr.Append(err, fmt.Errorf("%s.venue 取值非法: %s", prefix, agent.Venue))
		}

		if len(agent.Markets) == 0 {
			err = multierr.Append(err, fmt.Errorf("%s.markets 至少包含一个交易对", prefix))
		}
		if agent.Interval <= 0 {
			err = multierr.Append(err, fmt.Errorf("%s.interval 必须大于0", prefix))
		}
		if agent.RiskUSD < 0 {
			err = multierr.Append(err, fmt.Errorf("%s.risk_usd 不能为负", prefix))
		}
		if agent.Leverage < 0 || agent.Leverage > 100 {
			err = multierr.Append(err, fmt.Errorf("%s.leverage 必须位于[0,100]", prefix))
		}
	}

	if c.Execution.LimitOffset < 0 || c.Execution.LimitOffset > 0.05 {
		err = multierr.Append(err, errors.New("execution.limit_offset 应位于[0,0.05]"))
	}
	if c.Sizing.Interval == "" {
		err = multierr.Append(err, errors.New("sizing.interval 不能为空"))
	}
	if c.Sizing.KlineLimit < 15 {
		err = multierr.Append(err, errors.New("sizing.kline_limit 不能小于15，ATR(14) 需要至少15根K线"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if c.Monitor.Enabled && (c.Monitor.Port <= 0 || c.Monitor.Port > 65535) {
		err = multierr.Append(err, errors.New("monitor.port 必须位于(0,65535]"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
