/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package config provides configuration management for the procpilot launcher.
// config 包提供 procpilot 启动器的配置管理功能。
//
// Configuration loading priority (highest to lowest):
// 配置加载优先级（从高到低）：
// 1. Command line arguments / 命令行参数
// 2. Environment variables / 环境变量
// 3. Configuration file / 配置文件
// 4. Default values / 默认值
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values
// 默认配置值
const (
	DefaultConfigPath    = "/etc/procpilot/config.yaml"
	DefaultAppName       = "deeplink-service"
	DefaultEntryPoint    = "main:app"
	DefaultRunner        = "uvicorn"
	DefaultHost          = "0.0.0.0"
	DefaultPort          = 8000
	DefaultWorkers       = 1
	DefaultRestartDelay  = 5 * time.Second
	DefaultMaxRestarts   = 10
	DefaultTimeWindow    = 5 * time.Minute
	DefaultCooldown      = 30 * time.Minute
	DefaultManifest      = "requirements.txt"
	DefaultInstaller     = "pip"
	DefaultLogLevel      = "info"
	DefaultLogFile       = "/var/log/procpilot/procpilot.log"
	DefaultLogMaxSize    = 100 // MB
	DefaultLogMaxBackups = 3
	DefaultLogMaxAge     = 7 // days
	DefaultAPIAddr       = "127.0.0.1:9180"
	DefaultStoreType     = "sqlite"
	DefaultStorePath     = "./data/procpilot.db"

	DefaultEventRetention = 30 * 24 * time.Hour
)

// Config represents the full launcher configuration
// Config 表示完整的启动器配置
type Config struct {
	// App describes the supervised application / App 描述被托管的应用
	App AppConfig `mapstructure:"app"`

	// Server holds the bind address and worker settings / Server 保存绑定地址和 worker 设置
	Server ServerConfig `mapstructure:"server"`

	// Restart holds the automatic restart policy / Restart 保存自动重启策略
	Restart RestartConfig `mapstructure:"restart"`

	// Install holds the dependency installation settings / Install 保存依赖安装设置
	Install InstallConfig `mapstructure:"install"`

	// Log configuration / 日志配置
	Log LogConfig `mapstructure:"log"`

	// API holds the local status API settings / API 保存本地状态 API 设置
	API APIConfig `mapstructure:"api"`

	// Store holds the event journal settings / Store 保存事件日志存储设置
	Store StoreConfig `mapstructure:"store"`
}

// AppConfig identifies the application to launch
// AppConfig 标识要启动的应用
type AppConfig struct {
	// Name is the stable process name registered with the supervisor
	// Name 是在监管器中注册的稳定进程名
	Name string `mapstructure:"name"`

	// Entry is the module:callable reference passed to the runner
	// Entry 是传给运行器的 module:callable 引用
	Entry string `mapstructure:"entry"`

	// Runner is the server executable that loads the entry point
	// Runner 是加载入口点的服务器可执行程序
	Runner string `mapstructure:"runner"`

	// WorkDir is the working directory of the launched process
	// WorkDir 是被启动进程的工作目录
	WorkDir string `mapstructure:"work_dir"`

	// ForkUnsafe marks the application as holding resources that must not be
	// shared across forked workers (e.g. a connection pool created at import
	// time). When set, more than one worker is a configuration error.
	// ForkUnsafe 标记应用持有不能跨 fork 的 worker 共享的资源
	// （例如在导入时创建的连接池）。设置后，多于一个 worker 是配置错误。
	ForkUnsafe bool `mapstructure:"fork_unsafe"`

	// Environment variables passed to the process / 传给进程的环境变量
	Environment map[string]string `mapstructure:"environment"`
}

// ServerConfig holds the listen address and worker model
// ServerConfig 保存监听地址和 worker 模型
type ServerConfig struct {
	// Host is the bind address / Host 是绑定地址
	Host string `mapstructure:"host"`

	// Port is the listen port / Port 是监听端口
	Port int `mapstructure:"port"`

	// Workers is the worker process count; 0 and 1 both mean single process
	// Workers 是 worker 进程数量；0 和 1 都表示单进程
	Workers int `mapstructure:"workers"`

	// KeepAliveTimeout is the idle keep-alive timeout passed through to the
	// server; zero means the runner default and the flag is omitted
	// KeepAliveTimeout 是透传给服务器的空闲保活超时；为零表示使用运行器默认值并省略该参数
	KeepAliveTimeout time.Duration `mapstructure:"keep_alive_timeout"`
}

// RestartConfig holds the supervisor restart policy
// RestartConfig 保存监管器重启策略
type RestartConfig struct {
	// Enabled toggles automatic restart on crash / Enabled 控制崩溃时是否自动重启
	Enabled bool `mapstructure:"enabled"`

	// Delay is the wait between crash detection and restart
	// Delay 是检测到崩溃与重启之间的等待时间
	Delay time.Duration `mapstructure:"delay"`

	// MaxRestarts is the restart budget within TimeWindow; once exhausted the
	// process is terminal failed and requires manual intervention
	// MaxRestarts 是 TimeWindow 内的重启预算；耗尽后进程进入终态 failed，需要人工介入
	MaxRestarts int `mapstructure:"max_restarts"`

	// TimeWindow is the sliding window for restart accounting
	// TimeWindow 是重启计数的滑动时间窗口
	TimeWindow time.Duration `mapstructure:"time_window"`

	// Cooldown is how long a process stays failed before the counter resets
	// Cooldown 是进程保持 failed 状态、计数器重置前的时长
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// InstallConfig holds the dependency installation settings
// InstallConfig 保存依赖安装设置
type InstallConfig struct {
	// Skip disables the installation step entirely / Skip 完全禁用安装步骤
	Skip bool `mapstructure:"skip"`

	// Installer is the package installer executable / Installer 是包安装器可执行程序
	Installer string `mapstructure:"installer"`

	// Manifest is the dependency manifest path, relative to app.work_dir
	// Manifest 是依赖清单路径，相对于 app.work_dir
	Manifest string `mapstructure:"manifest"`

	// Timeout bounds the installation step / Timeout 限制安装步骤的时长
	Timeout time.Duration `mapstructure:"timeout"`

	// MinFreeDiskMB is the minimum free disk required by the precheck
	// MinFreeDiskMB 是预检查要求的最小剩余磁盘空间
	MinFreeDiskMB uint64 `mapstructure:"min_free_disk_mb"`
}

// LogConfig contains logging settings
// LogConfig 包含日志设置
type LogConfig struct {
	// Level is the log level (debug, info, warn, error)
	// Level 是日志级别（debug, info, warn, error）
	Level string `mapstructure:"level"`

	// File is the log file path; empty logs to stderr only
	// File 是日志文件路径；为空则只输出到标准错误
	File string `mapstructure:"file"`

	// MaxSize is the maximum size of log file in MB before rotation
	// MaxSize 是日志文件轮转前的最大大小（MB）
	MaxSize int `mapstructure:"max_size"`

	// MaxBackups is the maximum number of old log files to retain
	// MaxBackups 是保留的旧日志文件的最大数量
	MaxBackups int `mapstructure:"max_backups"`

	// MaxAge is the maximum number of days to retain old log files
	// MaxAge 是保留旧日志文件的最大天数
	MaxAge int `mapstructure:"max_age"`
}

// APIConfig holds the local status API settings
// APIConfig 保存本地状态 API 设置
type APIConfig struct {
	// Enabled toggles the status API server / Enabled 控制状态 API 服务器开关
	Enabled bool `mapstructure:"enabled"`

	// Addr is the loopback listen address of the status API
	// Addr 是状态 API 的回环监听地址
	Addr string `mapstructure:"addr"`
}

// StoreConfig holds the event journal settings
// StoreConfig 保存事件日志存储设置
type StoreConfig struct {
	// Enabled toggles event journaling / Enabled 控制事件日志开关
	Enabled bool `mapstructure:"enabled"`

	// Type is the journal backend: sqlite, mysql or postgres
	// Type 是日志后端类型：sqlite、mysql 或 postgres
	Type string `mapstructure:"type"`

	// Path is the SQLite database file path / Path 是 SQLite 数据库文件路径
	Path string `mapstructure:"path"`

	// Host/Port/Username/Password/Database apply to the server backends
	// Host/Port/Username/Password/Database 用于服务器型后端
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`

	// LogLevel is the gorm log level / LogLevel 是 gorm 日志级别
	LogLevel string `mapstructure:"log_level"`

	// EventRetention is how long journaled events are kept; events older
	// than this are pruned at daemon startup. Zero disables pruning.
	// EventRetention 是事件日志的保留时长；超过该时长的事件在守护进程启动时清理。
	// 为零时不清理。
	EventRetention time.Duration `mapstructure:"event_retention"`
}

// Load loads configuration from file and environment variables
// Load 从文件和环境变量加载配置
func Load(configPath string) (*Config, error) {
	return LoadWithOverrides(configPath, nil)
}

// LoadWithOverrides loads configuration with explicit override handling.
// Priority: overrides > env vars > config file > defaults.
// LoadWithOverrides 使用显式覆盖处理加载配置。
// 优先级：覆盖值 > 环境变量 > 配置文件 > 默认值。
func LoadWithOverrides(configPath string, overrides map[string]interface{}) (*Config, error) {
	v := viper.New()

	// Set default values / 设置默认值
	setDefaults(v)

	// Set config file path / 设置配置文件路径
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Check environment variable / 检查环境变量
		envPath := os.Getenv("PROCPILOT_CONFIG_PATH")
		if envPath != "" {
			v.SetConfigFile(envPath)
		} else {
			v.SetConfigFile(DefaultConfigPath)
		}
	}

	// Enable environment variable override / 启用环境变量覆盖
	v.SetEnvPrefix("PROCPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file / 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error if we have defaults
		// 如果有默认值，配置文件未找到不是错误
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			// Check if file exists / 检查文件是否存在
			if _, statErr := os.Stat(v.ConfigFileUsed()); statErr == nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// File doesn't exist, use defaults / 文件不存在，使用默认值
		}
	}

	// Apply explicit overrides (highest priority, i.e. command line flags)
	// 应用显式覆盖（最高优先级，即命令行标志）
	for key, value := range overrides {
		v.Set(key, value)
	}

	// Unmarshal config / 解析配置
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// App defaults / 应用默认值
	v.SetDefault("app.name", DefaultAppName)
	v.SetDefault("app.entry", DefaultEntryPoint)
	v.SetDefault("app.runner", DefaultRunner)
	v.SetDefault("app.work_dir", ".")
	v.SetDefault("app.fork_unsafe", false)

	// Server defaults / 服务器默认值
	v.SetDefault("server.host", DefaultHost)
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.workers", DefaultWorkers)
	v.SetDefault("server.keep_alive_timeout", time.Duration(0))

	// Restart policy defaults / 重启策略默认值
	v.SetDefault("restart.enabled", true)
	v.SetDefault("restart.delay", DefaultRestartDelay)
	v.SetDefault("restart.max_restarts", DefaultMaxRestarts)
	v.SetDefault("restart.time_window", DefaultTimeWindow)
	v.SetDefault("restart.cooldown", DefaultCooldown)

	// Install defaults / 安装默认值
	v.SetDefault("install.skip", false)
	v.SetDefault("install.installer", DefaultInstaller)
	v.SetDefault("install.manifest", DefaultManifest)
	v.SetDefault("install.timeout", 10*time.Minute)
	v.SetDefault("install.min_free_disk_mb", 256)

	// Log defaults / 日志默认值
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.file", DefaultLogFile)
	v.SetDefault("log.max_size", DefaultLogMaxSize)
	v.SetDefault("log.max_backups", DefaultLogMaxBackups)
	v.SetDefault("log.max_age", DefaultLogMaxAge)

	// API defaults / API 默认值
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.addr", DefaultAPIAddr)

	// Store defaults / 存储默认值
	v.SetDefault("store.enabled", true)
	v.SetDefault("store.type", DefaultStoreType)
	v.SetDefault("store.path", DefaultStorePath)
	v.SetDefault("store.log_level", "warn")
	v.SetDefault("store.event_retention", DefaultEventRetention)
}

// Validate validates the configuration
// Validate 验证配置
func (c *Config) Validate() error {
	// Validate app identity / 验证应用标识
	if c.App.Name == "" {
		return errors.New("app.name is required")
	}
	if c.App.Entry == "" {
		return errors.New("app.entry is required")
	}
	if !strings.Contains(c.App.Entry, ":") {
		return fmt.Errorf("app.entry must be a module:callable reference, got %q", c.App.Entry)
	}
	if c.App.Runner == "" {
		return errors.New("app.runner is required")
	}

	// Validate server settings / 验证服务器设置
	if c.Server.Host == "" {
		return errors.New("server.host is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Workers < 0 {
		return fmt.Errorf("server.workers must not be negative, got %d", c.Server.Workers)
	}
	if c.Server.KeepAliveTimeout < 0 {
		return errors.New("server.keep_alive_timeout must not be negative")
	}

	// Fork-safety rule: an app holding fork-unsafe resources must run as a
	// single process
	// fork 安全规则：持有非 fork 安全资源的应用必须以单进程运行
	if c.App.ForkUnsafe && c.Server.Workers > 1 {
		return fmt.Errorf("server.workers must be at most 1 when app.fork_unsafe is set, got %d", c.Server.Workers)
	}

	// Validate restart policy / 验证重启策略
	if c.Restart.Delay < 0 {
		return errors.New("restart.delay must not be negative")
	}
	if c.Restart.MaxRestarts < 0 {
		return errors.New("restart.max_restarts must not be negative")
	}
	if c.Restart.TimeWindow < time.Second {
		return errors.New("restart.time_window must be at least 1 second")
	}

	// Validate log level / 验证日志级别
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level)
	}

	// Validate store backend / 验证存储后端
	if c.Store.Enabled {
		switch c.Store.Type {
		case "sqlite", "mysql", "postgres":
		default:
			return fmt.Errorf("store.type must be sqlite, mysql or postgres, got %q", c.Store.Type)
		}
		if c.Store.EventRetention < 0 {
			return errors.New("store.event_retention must not be negative")
		}
	}

	return nil
}

// String returns a string representation of the config (for debugging)
// String 返回配置的字符串表示（用于调试）
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{App.Name: %s, App.Entry: %s, Server: %s:%d, Workers: %d, Restart.Delay: %v, Restart.MaxRestarts: %d}",
		c.App.Name,
		c.App.Entry,
		c.Server.Host,
		c.Server.Port,
		c.Server.Workers,
		c.Restart.Delay,
		c.Restart.MaxRestarts,
	)
}
