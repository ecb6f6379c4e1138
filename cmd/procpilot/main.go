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

// Package main is the entry point for the procpilot daemon.
// main 包是 procpilot 守护进程的入口点。
//
// procpilot is a supervised launcher for single web applications:
// procpilot 是单个 Web 应用的受监管启动器，负责：
// - Installs dependencies from a manifest before starting / 启动前从清单安装依赖
// - Builds the server command line from configuration / 从配置构建服务器命令行
// - Runs the process under supervision with auto restart / 在监管下运行进程并自动重启
// - Exposes a local status API / 暴露本地状态 API
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/procpilot/procpilot/internal/api"
	"github.com/procpilot/procpilot/internal/config"
	"github.com/procpilot/procpilot/internal/installer"
	"github.com/procpilot/procpilot/internal/launcher"
	"github.com/procpilot/procpilot/internal/logger"
	"github.com/procpilot/procpilot/internal/store"
	"github.com/procpilot/procpilot/internal/supervisor"
)

// Version information, set at build time
// 版本信息，在构建时设置
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Daemon integrates all components of the supervised launcher
// Daemon 集成受监管启动器的所有组件
type Daemon struct {
	// cfg holds the daemon configuration
	// cfg 保存守护进程配置
	cfg *config.Config

	// logger is the structured logger
	// logger 是结构化日志器
	logger *zap.Logger

	// manager supervises the child process
	// manager 监管子进程
	manager *supervisor.Manager

	// restarter handles automatic restart on crash
	// restarter 处理崩溃时的自动重启
	restarter *supervisor.Restarter

	// launcher drives the launch sequence
	// launcher 驱动启动序列
	launcher *launcher.Launcher

	// apiServer is the local status API server (nil when disabled)
	// apiServer 是本地状态 API 服务器(禁用时为 nil)
	apiServer *api.Server

	// db is the event store database (nil when disabled)
	// db 是事件存储数据库(禁用时为 nil)
	db *gorm.DB

	// repo is the event journal repository (nil when the store is disabled)
	// repo 是事件日志仓库(存储禁用时为 nil)
	repo *store.Repository

	ctx    context.Context
	cancel context.CancelFunc
}

// NewDaemon creates a daemon with all components initialized
// NewDaemon 创建一个初始化所有组件的守护进程
func NewDaemon(cfg *config.Config, log *zap.Logger) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		cfg:    cfg,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}

	// Open the event store if enabled / 如果启用，打开事件存储
	var repo *store.Repository
	if cfg.Store.Enabled {
		db, err := store.Open(cfg.Store)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to open event store: %w / 打开事件存储失败：%w", err, err)
		}
		d.db = db
		repo = store.NewRepository(db)
		d.repo = repo
	}

	// Create supervisor and restarter / 创建监管器和重启器
	d.manager = supervisor.NewManager(log)
	d.restarter = supervisor.NewRestarter(d.manager)
	d.restarter.SetPolicy(&supervisor.RestartPolicy{
		Enabled:     cfg.Restart.Enabled,
		Delay:       cfg.Restart.Delay,
		MaxRestarts: cfg.Restart.MaxRestarts,
		TimeWindow:  cfg.Restart.TimeWindow,
		Cooldown:    cfg.Restart.Cooldown,
	})

	// Create launcher / 创建启动器
	d.launcher = launcher.New(cfg, d.manager, repo, log)

	// Chain event hooks: journal first, then auto restart
	// 串联事件钩子：先记录，再自动重启
	d.manager.SetEventHandler(func(name string, event supervisor.Event, info *supervisor.Info) {
		d.launcher.HandleEvent(name, event, info)
		d.restarter.HandleEvent(name, event, info)
	})

	// Create status API server if enabled / 如果启用，创建状态 API 服务器
	if cfg.API.Enabled {
		handler := api.NewHandler(d.manager, d.restarter, repo)
		d.apiServer = api.NewServer(cfg.API.Addr, handler, log)
	}

	return d, nil
}

// Run starts the daemon: launch sequence, supervision loop and status API
// Run 启动守护进程：启动序列、监管循环和状态 API
func (d *Daemon) Run() error {
	d.logger.Info("procpilot starting",
		zap.String("version", Version),
		zap.String("app", d.cfg.App.Name),
		zap.String("entry", d.cfg.App.Entry),
	)

	// Prune expired journal events before new ones are written
	// 在写入新事件前清理过期的日志事件
	d.pruneEvents()

	// Start the supervision loop / 启动监管循环
	if err := d.manager.Run(d.ctx); err != nil {
		return fmt.Errorf("failed to start supervisor: %w / 启动监管器失败：%w", err, err)
	}

	// Execute the launch sequence / 执行启动序列
	if err := d.launcher.Run(d.ctx); err != nil {
		return err
	}

	// Start the status API / 启动状态 API
	if d.apiServer != nil {
		d.apiServer.Start()
	}

	d.logger.Info("procpilot started",
		zap.String("launch_id", d.launcher.LaunchID()),
	)

	// Wait for context cancellation (shutdown signal)
	// 等待上下文取消（关闭信号）
	<-d.ctx.Done()
	return nil
}

// pruneEvents removes journal events older than the configured retention.
// Best effort: a prune failure never blocks the launch.
// pruneEvents 删除超过配置保留时长的日志事件。尽力而为：清理失败不阻止启动。
func (d *Daemon) pruneEvents() {
	if d.repo == nil || d.cfg.Store.EventRetention <= 0 {
		return
	}

	cutoff := time.Now().Add(-d.cfg.Store.EventRetention)
	pruned, err := d.repo.PruneEvents(d.ctx, cutoff)
	if err != nil {
		d.logger.Warn("failed to prune expired events", zap.Error(err))
		return
	}
	if pruned > 0 {
		d.logger.Info("pruned expired events",
			zap.Int64("count", pruned),
			zap.Time("cutoff", cutoff),
		)
	}
}

// Shutdown gracefully stops the daemon and the supervised process
// Shutdown 优雅地停止守护进程和受监管的进程
func (d *Daemon) Shutdown() {
	d.logger.Info("procpilot shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer shutdownCancel()

	// Stop the status API first so clients see the daemon go away cleanly
	// 先停止状态 API，让客户端干净地看到守护进程消失
	if d.apiServer != nil {
		if err := d.apiServer.Shutdown(shutdownCtx); err != nil {
			d.logger.Warn("status API shutdown error", zap.Error(err))
		}
	}

	// Stop supervision and the child process / 停止监管和子进程
	if err := d.manager.Shutdown(shutdownCtx); err != nil {
		d.logger.Warn("supervisor shutdown error", zap.Error(err))
	}

	// Close the event store / 关闭事件存储
	if d.db != nil {
		if err := store.Close(d.db); err != nil {
			d.logger.Warn("event store close error", zap.Error(err))
		}
	}

	d.cancel()
	d.logger.Info("procpilot shutdown complete")
}

// Command line flags / 命令行标志
var (
	configFile    string
	flagPort      int
	flagWorkers   int
	flagHost      string
	flagWorkDir   string
	flagNoInstall bool
)

// flagOverrides converts set flags into config overrides. Persistent flags
// are shared pflag instances, so Changed is visible from any subcommand.
// flagOverrides 将已设置的标志转换为配置覆盖。持久标志是共享的 pflag 实例，
// 所以在任何子命令中都能看到 Changed。
func flagOverrides() map[string]interface{} {
	flags := rootCmd.PersistentFlags()
	overrides := map[string]interface{}{}
	if flags.Changed("port") {
		overrides["server.port"] = flagPort
	}
	if flags.Changed("workers") {
		overrides["server.workers"] = flagWorkers
	}
	if flags.Changed("host") {
		overrides["server.host"] = flagHost
	}
	if flags.Changed("workdir") {
		overrides["app.work_dir"] = flagWorkDir
	}
	if flags.Changed("no-install") {
		overrides["install.skip"] = flagNoInstall
	}
	return overrides
}

// loadConfig loads configuration with CLI flag overrides applied
// loadConfig 加载应用了 CLI 标志覆盖的配置
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithOverrides(configFile, flagOverrides())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w / 加载配置失败：%w", err, err)
	}
	return cfg, nil
}

// rootCmd is the root command for the procpilot CLI
// rootCmd 是 procpilot CLI 的根命令
var rootCmd = &cobra.Command{
	Use:   "procpilot",
	Short: "procpilot - supervised launcher for web applications",
	Long: `procpilot is a supervised launcher daemon for single web applications.
procpilot 是单个 Web 应用的受监管启动守护进程。

It performs the full launch sequence:
它执行完整的启动序列：
- Install dependencies from the manifest / 从清单安装依赖
- Validate configuration, including fork safety / 验证配置，包括 fork 安全
- Build the server command line / 构建服务器命令行
- Run the process under supervision with auto restart / 在监管下运行进程并自动重启`,
}

// versionCmd shows version information
// versionCmd 显示版本信息
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information / 打印版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("procpilot\n")
		fmt.Printf("  Version:    %s\n", Version)
		fmt.Printf("  Git Commit: %s\n", GitCommit)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		fmt.Printf("  Go Version: %s\n", runtime.Version())
		fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

// commandCmd prints the launch command without starting anything
// commandCmd 打印启动命令而不启动任何东西
var commandCmd = &cobra.Command{
	Use:   "command",
	Short: "Print the launch command that would be used / 打印将要使用的启动命令",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w / 无效配置：%w", err, err)
		}

		l := launcher.New(cfg, supervisor.NewManager(nil), nil, nil)
		out, err := l.DescribeCommand()
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

// precheckCmd runs the environment prechecks and prints the result
// precheckCmd 运行环境预检查并打印结果
var precheckCmd = &cobra.Command{
	Use:   "precheck",
	Short: "Run environment prechecks / 运行环境预检查",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		prechecker := installer.NewPrechecker(&installer.PrecheckParams{
			Installer:     cfg.Install.Installer,
			Runner:        cfg.App.Runner,
			Manifest:      cfg.Install.Manifest,
			WorkDir:       cfg.App.WorkDir,
			MinFreeDiskMB: cfg.Install.MinFreeDiskMB,
			Port:          cfg.Server.Port,
		})

		result, err := prechecker.RunAll(cmd.Context())
		if err != nil {
			return err
		}

		output, err := result.ToJSON()
		if err != nil {
			return err
		}
		fmt.Println(output)

		if result.OverallStatus == installer.CheckStatusFailed {
			os.Exit(1)
		}
		return nil
	},
}

// statusCmd queries the status API of a running daemon
// statusCmd 查询运行中守护进程的状态 API
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show status of the supervised process / 显示受监管进程的状态",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		url := fmt.Sprintf("http://%s/api/v1/processes/%s", cfg.API.Addr, cfg.App.Name)
		client := &http.Client{Timeout: 5 * time.Second}

		resp, err := client.Get(url)
		if err != nil {
			return fmt.Errorf("daemon not reachable at %s: %w / 守护进程不可达：%w", cfg.API.Addr, err, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("status request failed (%d): %s / 状态请求失败", resp.StatusCode, string(body))
		}

		// Pretty print the JSON response / 美化打印 JSON 响应
		var pretty map[string]interface{}
		if err := json.Unmarshal(body, &pretty); err != nil {
			fmt.Println(string(body))
			return nil
		}
		formatted, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Println(string(formatted))
		return nil
	},
}

func init() {
	// Assigned here rather than in the composite literal to avoid an
	// initialization cycle (rootCmd -> runDaemon -> flagOverrides -> rootCmd).
	// 在此处赋值而不是在复合字面量中，以避免初始化循环。
	rootCmd.RunE = runDaemon

	// Add flags to root command / 向根命令添加标志
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (default: /etc/procpilot/config.yaml)")
	rootCmd.PersistentFlags().IntVarP(&flagPort, "port", "p", config.DefaultPort, "server port / 服务器端口")
	rootCmd.PersistentFlags().IntVarP(&flagWorkers, "workers", "w", config.DefaultWorkers, "worker process count / 工作进程数")
	rootCmd.PersistentFlags().StringVar(&flagHost, "host", config.DefaultHost, "bind host / 绑定主机")
	rootCmd.PersistentFlags().StringVar(&flagWorkDir, "workdir", "", "application working directory / 应用工作目录")
	rootCmd.PersistentFlags().BoolVar(&flagNoInstall, "no-install", false, "skip dependency installation / 跳过依赖安装")

	// Add subcommands / 添加子命令
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(commandCmd)
	rootCmd.AddCommand(precheckCmd)
	rootCmd.AddCommand(statusCmd)
}

// runDaemon is the main entry point for the daemon
// runDaemon 是守护进程的主入口点
func runDaemon(cmd *cobra.Command, args []string) error {
	// Load configuration / 加载配置
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(launcher.ExitCodeConfigError)
	}

	// Initialize logger / 初始化日志器
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize logger: %v\n", err)
		os.Exit(launcher.ExitCodeConfigError)
	}
	defer log.Sync() //nolint:errcheck

	// Create daemon / 创建守护进程
	daemon, err := NewDaemon(cfg, log)
	if err != nil {
		log.Error("failed to create daemon", zap.Error(err))
		os.Exit(launcher.ExitCodeConfigError)
	}

	// Setup signal handling for graceful shutdown
	// 设置信号处理以实现优雅关闭
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	// Run daemon in goroutine / 在 goroutine 中运行守护进程
	errChan := make(chan error, 1)
	go func() {
		errChan <- daemon.Run()
	}()

	// Wait for signal or error / 等待信号或错误
	select {
	case sig := <-sigChan:
		log.Info("received signal", zap.String("signal", sig.String()))
		daemon.Shutdown()
	case err := <-errChan:
		if err != nil {
			log.Error("launch failed", zap.Error(err))
			daemon.Shutdown()
			os.Exit(launcher.ExitCodeFor(err))
		}
	}

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
