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

// Package installer provides dependency installation for launched
// applications.
// installer 包提供被启动应用的依赖安装功能。
//
// Installation runs the configured package installer against the dependency
// manifest before the application starts. A failed installation is fatal:
// the application must not be started on top of a partial dependency set.
// 安装步骤在应用启动前使用配置的包安装器处理依赖清单。
// 安装失败是致命的：不允许在不完整的依赖集上启动应用。
package installer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/procpilot/procpilot/internal/config"
)

// Common errors for dependency installation
// 依赖安装的常见错误
var (
	// ErrInstallFailed indicates the installer command failed
	// ErrInstallFailed 表示安装器命令失败
	ErrInstallFailed = errors.New("dependency installation failed")

	// ErrManifestNotFound indicates the dependency manifest is missing
	// ErrManifestNotFound 表示依赖清单缺失
	ErrManifestNotFound = errors.New("dependency manifest not found")

	// ErrInstallerNotFound indicates the installer executable is missing
	// ErrInstallerNotFound 表示安装器可执行程序缺失
	ErrInstallerNotFound = errors.New("installer executable not found")

	// ErrInstallTimeout indicates the installation exceeded its time budget
	// ErrInstallTimeout 表示安装超出了时间限制
	ErrInstallTimeout = errors.New("dependency installation timed out")
)

// outputTailLines is how many trailing output lines a failure report keeps
// outputTailLines 是失败报告保留的末尾输出行数
const outputTailLines = 50

// Result describes a completed installation run
// Result 描述一次完成的安装执行
type Result struct {
	// Manifest is the resolved manifest path / Manifest 是解析后的清单路径
	Manifest string `json:"manifest"`

	// Duration is how long the installation took / Duration 是安装耗时
	Duration time.Duration `json:"duration"`

	// Skipped is true when installation was disabled by configuration
	// Skipped 在配置禁用安装时为 true
	Skipped bool `json:"skipped"`
}

// Installer installs application dependencies from a manifest
// Installer 从清单安装应用依赖
type Installer struct {
	cfg     config.InstallConfig
	workDir string
	logger  *zap.Logger
}

// New creates a new Installer instance
// New 创建一个新的 Installer 实例
func New(cfg config.InstallConfig, workDir string, logger *zap.Logger) *Installer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Installer{
		cfg:     cfg,
		workDir: workDir,
		logger:  logger,
	}
}

// ManifestPath returns the resolved manifest path
// ManifestPath 返回解析后的清单路径
func (i *Installer) ManifestPath() string {
	if filepath.IsAbs(i.cfg.Manifest) {
		return i.cfg.Manifest
	}
	return filepath.Join(i.workDir, i.cfg.Manifest)
}

// Install runs the package installer against the manifest. Any failure is
// returned wrapped in ErrInstallFailed and must be treated as fatal by the
// caller.
// Install 使用包安装器处理清单。任何失败都以 ErrInstallFailed 包装返回，
// 调用方必须视为致命错误。
func (i *Installer) Install(ctx context.Context) (*Result, error) {
	if i.cfg.Skip {
		i.logger.Info("dependency installation skipped by configuration")
		return &Result{Skipped: true}, nil
	}

	manifest := i.ManifestPath()
	if _, err := os.Stat(manifest); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, manifest)
		}
		return nil, fmt.Errorf("%w: stat %s: %v", ErrInstallFailed, manifest, err)
	}

	if _, err := exec.LookPath(i.cfg.Installer); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInstallerNotFound, i.cfg.Installer)
	}

	timeout := i.cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	installCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(installCtx, i.cfg.Installer, "install", "-r", manifest)
	cmd.Dir = i.workDir

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	i.logger.Info("installing dependencies",
		zap.String("installer", i.cfg.Installer),
		zap.String("manifest", manifest),
		zap.Duration("timeout", timeout),
	)

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if err != nil {
		tail := tailLines(output.String(), outputTailLines)
		if installCtx.Err() == context.DeadlineExceeded {
			i.logger.Error("dependency installation timed out",
				zap.Duration("timeout", timeout),
				zap.String("output", tail),
			)
			return nil, fmt.Errorf("%w after %v", ErrInstallTimeout, timeout)
		}
		i.logger.Error("dependency installation failed",
			zap.Error(err),
			zap.Duration("duration", duration),
			zap.String("output", tail),
		)
		return nil, fmt.Errorf("%w: %v\n%s", ErrInstallFailed, err, tail)
	}

	i.logger.Info("dependencies installed",
		zap.String("manifest", manifest),
		zap.Duration("duration", duration),
	)

	return &Result{
		Manifest: manifest,
		Duration: duration,
	}, nil
}

// tailLines returns the last n lines of s
// tailLines 返回 s 的最后 n 行
func tailLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
