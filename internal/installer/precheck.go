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

package installer

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
)

// CheckStatus represents the status of a precheck item
// CheckStatus 表示预检查项的状态
type CheckStatus string

const (
	// CheckStatusPassed indicates the check passed
	// CheckStatusPassed 表示检查通过
	CheckStatusPassed CheckStatus = "passed"

	// CheckStatusFailed indicates the check failed
	// CheckStatusFailed 表示检查失败
	CheckStatusFailed CheckStatus = "failed"

	// CheckStatusWarning indicates the check passed with warnings
	// CheckStatusWarning 表示检查通过但有警告
	CheckStatusWarning CheckStatus = "warning"
)

// CheckName represents the name of a precheck item
// CheckName 表示预检查项的名称
type CheckName string

const (
	// CheckNameInstaller is the package installer check name
	// CheckNameInstaller 是包安装器检查名称
	CheckNameInstaller CheckName = "installer"

	// CheckNameRunner is the application runner check name
	// CheckNameRunner 是应用运行器检查名称
	CheckNameRunner CheckName = "runner"

	// CheckNameManifest is the dependency manifest check name
	// CheckNameManifest 是依赖清单检查名称
	CheckNameManifest CheckName = "manifest"

	// CheckNameDisk is the disk space check name
	// CheckNameDisk 是磁盘空间检查名称
	CheckNameDisk CheckName = "disk"

	// CheckNamePort is the listen port check name
	// CheckNamePort 是监听端口检查名称
	CheckNamePort CheckName = "port"
)

// AllCheckNames returns all check names in order
// AllCheckNames 返回所有检查名称（按顺序）
func AllCheckNames() []CheckName {
	return []CheckName{
		CheckNameInstaller,
		CheckNameRunner,
		CheckNameManifest,
		CheckNameDisk,
		CheckNamePort,
	}
}

// PrecheckItem represents a single precheck result item
// PrecheckItem 表示单个预检查结果项
type PrecheckItem struct {
	// Name is the name of the check
	// Name 是检查的名称
	Name CheckName `json:"name"`

	// Status is the check status (passed/failed/warning)
	// Status 是检查状态（通过/失败/警告）
	Status CheckStatus `json:"status"`

	// Message is a human-readable description of the result
	// Message 是结果的人类可读描述
	Message string `json:"message"`

	// Details contains additional information about the check
	// Details 包含检查的附加信息
	Details map[string]interface{} `json:"details,omitempty"`
}

// PrecheckResult contains all precheck results
// PrecheckResult 包含所有预检查结果
type PrecheckResult struct {
	// Items is the list of precheck items
	// Items 是预检查项列表
	Items []PrecheckItem `json:"items"`

	// OverallStatus is the overall status (failed if any check failed)
	// OverallStatus 是总体状态（如果任何检查失败则为失败）
	OverallStatus CheckStatus `json:"overall_status"`

	// Summary is a brief summary of the precheck results
	// Summary 是预检查结果的简要摘要
	Summary string `json:"summary"`
}

// PrecheckParams contains parameters for precheck execution
// PrecheckParams 包含预检查执行的参数
type PrecheckParams struct {
	// Installer is the package installer executable to look up
	// Installer 是要查找的包安装器可执行程序
	Installer string `json:"installer"`

	// Runner is the application runner executable to look up
	// Runner 是要查找的应用运行器可执行程序
	Runner string `json:"runner"`

	// Manifest is the dependency manifest path to check. Relative paths
	// resolve against WorkDir, matching the install step.
	// Manifest 是要检查的依赖清单路径。相对路径基于 WorkDir 解析，与安装步骤一致。
	Manifest string `json:"manifest"`

	// WorkDir is the directory whose disk space is checked
	// WorkDir 是检查磁盘空间的目录
	WorkDir string `json:"work_dir"`

	// MinFreeDiskMB is the minimum required free disk space in MB
	// MinFreeDiskMB 是最小所需剩余磁盘空间（MB）
	MinFreeDiskMB uint64 `json:"min_free_disk_mb"`

	// Port is the listen port to check availability for
	// Port 是要检查可用性的监听端口
	Port int `json:"port"`
}

// SystemInfoProvider is an interface for getting system information
// SystemInfoProvider 是获取系统信息的接口
type SystemInfoProvider interface {
	// LookupExecutable reports whether the named executable is on PATH
	// LookupExecutable 报告指定可执行程序是否在 PATH 中
	LookupExecutable(name string) (string, error)

	// FileExists reports whether the path exists as a regular file
	// FileExists 报告路径是否作为普通文件存在
	FileExists(path string) bool

	// GetFreeDiskSpaceMB returns free disk space in MB for the given path
	// GetFreeDiskSpaceMB 返回给定路径的剩余磁盘空间（MB）
	GetFreeDiskSpaceMB(path string) (uint64, error)

	// IsPortAvailable checks if a port is available
	// IsPortAvailable 检查端口是否可用
	IsPortAvailable(port int) bool
}

// DefaultSystemInfoProvider is the default implementation of SystemInfoProvider
// DefaultSystemInfoProvider 是 SystemInfoProvider 的默认实现
type DefaultSystemInfoProvider struct{}

// LookupExecutable reports whether the named executable is on PATH
// LookupExecutable 报告指定可执行程序是否在 PATH 中
func (d *DefaultSystemInfoProvider) LookupExecutable(name string) (string, error) {
	return exec.LookPath(name)
}

// FileExists reports whether the path exists as a regular file
// FileExists 报告路径是否作为普通文件存在
func (d *DefaultSystemInfoProvider) FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// GetFreeDiskSpaceMB returns free disk space in MB for the given path
// GetFreeDiskSpaceMB 返回给定路径的剩余磁盘空间（MB）
func (d *DefaultSystemInfoProvider) GetFreeDiskSpaceMB(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free / (1024 * 1024), nil
}

// IsPortAvailable checks if a port is available
// IsPortAvailable 检查端口是否可用
func (d *DefaultSystemInfoProvider) IsPortAvailable(port int) bool {
	// Try to listen on the port / 尝试监听端口
	addr := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	listener.Close()
	return true
}

// Prechecker performs environment prechecks before installation and launch
// Prechecker 在安装和启动前执行环境预检查
type Prechecker struct {
	// params contains the precheck parameters
	// params 包含预检查参数
	params *PrecheckParams

	// systemInfoProvider provides system information (for testing)
	// systemInfoProvider 提供系统信息（用于测试）
	systemInfoProvider SystemInfoProvider
}

// NewPrechecker creates a new Prechecker instance
// NewPrechecker 创建一个新的 Prechecker 实例
func NewPrechecker(params *PrecheckParams) *Prechecker {
	return &Prechecker{
		params:             params,
		systemInfoProvider: &DefaultSystemInfoProvider{},
	}
}

// NewPrecheckerWithProvider creates a new Prechecker with a custom SystemInfoProvider
// NewPrecheckerWithProvider 使用自定义 SystemInfoProvider 创建新的 Prechecker
func NewPrecheckerWithProvider(params *PrecheckParams, provider SystemInfoProvider) *Prechecker {
	return &Prechecker{
		params:             params,
		systemInfoProvider: provider,
	}
}

// RunAll executes all prechecks and returns the results
// RunAll 执行所有预检查并返回结果
func (p *Prechecker) RunAll(ctx context.Context) (*PrecheckResult, error) {
	result := &PrecheckResult{
		Items:         make([]PrecheckItem, 0, 5),
		OverallStatus: CheckStatusPassed,
	}

	// Run all checks / 运行所有检查
	checks := []func(context.Context) PrecheckItem{
		p.CheckInstaller,
		p.CheckRunner,
		p.CheckManifest,
		p.CheckDisk,
		p.CheckPort,
	}

	passedCount := 0
	failedCount := 0
	warningCount := 0

	for _, check := range checks {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			item := check(ctx)
			result.Items = append(result.Items, item)

			switch item.Status {
			case CheckStatusPassed:
				passedCount++
			case CheckStatusFailed:
				failedCount++
				result.OverallStatus = CheckStatusFailed
			case CheckStatusWarning:
				warningCount++
				if result.OverallStatus == CheckStatusPassed {
					result.OverallStatus = CheckStatusWarning
				}
			}
		}
	}

	// Generate summary / 生成摘要
	result.Summary = fmt.Sprintf(
		"Precheck completed: %d passed, %d failed, %d warnings / 预检查完成：%d 通过，%d 失败，%d 警告",
		passedCount, failedCount, warningCount,
		passedCount, failedCount, warningCount,
	)

	return result, nil
}

// CheckInstaller checks that the package installer is on PATH
// CheckInstaller 检查包安装器是否在 PATH 中
func (p *Prechecker) CheckInstaller(ctx context.Context) PrecheckItem {
	item := PrecheckItem{
		Name:    CheckNameInstaller,
		Details: map[string]interface{}{"installer": p.params.Installer},
	}

	path, err := p.systemInfoProvider.LookupExecutable(p.params.Installer)
	if err != nil {
		item.Status = CheckStatusFailed
		item.Message = fmt.Sprintf("Installer %q not found on PATH / 未在 PATH 中找到安装器 %q",
			p.params.Installer, p.params.Installer)
		return item
	}

	item.Status = CheckStatusPassed
	item.Details["path"] = path
	item.Message = fmt.Sprintf("Installer found at %s / 安装器位于 %s", path, path)
	return item
}

// CheckRunner checks that the application runner is on PATH. A missing runner
// is only a warning before installation: the installation step may provide it.
// CheckRunner 检查应用运行器是否在 PATH 中。安装前运行器缺失只是警告：
// 安装步骤可能会提供它。
func (p *Prechecker) CheckRunner(ctx context.Context) PrecheckItem {
	item := PrecheckItem{
		Name:    CheckNameRunner,
		Details: map[string]interface{}{"runner": p.params.Runner},
	}

	path, err := p.systemInfoProvider.LookupExecutable(p.params.Runner)
	if err != nil {
		item.Status = CheckStatusWarning
		item.Message = fmt.Sprintf(
			"Runner %q not found on PATH, expecting installation to provide it / 未在 PATH 中找到运行器 %q，预期由安装步骤提供",
			p.params.Runner, p.params.Runner)
		return item
	}

	item.Status = CheckStatusPassed
	item.Details["path"] = path
	item.Message = fmt.Sprintf("Runner found at %s / 运行器位于 %s", path, path)
	return item
}

// manifestPath resolves the manifest against WorkDir the same way the
// install step does, so both agree on which file they are checking.
// manifestPath 与安装步骤以相同方式基于 WorkDir 解析清单路径，保证两者检查同一文件。
func (p *Prechecker) manifestPath() string {
	if filepath.IsAbs(p.params.Manifest) {
		return p.params.Manifest
	}
	return filepath.Join(p.params.WorkDir, p.params.Manifest)
}

// CheckManifest checks that the dependency manifest exists
// CheckManifest 检查依赖清单是否存在
func (p *Prechecker) CheckManifest(ctx context.Context) PrecheckItem {
	manifest := p.manifestPath()
	item := PrecheckItem{
		Name:    CheckNameManifest,
		Details: map[string]interface{}{"manifest": manifest},
	}

	if !p.systemInfoProvider.FileExists(manifest) {
		item.Status = CheckStatusFailed
		item.Message = fmt.Sprintf("Manifest not found: %s / 未找到清单：%s",
			manifest, manifest)
		return item
	}

	item.Status = CheckStatusPassed
	item.Message = fmt.Sprintf("Manifest found: %s / 清单存在：%s", manifest, manifest)
	return item
}

// CheckDisk checks if free disk space meets the minimum requirement
// CheckDisk 检查剩余磁盘空间是否满足最低要求
func (p *Prechecker) CheckDisk(ctx context.Context) PrecheckItem {
	item := PrecheckItem{
		Name: CheckNameDisk,
		Details: map[string]interface{}{
			"work_dir":    p.params.WorkDir,
			"required_mb": p.params.MinFreeDiskMB,
		},
	}

	freeMB, err := p.systemInfoProvider.GetFreeDiskSpaceMB(p.params.WorkDir)
	if err != nil {
		item.Status = CheckStatusFailed
		item.Message = fmt.Sprintf("Failed to get disk info for %s: %v / 获取 %s 磁盘信息失败：%v",
			p.params.WorkDir, err, p.params.WorkDir, err)
		return item
	}

	item.Details["free_mb"] = freeMB

	if freeMB >= p.params.MinFreeDiskMB {
		item.Status = CheckStatusPassed
		item.Message = fmt.Sprintf(
			"Free disk space %d MB >= required %d MB / 剩余磁盘空间 %d MB >= 所需 %d MB",
			freeMB, p.params.MinFreeDiskMB, freeMB, p.params.MinFreeDiskMB,
		)
	} else {
		item.Status = CheckStatusFailed
		item.Message = fmt.Sprintf(
			"Free disk space %d MB < required %d MB / 剩余磁盘空间 %d MB < 所需 %d MB",
			freeMB, p.params.MinFreeDiskMB, freeMB, p.params.MinFreeDiskMB,
		)
	}

	return item
}

// CheckPort checks that the application listen port is available
// CheckPort 检查应用监听端口是否可用
func (p *Prechecker) CheckPort(ctx context.Context) PrecheckItem {
	item := PrecheckItem{
		Name:    CheckNamePort,
		Details: map[string]interface{}{"port": p.params.Port},
	}

	if p.params.Port == 0 {
		item.Status = CheckStatusPassed
		item.Message = "No port to check / 无需检查端口"
		return item
	}

	if p.systemInfoProvider.IsPortAvailable(p.params.Port) {
		item.Status = CheckStatusPassed
		item.Message = fmt.Sprintf("Port %d is available / 端口 %d 可用", p.params.Port, p.params.Port)
	} else {
		item.Status = CheckStatusFailed
		item.Message = fmt.Sprintf("Port %d is in use / 端口 %d 被占用", p.params.Port, p.params.Port)
	}

	return item
}

// ToJSON converts the precheck result to JSON string
// ToJSON 将预检查结果转换为 JSON 字符串
func (r *PrecheckResult) ToJSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// HasCheck returns true if the result contains a check with the given name
// HasCheck 如果结果包含给定名称的检查则返回 true
func (r *PrecheckResult) HasCheck(name CheckName) bool {
	for _, item := range r.Items {
		if item.Name == name {
			return true
		}
	}
	return false
}

// GetCheck returns the check item with the given name, or nil if not found
// GetCheck 返回给定名称的检查项，如果未找到则返回 nil
func (r *PrecheckResult) GetCheck(name CheckName) *PrecheckItem {
	for i := range r.Items {
		if r.Items[i].Name == name {
			return &r.Items[i]
		}
	}
	return nil
}

// IsComplete returns true if all expected checks are present
// IsComplete 如果所有预期检查都存在则返回 true
func (r *PrecheckResult) IsComplete() bool {
	for _, name := range AllCheckNames() {
		if !r.HasCheck(name) {
			return false
		}
	}
	return true
}
