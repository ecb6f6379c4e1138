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

// Package collector samples resource usage of supervised processes.
// collector 包采样被监管进程的资源使用情况。
package collector

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessSample is a point-in-time resource sample for one process
// ProcessSample 是单个进程某一时刻的资源采样
type ProcessSample struct {
	// PID is the sampled process ID / PID 是被采样的进程 ID
	PID int `json:"pid"`

	// CPUPercent is the CPU usage percentage (0-100 per core)
	// CPUPercent 是 CPU 使用率百分比（每核 0-100）
	CPUPercent float64 `json:"cpu_percent"`

	// MemoryRSS is the resident set size in bytes
	// MemoryRSS 是常驻内存大小（字节）
	MemoryRSS uint64 `json:"memory_rss"`

	// NumThreads is the thread count / NumThreads 是线程数
	NumThreads int32 `json:"num_threads"`

	// CreateTime is when the process was created
	// CreateTime 是进程创建的时间
	CreateTime time.Time `json:"create_time"`

	// SampledAt is when the sample was taken / SampledAt 是采样时间
	SampledAt time.Time `json:"sampled_at"`
}

// Sample collects a resource sample for the given PID
// Sample 采集给定 PID 的资源样本
func Sample(pid int) (*ProcessSample, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil, fmt.Errorf("failed to open process %d: %w", pid, err)
	}

	sample := &ProcessSample{
		PID:       pid,
		SampledAt: time.Now(),
	}

	// Values are best-effort; a partially filled sample is still useful
	// 各项取值尽力而为；部分填充的样本仍然有用
	if cpu, err := p.CPUPercent(); err == nil {
		sample.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		sample.MemoryRSS = mem.RSS
	}
	if threads, err := p.NumThreads(); err == nil {
		sample.NumThreads = threads
	}
	if created, err := p.CreateTime(); err == nil {
		sample.CreateTime = time.UnixMilli(created)
	}

	return sample, nil
}

// Alive reports whether a process with the given PID exists
// Alive 报告给定 PID 的进程是否存在
func Alive(pid int) bool {
	exists, err := process.PidExists(int32(pid))
	return err == nil && exists
}
