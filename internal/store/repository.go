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

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Common errors for the store
// 存储的常见错误
var (
	// ErrRecordNotFound indicates the launch record was not found
	// ErrRecordNotFound 表示启动记录未找到
	ErrRecordNotFound = errors.New("launch record not found")

	// ErrEventNotFound indicates the process event was not found
	// ErrEventNotFound 表示进程事件未找到
	ErrEventNotFound = errors.New("process event not found")
)

// Default pagination values / 默认分页值
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Repository provides data access for launch records and process events.
// Repository 提供启动记录和进程事件的数据访问。
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new store repository.
// NewRepository 创建新的存储仓库。
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// NewLaunchRecord builds a launch record with a fresh launch ID.
// NewLaunchRecord 构建带有新启动 ID 的启动记录。
func NewLaunchRecord(appName, entry, commandLine, host string, port, workers int) *LaunchRecord {
	return &LaunchRecord{
		LaunchID:    uuid.NewString(),
		AppName:     appName,
		Entry:       entry,
		CommandLine: commandLine,
		Host:        host,
		Port:        port,
		Workers:     workers,
	}
}

// ==================== LaunchRecord CRUD 启动记录增删改查 ====================

// CreateLaunch creates a new launch record.
// CreateLaunch 创建新的启动记录。
func (r *Repository) CreateLaunch(ctx context.Context, record *LaunchRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// GetLaunchByID retrieves a launch record by launch ID.
// GetLaunchByID 根据启动 ID 获取启动记录。
func (r *Repository) GetLaunchByID(ctx context.Context, launchID string) (*LaunchRecord, error) {
	var record LaunchRecord
	err := r.db.WithContext(ctx).Where("launch_id = ?", launchID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

// LatestLaunch retrieves the most recent launch record for an app.
// LatestLaunch 获取应用最近的启动记录。
func (r *Repository) LatestLaunch(ctx context.Context, appName string) (*LaunchRecord, error) {
	var record LaunchRecord
	err := r.db.WithContext(ctx).
		Where("app_name = ?", appName).
		Order("created_at DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

// ==================== ProcessEvent CRUD 进程事件增删改查 ====================

// CreateEvent creates a new process event.
// CreateEvent 创建新的进程事件。
func (r *Repository) CreateEvent(ctx context.Context, event *ProcessEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// GetEventByID retrieves a process event by ID.
// GetEventByID 根据 ID 获取进程事件。
func (r *Repository) GetEventByID(ctx context.Context, id uint) (*ProcessEvent, error) {
	var event ProcessEvent
	err := r.db.WithContext(ctx).First(&event, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return &event, nil
}

// ListEvents retrieves process events with filtering and pagination.
// ListEvents 获取带过滤和分页的进程事件列表。
func (r *Repository) ListEvents(ctx context.Context, filter *ProcessEventFilter) ([]*ProcessEvent, int64, error) {
	var events []*ProcessEvent
	var total int64

	query := r.db.WithContext(ctx).Model(&ProcessEvent{})

	// Apply filters / 应用过滤条件
	if filter.LaunchID != "" {
		query = query.Where("launch_id = ?", filter.LaunchID)
	}
	if filter.AppName != "" {
		query = query.Where("app_name = ?", filter.AppName)
	}
	if filter.EventType != "" {
		query = query.Where("event_type = ?", filter.EventType)
	}
	if filter.StartTime != nil {
		query = query.Where("created_at >= ?", filter.StartTime)
	}
	if filter.EndTime != nil {
		query = query.Where("created_at <= ?", filter.EndTime)
	}

	// Count total / 统计总数
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// Apply pagination / 应用分页
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&events).Error
	if err != nil {
		return nil, 0, err
	}

	return events, total, nil
}

// CountEventsByType counts events of a given type for an app.
// CountEventsByType 统计应用给定类型的事件数量。
func (r *Repository) CountEventsByType(ctx context.Context, appName string, eventType ProcessEventType) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&ProcessEvent{}).
		Where("app_name = ? AND event_type = ?", appName, eventType).
		Count(&count).Error
	return count, err
}

// PruneEvents deletes events older than the given cutoff and returns how
// many rows were removed.
// PruneEvents 删除早于给定时间的事件并返回删除的行数。
func (r *Repository) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", before).
		Delete(&ProcessEvent{})
	return result.RowsAffected, result.Error
}
