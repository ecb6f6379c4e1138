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
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procpilot/procpilot/internal/config"
)

// openTestRepository 打开测试用的 SQLite 仓库
func openTestRepository(t *testing.T) *Repository {
	t.Helper()

	cfg := config.StoreConfig{
		Enabled:  true,
		Type:     DatabaseTypeSQLite,
		Path:     filepath.Join(t.TempDir(), "test.db"),
		LogLevel: "silent",
	}

	db, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = Close(db)
	})

	return NewRepository(db)
}

func TestCreateAndGetLaunch(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	record := NewLaunchRecord("deeplink-service", "main:app",
		"uvicorn main:app --host 0.0.0.0 --port 8000", "0.0.0.0", 8000, 1)
	require.NotEmpty(t, record.LaunchID)

	err := repo.CreateLaunch(ctx, record)
	require.NoError(t, err)
	assert.NotZero(t, record.ID)

	got, err := repo.GetLaunchByID(ctx, record.LaunchID)
	require.NoError(t, err)
	assert.Equal(t, "deeplink-service", got.AppName)
	assert.Equal(t, "main:app", got.Entry)
	assert.Equal(t, 8000, got.Port)
	assert.Equal(t, 1, got.Workers)
}

func TestGetLaunchNotFound(t *testing.T) {
	repo := openTestRepository(t)

	_, err := repo.GetLaunchByID(context.Background(), "no-such-launch")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestLatestLaunch(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	first := NewLaunchRecord("deeplink-service", "main:app", "uvicorn main:app", "0.0.0.0", 8000, 1)
	require.NoError(t, repo.CreateLaunch(ctx, first))

	second := NewLaunchRecord("deeplink-service", "main:app", "uvicorn main:app --workers 4", "0.0.0.0", 8000, 4)
	// 确保 created_at 晚于第一条记录
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	require.NoError(t, repo.CreateLaunch(ctx, second))

	got, err := repo.LatestLaunch(ctx, "deeplink-service")
	require.NoError(t, err)
	assert.Equal(t, second.LaunchID, got.LaunchID)
	assert.Equal(t, 4, got.Workers)

	_, err = repo.LatestLaunch(ctx, "other-app")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestCreateAndGetEvent(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	event := &ProcessEvent{
		LaunchID:  "launch-1",
		AppName:   "deeplink-service",
		EventType: EventTypeStarted,
		PID:       12345,
	}
	require.NoError(t, repo.CreateEvent(ctx, event))
	assert.NotZero(t, event.ID)

	got, err := repo.GetEventByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, EventTypeStarted, got.EventType)
	assert.Equal(t, 12345, got.PID)

	_, err = repo.GetEventByID(ctx, 99999)
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestListEventsFilters(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	events := []*ProcessEvent{
		{LaunchID: "launch-1", AppName: "deeplink-service", EventType: EventTypeStarted, PID: 100},
		{LaunchID: "launch-1", AppName: "deeplink-service", EventType: EventTypeCrashed, PID: 100, ExitCode: 1},
		{LaunchID: "launch-1", AppName: "deeplink-service", EventType: EventTypeRestarted, PID: 101},
		{LaunchID: "launch-2", AppName: "other-app", EventType: EventTypeStarted, PID: 200},
	}
	for _, e := range events {
		require.NoError(t, repo.CreateEvent(ctx, e))
	}

	tests := []struct {
		name      string
		filter    *ProcessEventFilter
		wantTotal int64
	}{
		{
			name:      "no filter returns all",
			filter:    &ProcessEventFilter{},
			wantTotal: 4,
		},
		{
			name:      "filter by launch id",
			filter:    &ProcessEventFilter{LaunchID: "launch-1"},
			wantTotal: 3,
		},
		{
			name:      "filter by app name",
			filter:    &ProcessEventFilter{AppName: "other-app"},
			wantTotal: 1,
		},
		{
			name:      "filter by event type",
			filter:    &ProcessEventFilter{EventType: EventTypeCrashed},
			wantTotal: 1,
		},
		{
			name:      "combined filters",
			filter:    &ProcessEventFilter{LaunchID: "launch-1", EventType: EventTypeStarted},
			wantTotal: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := repo.ListEvents(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, total)
			assert.Len(t, got, int(tt.wantTotal))
		})
	}
}

func TestListEventsPagination(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		require.NoError(t, repo.CreateEvent(ctx, &ProcessEvent{
			LaunchID:  "launch-1",
			AppName:   "deeplink-service",
			EventType: EventTypeRestarted,
			PID:       1000 + i,
		}))
	}

	page1, total, err := repo.ListEvents(ctx, &ProcessEventFilter{Page: 1, PageSize: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(7), total)
	assert.Len(t, page1, 3)

	page3, total, err := repo.ListEvents(ctx, &ProcessEventFilter{Page: 3, PageSize: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(7), total)
	assert.Len(t, page3, 1)
}

func TestCountEventsByType(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.CreateEvent(ctx, &ProcessEvent{
			AppName:   "deeplink-service",
			EventType: EventTypeRestarted,
		}))
	}
	require.NoError(t, repo.CreateEvent(ctx, &ProcessEvent{
		AppName:   "deeplink-service",
		EventType: EventTypeCrashed,
	}))

	count, err := repo.CountEventsByType(ctx, "deeplink-service", EventTypeRestarted)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	count, err = repo.CountEventsByType(ctx, "deeplink-service", EventTypeStopped)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestPruneEvents(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	now := time.Now()
	old := &ProcessEvent{
		AppName:   "deeplink-service",
		EventType: EventTypeCrashed,
	}
	old.CreatedAt = now.Add(-48 * time.Hour)
	require.NoError(t, repo.CreateEvent(ctx, old))

	fresh := &ProcessEvent{
		AppName:   "deeplink-service",
		EventType: EventTypeStarted,
	}
	require.NoError(t, repo.CreateEvent(ctx, fresh))

	pruned, err := repo.PruneEvents(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	_, err = repo.GetEventByID(ctx, old.ID)
	assert.ErrorIs(t, err, ErrEventNotFound)
	_, err = repo.GetEventByID(ctx, fresh.ID)
	assert.NoError(t, err)

	// Nothing left to prune / 没有可清理的事件
	pruned, err = repo.PruneEvents(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, pruned)
}

func TestOpenUnsupportedType(t *testing.T) {
	_, err := Open(config.StoreConfig{
		Enabled: true,
		Type:    "oracle",
	})
	assert.Error(t, err)
}
