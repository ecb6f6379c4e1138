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

// Package store persists launch records and process events.
// store 包持久化启动记录和进程事件。
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/procpilot/procpilot/internal/config"
)

// DatabaseType 数据库类型常量
const (
	DatabaseTypeSQLite   = "sqlite"
	DatabaseTypeMySQL    = "mysql"
	DatabaseTypePostgres = "postgres"
)

// Open 根据配置打开数据库连接并执行迁移
// 支持 SQLite、MySQL、PostgreSQL 三种数据库类型，默认使用 SQLite
func Open(cfg config.StoreConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	var err error

	dbType := cfg.Type
	if dbType == "" {
		dbType = DatabaseTypeSQLite // 默认使用 SQLite
	}

	switch dbType {
	case DatabaseTypeSQLite:
		dialector, err = sqliteDialector(cfg.Path)
	case DatabaseTypeMySQL:
		dialector, err = mysqlDialector(cfg)
	case DatabaseTypePostgres:
		dialector, err = postgresDialector(cfg)
	default:
		return nil, fmt.Errorf("unsupported store type: %s (supported: sqlite, mysql, postgres)", dbType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to init %s dialector: %w", dbType, err)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger(cfg.LogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect %s store: %w", dbType, err)
	}

	// 自动迁移表结构
	if err := db.AutoMigrate(&LaunchRecord{}, &ProcessEvent{}); err != nil {
		return nil, fmt.Errorf("failed to migrate store schema: %w", err)
	}

	return db, nil
}

// sqliteDialector 初始化 SQLite 驱动
func sqliteDialector(path string) (gorm.Dialector, error) {
	if path == "" {
		path = config.DefaultStorePath
	}

	// 确保目录存在
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
	}

	return sqlite.Open(path), nil
}

// mysqlDialector 初始化 MySQL 驱动
func mysqlDialector(cfg config.StoreConfig) (gorm.Dialector, error) {
	dsn := fmt.Sprintf(
		"%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)
	return mysql.Open(dsn), nil
}

// postgresDialector 初始化 PostgreSQL 驱动
func postgresDialector(cfg config.StoreConfig) (gorm.Dialector, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host,
		cfg.Port,
		cfg.Username,
		cfg.Password,
		cfg.Database,
	)
	return postgres.Open(dsn), nil
}

// gormLogger 根据配置获取 GORM 日志记录器
func gormLogger(level string) logger.Interface {
	var logLevel logger.LogLevel
	switch level {
	case "silent":
		logLevel = logger.Silent
	case "error":
		logLevel = logger.Error
	case "warn":
		logLevel = logger.Warn
	case "info":
		logLevel = logger.Info
	default:
		logLevel = logger.Warn
	}

	return logger.Default.LogMode(logLevel)
}

// Close 关闭数据库连接
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying connection: %w", err)
	}

	return sqlDB.Close()
}
