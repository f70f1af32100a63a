// Package database 负责初始化关系型数据库与 Redis 连接。
package database

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pdf-vectorize-go/internal/model"
	"pdf-vectorize-go/pkg/log"
)

// DB 是文件登记表使用的全局 gorm 连接，未配置 MySQL 时为 nil。
var DB *gorm.DB

// InitMySQL 连接 MySQL 并迁移 file_records 表。
func InitMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("连接 MySQL 失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取 sql.DB 失败: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&model.FileRecord{}); err != nil {
		return nil, fmt.Errorf("迁移 file_records 表失败: %w", err)
	}

	DB = db
	log.Info("MySQL 连接成功，file_records 表已就绪")
	return db, nil
}
