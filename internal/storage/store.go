package storage

import (
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"dcsm/internal/logger"
)

// InjectionRecord 单次注入尝试的审计记录
type InjectionRecord struct {
	ID        string `gorm:"primaryKey;size:36"`
	Object    string `gorm:"size:128;index"`
	Patch     string // 用户提交的补丁 JSON
	Outcome   string `gorm:"size:16"` // success / conflict / failed
	Error     string
	CreatedAt time.Time
}

// ConsoleRecord 诊断控制台执行记录
type ConsoleRecord struct {
	ID         string `gorm:"primaryKey;size:36"`
	Expression string
	Result     string
	Error      string
	CreatedAt  time.Time
}

// Store 基于 sqlite 的本地审计存储
type Store struct {
	db  *gorm.DB
	log logger.Logger
}

// Open 打开数据库并迁移表结构
func Open(dsn, prefix string, l logger.Logger) (*Store, error) {
	if l == nil {
		l = logger.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{TablePrefix: prefix},
		Logger:         NewGormLogger(l),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&InjectionRecord{}, &ConsoleRecord{}); err != nil {
		return nil, err
	}
	return &Store{db: db, log: l}, nil
}

// RecordInjection 记录一次注入尝试
func (s *Store) RecordInjection(object string, patch []byte, outcome, errMsg string) error {
	rec := &InjectionRecord{
		ID:      uuid.NewString(),
		Object:  object,
		Patch:   string(patch),
		Outcome: outcome,
		Error:   errMsg,
	}
	return s.db.Create(rec).Error
}

// RecordConsole 记录一次控制台命令
func (s *Store) RecordConsole(expression, result, errMsg string) error {
	rec := &ConsoleRecord{
		ID:         uuid.NewString(),
		Expression: expression,
		Result:     result,
		Error:      errMsg,
	}
	return s.db.Create(rec).Error
}

// RecentInjections 按时间倒序返回最近的注入记录
func (s *Store) RecentInjections(limit int) ([]InjectionRecord, error) {
	var out []InjectionRecord
	err := s.db.Order("created_at desc").Limit(limit).Find(&out).Error
	return out, err
}

// RecentConsole 按时间倒序返回最近的控制台记录
func (s *Store) RecentConsole(limit int) ([]ConsoleRecord, error) {
	var out []ConsoleRecord
	err := s.db.Order("created_at desc").Limit(limit).Find(&out).Error
	return out, err
}
