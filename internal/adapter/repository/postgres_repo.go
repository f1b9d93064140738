package repository

import (
	"context"
	"errors"
	"fmt"

	"llm-aeo-tracker/internal/common"
	"llm-aeo-tracker/internal/domain"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// 默认返回的历史记录条数
const defaultRecentLimit = 20

// PostgresRepo 实现了 port.Repository 接口
type PostgresRepo struct {
	db *gorm.DB
}

// NewPostgresRepo 初始化数据库连接并自动迁移表结构
func NewPostgresRepo(dsn string) (*PostgresRepo, error) {
	// 1. 连接数据库
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, "连接数据库失败", err)
	}

	// 2. 自动迁移, 记录/指标/建议以 jsonb 列存储
	if err := db.AutoMigrate(&domain.Analysis{}); err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, "数据库迁移失败", err)
	}

	return &PostgresRepo{db: db}, nil
}

// Save 写入一次分析结果. 分析结果不可变, 只插入不更新
func (r *PostgresRepo) Save(ctx context.Context, analysis *domain.Analysis) error {
	if err := r.db.WithContext(ctx).Create(analysis).Error; err != nil {
		return common.WrapError(common.ErrCodeDatabase, fmt.Sprintf("save analysis %s", analysis.ID), err)
	}
	return nil
}

// Get 根据ID读取分析结果
func (r *PostgresRepo) Get(ctx context.Context, id string) (*domain.Analysis, error) {
	var a domain.Analysis
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.WrapError(common.ErrCodeNotFound, fmt.Sprintf("analysis %s", id), err)
	}
	if err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, fmt.Sprintf("get analysis %s", id), err)
	}
	return &a, nil
}

// Recent 按时间倒序返回最近的分析, brand 为空时不过滤
func (r *PostgresRepo) Recent(ctx context.Context, brand string, limit int) ([]*domain.Analysis, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	q := r.db.WithContext(ctx)
	if brand != "" {
		q = q.Where("brand = ?", brand)
	}

	var list []*domain.Analysis
	err := q.Order("created_at desc").Limit(limit).Find(&list).Error
	if err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, "list analyses", err)
	}
	return list, nil
}
