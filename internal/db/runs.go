package db

import (
	"context"

	"remna-bot/internal/syncerr"
)

func (r *Repository) RecordRun(ctx context.Context, run *SyncRun) error {
	return syncerr.Local("record run", r.db.WithContext(ctx).Create(run).Error)
}

// LatestRuns - последние прогоны указанного вида, новые первыми
func (r *Repository) LatestRuns(ctx context.Context, kind string, limit int) ([]SyncRun, error) {
	var runs []SyncRun
	err := r.db.WithContext(ctx).Where("kind = ?", kind).
		Order("started_at DESC, id DESC").Limit(limit).Find(&runs).Error
	if err != nil {
		return nil, syncerr.Local("list runs", err)
	}
	return runs, nil
}
