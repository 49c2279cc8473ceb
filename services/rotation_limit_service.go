package services

import (
	"context"
	"time"

	"github.com/go-kit/log/level"

	"github.com/keyturn/go-keyturn-server/global"
	"github.com/keyturn/go-keyturn-server/repository"
	"github.com/keyturn/go-keyturn-server/types"
)

// RotationLimitService enforces the per-owner rotation limits: a cooldown
// between starts and a cap per sliding 24h window. Both are computed from
// the ledger, so the limits hold across processes. This is separate from
// the per-client transport throttle in the API middleware.
type RotationLimitService struct {
	ledger repository.RotationLedger
}

func NewRotationLimitService(ledger repository.RotationLedger) *RotationLimitService {
	if ledger == nil {
		panic("ledger cannot be nil")
	}
	return &RotationLimitService{ledger: ledger}
}

// Allow returns nil when the owner may start a rotation now, otherwise
// types.ErrCooldownActive or types.ErrDailyCapReached. A ledger read
// failure rejects the start: fail closed, never open.
func (rl *RotationLimitService) Allow(owner string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	now := time.Now().UTC()
	count, last, err := rl.ledger.RecentActivity(ctx, owner, now.Add(-24*time.Hour))
	if err != nil {
		level.Error(global.Logger).Log("RotationLimitService", "recent activity read failed", "error", err.Error())
		return types.ErrInternal
	}
	if count >= global.Conf.Rotation.DailyCap {
		return types.ErrDailyCapReached
	}
	cooldown := time.Duration(global.Conf.Rotation.CooldownMinutes) * time.Minute
	if !last.IsZero() && now.Sub(last) < cooldown {
		return types.ErrCooldownActive
	}
	return nil
}
