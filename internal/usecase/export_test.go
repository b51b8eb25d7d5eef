package usecase

import "time"

// SetNow pins the clock used for streak bookkeeping.
func (u *userUC) SetNow(now func() time.Time) { u.now = now }
