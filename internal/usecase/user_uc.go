package usecase

import (
	"context"
	"errors"
	"time"

	"speech-flow-bot/internal/domain"
	"speech-flow-bot/internal/domain/model"
	"speech-flow-bot/internal/domain/ports/repository"
	"speech-flow-bot/internal/infra/logging"
	"speech-flow-bot/internal/infra/metrics"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Compile-time check
var _ UserUseCase = (*userUC)(nil)

// UserUseCase exposes learner profile operations used by the bot flows.
type UserUseCase interface {
	RegisterOrFetch(ctx context.Context, tgID int64, username string) (*model.User, error)
	GetByTelegramID(ctx context.Context, tgID int64) (*model.User, error)
	SetLevel(ctx context.Context, tgID int64, level model.Level) error
	// RecordActivity counts one processed message and maintains the streak.
	RecordActivity(ctx context.Context, tgID int64, tokens int64) error
	// CheckQuota returns domain.ErrQuotaExceeded once a non-admin used up the free messages.
	CheckQuota(ctx context.Context, u *model.User) error
	IsAdmin(tgID int64) bool
	Count(ctx context.Context) (int, error)
}

type userUC struct {
	users     repository.UserRepository
	tm        repository.TransactionManager
	admins    []int64
	freeLimit int
	now       func() time.Time
	log       *zerolog.Logger
}

func NewUserUseCase(users repository.UserRepository, tm repository.TransactionManager, adminIDs []int64, freeLimit int, logger *zerolog.Logger) *userUC {
	return &userUC{
		users:     users,
		tm:        tm,
		admins:    adminIDs,
		freeLimit: freeLimit,
		now:       time.Now,
		log:       logger,
	}
}

func (u *userUC) RegisterOrFetch(ctx context.Context, tgID int64, username string) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.RegisterOrFetch")()

	var (
		user    *model.User
		created bool
	)
	// Find and create run in one serializable transaction so two first
	// messages from a new user cannot register it twice.
	txOpts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	err := u.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		usr, err := u.users.FindByTelegramID(ctx, tx, tgID)
		switch {
		case err == nil:
			if username != "" && usr.Username != username {
				usr.Username = username
				if err := u.users.Save(ctx, tx, usr); err != nil {
					return err
				}
			}
			user = usr
			return nil
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}

		nu, err := model.NewUser("", tgID, username)
		if err != nil {
			return err
		}
		if err := u.users.Save(ctx, tx, nu); err != nil {
			return err
		}
		user, created = nu, true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if created {
		metrics.IncUsersRegistered()
		logging.With(ctx, u.log).Info().Int64("tg_id", tgID).Msg("user registered")
	}
	return user, nil
}

func (u *userUC) GetByTelegramID(ctx context.Context, tgID int64) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.GetByTelegramID")()
	return u.users.FindByTelegramID(ctx, repository.NoTX, tgID)
}

func (u *userUC) SetLevel(ctx context.Context, tgID int64, level model.Level) error {
	defer logging.TraceDuration(u.log, "UserUC.SetLevel")()
	if _, err := model.ParseLevel(string(level)); err != nil {
		return err
	}
	return u.users.UpdateLevel(ctx, repository.NoTX, tgID, level)
}

// RecordActivity is a single conditional UPDATE in the repository, so it
// needs no read-modify-write transaction and leaves the level alone.
func (u *userUC) RecordActivity(ctx context.Context, tgID int64, tokens int64) error {
	defer logging.TraceDuration(u.log, "UserUC.RecordActivity")()
	return u.users.RecordActivity(ctx, repository.NoTX, tgID, u.now(), tokens)
}

func (u *userUC) CheckQuota(_ context.Context, usr *model.User) error {
	if usr == nil || u.freeLimit <= 0 || u.IsAdmin(usr.TelegramID) {
		return nil
	}
	if usr.MessagesUsed >= u.freeLimit {
		metrics.IncQuotaExceeded()
		return domain.ErrQuotaExceeded
	}
	return nil
}

func (u *userUC) IsAdmin(tgID int64) bool { return lo.Contains(u.admins, tgID) }

func (u *userUC) Count(ctx context.Context) (int, error) {
	defer logging.TraceDuration(u.log, "UserUC.Count")()
	return u.users.CountUsers(ctx, repository.NoTX)
}
