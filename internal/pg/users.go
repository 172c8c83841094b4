package pg

import (
	"context"
	"database/sql"

	"datahub/internal/model"
)

const userCols = `id, username, email, full_name, password_hash, role, enabled, last_login_at, created_at, updated_at, created_by, updated_by`

type users struct{ t *pgTx }

func scanUser(r scanner) (*model.User, error) {
	var (
		u         model.User
		role      string
		lastLogin sql.NullTime
	)
	if err := r.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.PasswordHash, &role, &u.Enabled,
		&lastLogin, &u.CreatedAt, &u.UpdatedAt, &u.CreatedBy, &u.UpdatedBy); err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

func (s users) one(ctx context.Context, where string, arg any) (*model.User, error) {
	u, err := scanUser(s.t.tx.QueryRowContext(ctx, `select `+userCols+` from users where `+where, arg))
	if err != nil {
		return nil, mapErr(err)
	}
	return u, nil
}

func (s users) FindByID(ctx context.Context, id int64) (*model.User, error) {
	return s.one(ctx, `id = $1`, id)
}

func (s users) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.one(ctx, `username = $1`, username)
}

func (s users) ExistsUsername(ctx context.Context, username string) (bool, error) {
	return exists(ctx, s.t.tx, `select 1 from users where username = $1`, username)
}

func (s users) ExistsEmail(ctx context.Context, email string) (bool, error) {
	return exists(ctx, s.t.tx, `select 1 from users where email <> '' and lower(email) = lower($1)`, email)
}

func (s users) Insert(ctx context.Context, u *model.User) error {
	now := s.t.now()
	err := s.t.tx.QueryRowContext(ctx, `
insert into users (username, email, full_name, password_hash, role, enabled, last_login_at, created_at, updated_at, created_by, updated_by)
values ($1, $2, $3, $4, $5, $6, $7, $8, $8, $9, $10)
returning id`,
		u.Username, u.Email, u.FullName, u.PasswordHash, string(u.Role), u.Enabled, u.LastLoginAt, now, u.CreatedBy, u.UpdatedBy,
	).Scan(&u.ID)
	if err != nil {
		return mapErr(err)
	}
	u.CreatedAt, u.UpdatedAt = now, now
	return nil
}

func (s users) Update(ctx context.Context, u *model.User) error {
	now := s.t.now()
	err := s.t.tx.QueryRowContext(ctx, `
update users
set email = $2, full_name = $3, password_hash = $4, role = $5, enabled = $6, last_login_at = $7,
	updated_at = $8, updated_by = $9
where id = $1
returning created_at, created_by`,
		u.ID, u.Email, u.FullName, u.PasswordHash, string(u.Role), u.Enabled, u.LastLoginAt, now, u.UpdatedBy,
	).Scan(&u.CreatedAt, &u.CreatedBy)
	if err != nil {
		return mapErr(err)
	}
	u.UpdatedAt = now
	return nil
}
