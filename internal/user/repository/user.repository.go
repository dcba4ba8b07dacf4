package repository

import (
	"database/sql"
	"meditrust/internal/user/model"
	"meditrust/pkg/logger"
)

type UserRepository struct {
	DB *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{DB: db}
}

func (r *UserRepository) UpsertRole(address, role string) (*model.Profile, error) {
	p := model.Profile{Address: address}
	err := r.DB.QueryRow(`INSERT INTO users (address, role, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (address) DO UPDATE SET role = $2, updated_at = NOW()
		RETURNING role, updated_at`, address, role).Scan(&p.Role, &p.UpdatedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to set role for %s: %v", address, err)
		return nil, err
	}
	return &p, nil
}

func (r *UserRepository) Get(address string) (*model.Profile, error) {
	p := model.Profile{Address: address}
	err := r.DB.QueryRow("SELECT role, updated_at FROM users WHERE address = $1", address).Scan(&p.Role, &p.UpdatedAt)
	if err != nil {
		if err != sql.ErrNoRows {
			logger.Sugar.Errorf("Failed to get profile for %s: %v", address, err)
		}
		return nil, err
	}
	return &p, nil
}
