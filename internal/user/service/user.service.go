package service

import (
	"database/sql"
	"errors"
	"meditrust/internal/user/model"
	"meditrust/internal/user/repository"
)

var (
	ErrInvalidRole     = errors.New("invalid role. Must be patient or doctor")
	ErrProfileNotFound = errors.New("no role selected yet")
)

type UserService struct {
	Repo *repository.UserRepository
}

func NewUserService(repo *repository.UserRepository) *UserService {
	return &UserService{Repo: repo}
}

func (s *UserService) SetRole(address, role string) (*model.Profile, error) {
	if role != model.RolePatient && role != model.RoleDoctor {
		return nil, ErrInvalidRole
	}
	return s.Repo.UpsertRole(address, role)
}

func (s *UserService) GetProfile(address string) (*model.Profile, error) {
	p, err := s.Repo.Get(address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	return p, err
}
