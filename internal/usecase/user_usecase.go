package usecase

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/venturelink/pitchcall/internal/domain/models"
	"github.com/venturelink/pitchcall/internal/domain/output"
	"github.com/venturelink/pitchcall/internal/infra/adapters/memory"
	"github.com/venturelink/pitchcall/internal/infra/adapters/postgres/repository"
)

// UserUsecase определяет интерфейс для работы с пользователями
type UserUsecase interface {
	CreateUser(ctx context.Context, name, email, password string) (*models.User, error)

	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// Аутентификация
	ValidateCredentials(ctx context.Context, email, password string) (*models.User, error)
	GenerateJWT(user *models.User) (string, error)

	// Онлайн пользователи
	GetOnlineUsers(ctx context.Context) ([]output.OnlineUserInfo, error)
}

type userUsecase struct {
	jwtSecret []byte

	userRepo repository.UserRepository
	registry memory.ConnectionRegistry
}

func NewUserUsecase(
	jwtSecret []byte,
	userRepo repository.UserRepository,
	registry memory.ConnectionRegistry,
) UserUsecase {
	return &userUsecase{
		jwtSecret: jwtSecret,
		userRepo:  userRepo,
		registry:  registry,
	}
}

// CreateUser создает нового пользователя с хешированным паролем
func (uc *userUsecase) CreateUser(ctx context.Context, name, email, password string) (*models.User, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := models.NewUser(name, email)
	user.Password = string(hashedPassword)

	if err = uc.userRepo.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	// Пароль не отдаём наружу; сохранённую модель не трогаем
	created := *user
	created.Password = ""
	return &created, nil
}

func (uc *userUsecase) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return uc.userRepo.GetUserByID(ctx, id)
}

// ValidateCredentials проверяет учетные данные пользователя
func (uc *userUsecase) ValidateCredentials(ctx context.Context, email, password string) (*models.User, error) {
	user, err := uc.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if err = bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, err
	}

	validated := *user
	validated.Password = ""
	return &validated, nil
}

// GenerateJWT генерирует JWT токен для пользователя
func (uc *userUsecase) GenerateJWT(user *models.User) (string, error) {
	claims := &jwt.RegisteredClaims{
		Subject:   user.ID.String(),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour * 72)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(uc.jwtSecret)
}

// GetOnlineUsers получает список всех онлайн пользователей
func (uc *userUsecase) GetOnlineUsers(ctx context.Context) ([]output.OnlineUserInfo, error) {
	connectedUserIDs := uc.registry.ConnectedUsers()

	result := make([]output.OnlineUserInfo, 0, len(connectedUserIDs))

	for _, userID := range connectedUserIDs {
		user, err := uc.userRepo.GetUserByID(ctx, userID)
		if err != nil {
			continue // Пропускаем пользователей, которых не можем найти
		}

		result = append(result, output.OnlineUserInfo{
			ID:   user.ID.String(),
			Name: user.Name,
		})
	}

	return result, nil
}
