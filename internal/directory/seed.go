package directory

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/FallSteph/Syllabuksu/model"
)

type seedFile struct {
	Users []seedUser `yaml:"users"`
}

type seedUser struct {
	ID            string `yaml:"id"`
	EmployeeID    string `yaml:"employee_id"`
	FirstName     string `yaml:"first_name"`
	LastName      string `yaml:"last_name"`
	Email         string `yaml:"email"`
	Role          string `yaml:"role"`
	College       string `yaml:"college"`
	Department    string `yaml:"department"`
	Notifications *bool  `yaml:"notifications_enabled"`
}

// LoadSeedFile reads the accounts listed in a YAML seed file.
func LoadSeedFile(path string) ([]model.User, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("directory: reading seed %s: %w", path, err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("directory: parsing seed %s: %w", path, err)
	}

	users := make([]model.User, 0, len(f.Users))
	for _, su := range f.Users {
		notify := true
		if su.Notifications != nil {
			notify = *su.Notifications
		}
		users = append(users, model.User{
			ID:                   su.ID,
			EmployeeID:           su.EmployeeID,
			FirstName:            su.FirstName,
			LastName:             su.LastName,
			Email:                su.Email,
			Role:                 model.Role(su.Role),
			College:              su.College,
			Department:           su.Department,
			NotificationsEnabled: notify,
		})
	}
	return users, nil
}

// Seed creates every user whose email is not yet registered and returns
// how many were created. Existing accounts are left untouched.
func Seed(ctx context.Context, store UserStore, users []model.User, logger *zap.Logger) (int, error) {
	created := 0
	for _, u := range users {
		_, err := store.GetByEmail(ctx, u.Email)
		if err == nil {
			continue
		}
		if !model.IsCode(err, model.ErrNotFound) {
			return created, fmt.Errorf("seed %s: %w", u.Email, err)
		}
		nu, err := store.Create(ctx, u)
		if err != nil {
			return created, fmt.Errorf("seed %s: %w", u.Email, err)
		}
		logger.Info("seeded user",
			zap.String("user_id", nu.ID),
			zap.String("role", string(nu.Role)),
		)
		created++
	}
	return created, nil
}
