package reference

import "datahub/internal/model"

// Seed описывает стартовые данные: пользователей и оргструктуру.
type Seed struct {
	Users []SeedUser `yaml:"users"`
	Nodes []SeedNode `yaml:"nodes"`
}

type SeedUser struct {
	Username string     `yaml:"username"`
	Email    string     `yaml:"email"`
	FullName string     `yaml:"full_name,omitempty"`
	Password string     `yaml:"password"`
	Role     model.Role `yaml:"role,omitempty"`
	// Disabled: по умолчанию пользователь активен
	Disabled bool `yaml:"disabled,omitempty"`
}

type SeedNode struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Type        model.NodeType `yaml:"type"`
	SortOrder   int            `yaml:"order,omitempty"`
	Children    []SeedNode     `yaml:"children,omitempty"`
}
