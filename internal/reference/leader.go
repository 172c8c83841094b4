package reference

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"datahub/internal/auth"
	"datahub/internal/identity"
	"datahub/internal/model"
	"datahub/internal/tree"
)

// LoadSeed читает один YAML-файл или все *.yaml / *.yml из папки (по алфавиту) и склеивает их.
func LoadSeed(path string) (*Seed, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	files := []string{path}
	if st.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		files = files[:0]
		for _, e := range entries {
			if !e.IsDir() && (strings.HasSuffix(e.Name(), ".yaml") || strings.HasSuffix(e.Name(), ".yml")) {
				files = append(files, filepath.Join(path, e.Name()))
			}
		}
		sort.Strings(files)
	}

	out := &Seed{}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		var part Seed
		if err := yaml.Unmarshal(data, &part); err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		if err := part.validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		out.Users = append(out.Users, part.Users...)
		out.Nodes = append(out.Nodes, part.Nodes...)
	}
	return out, nil
}

func (s *Seed) validate() error {
	for i, u := range s.Users {
		if strings.TrimSpace(u.Username) == "" || u.Password == "" {
			return fmt.Errorf("users[%d]: username and password are required", i)
		}
		if u.Role != "" && !u.Role.Valid() {
			return fmt.Errorf("users[%d]: unknown role %q", i, u.Role)
		}
	}
	var check func(prefix string, nodes []SeedNode) error
	check = func(prefix string, nodes []SeedNode) error {
		for i, n := range nodes {
			p := fmt.Sprintf("%s[%d]", prefix, i)
			if strings.TrimSpace(n.Name) == "" {
				return fmt.Errorf("%s: name is required", p)
			}
			if !n.Type.Valid() {
				return fmt.Errorf("%s: unknown node type %q", p, n.Type)
			}
			if err := check(p+".children", n.Children); err != nil {
				return err
			}
		}
		return nil
	}
	return check("nodes", s.Nodes)
}

// systemPrincipal: автор записей, созданных при сидировании.
var systemPrincipal = identity.Principal{Username: "SYSTEM", Role: model.RoleAdmin, Enabled: true}

// Apply создаёт недостающих пользователей; дерево сидируется только в пустую базу.
func Apply(ctx context.Context, seed *Seed, users *auth.Service, nodes *tree.Service, log *slog.Logger) error {
	created := 0
	for _, su := range seed.Users {
		u := &model.User{
			Username: strings.TrimSpace(su.Username),
			Email:    strings.TrimSpace(su.Email),
			FullName: su.FullName,
			Role:     su.Role,
			Enabled:  !su.Disabled,
		}
		ok, err := users.EnsureUser(ctx, u, su.Password)
		if err != nil {
			return fmt.Errorf("seed user %s: %w", su.Username, err)
		}
		if ok {
			created++
		}
	}

	roots, err := nodes.Children(ctx, nil)
	if err != nil {
		return err
	}
	if len(roots) > 0 {
		log.InfoContext(ctx, "seed applied", "users_created", created, "nodes_created", 0, "tree", "not empty, skipped")
		return nil
	}

	ctx = identity.With(ctx, systemPrincipal)
	count := 0
	var walk func(parent *int64, list []SeedNode) error
	walk = func(parent *int64, list []SeedNode) error {
		for _, sn := range list {
			req := tree.CreateRequest{Name: sn.Name, Type: sn.Type, ParentID: parent, SortOrder: &sn.SortOrder}
			if sn.Description != "" {
				d := sn.Description
				req.Description = &d
			}
			n, err := nodes.Create(ctx, req)
			if err != nil {
				return fmt.Errorf("seed node %s: %w", sn.Name, err)
			}
			count++
			if err := walk(&n.ID, sn.Children); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(nil, seed.Nodes); err != nil {
		return err
	}
	log.InfoContext(ctx, "seed applied", "users_created", created, "nodes_created", count)
	return nil
}
