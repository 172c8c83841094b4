// Package model holds the persistent entities shared by the stores and services.
package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// Audit: служебные поля, общие для всех сущностей.
type Audit struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedBy string    `json:"createdBy,omitempty"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
}

type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	FullName     string     `json:"fullName"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	Enabled      bool       `json:"enabled"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
	Audit
}

// DisplayName: fullName, если задано, иначе username.
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

// Node: узел оргструктуры. ParentID == nil для корней.
type Node struct {
	ID          int64
	Name        string
	Description *string
	Type        NodeType
	ParentID    *int64
	SortOrder   int
	Audit
}

// Clone возвращает независимую копию (хранилища отдают копии наружу).
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	cp := *n
	if n.Description != nil {
		d := *n.Description
		cp.Description = &d
	}
	if n.ParentID != nil {
		p := *n.ParentID
		cp.ParentID = &p
	}
	return &cp
}

// SameParent сравнивает два nullable parent id.
func SameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

type ColumnDefinition struct {
	Name           string   `json:"name"`
	DataType       DataType `json:"dataType"`
	Required       bool     `json:"required"`
	DefaultValue   *string  `json:"defaultValue,omitempty"`
	MaxLength      *int     `json:"maxLength,omitempty"`
	Description    *string  `json:"description,omitempty"`
	ValidationRule *string  `json:"validationRule,omitempty"`
	SortOrder      int      `json:"sortOrder"`
}

// Row: одна строка файла: имя колонки -> примитивное значение.
type Row map[string]any

// UnmarshalJSON читает числа как json.Number: литерал сохраняется без потерь,
// в том числе целые за пределами 2^53.
func (r *Row) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return err
	}
	*r = m
	return nil
}

type DataFile struct {
	ID          int64
	Name        string
	Description *string
	Fingerprint string
	AnchorID    int64
	OwnerID     int64
	AccessLevel AccessLevel
	Columns     []ColumnDefinition
	Rows        []Row
	RowCount    int
	ColumnCount int
	Audit
}

func (f *DataFile) Clone() *DataFile {
	if f == nil {
		return nil
	}
	cp := *f
	if f.Description != nil {
		d := *f.Description
		cp.Description = &d
	}
	cp.Columns = append([]ColumnDefinition(nil), f.Columns...)
	cp.Rows = make([]Row, len(f.Rows))
	for i, r := range f.Rows {
		if r == nil {
			continue
		}
		m := make(Row, len(r))
		for k, v := range r {
			m[k] = v
		}
		cp.Rows[i] = m
	}
	return &cp
}

// HasColumnType: есть ли в схеме колонка данного типа.
func (f *DataFile) HasColumnType(t DataType) bool {
	for _, c := range f.Columns {
		if c.DataType == t {
			return true
		}
	}
	return false
}

// VisibleTo: предикат доступа: PUBLIC или владелец.
func (f *DataFile) VisibleTo(principalID int64) bool {
	return f.AccessLevel == AccessPublic || f.OwnerID == principalID
}
