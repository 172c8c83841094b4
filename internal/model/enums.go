package model

import "strings"

// NodeType: уровень узла оргструктуры.
type NodeType string

const (
	NodeDepartment        NodeType = "DEPARTMENT"
	NodeTeam              NodeType = "TEAM"
	NodeBusinessDirection NodeType = "BUSINESS_DIRECTION"
	NodeModule            NodeType = "MODULE"
)

var nodeTypes = []NodeType{NodeDepartment, NodeTeam, NodeBusinessDirection, NodeModule}

func NodeTypes() []NodeType { return append([]NodeType(nil), nodeTypes...) }

func (t NodeType) Valid() bool {
	for _, v := range nodeTypes {
		if v == t {
			return true
		}
	}
	return false
}

// DataType: тип колонки файла данных.
type DataType string

const (
	TypeString   DataType = "STRING"
	TypeInteger  DataType = "INTEGER"
	TypeDecimal  DataType = "DECIMAL"
	TypeBoolean  DataType = "BOOLEAN"
	TypeDate     DataType = "DATE"
	TypeDateTime DataType = "DATETIME"
	TypeJSON     DataType = "JSON"
)

var dataTypes = []DataType{TypeString, TypeInteger, TypeDecimal, TypeBoolean, TypeDate, TypeDateTime, TypeJSON}

func DataTypes() []DataType { return append([]DataType(nil), dataTypes...) }

func (t DataType) Valid() bool {
	for _, v := range dataTypes {
		if v == t {
			return true
		}
	}
	return false
}

// ParseDataType принимает значение в любом регистре (путь /data-type/{dataType}).
func ParseDataType(s string) (DataType, bool) {
	t := DataType(strings.ToUpper(strings.TrimSpace(s)))
	return t, t.Valid()
}

type AccessLevel string

const (
	AccessPrivate AccessLevel = "PRIVATE"
	AccessPublic  AccessLevel = "PUBLIC"
)

func (a AccessLevel) Valid() bool { return a == AccessPrivate || a == AccessPublic }

type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

func (r Role) Valid() bool { return r == RoleAdmin || r == RoleUser }
