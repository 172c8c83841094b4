package catalog

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"datahub/internal/apperr"
	"datahub/internal/model"
)

const maxColumnName = 50

// validateColumns проверяет схему файла: непустые уникальные имена, известные типы.
func validateColumns(cols []model.ColumnDefinition) *apperr.Error {
	var e *apperr.Error
	fail := func(field, msg string) {
		if e == nil {
			e = apperr.Invalid(apperr.ReasonValidation, "invalid column definitions")
		}
		e.WithDetail(field, msg)
	}
	seen := make(map[string]bool, len(cols))
	for i, c := range cols {
		field := fmt.Sprintf("columnDefinitions[%d]", i)
		name := strings.TrimSpace(c.Name)
		switch {
		case name == "":
			fail(field+".name", "must not be blank")
		case utf8.RuneCountInString(name) > maxColumnName:
			fail(field+".name", fmt.Sprintf("must be at most %d characters", maxColumnName))
		case seen[name]:
			fail(field+".name", fmt.Sprintf("duplicate column %q", name))
		}
		seen[name] = true
		if !c.DataType.Valid() {
			fail(field+".dataType", fmt.Sprintf("unknown data type %q", c.DataType))
		}
		if c.MaxLength != nil && *c.MaxLength <= 0 {
			fail(field+".maxLength", "must be positive")
		}
	}
	return e
}

// validateRows сверяет строки со схемой: неизвестные колонки, обязательные
// значения, совместимость типов.
func validateRows(cols []model.ColumnDefinition, rows []model.Row) *apperr.Error {
	byName := make(map[string]model.ColumnDefinition, len(cols))
	for _, c := range cols {
		byName[c.Name] = c
	}
	var e *apperr.Error
	fail := func(field, msg string) {
		if e == nil {
			e = apperr.Invalid(apperr.ReasonValidation, "invalid data rows")
		}
		e.WithDetail(field, msg)
	}
	for i, row := range rows {
		if row == nil {
			fail(fmt.Sprintf("dataRows[%d]", i), "must be an object")
			continue
		}
		for key, val := range row {
			col, ok := byName[key]
			if !ok {
				fail(fmt.Sprintf("dataRows[%d].%s", i, key), "unknown column")
				continue
			}
			if val == nil {
				continue
			}
			if err := checkValue(col, val); err != nil {
				fail(fmt.Sprintf("dataRows[%d].%s", i, key), err.Error())
			}
		}
		for _, col := range cols {
			if !col.Required || col.DefaultValue != nil {
				continue
			}
			if v, ok := row[col.Name]; !ok || v == nil {
				fail(fmt.Sprintf("dataRows[%d].%s", i, col.Name), "is required")
			}
		}
	}
	return e
}

func checkValue(col model.ColumnDefinition, val any) error {
	switch col.DataType {
	case model.TypeString:
		s, ok := val.(string)
		if !ok {
			return fmt.Errorf("expected string")
		}
		if col.MaxLength != nil && utf8.RuneCountInString(s) > *col.MaxLength {
			return fmt.Errorf("longer than %d characters", *col.MaxLength)
		}
	case model.TypeInteger:
		if !integer(val) {
			return fmt.Errorf("expected integer")
		}
	case model.TypeDecimal:
		if _, ok := number(val); !ok {
			return fmt.Errorf("expected number")
		}
	case model.TypeBoolean:
		if _, ok := val.(bool); !ok {
			return fmt.Errorf("expected bool")
		}
	case model.TypeDate:
		s, ok := val.(string)
		if !ok {
			return fmt.Errorf("expected date string")
		}
		if _, err := time.Parse(time.DateOnly, s); err != nil {
			return fmt.Errorf("expected date YYYY-MM-DD")
		}
	case model.TypeDateTime:
		s, ok := val.(string)
		if !ok {
			return fmt.Errorf("expected datetime string")
		}
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			return fmt.Errorf("expected RFC3339 datetime")
		}
	}
	return nil
}

// integer: json.Number проверяется по литералу, без перехода через float64.
func integer(v any) bool {
	if n, ok := v.(json.Number); ok {
		if _, err := n.Int64(); err == nil {
			return true
		}
	}
	f, ok := number(v)
	return ok && f == math.Trunc(f) && !math.IsInf(f, 0)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}
