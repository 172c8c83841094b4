package catalog

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"

	"datahub/internal/model"
)

// Fingerprint: md5(name || description || columns || rows) в нижнем hex.
// Колонки и строки сериализуются каноническим JSON: поля структур в порядке
// объявления, ключи строк отсортированы. Пустые списки дают "[]".
func Fingerprint(name string, description *string, columns []model.ColumnDefinition, rows []model.Row) string {
	h := md5.New()
	h.Write([]byte(name))
	if description != nil {
		h.Write([]byte(*description))
	}
	if columns == nil {
		columns = []model.ColumnDefinition{}
	}
	if rows == nil {
		rows = []model.Row{}
	}
	// ошибки маршалинга здесь невозможны: значения пришли из JSON
	cb, _ := json.Marshal(columns)
	rb, _ := json.Marshal(rows)
	h.Write(cb)
	h.Write(rb)
	return hex.EncodeToString(h.Sum(nil))
}

func fingerprintOf(f *model.DataFile) string {
	return Fingerprint(f.Name, f.Description, f.Columns, f.Rows)
}
