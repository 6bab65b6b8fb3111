package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSON is a raw JSON document stored in a text column. It works the same on
// PostgreSQL, MySQL and SQLite because the database never inspects it.
type JSON []byte

// Scan implements the sql.Scanner interface for reading from the database.
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		// Drivers may reuse the buffer after Scan returns.
		*j = append((*j)[:0], v...)
		return nil
	case string:
		*j = JSON(v)
		return nil
	default:
		return errors.New("JSON: unsupported scan type")
	}
}

// Value implements the driver.Valuer interface for writing to the database.
func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	if !json.Valid(j) {
		return nil, errors.New("JSON: invalid document")
	}
	return string(j), nil
}

// MarshalJSON embeds the document as-is.
func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// GormDataType returns the GORM data type hint.
func (JSON) GormDataType() string {
	return "text"
}
