package storage

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}

func toConfigData(config any) (sql.NullString, error) {
	var configData sql.NullString

	switch v := config.(type) {
	case nil:
	case string:
		configData.Valid = true
		configData.String = v

	case []byte:
		configData.Valid = true
		configData.String = string(v)

	default:
		p, err := json.Marshal(config)
		if err != nil {
			return configData, fmt.Errorf("marshaling config: %w", err)
		}

		configData.Valid = true
		configData.String = string(p)
	}

	return configData, nil
}

// encodeValues packs values as little-endian float64s.
func encodeValues(values []float64) []byte {
	p := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(p[i*8:], math.Float64bits(v))
	}
	return p
}

func decodeValues(p []byte, channels int) ([]float64, error) {
	if len(p) != 8*channels {
		return nil, fmt.Errorf("invalid values blob: %d bytes, expected %d", len(p), 8*channels)
	}

	values := make([]float64, channels)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(p[i*8:]))
	}
	return values, nil
}
