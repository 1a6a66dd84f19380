package storage

import (
	_ "embed"
)

//go:embed schema.sql
var initSchemaSQL string

//go:embed indexes.sql
var initIndexesSQL string

const (
	insertSessionSQL = `
INSERT INTO sessions (
                      uuid,
                      start_time,
                      channels,
                      divisor,
                      device_address,
                      config)
VALUES (?, ?, ?, ?, ?, ?)`

	selectSessionSQL = `
SELECT
    id,
    uuid,
    start_time,
    channels,
    divisor,
    device_address,
    config
FROM sessions
WHERE
    uuid = ?`

	selectSessionsSQL = `
SELECT
    id,
    uuid,
    start_time,
    channels,
    divisor,
    device_address,
    config
FROM sessions
ORDER BY start_time`

	insertSamplesSQL = `
INSERT INTO samples (
                     session_id,
                     seq,
                     received_at,
                     host_time,
                     device_time,
                     array_a,
                     array_b)
VALUES `

	selectSamplesSQL = `
SELECT
    seq,
    received_at,
    host_time,
    device_time,
    array_a,
    array_b
FROM samples
WHERE
    session_id = ?
ORDER BY seq`

	countSamplesSQL = `
SELECT
    COUNT(*)
FROM samples
WHERE
    session_id = ?`
)
