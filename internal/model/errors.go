package model

import "errors"

// ErrPersistenceCorrupt marks stored data that exists but cannot be decoded
var ErrPersistenceCorrupt = errors.New("persisted value is corrupt")
