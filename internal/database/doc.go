// Package database implements the storage gateway on PostgreSQL.
//
// Repositories run per-user read-modify-write operations in transactions;
// multi-user passes (time tick, decay, voice tick) each run in one
// transaction so a flush and a decay can never race on the same record.
package database
