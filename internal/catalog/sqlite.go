package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"zonegate/internal/dialogue"
	"zonegate/internal/logging"
	"zonegate/internal/resolver"
	"zonegate/internal/types"
)

const dateLayout = "2006-01-02"

// SQLiteCatalog serves catalog data from a SQLite database.
type SQLiteCatalog struct {
	db   *sql.DB
	path string
}

var (
	_ dialogue.VehicleSource = (*SQLiteCatalog)(nil)
	_ dialogue.ZoneSource    = (*SQLiteCatalog)(nil)
	_ dialogue.PolicySource  = (*SQLiteCatalog)(nil)
)

// OpenSQLite opens (creating if needed) the catalog database at path.
// Use ":memory:" for a throwaway database.
func OpenSQLite(path string) (*SQLiteCatalog, error) {
	timer := logging.StartTimer(logging.CategoryCatalog, "OpenSQLite")
	defer timer.Stop()

	logging.Catalog("Opening catalog database at %s", path)
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.CatalogDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.CatalogDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.CatalogDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	c := &SQLiteCatalog{db: db, path: path}
	if err := c.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *SQLiteCatalog) initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS cars (
			fleet TEXT NOT NULL,
			id TEXT NOT NULL,
			position INTEGER NOT NULL,
			plate TEXT NOT NULL,
			plate_key TEXT NOT NULL,
			id_key TEXT NOT NULL,
			fuel_type TEXT NOT NULL DEFAULT '',
			emission_class INTEGER NOT NULL DEFAULT 0,
			vehicle_category TEXT NOT NULL DEFAULT '',
			first_registration TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (fleet, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cars_plate_key ON cars(plate_key)`,
		`CREATE TABLE IF NOT EXISTS zones (
			id TEXT PRIMARY KEY,
			position INTEGER NOT NULL,
			city TEXT NOT NULL,
			city_key TEXT NOT NULL,
			name TEXT NOT NULL,
			type TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_zones_city_key ON zones(city_key)`,
		`CREATE TABLE IF NOT EXISTS policies (
			zone_id TEXT PRIMARY KEY,
			city TEXT NOT NULL,
			zone_name TEXT NOT NULL,
			effective_from TEXT NOT NULL DEFAULT '',
			rules TEXT NOT NULL DEFAULT '[]',
			exemptions TEXT NOT NULL DEFAULT '[]'
		)`,
	}
	for _, stmt := range schema {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize catalog schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

// IsEmpty reports whether the database holds no zones yet.
func (c *SQLiteCatalog) IsEmpty(ctx context.Context) (bool, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM zones").Scan(&n); err != nil {
		return false, fmt.Errorf("count zones: %w", err)
	}
	return n == 0, nil
}

// Seed replaces the database contents with ds in one transaction.
func (c *SQLiteCatalog) Seed(ctx context.Context, ds *Dataset) (err error) {
	timer := logging.StartTimer(logging.CategoryCatalog, "Seed")
	defer timer.Stop()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, table := range []string{"cars", "zones", "policies"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("seed: clear %s: %w", table, err)
		}
	}

	for _, fleet := range ds.FleetNames() {
		for i, car := range ds.Fleets[fleet] {
			_, err = tx.ExecContext(ctx, `INSERT INTO cars
				(fleet, id, position, plate, plate_key, id_key, fuel_type, emission_class, vehicle_category, first_registration)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				fleet, car.ID, i, car.Plate, resolver.Normalize(car.Plate), resolver.Normalize(car.ID),
				string(car.FuelType), car.EmissionClass, string(car.Category), formatDate(car.FirstRegistration))
			if err != nil {
				return fmt.Errorf("seed: car %s: %w", car.ID, err)
			}
		}
	}

	for i, z := range ds.Zones {
		_, err = tx.ExecContext(ctx, `INSERT INTO zones (id, position, city, city_key, name, type)
			VALUES (?, ?, ?, ?, ?, ?)`,
			z.ID, i, z.City, cityKey(z.City), z.Name, string(z.Type))
		if err != nil {
			return fmt.Errorf("seed: zone %s: %w", z.ID, err)
		}
	}

	for _, p := range ds.Policies {
		rules, merr := json.Marshal(p.Rules)
		if merr != nil {
			err = merr
			return fmt.Errorf("seed: policy %s: %w", p.ZoneID, err)
		}
		exemptions, merr := json.Marshal(p.Exemptions)
		if merr != nil {
			err = merr
			return fmt.Errorf("seed: policy %s: %w", p.ZoneID, err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO policies (zone_id, city, zone_name, effective_from, rules, exemptions)
			VALUES (?, ?, ?, ?, ?, ?)`,
			p.ZoneID, p.City, p.ZoneName, formatDate(p.EffectiveFrom), string(rules), string(exemptions))
		if err != nil {
			return fmt.Errorf("seed: policy %s: %w", p.ZoneID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("seed: commit: %w", err)
	}
	logging.Catalog("Seeded catalog: %d zone(s), %d polic(ies)", len(ds.Zones), len(ds.Policies))
	return nil
}

// ListCars returns the fleet named after the session, or the default fleet.
func (c *SQLiteCatalog) ListCars(ctx context.Context, sessionID string) ([]types.Car, error) {
	cars, err := c.fleet(ctx, sessionID)
	if err != nil || len(cars) > 0 || sessionID == DefaultFleet {
		return cars, err
	}
	return c.fleet(ctx, DefaultFleet)
}

func (c *SQLiteCatalog) fleet(ctx context.Context, name string) ([]types.Car, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT `+carColumns+` FROM cars WHERE fleet = ? ORDER BY position`, name)
	if err != nil {
		return nil, fmt.Errorf("list cars: %w", err)
	}
	defer rows.Close()

	var cars []types.Car
	for rows.Next() {
		car, err := scanCar(rows)
		if err != nil {
			return nil, fmt.Errorf("list cars: %w", err)
		}
		cars = append(cars, car)
	}
	return cars, rows.Err()
}

// FindCar looks a car up by plate or id across every fleet.
func (c *SQLiteCatalog) FindCar(ctx context.Context, identifier string) (*types.Car, error) {
	key := resolver.Normalize(identifier)
	if key == "" {
		return nil, nil
	}
	row := c.db.QueryRowContext(ctx, `SELECT `+carColumns+` FROM cars
		WHERE plate_key = ? OR id_key = ?
		ORDER BY fleet <> ?, fleet, position LIMIT 1`, key, key, DefaultFleet)
	car, err := scanCar(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find car: %w", err)
	}
	return &car, nil
}

// ResolveZoneCandidates returns the zones of city narrowed by phrase.
func (c *SQLiteCatalog) ResolveZoneCandidates(ctx context.Context, city, phrase string) ([]types.Zone, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, city, name, type FROM zones
		WHERE city_key = ? ORDER BY position`, cityKey(city))
	if err != nil {
		return nil, fmt.Errorf("zones: %w", err)
	}
	defer rows.Close()

	var zones []types.Zone
	for rows.Next() {
		var z types.Zone
		var zt string
		if err := rows.Scan(&z.ID, &z.City, &z.Name, &zt); err != nil {
			return nil, fmt.Errorf("zones: %w", err)
		}
		z.Type = types.ZoneType(zt)
		zones = append(zones, z)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("zones: %w", err)
	}
	return FilterZones(zones, phrase), nil
}

// GetPolicy returns the policy of a zone, or nil when none is published.
func (c *SQLiteCatalog) GetPolicy(ctx context.Context, zoneID string) (*types.Policy, error) {
	var p types.Policy
	var effective, rules, exemptions string
	err := c.db.QueryRowContext(ctx, `SELECT zone_id, city, zone_name, effective_from, rules, exemptions
		FROM policies WHERE zone_id = ?`, zoneID).
		Scan(&p.ZoneID, &p.City, &p.ZoneName, &effective, &rules, &exemptions)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", zoneID, err)
	}
	if p.EffectiveFrom, err = parseDate(effective); err != nil {
		return nil, fmt.Errorf("policy %s: %w", zoneID, err)
	}
	if err := json.Unmarshal([]byte(rules), &p.Rules); err != nil {
		return nil, fmt.Errorf("policy %s: rules: %w", zoneID, err)
	}
	if err := json.Unmarshal([]byte(exemptions), &p.Exemptions); err != nil {
		return nil, fmt.Errorf("policy %s: exemptions: %w", zoneID, err)
	}
	return &p, nil
}

const carColumns = `id, plate, fuel_type, emission_class, vehicle_category, first_registration`

type scanner interface {
	Scan(dest ...any) error
}

func scanCar(s scanner) (types.Car, error) {
	var car types.Car
	var fuel, category, registered string
	if err := s.Scan(&car.ID, &car.Plate, &fuel, &car.EmissionClass, &category, &registered); err != nil {
		return types.Car{}, err
	}
	car.FuelType = types.FuelType(fuel)
	car.Category = types.VehicleCategory(category)
	var err error
	if car.FirstRegistration, err = parseDate(registered); err != nil {
		return types.Car{}, fmt.Errorf("car %s: %w", car.ID, err)
	}
	return car, nil
}

func cityKey(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, s)
}
