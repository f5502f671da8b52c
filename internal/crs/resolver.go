// Package crs resolves coordinate reference system descriptors to proj4
// definitions, caching each resolution in postgres so a descriptor is fetched
// from the external registry at most once.
package crs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrResolutionFailed marks any failure to turn a descriptor into a proj4
// definition. Ingestion treats it as fatal for the whole batch.
var ErrResolutionFailed = errors.New("crs resolution failed")

// Fetcher retrieves a proj4 definition for a numeric EPSG code.
type Fetcher interface {
	FetchDefinition(ctx context.Context, code int) (string, error)
}

// Resolver looks descriptors up in the cache table and falls back to the
// registry for never-seen ones.
type Resolver struct {
	db      *gorm.DB
	fetcher Fetcher
}

func NewResolver(db *gorm.DB, fetcher Fetcher) *Resolver {
	return &Resolver{db: db, fetcher: fetcher}
}

// Resolve returns the proj4 definition for a CRS descriptor. Concurrent
// first-time resolutions of the same descriptor may both fetch, but the
// OnConflict insert guarantees a single stored record; the loser rereads the
// winner's row.
func (r *Resolver) Resolve(ctx context.Context, descriptor string) (string, error) {
	var rec Record
	err := r.db.WithContext(ctx).Where("descriptor = ?", descriptor).First(&rec).Error
	if err == nil {
		return rec.Proj4, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("%w: cache lookup: %v", ErrResolutionFailed, err)
	}

	code, err := DeriveCode(descriptor)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrResolutionFailed, err)
	}

	def, err := r.fetcher.FetchDefinition(ctx, code)
	if err != nil {
		return "", fmt.Errorf("%w: EPSG:%d: %v", ErrResolutionFailed, code, err)
	}

	rec = Record{Descriptor: descriptor, Code: code, Proj4: def}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "descriptor"}},
		DoNothing: true,
	}).Create(&rec).Error
	if err != nil {
		return "", fmt.Errorf("%w: persist record: %v", ErrResolutionFailed, err)
	}

	// A racing resolver may have won the insert; the stored definition is
	// authoritative either way.
	var stored Record
	if err := r.db.WithContext(ctx).Where("descriptor = ?", descriptor).First(&stored).Error; err != nil {
		return "", fmt.Errorf("%w: reread record: %v", ErrResolutionFailed, err)
	}

	log.Printf("[crs] resolved descriptor=%s code=%d", descriptor, code)
	return stored.Proj4, nil
}

// DeriveCode extracts the numeric EPSG code from a descriptor. Accepted
// forms: "EPSG:32633", "epsg:4326", "urn:ogc:def:crs:EPSG::32633", or a bare
// number.
func DeriveCode(descriptor string) (int, error) {
	d := strings.TrimSpace(descriptor)
	if d == "" {
		return 0, errors.New("missing crs descriptor")
	}
	// Take everything after the last ':' so both authority:code and URN
	// forms reduce to the code.
	if i := strings.LastIndexByte(d, ':'); i >= 0 {
		d = d[i+1:]
	}
	code, err := strconv.Atoi(d)
	if err != nil || code <= 0 {
		return 0, fmt.Errorf("malformed crs descriptor %q", descriptor)
	}
	return code, nil
}
