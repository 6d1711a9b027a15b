package geocode

import (
	"context"
	"math"
	"strings"

	"github.com/kass/go-geo-registry/pkg/geoerr"
	"github.com/kass/go-geo-registry/pkg/identity"
	"github.com/kass/go-geo-registry/pkg/models"
	"github.com/kass/go-geo-registry/pkg/registry"
)

// MaxBatchSize is the hard ceiling on addresses per batch
const MaxBatchSize = 50

// Orchestrator turns raw input into canonical records: it calls the
// provider, builds the standardized address, scores confidence and stores
// the result in the registry.
type Orchestrator struct {
	provider Provider
	reg      *registry.Registry
	limiter  Limiter
	ids      identity.Resolver
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLimiter replaces the provider rate limiter
func WithLimiter(l Limiter) Option {
	return func(o *Orchestrator) { o.limiter = l }
}

// WithIdentity sets the resolver used to attribute record ownership
func WithIdentity(r identity.Resolver) Option {
	return func(o *Orchestrator) { o.ids = r }
}

// NewOrchestrator creates an orchestrator writing through to reg.
// Provider calls are throttled by the default limiter unless overridden.
func NewOrchestrator(provider Provider, reg *registry.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider: provider,
		reg:      reg,
		limiter:  NewDefaultLimiter(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Confidence returns the fraction of the six scored address components
// that are non-empty, rounded to 2 decimals
func Confidence(addr models.StandardizedAddress) float64 {
	return math.Round(float64(addr.FilledCount())/6.0*100) / 100
}

// ForwardGeocode resolves address to a canonical record and stores it.
// The top-ranked provider candidate wins.
func (o *Orchestrator) ForwardGeocode(ctx context.Context, address, source, credential string) (*models.GeoRecord, error) {
	if strings.TrimSpace(address) == "" {
		return nil, geoerr.New(geoerr.KindInvalidInput, "address must not be empty")
	}

	rec, err := o.geocodeOne(ctx, address, source, credential)
	if err != nil {
		return nil, err
	}

	if _, err := o.reg.Insert(rec); err != nil {
		return nil, geoerr.Wrap(geoerr.KindStorageFailure, "failed to store record", err)
	}
	return rec, nil
}

// ReverseGeocode resolves coordinates to a canonical record and stores it
func (o *Orchestrator) ReverseGeocode(ctx context.Context, lat, lon float64, source, credential string) (*models.GeoRecord, error) {
	if lat < -90 || lat > 90 {
		return nil, geoerr.Newf(geoerr.KindCoordinateOutOfRange, "latitude %.6f out of range [-90, 90]", lat)
	}
	if lon < -180 || lon > 180 {
		return nil, geoerr.Newf(geoerr.KindCoordinateOutOfRange, "longitude %.6f out of range [-180, 180]", lon)
	}

	if err := o.limiter.Wait(ctx); err != nil {
		return nil, geoerr.Wrap(geoerr.KindProviderUnavailable, "rate limiter interrupted", err)
	}
	candidate, err := o.provider.Reverse(ctx, lat, lon)
	if err != nil {
		return nil, err
	}
	if candidate == nil {
		return nil, geoerr.Newf(geoerr.KindNoResultsFound, "no address at %.6f, %.6f", lat, lon)
	}

	rec := o.buildRecord(ctx, candidate.DisplayName, *candidate, source, credential)
	if _, err := o.reg.Insert(rec); err != nil {
		return nil, geoerr.Wrap(geoerr.KindStorageFailure, "failed to store record", err)
	}
	return rec, nil
}

// BatchGeocode processes addresses sequentially under the provider rate
// limit. A failure on one address never aborts the batch; successful
// records are persisted in one bulk insert at the end. When that insert
// fails, the computed results are returned alongside the storage error so
// the caller can retry persistence without repeating provider calls.
func (o *Orchestrator) BatchGeocode(ctx context.Context, addresses []string, source, credential string) (*models.BatchResult, error) {
	if len(addresses) == 0 {
		return nil, geoerr.New(geoerr.KindInvalidInput, "batch must contain at least one address")
	}
	if len(addresses) > MaxBatchSize {
		return nil, geoerr.Newf(geoerr.KindInvalidInput, "batch size %d exceeds limit of %d", len(addresses), MaxBatchSize)
	}

	result := &models.BatchResult{
		Total: len(addresses),
		Items: make([]models.BatchItem, 0, len(addresses)),
	}
	var pending []*models.GeoRecord

	for _, address := range addresses {
		// Cancellation is honored between addresses; results accumulated
		// so far are kept
		if err := ctx.Err(); err != nil {
			result.Failed++
			result.Items = append(result.Items, models.BatchItem{
				Address: address,
				Status:  models.BatchStatusError,
				Error:   err.Error(),
			})
			continue
		}

		item := models.BatchItem{Address: address}
		rec, err := o.batchItem(ctx, address, source, credential)
		switch {
		case err == nil:
			result.Succeeded++
			item.Status = models.BatchStatusSuccess
			item.Record = rec
			pending = append(pending, rec)
		case geoerr.IsKind(err, geoerr.KindNoResultsFound):
			result.NotFound++
			item.Status = models.BatchStatusNotFound
			item.Error = err.Error()
		default:
			result.Failed++
			item.Status = models.BatchStatusError
			item.Error = err.Error()
		}
		result.Items = append(result.Items, item)
	}

	if len(pending) > 0 {
		inserted, err := o.reg.InsertMany(pending)
		if err != nil {
			return result, geoerr.Wrap(geoerr.KindStorageFailure, "bulk insert failed after geocoding", err)
		}
		result.Inserted = inserted
	}
	return result, nil
}

// batchItem geocodes one batch address without persisting it
func (o *Orchestrator) batchItem(ctx context.Context, address, source, credential string) (*models.GeoRecord, error) {
	if strings.TrimSpace(address) == "" {
		return nil, geoerr.New(geoerr.KindInvalidInput, "address must not be empty")
	}
	return o.geocodeOne(ctx, address, source, credential)
}

// geocodeOne resolves a single address through the provider under the
// rate limiter, without persisting the record
func (o *Orchestrator) geocodeOne(ctx context.Context, address, source, credential string) (*models.GeoRecord, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, geoerr.Wrap(geoerr.KindProviderUnavailable, "rate limiter interrupted", err)
	}

	candidates, err := o.provider.Search(ctx, address)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, geoerr.Newf(geoerr.KindNoResultsFound, "no results for %q", address)
	}

	return o.buildRecord(ctx, address, candidates[0], source, credential), nil
}

func (o *Orchestrator) buildRecord(ctx context.Context, rawInput string, c Candidate, source, credential string) *models.GeoRecord {
	return &models.GeoRecord{
		RawInput:        rawInput,
		Address:         c.Address,
		Coordinates:     models.Point{Lat: c.Lat, Lon: c.Lon},
		Source:          source,
		ConfidenceScore: Confidence(c.Address),
		OwnerID:         identity.Owner(ctx, o.ids, credential),
	}
}
