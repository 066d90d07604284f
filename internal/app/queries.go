package app

import (
	"context"
	"time"

	"farm_sync/internal/domain"
)

type QueryService struct {
	repo     domain.FarmRepository
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(r domain.FarmRepository, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{repo: r, cache: c, cacheTTL: ttl}
}

func (s *QueryService) GetFarm(ctx context.Context, slug string) (domain.FarmView, error) {
	key := "farm:" + slug
	var fv domain.FarmView
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, key, &fv); ok {
			return fv, nil
		}
	}
	f, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return domain.FarmView{}, err
	}
	fv = viewOf(f)
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, fv, int(s.cacheTTL.Seconds()))
	}
	return fv, nil
}

func viewOf(f domain.Farm) domain.FarmView {
	fv := domain.FarmView{
		ZohoID:     f.ZohoID,
		Slug:       f.Slug,
		Name:       f.Name,
		City:       f.City,
		Region:     f.Region,
		PlaceID:    f.PlaceID,
		Categories: f.Categories,
		Services:   f.Services,
		Content:    f.Content,
	}
	if f.Lat != nil && f.Lon != nil {
		fv.Coords = &domain.Coords{Lat: *f.Lat, Lon: *f.Lon}
	}
	return fv
}
