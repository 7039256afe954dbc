package service

import (
	"context"
	"errors"
	"math"

	"go.uber.org/zap"

	"github.com/iliyamo/theatre-booking/internal/repository"
)

// RatingSource reports the sum and count of a play's review ratings.
type RatingSource interface {
	RatingStats(ctx context.Context, playID uint64) (sum, count int64, err error)
}

// RatingSink stores a play's rolled-up rating; nil clears it.
type RatingSink interface {
	Exists(ctx context.Context, id uint64) (bool, error)
	SetRating(ctx context.Context, id uint64, rating *float64) error
}

// RatingService keeps Play.rating equal to the mean of its reviews.
type RatingService struct {
	reviews RatingSource
	plays   RatingSink
	log     *zap.Logger
}

// NewRatingService wires the rating rollup.
func NewRatingService(reviews RatingSource, plays RatingSink, log *zap.Logger) *RatingService {
	return &RatingService{reviews: reviews, plays: plays, log: log.Named("rating")}
}

// MeanRating returns sum/count rounded to two decimals, or nil when
// there are no reviews.
func MeanRating(sum, count int64) *float64 {
	if count <= 0 {
		return nil
	}
	v := math.Round(float64(sum)/float64(count)*100) / 100
	return &v
}

// Refresh recomputes and stores the rating of playID and returns it.
func (s *RatingService) Refresh(ctx context.Context, playID uint64) (*float64, error) {
	ok, err := s.plays.Exists(ctx, playID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPlayNotFound
	}
	sum, count, err := s.reviews.RatingStats(ctx, playID)
	if err != nil {
		return nil, err
	}
	rating := MeanRating(sum, count)
	if err := s.plays.SetRating(ctx, playID, rating); err != nil {
		return nil, err
	}
	return rating, nil
}

// RefreshQuietly is Refresh for callers that already committed their
// own change; a failure is logged and the stale rating is kept until the
// next refresh.
func (s *RatingService) RefreshQuietly(ctx context.Context, playID uint64) {
	if _, err := s.Refresh(ctx, playID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.log.Warn("rating refresh failed", zap.Uint64("play_id", playID), zap.Error(err))
	}
}
