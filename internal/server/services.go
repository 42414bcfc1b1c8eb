package server

import (
	"github.com/redis/go-redis/v9"
	"github.com/shinyyama/tripmatch-backend/internal/config"
	"github.com/shinyyama/tripmatch-backend/internal/matching"
	"github.com/shinyyama/tripmatch-backend/internal/repository"
	"github.com/shinyyama/tripmatch-backend/internal/service"
	"github.com/shinyyama/tripmatch-backend/internal/storage"
	"gorm.io/gorm"
)

// Services holds the repositories and engine services shared by the API server and the
// sweep command.
type Services struct {
	TripRepo    repository.TripRepository
	RequestRepo repository.RequestRepository
	MatchRepo   repository.MatchRepository
	RatingRepo  repository.RatingRepository
	Ledger      repository.LedgerRepository
	Index       repository.PendingIndex

	Matches  service.MatchService
	Booking  service.BookingService
	Trips    service.TripService
	Requests service.RequestService
}

// NewServices wires the engine. db may be nil and injected later with SetDB; a nil rdb
// makes the matches table itself serve as the pending index.
func NewServices(db *gorm.DB, cfg *config.Config, rdb *redis.Client, uploader storage.Uploader) *Services {
	s := &Services{
		TripRepo:    repository.NewTripRepository(db),
		RequestRepo: repository.NewRequestRepository(db),
		MatchRepo:   repository.NewMatchRepository(db),
		RatingRepo:  repository.NewRatingRepository(db),
		Ledger:      repository.NewLedgerRepository(db),
	}
	if rdb != nil {
		s.Index = repository.NewRedisPendingIndex(rdb)
	} else {
		s.Index = repository.NewDBPendingIndex(s.MatchRepo)
	}

	supported := matching.NewSupported(cfg.SupportedOrigins, cfg.SupportedDestinations, cfg.SupportedCurrencies)
	normalizer := matching.NewNormalizer(supported)
	scorer := matching.NewScorer(matching.Weights{
		DateFit:        cfg.ScoreWeightDate,
		CapacityMargin: cfg.ScoreWeightCapacity,
		Reliability:    cfg.ScoreWeightReliability,
	}, cfg.MatchResultLimit)
	opts := service.BookingOptions{ResponseWindow: cfg.MatchResponseWindow}

	s.Matches = service.NewMatchService(normalizer, scorer, s.TripRepo, s.RequestRepo, s.MatchRepo, s.RatingRepo)
	s.Booking = service.NewBookingService(s.RequestRepo, s.TripRepo, s.MatchRepo, s.RatingRepo, s.Ledger, s.Index, scorer, opts)
	s.Trips = service.NewTripService(s.TripRepo, s.Ledger, s.Index, uploader, supported, opts)
	s.Requests = service.NewRequestService(normalizer, s.RequestRepo, s.Ledger, s.Index, opts)
	return s
}

func (s *Services) SetDB(db *gorm.DB) {
	s.TripRepo.SetDB(db)
	s.RequestRepo.SetDB(db)
	s.MatchRepo.SetDB(db)
	s.RatingRepo.SetDB(db)
	s.Ledger.SetDB(db)
}
